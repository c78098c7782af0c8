package observe

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"

	"github.com/sapi-coap/sapi-go/pkg/sensor"
)

// Observe option values and limits.
const (
	// Register is the Observe option value of a registration request.
	Register uint32 = 0

	// Deregister is the Observe option value of a deregistration request.
	Deregister uint32 = 1

	// SequenceMask bounds Observe sequence numbers to 24 bits.
	SequenceMask uint32 = 0xFFFFFF

	// MaxAge is the Max-Age option value (seconds) sent with observed responses.
	MaxAge uint32 = 90
)

// Observe errors.
var (
	ErrResourceExhausted = errors.New("no free observer slot")
	ErrNoSink            = errors.New("observe relation has no sink")
)

// Notification is an Observe notification ready for the transport.
type Notification struct {
	// DeviceType names the observed sensor.
	DeviceType string

	// Token echoes the token of the registration request.
	Token []byte

	// Sequence is the Observe option value.
	Sequence uint32

	// MaxAge is the Max-Age option value in seconds.
	MaxAge uint32

	// ContentFormat is the payload media type.
	ContentFormat message.MediaType

	// Payload is the encoded envelope.
	Payload []byte
}

// Sink delivers notifications to one observer. Sinks are provided by the
// transport that received the registration.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, n Notification) error

// Notify calls f(ctx, n).
func (f SinkFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Relation is an active Observe relationship.
type Relation struct {
	// Peer identifies the remote endpoint (transport specific).
	Peer string

	// Token is the registration request token.
	Token []byte

	// Sink delivers notifications to the peer.
	Sink Sink

	// Since is when the relation was established.
	Since time.Time
}

// Matches reports whether the relation belongs to peer and token.
// An empty token matches any token from the peer.
func (r Relation) Matches(peer string, token []byte) bool {
	if r.Peer != peer {
		return false
	}
	return len(token) == 0 || bytes.Equal(r.Token, token)
}

// Observation is a snapshot of one active relation.
type Observation struct {
	SensorID   sensor.ID
	ObserverID uint8
	Relation   Relation
}

type slot struct {
	used     bool
	sensorID sensor.ID
	relation Relation
}

// Table holds observer slots and per-sensor sequence counters.
type Table struct {
	mu sync.Mutex

	slots    []slot
	bySensor map[sensor.ID]uint8
	seq      map[sensor.ID]uint32
}

// NewTable creates a table with the given number of observer slots.
// A size of zero or less means sensor.MaxSensors.
func NewTable(size int) *Table {
	if size <= 0 {
		size = sensor.MaxSensors
	}
	return &Table{
		slots:    make([]slot, size),
		bySensor: make(map[sensor.ID]uint8),
		seq:      make(map[sensor.ID]uint32),
	}
}

// Register installs rel as the sensor's observer and returns the observer ID
// together with the sequence number for the registration response.
func (t *Table) Register(sensorID sensor.ID, rel Relation) (observerID uint8, seq uint32, err error) {
	if rel.Sink == nil {
		return 0, 0, ErrNoSink
	}
	if rel.Since.IsZero() {
		rel.Since = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.bySensor[sensorID]; ok {
		t.slots[id-1].relation = rel
		return id, t.nextLocked(sensorID), nil
	}

	for i := range t.slots {
		if t.slots[i].used {
			continue
		}
		t.slots[i] = slot{used: true, sensorID: sensorID, relation: rel}
		observerID = uint8(i + 1)
		t.bySensor[sensorID] = observerID
		return observerID, t.nextLocked(sensorID), nil
	}
	return 0, 0, ErrResourceExhausted
}

// Cancel removes the sensor's observer. It returns the removed relation and
// false if the sensor had none.
func (t *Table) Cancel(sensorID sensor.ID) (Relation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.bySensor[sensorID]
	if !ok {
		return Relation{}, false
	}
	rel := t.slots[id-1].relation
	t.slots[id-1] = slot{}
	delete(t.bySensor, sensorID)
	return rel, true
}

// Lookup returns the sensor's current relation.
func (t *Table) Lookup(sensorID sensor.ID) (Relation, uint8, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.bySensor[sensorID]
	if !ok {
		return Relation{}, 0, false
	}
	return t.slots[id-1].relation, id, true
}

// NextSequence advances and returns the sensor's Observe sequence number.
func (t *Table) NextSequence(sensorID sensor.ID) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextLocked(sensorID)
}

// LastSequence returns the most recently issued sequence number (0 if none).
func (t *Table) LastSequence(sensorID sensor.ID) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq[sensorID]
}

func (t *Table) nextLocked(sensorID sensor.ID) uint32 {
	next := (t.seq[sensorID] + 1) & SequenceMask
	t.seq[sensorID] = next
	return next
}

// FindByToken returns the sensor observed by peer with token.
func (t *Table) FindByToken(peer string, token []byte) (sensor.ID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i].used && t.slots[i].relation.Matches(peer, token) {
			return t.slots[i].sensorID, true
		}
	}
	return 0, false
}

// Active returns all active relations ordered by observer ID.
func (t *Table) Active() []Observation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Observation
	for i := range t.slots {
		if !t.slots[i].used {
			continue
		}
		out = append(out, Observation{
			SensorID:   t.slots[i].sensorID,
			ObserverID: uint8(i + 1),
			Relation:   t.slots[i].relation,
		})
	}
	return out
}

// Count returns the number of active relations.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.bySensor)
}

// Clear removes every relation. Sequence counters are kept.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		t.slots[i] = slot{}
	}
	t.bySensor = make(map[sensor.ID]uint8)
}
