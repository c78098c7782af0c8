package examples

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Kind names a simulated sensor. It doubles as the default device type.
type Kind string

const (
	KindTemperature Kind = "temp"
	KindHumidity    Kind = "humidity"
	KindLight       Kind = "light"
)

// Config keys understood by every simulated driver.
const (
	// KeyOffset is a calibration offset added to every reading.
	KeyOffset = "offset"

	// KeyPrecision is the number of decimals in a reading (0-3).
	KeyPrecision = "precision"

	// KeyUnit is informational; it is not part of the reading.
	KeyUnit = "unit"

	// KeyInterval is the sampling interval in seconds reported by the
	// sensor. It does not change the device's observe frequency.
	KeyInterval = "interval"
)

var (
	// ErrUnknownKind is returned by New for an unsupported kind.
	ErrUnknownKind = errors.New("unknown sensor kind")

	// ErrInvalidConfig is returned by WriteConfig for malformed input.
	ErrInvalidConfig = errors.New("invalid sensor config")
)

// Range describes the simulated signal.
type Range struct {
	Min, Max float64

	// Step bounds the change between two readings.
	Step float64

	// Start is the value after Init.
	Start float64
}

// Simulated is a driver producing a bounded random walk.
type Simulated struct {
	mu sync.Mutex

	kind  Kind
	rng   Range
	rand  *rand.Rand
	value float64

	offset    float64
	precision int
	unit      string
	interval  int

	initialized bool
}

// NewSimulated creates a driver for kind with the given signal range.
// seed makes the walk reproducible.
func NewSimulated(kind Kind, r Range, unit string, seed uint64) *Simulated {
	return &Simulated{
		kind:      kind,
		rng:       r,
		rand:      rand.New(rand.NewPCG(seed, uint64(len(kind)))),
		precision: 1,
		unit:      unit,
	}
}

// NewTemperature creates a simulated temperature sensor (°C).
func NewTemperature(seed uint64) *Simulated {
	return NewSimulated(KindTemperature, Range{Min: -10, Max: 40, Step: 0.3, Start: 21}, "C", seed)
}

// NewHumidity creates a simulated relative humidity sensor (%).
func NewHumidity(seed uint64) *Simulated {
	return NewSimulated(KindHumidity, Range{Min: 0, Max: 100, Step: 1.5, Start: 45}, "%", seed)
}

// NewLight creates a simulated illuminance sensor (lx).
func NewLight(seed uint64) *Simulated {
	s := NewSimulated(KindLight, Range{Min: 0, Max: 2000, Step: 40, Start: 300}, "lx", seed)
	s.precision = 0
	return s
}

// New creates a simulated driver by kind.
func New(kind string, seed uint64) (*Simulated, error) {
	switch Kind(kind) {
	case KindTemperature:
		return NewTemperature(seed), nil
	case KindHumidity:
		return NewHumidity(seed), nil
	case KindLight:
		return NewLight(seed), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Kinds returns the supported kinds.
func Kinds() []string {
	return []string{string(KindTemperature), string(KindHumidity), string(KindLight)}
}

// Kind returns the sensor kind.
func (s *Simulated) Kind() Kind {
	return s.kind
}

// Init sets the walk to its start value.
func (s *Simulated) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = s.rng.Start
	s.initialized = true
	return nil
}

// Read returns the current value as text and advances the walk.
func (s *Simulated) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		s.value = s.rng.Start
		s.initialized = true
	}
	out := s.value + s.offset

	delta := (s.rand.Float64()*2 - 1) * s.rng.Step
	s.value = math.Min(s.rng.Max, math.Max(s.rng.Min, s.value+delta))

	return []byte(strconv.FormatFloat(out, 'f', s.precision, 64)), nil
}

// Set forces the simulated value.
func (s *Simulated) Set(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = math.Min(s.rng.Max, math.Max(s.rng.Min, v))
	s.initialized = true
}

// Value returns the current simulated value without advancing the walk.
func (s *Simulated) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value + s.offset
}

// Interval returns the configured sampling interval in seconds.
func (s *Simulated) Interval() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// ReadConfig returns the configuration as "key=value" pairs.
func (s *Simulated) ReadConfig(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pairs := map[string]string{
		KeyOffset:    strconv.FormatFloat(s.offset, 'f', -1, 64),
		KeyPrecision: strconv.Itoa(s.precision),
		KeyUnit:      s.unit,
		KeyInterval:  strconv.Itoa(s.interval),
	}
	return []byte(FormatConfig(pairs)), nil
}

// WriteConfig applies "key=value" pairs. Keys not present keep their value.
// The write is all-or-nothing.
func (s *Simulated) WriteConfig(ctx context.Context, data []byte) error {
	pairs, err := ParseConfig(string(data))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	offset, precision, unit, interval := s.offset, s.precision, s.unit, s.interval
	for k, v := range pairs {
		switch k {
		case KeyOffset:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, k, v)
			}
			offset = f
		case KeyPrecision:
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > 3 {
				return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, k, v)
			}
			precision = n
		case KeyUnit:
			unit = v
		case KeyInterval:
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, k, v)
			}
			interval = n
		default:
			return fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, k)
		}
	}

	s.offset, s.precision, s.unit, s.interval = offset, precision, unit, interval
	return nil
}

// ParseConfig parses "k1=v1;k2=v2". Whitespace around keys and values is
// ignored; an empty string yields no pairs.
func ParseConfig(s string) (map[string]string, error) {
	pairs := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidConfig, part)
		}
		pairs[k] = strings.TrimSpace(v)
	}
	return pairs, nil
}

// FormatConfig formats pairs in key order.
func FormatConfig(pairs map[string]string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(pairs[k])
	}
	return b.String()
}
