package interaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/plgd-dev/go-coap/v3/message"

	"github.com/sapi-coap/sapi-go/pkg/observe"
	"github.com/sapi-coap/sapi-go/pkg/sensor"
)

// ErrDelivery marks a notification the observer's sink failed to deliver.
// Read failures are never wrapped in it.
var ErrDelivery = errors.New("notification delivery failed")

// Notifier produces Observe notifications for observed sensors.
type Notifier struct {
	registry  *sensor.Registry
	observers *observe.Table
	builder   *Builder
	logger    *slog.Logger
}

// NewNotifier creates a notifier sharing the dispatcher's builder.
func NewNotifier(registry *sensor.Registry, observers *observe.Table, builder *Builder, logger *slog.Logger) *Notifier {
	if builder == nil {
		builder = NewBuilder()
	}
	return &Notifier{
		registry:  registry,
		observers: observers,
		builder:   builder,
		logger:    logger,
	}
}

// Notify sends one notification to the sensor's observer. It is a no-op
// (false, nil) when the sensor has no observer. A failed read is returned
// and leaves the relation in place.
func (n *Notifier) Notify(ctx context.Context, id sensor.ID) (bool, error) {
	entry, err := n.registry.Get(id)
	if err != nil {
		return false, err
	}
	if !entry.Observer {
		return false, nil
	}

	payload, err := n.builder.Build(ctx, entry)
	if err != nil {
		return false, err
	}

	// The relation may have been cancelled while the driver was read.
	rel, _, ok := n.observers.Lookup(id)
	if !ok {
		return false, nil
	}

	notif := observe.Notification{
		DeviceType:    entry.DeviceType,
		Token:         rel.Token,
		Sequence:      n.observers.NextSequence(id),
		MaxAge:        observe.MaxAge,
		ContentFormat: message.AppCBOR,
		Payload:       payload,
	}
	if err := rel.Sink.Notify(ctx, notif); err != nil {
		return false, fmt.Errorf("%w: %q: %w", ErrDelivery, entry.DeviceType, err)
	}

	if n.logger != nil {
		n.logger.Debug("notifier: sent", "device_type", entry.DeviceType, "seq", notif.Sequence, "peer", rel.Peer)
	}
	return true, nil
}
