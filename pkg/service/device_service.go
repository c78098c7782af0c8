package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/sapi-coap/sapi-go/pkg/interaction"
	"github.com/sapi-coap/sapi-go/pkg/log"
	"github.com/sapi-coap/sapi-go/pkg/observe"
	"github.com/sapi-coap/sapi-go/pkg/sensor"
)

// task is a unit of work run on the service loop.
type task func(ctx context.Context)

// DeviceService orchestrates a SAPI device.
type DeviceService struct {
	mu sync.RWMutex

	config DeviceConfig
	state  ServiceState

	registry   *sensor.Registry
	observers  *observe.Table
	dispatcher *interaction.Dispatcher
	chain      *interaction.Chain
	notifier   *interaction.Notifier
	scheduler  *observe.Scheduler

	// Task loop
	tasks    chan task
	loopDone chan struct{}

	// Sensors with a notification already queued
	pendingMu sync.Mutex
	pending   map[sensor.ID]struct{}

	// Event handlers
	eventHandlers []EventHandler

	// Logger for debug output (optional)
	logger *slog.Logger

	// Protocol logger for structured event capture (optional)
	protocolLogger log.Logger

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDeviceService creates a new device service with an empty registry.
func NewDeviceService(config DeviceConfig) (*DeviceService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	registry := sensor.NewRegistry(config.MaxSensors)
	observers := observe.NewTable(config.MaxSensors)
	builder := interaction.NewBuilder()

	svc := &DeviceService{
		config:         config,
		state:          StateIdle,
		registry:       registry,
		observers:      observers,
		dispatcher:     interaction.NewDispatcher(registry, observers, builder, config.Logger),
		notifier:       interaction.NewNotifier(registry, observers, builder, config.Logger),
		tasks:          make(chan task, config.QueueSize),
		pending:        make(map[sensor.ID]struct{}),
		logger:         config.Logger,
		protocolLogger: config.ProtocolLogger,
	}

	// A nil *Legacy must not reach the chain as a non-nil Handler.
	if config.Legacy != nil {
		svc.chain = interaction.NewChain(svc.dispatcher, config.Legacy)
	} else {
		svc.chain = interaction.NewChain(svc.dispatcher)
	}

	svc.dispatcher.SetObserverHandler(svc.handleObserverChange)
	svc.scheduler = observe.NewScheduler(func(id sensor.ID) { svc.Trigger(id) }, observe.SchedulerConfig{
		Unit:   config.FrequencyUnit,
		Logger: config.Logger,
	})

	return svc, nil
}

// Register adds a sensor. Registration is only possible before Start.
func (s *DeviceService) Register(reg sensor.Registration) (sensor.ID, error) {
	id, err := s.registry.Register(reg)
	if err != nil {
		return 0, err
	}
	s.debugLog("sensor registered", "device_type", reg.DeviceType, "id", id, "frequency", reg.Frequency)
	s.logState(log.StateEntitySensor, "", "REGISTERED", reg.DeviceType)
	return id, nil
}

// Registry returns the sensor registry.
func (s *DeviceService) Registry() *sensor.Registry {
	return s.registry
}

// Observers returns the active Observe relations.
func (s *DeviceService) Observers() []observe.Observation {
	return s.observers.Active()
}

// State returns the current service state.
func (s *DeviceService) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnEvent registers an event handler.
func (s *DeviceService) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandlers = append(s.eventHandlers, handler)
}

// Start initializes every driver, starts the task loop and the scheduler.
// A driver initialization failure aborts startup and leaves the service idle.
func (s *DeviceService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := s.registry.Init(ctx); err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		s.logError(log.LayerService, err, "init drivers")
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	s.ctx, s.cancel = loopCtx, cancel
	s.loopDone = done
	s.state = StateRunning
	s.mu.Unlock()

	go s.run(loopCtx, done)
	s.scheduler.Start(loopCtx, s.registry.Entries())

	s.debugLog("service started", "sensors", s.registry.Count())
	s.logState(log.StateEntityService, StateIdle.String(), StateRunning.String(), "")
	s.emitEvent(Event{Type: EventStarted})
	return nil
}

// Stop stops the scheduler and the task loop, drops every Observe relation
// and closes the drivers.
func (s *DeviceService) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	cancel, done := s.cancel, s.loopDone
	s.mu.Unlock()

	s.scheduler.Stop()
	cancel()
	<-done

	for _, o := range s.observers.Active() {
		s.registry.ClearObserver(o.SensorID)
	}
	s.observers.Clear()
	err := s.registry.Close()

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	s.debugLog("service stopped")
	s.logState(log.StateEntityService, StateRunning.String(), StateStopped.String(), "")
	s.emitEvent(Event{Type: EventStopped, Error: err})
	return err
}

// run executes queued tasks one at a time until ctx is cancelled.
func (s *DeviceService) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.tasks:
			t(ctx)
		}
	}
}

// loop returns the loop's done channel if the service is running.
func (s *DeviceService) loop() (chan struct{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loopDone, s.state == StateRunning
}

// submit queues t, waiting for room until ctx is done.
func (s *DeviceService) submit(ctx context.Context, t task) error {
	done, ok := s.loop()
	if !ok {
		return ErrNotStarted
	}
	select {
	case s.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return ErrNotStarted
	}
}

// trySubmit queues t without blocking.
func (s *DeviceService) trySubmit(t task) error {
	if _, ok := s.loop(); !ok {
		return ErrNotStarted
	}
	select {
	case s.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// HandleRequest runs req through the dispatcher chain on the task loop and
// returns its response. It always returns a response: 5.03 if the service is
// not running or ctx ends first.
func (s *DeviceService) HandleRequest(ctx context.Context, req *interaction.Request) *interaction.Response {
	start := time.Now()
	result := make(chan *interaction.Response, 1)

	err := s.submit(ctx, func(context.Context) {
		result <- s.chain.Dispatch(ctx, req)
	})
	if err != nil {
		s.debugLog("request rejected", "path", req.PathString(), "error", err)
		return &interaction.Response{Code: codes.ServiceUnavailable}
	}

	done, _ := s.loop()
	var resp *interaction.Response
	select {
	case resp = <-result:
	case <-ctx.Done():
		return &interaction.Response{Code: codes.ServiceUnavailable}
	case <-done:
		// The loop may have run the task just before exiting.
		select {
		case resp = <-result:
		default:
			return &interaction.Response{Code: codes.ServiceUnavailable}
		}
	}

	s.debugLog("request handled",
		"method", req.Method.String(),
		"path", req.PathString(),
		"peer", req.Peer,
		"code", resp.Code.String(),
		"elapsed", time.Since(start))
	s.emitEvent(Event{
		Type: EventRequestHandled,
		Peer: req.Peer,
		Path: req.PathString(),
		Code: resp.Code,
	})
	return resp
}

// Reset cancels the Observe relation a CoAP Reset from peer refers to and
// returns the number of relations cancelled.
func (s *DeviceService) Reset(ctx context.Context, peer string, token []byte) int {
	result := make(chan int, 1)
	if err := s.submit(ctx, func(context.Context) {
		result <- s.dispatcher.Reset(peer, token)
	}); err != nil {
		return 0
	}

	done, _ := s.loop()
	select {
	case n := <-result:
		return n
	case <-ctx.Done():
		return 0
	case <-done:
		return 0
	}
}

// Trigger queues a notification for the sensor. It never blocks: a trigger
// for a sensor that already has one queued is dropped, as is a trigger that
// finds the queue full. It reports whether a notification was queued.
func (s *DeviceService) Trigger(id sensor.ID) bool {
	queued, _ := s.trigger(id)
	return queued
}

// trigger marks id pending and submits its notification task. A trigger
// that coalesces with a pending one returns false and a nil error.
func (s *DeviceService) trigger(id sensor.ID) (bool, error) {
	s.pendingMu.Lock()
	if _, ok := s.pending[id]; ok {
		s.pendingMu.Unlock()
		return false, nil
	}
	s.pending[id] = struct{}{}
	s.pendingMu.Unlock()

	if err := s.trySubmit(s.notifyTask(id)); err != nil {
		s.clearPending(id)
		s.debugLog("trigger dropped", "sensor_id", id, "error", err)
		return false, err
	}
	return true, nil
}

// PushNotification queues a notification for deviceType outside the
// periodic schedule, e.g. when the application knows the value changed.
// A push that coalesces with an already queued notification succeeds.
func (s *DeviceService) PushNotification(deviceType string) error {
	id, err := s.registry.LookupByURI(deviceType)
	if err != nil {
		return err
	}
	if _, ok := s.loop(); !ok {
		return ErrNotStarted
	}
	_, err = s.trigger(id)
	return err
}

func (s *DeviceService) clearPending(id sensor.ID) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// notifyTask returns the loop task sending one notification for id.
func (s *DeviceService) notifyTask(id sensor.ID) task {
	return func(ctx context.Context) {
		// Cleared first so a trigger arriving during the read queues again.
		s.clearPending(id)

		sent, err := s.notifier.Notify(ctx, id)
		if err == nil && !sent {
			return
		}

		entry, _ := s.registry.Get(id)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.debugLog("notification failed", "device_type", entry.DeviceType, "error", err)
			s.logError(log.LayerService, err, "notify "+entry.DeviceType)
			s.emitEvent(Event{Type: EventNotificationFailed, DeviceType: entry.DeviceType, SensorID: id, Error: err})
			// A dead sink never recovers; a failed read keeps the relation.
			if errors.Is(err, interaction.ErrDelivery) {
				s.dispatcher.Cancel(id, "notify failed")
			}
			return
		}

		s.emitEvent(Event{
			Type:       EventNotificationSent,
			DeviceType: entry.DeviceType,
			SensorID:   id,
			Sequence:   s.observers.LastSequence(id),
		})
	}
}

// handleObserverChange turns dispatcher observer changes into events.
func (s *DeviceService) handleObserverChange(c interaction.ObserverChange) {
	s.debugLog("observer changed",
		"device_type", c.DeviceType,
		"observer_id", c.ObserverID,
		"registered", c.Registered,
		"reason", c.Reason)

	if s.protocolLogger != nil {
		s.protocolLogger.Log(log.Event{
			Timestamp:  time.Now(),
			Layer:      log.LayerService,
			Category:   log.CategoryObserve,
			Remote:     c.Peer,
			DeviceType: c.DeviceType,
			Observe: &log.ObserveEvent{
				SensorID:   uint8(c.SensorID),
				ObserverID: c.ObserverID,
				Registered: c.Registered,
				Sequence:   c.Sequence,
				Reason:     c.Reason,
			},
		})
	}

	evt := Event{
		Type:       EventObserverCancelled,
		DeviceType: c.DeviceType,
		SensorID:   c.SensorID,
		Peer:       c.Peer,
		Sequence:   c.Sequence,
		Reason:     c.Reason,
	}
	if c.Registered {
		evt.Type = EventObserverRegistered
	}
	s.emitEvent(evt)
}

// emitEvent sends an event to all registered handlers.
func (s *DeviceService) emitEvent(event Event) {
	s.mu.RLock()
	handlers := s.eventHandlers
	s.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// debugLog logs a debug message if logging is enabled.
func (s *DeviceService) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *DeviceService) logState(entity log.StateEntity, oldState, newState, reason string) {
	if s.protocolLogger == nil {
		return
	}
	s.protocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerService,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (s *DeviceService) logError(layer log.Layer, err error, op string) {
	if s.protocolLogger == nil {
		return
	}
	s.protocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     layer,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: err.Error(),
			Context: op,
		},
	})
}
