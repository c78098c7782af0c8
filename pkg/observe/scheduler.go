package observe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sapi-coap/sapi-go/pkg/sensor"
)

// TriggerFunc is called when a sensor's polling period elapses.
// It must not block; the device service only enqueues work here.
type TriggerFunc func(id sensor.ID)

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Unit is the length of one frequency unit (default: 1s).
	Unit time.Duration

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Scheduler fires periodic notification triggers, one ticker per polled sensor.
type Scheduler struct {
	mu sync.Mutex

	config  SchedulerConfig
	trigger TriggerFunc

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a scheduler that calls trigger on every tick.
func NewScheduler(trigger TriggerFunc, config SchedulerConfig) *Scheduler {
	if config.Unit <= 0 {
		config.Unit = time.Second
	}
	return &Scheduler{
		config:  config,
		trigger: trigger,
	}
}

// Start launches a ticker for every entry with a non-zero frequency.
// Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context, entries []sensor.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, e := range entries {
		if e.Frequency == 0 {
			continue
		}
		period := time.Duration(e.Frequency) * s.config.Unit
		s.debugLog("scheduler: polling sensor", "device_type", e.DeviceType, "period", period)

		s.wg.Add(1)
		go s.run(ctx, e.ID, period)
	}
}

func (s *Scheduler) run(ctx context.Context, id sensor.ID, period time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(id)
		}
	}
}

// Stop halts all tickers and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// Running reports whether the scheduler has been started.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}
