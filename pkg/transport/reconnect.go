package transport

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Reopen backoff defaults for the serial link.
const (
	// InitialBackoff is the delay before the first reopen attempt.
	InitialBackoff = 500 * time.Millisecond

	// MaxBackoff caps the reopen delay.
	MaxBackoff = 30 * time.Second

	// BackoffMultiplier is the factor by which the delay grows.
	BackoffMultiplier = 2.0

	// JitterFactor is the maximum jitter as a fraction of the delay.
	JitterFactor = 0.25
)

// BackoffConfig customizes reopen delays. Zero fields take the defaults.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter is the random extra delay as a fraction of the base delay.
	// Zero means JitterFactor; a negative value disables jitter.
	Jitter float64
}

// Backoff calculates exponential backoff delays with jitter.
type Backoff struct {
	mu sync.Mutex

	current    time.Duration
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	attempts   int
}

// NewBackoff creates a backoff calculator.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	switch {
	case cfg.Jitter == 0:
		cfg.Jitter = JitterFactor
	case cfg.Jitter < 0:
		cfg.Jitter = 0
	}
	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
	}
}

// Next returns the next delay (with jitter) and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	if b.jitter > 0 {
		delay += time.Duration(float64(delay) * b.jitter * rand.Float64())
	}

	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Reset returns to the initial delay. Call it after a successful open.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the current base delay (without jitter).
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// OpenFunc opens a serial link.
type OpenFunc func(config SerialConfig, handler Handler) (*SerialLink, error)

// SerialSupervisor keeps a serial link up. When opening the port fails or
// a running link loses its port, the port is reopened after a backoff
// delay.
type SerialSupervisor struct {
	config  SerialConfig
	handler Handler
	backoff *Backoff
	open    OpenFunc

	mu    sync.Mutex
	link  *SerialLink
	opens int
}

// NewSerialSupervisor creates a supervisor for the configured port.
func NewSerialSupervisor(config SerialConfig, backoff BackoffConfig, handler Handler) *SerialSupervisor {
	return &SerialSupervisor{
		config:  config,
		handler: handler,
		backoff: NewBackoff(backoff),
		open:    OpenSerial,
	}
}

// SetOpenFunc replaces the function used to open the port.
func (s *SerialSupervisor) SetOpenFunc(fn OpenFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = fn
}

// Link returns the current link, or nil while the port is down.
func (s *SerialSupervisor) Link() *SerialLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

// Opens returns how many times the port was opened successfully.
func (s *SerialSupervisor) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Run opens and serves the link until ctx is cancelled. It returns nil on
// cancellation.
func (s *SerialSupervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.mu.Lock()
		open := s.open
		s.mu.Unlock()

		link, err := open(s.config, s.handler)
		if err != nil {
			delay := s.backoff.Next()
			s.warnLog("serial open failed", "port", s.config.Port, "error", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		s.backoff.Reset()
		s.mu.Lock()
		s.link = link
		s.opens++
		s.mu.Unlock()

		err = s.serve(ctx, link)

		s.mu.Lock()
		s.link = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			return nil
		}
		delay := s.backoff.Next()
		s.warnLog("serial link lost", "port", s.config.Port, "error", err, "retry_in", delay)
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

// serve runs link until it fails or ctx is done, then closes it.
func (s *SerialSupervisor) serve(ctx context.Context, link *SerialLink) error {
	stop := context.AfterFunc(ctx, func() { link.Close() })
	defer stop()

	err := link.Serve(ctx)
	link.Close()
	if errors.Is(err, ErrLinkClosed) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *SerialSupervisor) warnLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Warn(msg, args...)
	} else {
		slog.Warn(msg, args...)
	}
}

// sleep waits for d or ctx. It reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
