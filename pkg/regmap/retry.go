package regmap

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/jpillora/backoff"
)

const (
	// DefaultAttempts and DefaultDelay bound how long a single register access
	// may keep failing before it is reported.
	DefaultAttempts = 50
	DefaultDelay    = 20 * time.Millisecond
)

// Retry wraps a Port so every access is retried a bounded number of times with
// a fixed delay between attempts.
type Retry struct {
	port     Port
	attempts int
	delay    time.Duration
	sleep    func(time.Duration)
	log      logr.Logger
}

// RetryOption customizes a Retry wrapper.
type RetryOption func(*Retry)

// WithAttempts sets the total number of tries per access.
func WithAttempts(n int) RetryOption {
	return func(r *Retry) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithDelay sets the pause between attempts.
func WithDelay(d time.Duration) RetryOption {
	return func(r *Retry) {
		if d >= 0 {
			r.delay = d
		}
	}
}

// WithRetrySleep replaces time.Sleep, mostly for tests.
func WithRetrySleep(sleep func(time.Duration)) RetryOption {
	return func(r *Retry) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

// WithRetryLogger reports intermediate failures at V(1).
func WithRetryLogger(log logr.Logger) RetryOption {
	return func(r *Retry) {
		r.log = log
	}
}

// NewRetry wraps port. Defaults are 50 attempts 20ms apart.
func NewRetry(port Port, opts ...RetryOption) *Retry {
	r := &Retry{
		port:     port,
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		sleep:    time.Sleep,
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retry) Read(addr uint16) (uint8, error) {
	var val uint8
	err := r.do("read", addr, func() error {
		var err error
		val, err = r.port.Read(addr)
		return err
	})
	return val, err
}

func (r *Retry) Write(addr uint16, val uint8) error {
	return r.do("write", addr, func() error {
		return r.port.Write(addr, val)
	})
}

func (r *Retry) UpdateBits(addr uint16, mask, val uint8) error {
	return r.do("update", addr, func() error {
		return r.port.UpdateBits(addr, mask, val)
	})
}

func (r *Retry) do(op string, addr uint16, fn func() error) error {
	b := &backoff.Backoff{Min: r.delay, Max: r.delay, Factor: 1}
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == r.attempts {
			break
		}
		r.log.V(1).Info("register access failed, retrying", "op", op, "addr", addr, "attempt", attempt, "error", err.Error())
		if r.delay > 0 {
			r.sleep(b.Duration())
		}
	}
	return IOError(op, addr, err)
}
