package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// permanentError marks an error retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return "permanent: " + e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do gives up on its first occurrence instead of
// burning through the remaining attempts. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the Permanent marker.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Config shapes the backoff schedule.
type Config struct {
	// Attempts is the total number of tries including the first.
	// Zero or negative means a single attempt.
	Attempts int

	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration

	// MaxDelay caps the growing delay.
	MaxDelay time.Duration

	// Factor multiplies the delay after every failed attempt.
	Factor float64

	// Jitter spreads each delay by up to 25% so components restarting
	// together do not hammer the broker in lockstep.
	Jitter bool
}

// DefaultConfig suits one-shot operations that should survive a brief
// hiccup: 3 attempts over roughly half a second.
func DefaultConfig() Config {
	return Config{
		Attempts:  3,
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Factor:    2.0,
		Jitter:    true,
	}
}

// Quick retries aggressively for a few seconds. Fits startup races such
// as the CLI connecting before the broker finished booting.
func Quick() Config {
	return Config{
		Attempts:  10,
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  time.Second,
		Factor:    1.5,
		Jitter:    true,
	}
}

// Persistent keeps trying for minutes. The readout feed uses it to ride
// out a broker restart without abandoning its subscription loop.
func Persistent() Config {
	return Config{
		Attempts:  30,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  10 * time.Second,
		Factor:    2.0,
		Jitter:    true,
	}
}

// sanitize fills zero fields with defaults and rejects configurations
// that cannot describe a schedule.
func (c Config) sanitize() (Config, error) {
	if c.BaseDelay < 0 || c.MaxDelay < 0 || c.Factor < 0 {
		return c, errors.New("retry: negative delay or factor")
	}
	if c.Attempts <= 0 {
		c.Attempts = 1
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.MaxDelay < c.BaseDelay {
		return c, errors.New("retry: MaxDelay below BaseDelay")
	}
	if c.Factor == 0 {
		c.Factor = 2.0
	}
	// Huge factors would overflow the float math on the second step.
	if c.Factor > 1000 {
		c.Factor = 1000
	}
	return c, nil
}

// Do runs fn until it succeeds, fails permanently, exhausts the
// configured attempts or ctx is cancelled. The last error from fn is
// wrapped in the returned error.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.sanitize()
	if err != nil {
		return err
	}

	delay := cfg.BaseDelay
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry: cancelled before attempt %d: %w", attempt, err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt == cfg.Attempts {
			break
		}

		if err := sleep(ctx, withJitter(delay, cfg.Jitter)); err != nil {
			return fmt.Errorf("retry: cancelled waiting for attempt %d: %w", attempt+1, err)
		}
		delay = nextDelay(delay, cfg)
	}

	return fmt.Errorf("retry: giving up after %d attempts: %w", cfg.Attempts, lastErr)
}

// withJitter extends d by up to a quarter of itself.
func withJitter(d time.Duration, jitter bool) time.Duration {
	if !jitter || d <= 0 {
		return d
	}
	return d + rand.N(d/4+1)
}

// nextDelay grows d by the configured factor, capped at MaxDelay. The
// float comparison also catches overflow: +Inf exceeds any cap.
func nextDelay(d time.Duration, cfg Config) time.Duration {
	next := float64(d) * cfg.Factor
	if next > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(next)
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
