// internal/wait/waiter.go
package wait

import (
	"context"
	"time"

	"github.com/AngelRodriguez8008/EasyRepro/internal/config"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
	"go.uber.org/zap"
)

// Waiter binds the wait primitives to configured defaults.
type Waiter struct {
	cfg    config.WaitConfig
	logger *zap.Logger
}

// NewWaiter creates a Waiter. Zero durations in cfg fall back to package defaults.
func NewWaiter(cfg config.WaitConfig, logger *zap.Logger) *Waiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = cfg.Timeout
	}
	return &Waiter{cfg: cfg, logger: logger.Named("wait")}
}

// Spec returns a Spec with the configured poll interval. A non-positive
// timeout selects the configured default.
func (w *Waiter) Spec(timeout time.Duration) Spec {
	if timeout <= 0 {
		timeout = w.cfg.Timeout
	}
	return Spec{Timeout: timeout, PollInterval: w.cfg.PollInterval}
}

// Until waits for cond for at most timeout.
func (w *Waiter) Until(ctx context.Context, drv driver.Driver, what string, cond Condition, timeout time.Duration) (bool, error) {
	_, ok, err := w.Resolve(ctx, drv, what, cond, timeout)
	return ok, err
}

// Resolve waits for cond for at most timeout and returns the element it resolved.
func (w *Waiter) Resolve(ctx context.Context, drv driver.Driver, what string, cond Condition, timeout time.Duration) (driver.Element, bool, error) {
	start := time.Now()
	spec := w.Spec(timeout)
	el, ok, err := Resolve(ctx, drv, cond, spec)
	w.logger.Debug("Wait finished.",
		zap.String("condition", what),
		zap.Bool("satisfied", ok),
		zap.Duration("timeout", spec.Timeout),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return el, ok, err
}

// Element waits for loc to resolve for at most timeout.
func (w *Waiter) Element(ctx context.Context, drv driver.Driver, loc driver.Locator, timeout time.Duration) (driver.Element, bool, error) {
	start := time.Now()
	el, ok, err := ForElement(ctx, drv, loc, w.Spec(timeout))
	w.logger.Debug("Element wait finished.",
		zap.Stringer("locator", loc),
		zap.Bool("found", ok),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return el, ok, err
}

// Settled waits for the page to settle within the configured settle timeout.
func (w *Waiter) Settled(ctx context.Context, drv driver.Driver) error {
	return Settled(ctx, drv, w.cfg.SettleTimeout)
}

// Sleep pauses for d. It is reserved for deliberate pacing ("think time")
// between human-like steps; everything else waits on a condition.
func (w *Waiter) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
