// internal/command/executor.go
// The Executor is the single choke point through which UI operations reach a
// browser. It runs an operation, classifies its failure, and retries according
// to the operation's Spec. Each Executor is bound to exactly one driver; it is
// safe to share between goroutines only in the sense that History and metrics
// are synchronized. The driver itself is not meant for concurrent flows.
package command

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/AngelRodriguez8008/EasyRepro/internal/config"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Operation is the unit of work handed to Execute.
type Operation[T any] func(ctx context.Context, drv driver.Driver) (T, error)

// Sleeper pauses between attempts. It must return early with ctx.Err() when
// ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Metrics receives per-attempt and per-command observations.
type Metrics interface {
	ObserveAttempt(command string, kind Kind)
	ObserveCommand(command string, kind Kind, attempts int, elapsed time.Duration)
}

// Record is one entry of the executor's command history.
type Record struct {
	Name     string
	Attempts int
	Duration time.Duration
	// Kind is empty for a successful command.
	Kind Kind
	At   time.Time
}

// Executor runs operations against one driver.
type Executor struct {
	drv     driver.Driver
	cfg     config.ExecutorConfig
	logger  *zap.Logger
	sleep   Sleeper
	limiter *rate.Limiter
	metrics Metrics

	mu       sync.Mutex
	history  []Record
	histSize int
	histNext int
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithSleeper replaces the retry-delay sleeper.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithLimiter paces attempts through a token bucket.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

// WithHistory keeps the last n command records. Zero disables history.
func WithHistory(n int) Option {
	return func(e *Executor) { e.histSize = max(n, 0) }
}

// NewExecutor binds an executor to drv.
func NewExecutor(drv driver.Driver, cfg config.ExecutorConfig, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		drv:      drv,
		cfg:      cfg,
		logger:   logger.Named("executor"),
		sleep:    sleepContext,
		histSize: cfg.HistorySize,
	}
	if cfg.CommandsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.CommandsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Driver returns the driver the executor is bound to.
func (e *Executor) Driver() driver.Driver { return e.drv }

// Logger returns the executor's logger.
func (e *Executor) Logger() *zap.Logger { return e.logger }

// Spec builds a spec carrying the configured default retry policy.
func (e *Executor) Spec(name string, opts ...SpecOption) Spec {
	base := []SpecOption{WithMaxAttempts(e.cfg.MaxAttempts), WithRetryDelay(e.cfg.RetryDelay)}
	return NewSpec(name, append(base, opts...)...)
}

// History returns the recorded commands, oldest first.
func (e *Executor) History() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) < e.histSize {
		return append([]Record(nil), e.history...)
	}
	out := make([]Record, 0, len(e.history))
	out = append(out, e.history[e.histNext:]...)
	return append(out, e.history[:e.histNext]...)
}

func (e *Executor) record(r Record) {
	if e.histSize == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.history) < e.histSize {
		e.history = append(e.history, r)
		return
	}
	e.history[e.histNext] = r
	e.histNext = (e.histNext + 1) % e.histSize
}

// Execute runs op under spec. A successful attempt returns immediately.
// A failure whose kind is retryable is retried after spec.RetryDelay while
// retries remain; any other failure is surfaced at once. Cancellation of ctx
// while waiting between attempts surfaces as KindCanceled.
func Execute[T any](ctx context.Context, e *Executor, spec Spec, op Operation[T]) Outcome[T] {
	start := time.Now()
	total := spec.MaxAttempts + 1
	log := e.logger.With(zap.String("command", spec.Name))
	if spec.SourceInfo != "" {
		log = log.With(zap.String("source", spec.SourceInfo))
	}

	fail := func(kind Kind, attempts int, err error) Outcome[T] {
		info := FailureInfo{
			Command:      spec.Name,
			Kind:         kind,
			Message:      err.Error(),
			AttemptsMade: attempts,
			cause:        err,
		}
		e.finish(spec.Name, kind, attempts, time.Since(start))
		log.Warn("Command failed.",
			zap.String("kind", string(kind)),
			zap.Int("attempts", attempts),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return Failed[T](info)
	}

	for attempt := 0; ; attempt++ {
		made := attempt + 1
		label := fmt.Sprintf("%d of %d", made, total)

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return fail(KindCanceled, attempt, fmt.Errorf("waiting for command slot: %w", err))
			}
		}
		if err := ctx.Err(); err != nil {
			return fail(KindCanceled, attempt, err)
		}

		attemptStart := time.Now()
		value, err := invoke(ctx, e.drv, op)
		elapsed := time.Since(attemptStart)

		if err == nil {
			e.observeAttempt(spec.Name, "")
			log.Debug("Command attempt succeeded.",
				zap.String("attempt", label),
				zap.Duration("elapsed", elapsed),
				zap.String("outcome", "success"))
			e.finish(spec.Name, "", made, time.Since(start))
			return Succeeded(value)
		}

		kind := Classify(err)
		if ctx.Err() != nil {
			kind = KindCanceled
		}
		e.observeAttempt(spec.Name, kind)

		retry := spec.Retryable(kind) && attempt < spec.MaxAttempts
		log.Debug("Command attempt failed.",
			zap.String("attempt", label),
			zap.Duration("elapsed", elapsed),
			zap.String("outcome", string(kind)),
			zap.Bool("will_retry", retry),
			zap.Error(err))
		if !retry {
			return fail(kind, made, err)
		}

		if err := e.sleep(ctx, spec.RetryDelay); err != nil {
			return fail(KindCanceled, made, fmt.Errorf("retry delay interrupted: %w", err))
		}
	}
}

// invoke runs op and turns a panic into an unknown failure.
func invoke[T any](ctx context.Context, drv driver.Driver, op Operation[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Failure{Kind: KindUnknown, Msg: fmt.Sprintf("operation panicked: %v\n%s", r, debug.Stack())}
		}
	}()
	return op(ctx, drv)
}

func (e *Executor) observeAttempt(name string, kind Kind) {
	if e.metrics != nil {
		e.metrics.ObserveAttempt(name, kind)
	}
}

func (e *Executor) finish(name string, kind Kind, attempts int, elapsed time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveCommand(name, kind, attempts, elapsed)
	}
	e.record(Record{Name: name, Attempts: attempts, Duration: elapsed, Kind: kind, At: time.Now()})
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
