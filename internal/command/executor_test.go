// internal/command/executor_test.go
package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AngelRodriguez8008/EasyRepro/internal/config"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver/drivertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSleeper captures requested delays without sleeping.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type fakeMetrics struct {
	mu       sync.Mutex
	attempts []Kind
	commands []Kind
	counts   []int
}

func (m *fakeMetrics) ObserveAttempt(_ string, kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, kind)
}

func (m *fakeMetrics) ObserveCommand(_ string, kind Kind, attempts int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, kind)
	m.counts = append(m.counts, attempts)
}

func newTestExecutor(t *testing.T, opts ...Option) (*Executor, *recordingSleeper) {
	t.Helper()
	s := &recordingSleeper{}
	cfg := config.ExecutorConfig{MaxAttempts: 2, RetryDelay: 10 * time.Millisecond, HistorySize: 8}
	all := append([]Option{WithSleeper(s.sleep)}, opts...)
	return NewExecutor(drivertest.NewPage(), cfg, zaptest.NewLogger(t), all...), s
}

func TestExecute_RetryableFailureExhaustsBudget(t *testing.T) {
	for _, n := range []int{0, 1, 3, 5} {
		t.Run(fmt.Sprintf("max_attempts=%d", n), func(t *testing.T) {
			ex, sleeper := newTestExecutor(t)
			spec := NewSpec("always-missing", WithMaxAttempts(n), WithRetryDelay(7*time.Millisecond))

			calls := 0
			out := Execute(context.Background(), ex, spec, func(ctx context.Context, _ driver.Driver) (string, error) {
				calls++
				return "", driver.ErrElementNotFound
			})

			require.False(t, out.OK())
			assert.Equal(t, n+1, calls, "a retryable failure runs max_attempts+1 times")
			f := out.Failure()
			require.NotNil(t, f)
			assert.Equal(t, n+1, f.AttemptsMade)
			assert.Equal(t, KindNotFound, f.Kind)
			assert.Len(t, sleeper.delays, n, "one delay between each pair of attempts")
			for _, d := range sleeper.delays {
				assert.Equal(t, 7*time.Millisecond, d)
			}
		})
	}
}

func TestExecute_NonRetryableFailsFast(t *testing.T) {
	kinds := []Kind{KindApplicationError, KindPrecondition, KindTimeout, KindUnknown}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			ex, sleeper := newTestExecutor(t)
			spec := NewSpec("rejected", WithMaxAttempts(5))

			calls := 0
			out := Execute(context.Background(), ex, spec, func(ctx context.Context, _ driver.Driver) (int, error) {
				calls++
				return 0, NewFailure(kind, "the application said no")
			})

			assert.Equal(t, 1, calls)
			require.NotNil(t, out.Failure())
			assert.Equal(t, kind, out.Failure().Kind)
			assert.Equal(t, 1, out.Failure().AttemptsMade)
			assert.Empty(t, sleeper.delays)
		})
	}
}

func TestExecute_SuccessShortCircuits(t *testing.T) {
	for k := 1; k <= 4; k++ {
		t.Run(fmt.Sprintf("succeeds_on_%d", k), func(t *testing.T) {
			ex, _ := newTestExecutor(t)
			spec := NewSpec("flaky", WithMaxAttempts(3))

			calls := 0
			out := Execute(context.Background(), ex, spec, func(ctx context.Context, _ driver.Driver) (int, error) {
				calls++
				if calls < k {
					return 0, driver.ErrStaleElement
				}
				return calls * 10, nil
			})

			require.True(t, out.OK())
			assert.Nil(t, out.Failure())
			assert.NoError(t, out.Err())
			assert.Equal(t, k, calls, "no invocation after success")
			assert.Equal(t, k*10, out.Value())
		})
	}
}

func TestExecute_ZeroAttemptsRunsOnce(t *testing.T) {
	ex, sleeper := newTestExecutor(t)
	calls := 0
	out := Execute(context.Background(), ex, NewSpec("once"), func(ctx context.Context, _ driver.Driver) (bool, error) {
		calls++
		return false, driver.ErrStaleElement
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, out.Failure().AttemptsMade)
	assert.Empty(t, sleeper.delays)
}

func TestExecute_UntaggedNotFoundTextIsNotRetried(t *testing.T) {
	ex, sleeper := newTestExecutor(t)
	calls := 0
	out := Execute(context.Background(), ex, NewSpec("fetch", WithMaxAttempts(3)), func(ctx context.Context, _ driver.Driver) (string, error) {
		calls++
		return "", errors.New("script evaluation failed: GET /api/data 404 Not Found")
	})
	assert.Equal(t, 1, calls)
	require.NotNil(t, out.Failure())
	assert.Equal(t, KindUnknown, out.Failure().Kind)
	assert.Empty(t, sleeper.delays)
}

func TestExecute_CustomRetryableKinds(t *testing.T) {
	ex, _ := newTestExecutor(t)
	spec := NewSpec("timeouts-only", WithMaxAttempts(2), WithRetryable(KindTimeout))

	calls := 0
	out := Execute(context.Background(), ex, spec, func(ctx context.Context, _ driver.Driver) (int, error) {
		calls++
		return 0, driver.ErrElementNotFound
	})
	assert.Equal(t, 1, calls, "not-found is no longer retryable")
	assert.Equal(t, KindNotFound, out.Failure().Kind)
}

func TestExecute_CancellationDuringDelay(t *testing.T) {
	ex := NewExecutor(drivertest.NewPage(), config.ExecutorConfig{}, zaptest.NewLogger(t))
	spec := NewSpec("slow-retry", WithMaxAttempts(3), WithRetryDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan Outcome[int], 1)
	go func() {
		done <- Execute(ctx, ex, spec, func(ctx context.Context, _ driver.Driver) (int, error) {
			calls++
			return 0, driver.ErrElementNotFound
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case out := <-done:
		require.NotNil(t, out.Failure())
		assert.Equal(t, KindCanceled, out.Failure().Kind)
		assert.Equal(t, 1, out.Failure().AttemptsMade)
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, out.Err(), context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
}

func TestExecute_CanceledBeforeStart(t *testing.T) {
	ex, _ := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	out := Execute(ctx, ex, NewSpec("never"), func(ctx context.Context, _ driver.Driver) (int, error) {
		called = true
		return 1, nil
	})
	assert.False(t, called)
	assert.Equal(t, KindCanceled, out.Failure().Kind)
	assert.Equal(t, 0, out.Failure().AttemptsMade)
}

func TestExecute_RecoversPanics(t *testing.T) {
	ex, _ := newTestExecutor(t)
	out := Execute(context.Background(), ex, NewSpec("boom", WithMaxAttempts(3)), func(ctx context.Context, _ driver.Driver) (int, error) {
		panic("nil map write")
	})
	require.NotNil(t, out.Failure())
	assert.Equal(t, KindUnknown, out.Failure().Kind)
	assert.Equal(t, 1, out.Failure().AttemptsMade, "unknown is not retryable by default")
	assert.Contains(t, out.Failure().Message, "nil map write")
}

func TestExecute_PassesBoundDriver(t *testing.T) {
	page := drivertest.NewPage()
	ex := NewExecutor(page, config.ExecutorConfig{}, zaptest.NewLogger(t))
	out := Execute(context.Background(), ex, NewSpec("identity"), func(ctx context.Context, drv driver.Driver) (driver.Driver, error) {
		return drv, nil
	})
	assert.Same(t, page, out.Value())
	assert.Same(t, page, ex.Driver())
}

func TestExecute_MetricsAndHistory(t *testing.T) {
	m := &fakeMetrics{}
	ex, _ := newTestExecutor(t, WithMetrics(m), WithHistory(2))

	calls := 0
	Execute(context.Background(), ex, NewSpec("first", WithMaxAttempts(1)), func(ctx context.Context, _ driver.Driver) (int, error) {
		calls++
		if calls == 1 {
			return 0, driver.ErrStaleElement
		}
		return 1, nil
	})
	Execute(context.Background(), ex, NewSpec("second"), func(ctx context.Context, _ driver.Driver) (int, error) {
		return 0, NewFailure(KindApplicationError, "error dialog")
	})
	Execute(context.Background(), ex, NewSpec("third"), func(ctx context.Context, _ driver.Driver) (int, error) {
		return 3, nil
	})

	assert.Equal(t, []Kind{KindStaleReference, "", KindApplicationError, ""}, m.attempts)
	assert.Equal(t, []Kind{"", KindApplicationError, ""}, m.commands)
	assert.Equal(t, []int{2, 1, 1}, m.counts)

	hist := ex.History()
	require.Len(t, hist, 2, "history is bounded")
	assert.Equal(t, "second", hist[0].Name)
	assert.Equal(t, KindApplicationError, hist[0].Kind)
	assert.Equal(t, "third", hist[1].Name)
	assert.Empty(t, hist[1].Kind)
}

func TestExecute_LimiterCancellation(t *testing.T) {
	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	ex, _ := newTestExecutor(t, WithLimiter(lim))

	ok := Execute(context.Background(), ex, NewSpec("first"), func(ctx context.Context, _ driver.Driver) (int, error) {
		return 1, nil
	})
	require.True(t, ok.OK())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := Execute(ctx, ex, NewSpec("second"), func(ctx context.Context, _ driver.Driver) (int, error) {
		return 2, nil
	})
	require.False(t, out.OK())
	assert.Equal(t, KindCanceled, out.Failure().Kind)
}

func TestExecutor_SpecUsesConfiguredDefaults(t *testing.T) {
	ex := NewExecutor(drivertest.NewPage(), config.ExecutorConfig{MaxAttempts: 4, RetryDelay: time.Second}, nil)
	spec := ex.Spec("Login", WithSource("auth"))
	assert.Equal(t, "Login", spec.Name)
	assert.Equal(t, 4, spec.MaxAttempts)
	assert.Equal(t, time.Second, spec.RetryDelay)
	assert.Equal(t, "auth", spec.SourceInfo)
	assert.ElementsMatch(t, DefaultRetryableKinds, spec.RetryableKinds)

	single := spec.With(WithMaxAttempts(0))
	assert.Equal(t, 0, single.MaxAttempts)
	assert.Equal(t, 4, spec.MaxAttempts, "With must not mutate the receiver")
}

func TestOutcome_ErrKeepsKindAndCause(t *testing.T) {
	ex, _ := newTestExecutor(t)
	sentinel := errors.New("grid did not render")
	out := Execute(context.Background(), ex, NewSpec("grid"), func(ctx context.Context, _ driver.Driver) (int, error) {
		return 0, WrapFailure(KindApplicationError, sentinel, "open grid")
	})

	v, err := out.Unwrap()
	assert.Zero(t, v)
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindApplicationError, kind)
	assert.Contains(t, err.Error(), "grid failed after 1 attempt(s)")
}
