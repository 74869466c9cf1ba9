// internal/wait/wait_test.go
package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/AngelRodriguez8008/EasyRepro/internal/config"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver/drivertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var landing = driver.ID("landing", "navBar")

func TestUntil_FastPath(t *testing.T) {
	page := drivertest.NewPage().Show(landing)

	start := time.Now()
	ok, err := Until(context.Background(), page, ForLocator(landing), Spec{Timeout: 5 * time.Second, PollInterval: time.Second})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Less(t, elapsed, 100*time.Millisecond, "an already satisfied condition must not sleep")
	assert.Equal(t, 1, page.Finds(landing))
}

func TestUntil_TimeoutBounds(t *testing.T) {
	const (
		timeout = 200 * time.Millisecond
		poll    = 50 * time.Millisecond
	)
	var evaluations atomic.Int32
	never := func(ctx context.Context, _ driver.Driver) (driver.Element, bool, error) {
		evaluations.Add(1)
		return nil, false, nil
	}

	start := time.Now()
	ok, err := Until(context.Background(), drivertest.NewPage(), never, Spec{Timeout: timeout, PollInterval: poll})
	elapsed := time.Since(start)

	require.NoError(t, err, "a timeout is not an error unless OnTimeout says so")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+poll+100*time.Millisecond)

	n := evaluations.Load()
	assert.GreaterOrEqual(t, n, int32(3))
	assert.LessOrEqual(t, n, int32(6), "polling must not busy-spin")
}

func TestUntil_TransientErrorsMeanNotYet(t *testing.T) {
	page := drivertest.NewPage().ShowAfter(landing, 3)

	ok, err := Until(context.Background(), page, ForLocator(landing), Spec{Timeout: 2 * time.Second, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, page.Finds(landing))
}

func TestUntil_OtherErrorsAbort(t *testing.T) {
	boom := errors.New("renderer crashed")
	calls := 0
	cond := func(ctx context.Context, _ driver.Driver) (driver.Element, bool, error) {
		calls++
		return nil, false, boom
	}
	ok, err := Until(context.Background(), drivertest.NewPage(), cond, Spec{Timeout: time.Second, PollInterval: 10 * time.Millisecond})
	assert.False(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestUntil_Callbacks(t *testing.T) {
	t.Run("OnSatisfied receives the resolved element", func(t *testing.T) {
		page := drivertest.NewPage().Show(landing)
		called := 0
		ok, err := Until(context.Background(), page, Visible(landing), Spec{
			Timeout: time.Second,
			OnSatisfied: func(ctx context.Context, el driver.Element) error {
				called++
				require.NotNil(t, el)
				return el.Click(ctx)
			},
			OnTimeout: func(ctx context.Context) error { t.Fatal("OnTimeout must not run"); return nil },
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, called)
		assert.Equal(t, 1, page.Clicks(landing))
	})

	t.Run("OnSatisfied error is returned", func(t *testing.T) {
		page := drivertest.NewPage().Show(landing)
		boom := errors.New("focus lost")
		ok, err := Until(context.Background(), page, ForLocator(landing), Spec{
			Timeout:     time.Second,
			OnSatisfied: func(context.Context, driver.Element) error { return boom },
		})
		assert.True(t, ok)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("OnTimeout converts timeout into failure", func(t *testing.T) {
		sentinel := errors.New("landing marker not found")
		ok, err := Until(context.Background(), drivertest.NewPage(), ForLocator(landing), Spec{
			Timeout:      30 * time.Millisecond,
			PollInterval: 10 * time.Millisecond,
			OnTimeout:    func(ctx context.Context) error { return sentinel },
		})
		assert.False(t, ok)
		assert.ErrorIs(t, err, sentinel)
	})
}

func TestUntil_RequiresTimeout(t *testing.T) {
	ok, err := Until(context.Background(), drivertest.NewPage(), ForLocator(landing), Spec{})
	assert.False(t, ok)
	kind, tagged := command.KindOf(err)
	require.True(t, tagged)
	assert.Equal(t, command.KindPrecondition, kind)
}

func TestUntil_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	ok, err := Until(ctx, drivertest.NewPage(), ForLocator(landing), Spec{Timeout: time.Hour, PollInterval: 10 * time.Millisecond})
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConditions(t *testing.T) {
	hiddenBtn := driver.CSS("stay signed in", "#idSIButton9")
	ctx := context.Background()

	t.Run("Visible", func(t *testing.T) {
		page := drivertest.NewPage().ShowHidden(hiddenBtn)
		el, ok, err := Visible(hiddenBtn)(ctx, page)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, el)

		page.Show(hiddenBtn)
		el, ok, err = Visible(hiddenBtn)(ctx, page)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotNil(t, el)
	})

	t.Run("Absent", func(t *testing.T) {
		page := drivertest.NewPage().Show(hiddenBtn)
		_, ok, err := Absent(hiddenBtn)(ctx, page)
		require.NoError(t, err)
		assert.False(t, ok)

		page.Remove(hiddenBtn)
		el, ok, err := Absent(hiddenBtn)(ctx, page)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Nil(t, el)
	})

	t.Run("Any", func(t *testing.T) {
		page := drivertest.NewPage().Show(landing)
		el, ok, err := Any(ForLocator(hiddenBtn), ForLocator(landing))(ctx, page)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NotNil(t, el)
		require.NoError(t, el.Click(ctx))
		assert.Equal(t, 1, page.Clicks(landing))
	})
}

func TestForElement(t *testing.T) {
	page := drivertest.NewPage().ShowAfter(landing, 2)
	el, ok, err := ForElement(context.Background(), page, landing, Spec{Timeout: time.Second, PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, el)
	require.NoError(t, el.Click(context.Background()))
	assert.Equal(t, 1, page.Clicks(landing))

	el, ok, err = ForElement(context.Background(), drivertest.NewPage(), landing, Spec{Timeout: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, el)
}

// blockingPage never settles until its context ends.
type blockingPage struct {
	*drivertest.Page
}

func (b blockingPage) WaitForPageSettled(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSettled(t *testing.T) {
	page := drivertest.NewPage()
	require.NoError(t, Settled(context.Background(), page, time.Second))
	assert.Equal(t, 1, page.Settles())

	err := Settled(context.Background(), blockingPage{drivertest.NewPage()}, 20*time.Millisecond)
	kind, ok := command.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, command.KindTimeout, kind)
}

func TestWaiter(t *testing.T) {
	w := NewWaiter(config.WaitConfig{Timeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond, SettleTimeout: time.Second}, zaptest.NewLogger(t))

	spec := w.Spec(0)
	assert.Equal(t, 50*time.Millisecond, spec.Timeout, "zero selects the configured default")
	assert.Equal(t, 5*time.Millisecond, spec.PollInterval)

	page := drivertest.NewPage().ShowAfter(landing, 2)
	el, ok, err := w.Element(context.Background(), page, landing, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, el)

	resolved, ok, err := w.Resolve(context.Background(), page, "landing visible", Visible(landing), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, resolved)
	require.NoError(t, resolved.Click(context.Background()))
	assert.Equal(t, 1, page.Clicks(landing))

	ok, err = w.Until(context.Background(), page, "landing gone", Absent(landing), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, w.Settled(context.Background(), page))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, w.Sleep(context.Background(), time.Millisecond))
}
