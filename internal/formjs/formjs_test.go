// internal/formjs/formjs_test.go
package formjs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/AngelRodriguez8008/EasyRepro/internal/config"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver/drivertest"
	"github.com/AngelRodriguez8008/EasyRepro/internal/wait"
)

// form is a scripted Xrm.Page backed by a map of attribute values.
type form struct {
	values map[string]any
	calls  [][]any
}

func (f *form) script(code string, args []any) (any, error) {
	f.calls = append(f.calls, args)
	switch code {
	case getAttributeJS:
		return f.values[args[0].(string)], nil
	case setAttributeJS:
		f.values[args[0].(string)] = args[1]
		return nil, nil
	case getEntityIDJS:
		return f.values["__id"], nil
	case controlVisibleJS, isDirtyJS:
		return true, nil
	case requiredLevelJS:
		return "Required", nil
	}
	return nil, errors.New("TypeError: Cannot read properties of undefined (reading 'getValue')")
}

func newRunner(t *testing.T, page *drivertest.Page, maxAttempts int) (*Runner, *command.Executor) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	exec := command.NewExecutor(page, config.ExecutorConfig{MaxAttempts: maxAttempts, HistorySize: 10}, logger)
	waiter := wait.NewWaiter(config.WaitConfig{Timeout: time.Second, PollInterval: 10 * time.Millisecond, SettleTimeout: time.Second}, logger)
	return NewRunner(exec, waiter, logger), exec
}

func TestAttributeRoundTrip(t *testing.T) {
	f := &form{values: map[string]any{"name": "Contoso"}}
	page := drivertest.NewPage().WithScript(f.script)
	r, exec := newRunner(t, page, 2)
	ctx := context.Background()

	name, err := GetAttributeValue[string](ctx, r, "name")
	require.NoError(t, err)
	assert.Equal(t, "Contoso", name)

	require.NoError(t, r.SetAttributeValue(ctx, "revenue", 1250.5))
	revenue, err := GetAttributeValue[float64](ctx, r, "revenue")
	require.NoError(t, err)
	assert.Equal(t, 1250.5, revenue)

	require.NoError(t, r.ClearAttribute(ctx, "name"))
	cleared, err := GetAttributeValue[*string](ctx, r, "name")
	require.NoError(t, err)
	assert.Nil(t, cleared)

	assert.Equal(t, 5, page.Settles(), "every call settles the page first")
	history := exec.History()
	require.Len(t, history, 5)
	assert.Equal(t, "Get Attribute Value via Form JS: name", history[0].Name)
	assert.Equal(t, "Set Attribute Value via Form JS: revenue", history[1].Name)
}

func TestScriptErrorIsNotRetried(t *testing.T) {
	page := drivertest.NewPage().WithScript(func(string, []any) (any, error) {
		return nil, command.NewFailure(command.KindNotFound, "Xrm is not defined")
	})
	r, _ := newRunner(t, page, 3)

	out := Run[string](context.Background(), r, "broken", "return Xrm.Page.ui.getFormType();")
	require.False(t, out.OK())
	assert.Equal(t, 1, out.Failure().AttemptsMade)
	assert.Len(t, page.Scripts(), 1)
}

func TestSettleFailureSkipsScript(t *testing.T) {
	page := drivertest.NewPage().FailSettle(command.NewFailure(command.KindTimeout, "page did not settle"))
	r, _ := newRunner(t, page, 0)

	err := r.SetAttributeValue(context.Background(), "name", "x")
	require.Error(t, err)
	assert.Equal(t, command.KindTimeout, command.Classify(err))
	assert.Empty(t, page.Scripts())
}

func TestGetEntityID(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		raw  any
		want uuid.UUID
	}{
		{"braced", "{" + id.String() + "}", id},
		{"plain", id.String(), id},
		{"unsaved record", "", uuid.Nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &form{values: map[string]any{"__id": tt.raw}}
			r, _ := newRunner(t, drivertest.NewPage().WithScript(f.script), 0)
			got, err := r.GetEntityID(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestControlState(t *testing.T) {
	f := &form{values: map[string]any{}}
	r, _ := newRunner(t, drivertest.NewPage().WithScript(f.script), 0)
	ctx := context.Background()

	visible, err := r.IsControlVisible(ctx, "name")
	require.NoError(t, err)
	assert.True(t, visible)

	dirty, err := r.IsDirty(ctx, "name")
	require.NoError(t, err)
	assert.True(t, dirty)

	level, err := r.GetRequiredLevel(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, RequiredLevelRequired, level)
	assert.Equal(t, "required", level.String())
	assert.Equal(t, []any{"name"}, f.calls[len(f.calls)-1])
}

func TestParseRequiredLevel(t *testing.T) {
	assert.Equal(t, RequiredLevelNone, ParseRequiredLevel("none"))
	assert.Equal(t, RequiredLevelRecommended, ParseRequiredLevel(" Recommended "))
	assert.Equal(t, RequiredLevelUnknown, ParseRequiredLevel("mandatory"))
}
