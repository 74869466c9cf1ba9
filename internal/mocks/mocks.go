// internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
)

// -- Driver Mock --

// MockDriver mocks driver.Driver.
type MockDriver struct {
	mock.Mock
}

var _ driver.Driver = (*MockDriver)(nil)

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Find(ctx context.Context, loc driver.Locator) (driver.Element, error) {
	args := m.Called(ctx, loc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(driver.Element), args.Error(1)
}

func (m *MockDriver) FindAll(ctx context.Context, loc driver.Locator) ([]driver.Element, error) {
	args := m.Called(ctx, loc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]driver.Element), args.Error(1)
}

func (m *MockDriver) Click(ctx context.Context, el driver.Element) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockDriver) Type(ctx context.Context, el driver.Element, text string) error {
	args := m.Called(ctx, el, text)
	return args.Error(0)
}

func (m *MockDriver) Attribute(ctx context.Context, el driver.Element, name string) (string, bool, error) {
	args := m.Called(ctx, el, name)
	return args.String(0), args.Bool(1), args.Error(2)
}

// RunScript returns the configured error. Use Run to fill out.
func (m *MockDriver) RunScript(ctx context.Context, code string, args []any, out any) error {
	ret := m.Called(ctx, code, args, out)
	return ret.Error(0)
}

func (m *MockDriver) WaitForPageSettled(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) SwitchToDefaultContent(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Element Mock --

// MockElement mocks driver.Element.
type MockElement struct {
	mock.Mock
}

var _ driver.Element = (*MockElement)(nil)

func (m *MockElement) Click(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockElement) Type(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

func (m *MockElement) Submit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockElement) Visible(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// -- Metrics Mocks --

// MockCommandMetrics mocks command.Metrics.
type MockCommandMetrics struct {
	mock.Mock
}

var _ command.Metrics = (*MockCommandMetrics)(nil)

func (m *MockCommandMetrics) ObserveAttempt(name string, kind command.Kind) {
	m.Called(name, kind)
}

func (m *MockCommandMetrics) ObserveCommand(name string, kind command.Kind, attempts int, elapsed time.Duration) {
	m.Called(name, kind, attempts, elapsed)
}

// MockLoginMetrics mocks the login outcome sink.
type MockLoginMetrics struct {
	mock.Mock
}

func (m *MockLoginMetrics) ObserveLogin(outcome, state string) {
	m.Called(outcome, state)
}
