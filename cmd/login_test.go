// File: cmd/login_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AngelRodriguez8008/EasyRepro/internal/auth"
	"github.com/AngelRodriguez8008/EasyRepro/internal/config"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver/drivertest"
	"github.com/AngelRodriguez8008/EasyRepro/internal/observability"
)

const onPremTarget = "https://crm.contoso.local/main.aspx"

// fakeBrowser hands out the given pages in order and counts closed sessions.
type fakeBrowser struct {
	mu     sync.Mutex
	pages  []*drivertest.Page
	opened int
	closed int
	down   bool
}

func (f *fakeBrowser) start(context.Context, *config.Config, *zap.Logger) (openSessionFunc, func(), error) {
	open := func() (driver.Driver, string, func() error, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.pages) == 0 {
			return nil, "", nil, errors.New("no more pages")
		}
		p := f.pages[0]
		f.pages = f.pages[1:]
		f.opened++
		return p, fmt.Sprintf("session-%d", f.opened), func() error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.closed++
			return nil
		}, nil
	}
	return open, func() { f.down = true }, nil
}

// setupCLI silences logging and installs fb as the browser launcher.
func setupCLI(t *testing.T, fb *fakeBrowser) {
	t.Helper()
	t.Setenv("EASYREPRO_LOGGER_LEVEL", "fatal")
	t.Setenv("EASYREPRO_USERNAME", "")
	t.Setenv("EASYREPRO_PASSWORD", "")
	t.Setenv("EASYREPRO_MFA_SECRET", "")
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	orig := startBrowser
	startBrowser = fb.start
	t.Cleanup(func() { startBrowser = orig })
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// signedInPage lands on the organization as soon as it navigates.
func signedInPage() *drivertest.Page {
	landing := auth.DefaultLocators().LandingMarker
	page := drivertest.NewPage()
	page.OnNavigate(func(p *drivertest.Page) { p.Show(landing) })
	return page
}

func TestLogin_ReportsEveryTarget(t *testing.T) {
	ok := signedInPage()
	broken := drivertest.NewPage().FailNavigate(errors.New("net::ERR_NAME_NOT_RESOLVED"))
	fb := &fakeBrowser{pages: []*drivertest.Page{ok, broken}}
	setupCLI(t, fb)

	out, err := runCLI(t, "login", "--concurrency", "1", onPremTarget, "https://crm.fabrikam.local/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 logins failed")

	assert.Contains(t, out, "TARGET")
	assert.Regexp(t, `crm\.contoso\.local/main\.aspx\s+success\s+Authenticated`, out)
	assert.Regexp(t, `crm\.fabrikam\.local/\s+failure\s+Start\s+navigation failed`, out)

	assert.Equal(t, 2, fb.closed, "every session is closed")
	assert.True(t, fb.down, "the browser is shut down")
	assert.Equal(t, []string{onPremTarget, onPremTarget + "?flags=testmode=true,easyreproautomation=true"}, ok.Navigations(),
		"test mode is switched on after a successful login")
}

func TestLogin_TargetsFromConfigFile(t *testing.T) {
	page := signedInPage()
	fb := &fakeBrowser{pages: []*drivertest.Page{page}}
	setupCLI(t, fb)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - https://crm.contoso.local/main.aspx
auth:
  test_mode: false
metrics:
  enabled: false
`), 0o600))

	out, err := runCLI(t, "login", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "success")
	assert.Equal(t, []string{onPremTarget}, page.Navigations())
}

func TestLogin_NoTargets(t *testing.T) {
	setupCLI(t, &fakeBrowser{})
	_, err := runCLI(t, "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no target url")
}

func TestLogin_InvalidConfig(t *testing.T) {
	setupCLI(t, &fakeBrowser{})
	t.Setenv("EASYREPRO_EXECUTOR_MAX_ATTEMPTS", "-1")
	_, err := runCLI(t, "login", onPremTarget)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestReport(t *testing.T) {
	var out bytes.Buffer
	err := report(&out, []loginResult{
		{target: "https://a", outcome: auth.Outcome{Kind: auth.Success, State: auth.StateAuthenticated}},
		{target: "https://b", outcome: auth.Outcome{Kind: auth.Redirect, State: auth.StateRedirected}},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "redirect")
}

func TestVersion(t *testing.T) {
	setupCLI(t, &fakeBrowser{})

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "easyrepro "+Version)

	out, err = runCLI(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}
