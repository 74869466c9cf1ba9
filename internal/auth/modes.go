// internal/auth/modes.go
package auth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
)

const (
	testModeFlags        = "flags=testmode=true,easyreproautomation=true"
	performanceModeFlags = "perf=true"
)

// ModeQuery returns the query flags enabled by cfg, or "" when none are.
func (a *Authenticator) ModeQuery() string {
	var flags []string
	if a.cfg.TestMode {
		flags = append(flags, testModeFlags)
	}
	if a.cfg.PerformanceMode {
		flags = append(flags, performanceModeFlags)
	}
	return strings.Join(flags, "&")
}

// withModes appends query to rawURL unless every flag is already present.
func withModes(rawURL, query string) (string, bool) {
	if query == "" || strings.Contains(rawURL, query) {
		return rawURL, false
	}
	sep := "&"
	if !strings.Contains(rawURL, "?") {
		sep = "?"
	}
	return rawURL + sep + query, true
}

// InitializeModes reloads the current page with the application's test and
// performance flags so the UI exposes automation hooks. It is a no-op when no
// mode is configured or the flags are already in the URL.
func (a *Authenticator) InitializeModes(ctx context.Context) error {
	query := a.ModeQuery()
	spec := a.exec.Spec(InitializeModesCommand, command.WithSource("auth.InitializeModes"))
	res := command.Execute(ctx, a.exec, spec, func(ctx context.Context, drv driver.Driver) (bool, error) {
		current, err := drv.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		target, changed := withModes(current, query)
		if !changed {
			return false, nil
		}
		if err := drv.Navigate(ctx, target); err != nil {
			return false, fmt.Errorf("reloading with mode flags: %w", err)
		}
		if err := a.waiter.Settled(ctx, drv); err != nil {
			return false, err
		}
		return true, nil
	})
	reloaded, err := res.Unwrap()
	if err != nil {
		return err
	}
	a.logger.Debug("Unified Interface modes initialized.", zap.Bool("reloaded", reloaded), zap.String("flags", query))
	return nil
}
