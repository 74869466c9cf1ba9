// internal/browser/allocator.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/AngelRodriguez8008/EasyRepro/internal/config"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// AllocatorOptions translates the browser configuration into exec allocator
// options for chromedp.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("enable-automation", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	if cfg.DisableCache {
		opts = append(opts, chromedp.Flag("disk-cache-size", "1"))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	// Extra args are "name" or "name=value".
	for _, arg := range cfg.Args {
		name, value, hasValue := cutArg(arg)
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

func cutArg(arg string) (name, value string, ok bool) {
	return strings.Cut(strings.TrimLeft(arg, "-"), "=")
}

// NewAllocator launches Chrome and returns the browser context every session
// derives its tab from. The returned cancel function shuts the browser down.
func NewAllocator(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (context.Context, context.CancelFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)

	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(log.Sugar().Infof),
		chromedp.WithErrorf(log.Sugar().Errorf),
	}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(log.Sugar().Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// An empty Run starts the browser process so launch failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	log.Info("Browser started.", zap.Bool("headless", cfg.Headless))

	return browserCtx, func() {
		browserCancel()
		allocCancel()
	}, nil
}
