// -- cmd/login.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AngelRodriguez8008/EasyRepro/internal/auth"
	"github.com/AngelRodriguez8008/EasyRepro/internal/browser"
	"github.com/AngelRodriguez8008/EasyRepro/internal/command"
	"github.com/AngelRodriguez8008/EasyRepro/internal/config"
	"github.com/AngelRodriguez8008/EasyRepro/internal/driver"
	"github.com/AngelRodriguez8008/EasyRepro/internal/observability"
	"github.com/AngelRodriguez8008/EasyRepro/internal/wait"
)

// openSessionFunc opens one isolated browser session. The returned function
// closes it.
type openSessionFunc func() (driver.Driver, string, func() error, error)

// startBrowser launches the browser the login sessions share. Tests replace it.
var startBrowser = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (openSessionFunc, func(), error) {
	browserCtx, shutdown, err := browser.NewAllocator(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, nil, err
	}
	open := func() (driver.Driver, string, func() error, error) {
		s, err := browser.NewSession(browserCtx, cfg.Browser, cfg.Wait, logger)
		if err != nil {
			return nil, "", nil, err
		}
		return s, s.ID(), s.Close, nil
	}
	return open, shutdown, nil
}

type loginOptions struct {
	federatedForm bool
}

type loginResult struct {
	target  string
	outcome auth.Outcome
	err     error
}

func newLoginCmd(a *app) *cobra.Command {
	opts := loginOptions{}
	cmd := &cobra.Command{
		Use:   "login [urls...]",
		Short: "Sign into one or more organizations",
		Long: `Signs a fresh browser session into every target URL. Targets come from the
arguments or, when none are given, from the "targets" config list.

Credentials are read from EASYREPRO_USERNAME, EASYREPRO_PASSWORD and
EASYREPRO_MFA_SECRET (or the auth section of the config file). Without a
username the login relies on an existing trusted identity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := args
			if len(targets) == 0 {
				targets = a.cfg.Targets
			}
			if len(targets) == 0 {
				return errors.New("no target url given and no targets configured")
			}
			return runLogin(cmd.Context(), a.cfg, targets, opts, a.logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while logging in")
	cmd.Flags().Int("concurrency", 0, "maximum number of sessions signing in at once")
	cmd.Flags().Bool("headless", true, "run the browser without a window")
	cmd.Flags().BoolVar(&opts.federatedForm, "federated-form", false, "complete federated sign-in on a forms-based identity provider")
	return cmd
}

func runLogin(ctx context.Context, cfg *config.Config, targets []string, opts loginOptions, logger *zap.Logger, out io.Writer) error {
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace, true)
		if cfg.Metrics.Addr != "" {
			stop := serveMetrics(cfg.Metrics.Addr, metrics, logger)
			defer stop()
		}
	}

	open, shutdown, err := startBrowser(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer shutdown()

	results := make([]loginResult, len(targets))
	var g errgroup.Group
	g.SetLimit(cfg.Browser.Concurrency)
	for i, target := range targets {
		g.Go(func() error {
			results[i] = loginTarget(ctx, cfg, open, target, opts, metrics, logger)
			return nil
		})
	}
	_ = g.Wait()

	return report(out, results)
}

func loginTarget(ctx context.Context, cfg *config.Config, open openSessionFunc, target string, opts loginOptions, metrics *observability.Metrics, logger *zap.Logger) loginResult {
	res := loginResult{target: target}

	drv, sessionID, closeSession, err := open()
	if err != nil {
		res.outcome = auth.Outcome{Kind: auth.Failure, Reason: "could not open browser session", State: auth.StateStart}
		res.err = err
		return res
	}
	if metrics != nil {
		metrics.SessionOpened()
		defer metrics.SessionClosed()
	}
	defer func() {
		if err := closeSession(); err != nil {
			logger.Warn("Failed to close browser session.", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()

	var execOpts []command.Option
	authOpts := []auth.Option{}
	if metrics != nil {
		execOpts = append(execOpts, command.WithMetrics(metrics))
		authOpts = append(authOpts, auth.WithMetrics(metrics))
	}
	exec := command.NewExecutor(drv, cfg.Executor, logger, execOpts...)
	waiter := wait.NewWaiter(cfg.Wait, logger)
	authenticator := auth.New(exec, waiter, cfg.Auth, logger, authOpts...)

	creds := auth.Credentials{
		Username:  cfg.Auth.Username,
		Password:  cfg.Auth.Password,
		MFASecret: cfg.Auth.MFASecret,
	}
	ctxOpts := []auth.ContextOption{auth.WithSessionID(sessionID)}
	if opts.federatedForm {
		handler := auth.FormRedirectHandler(auth.DefaultFederationForm(), auth.DefaultLocators(), waiter, cfg.Wait.Timeout, cfg.Auth.LandingTimeout)
		ctxOpts = append(ctxOpts, auth.WithRedirectHandler(handler))
	}

	res.outcome, res.err = authenticator.Login(ctx, auth.NewContext(target, creds, ctxOpts...))
	if res.err == nil && res.outcome.Kind == auth.Success && authenticator.ModeQuery() != "" {
		if err := authenticator.InitializeModes(ctx); err != nil {
			logger.Warn("Failed to initialize Unified Interface modes.", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return res
}

// report prints one line per target and returns an error when any failed.
func report(out io.Writer, results []loginResult) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tOUTCOME\tSTATE\tREASON")
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.target, r.outcome.Kind, r.outcome.State, r.outcome.Reason)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d logins failed", failed, len(results))
	}
	return nil
}

// serveMetrics exposes the registry until the returned stop function is called.
func serveMetrics(addr string, metrics *observability.Metrics, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics listener failed.", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("Serving metrics.", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
