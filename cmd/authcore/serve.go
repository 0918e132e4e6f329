package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authcore"
	otelexport "github.com/MrEthical07/authcore/metrics/export/otel"
)

const (
	meterName             = "github.com/MrEthical07/authcore"
	telemetryFlushTimeout = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API: registration, login, the current identity and
owner-scoped todos, with per-client lockout and per-route rate limits.

The signing secret is read from AUTHCORE_SECRET_KEY (a .env file in the
working directory is loaded first) or from secret_key in the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, cmd.ErrOrStderr())
		},
	}

	registerServeFlags(cmd.Flags())
	return cmd
}

// app holds everything a running server owns.
type app struct {
	logger    *logrus.Logger
	engine    *authcore.Engine
	handler   http.Handler
	backend   backend
	telemetry *telemetry
	otel      *otelexport.Exporter
}

func (a *app) Close() {
	if a.otel != nil {
		_ = a.otel.Close()
	}
	a.engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("telemetry shutdown")
	}
	_ = a.backend.close()
}

// newApp builds the engine over the configured store and the HTTP handler
// in front of it.
func newApp(ctx context.Context, cfg serverConfig, logOut io.Writer) (*app, error) {
	logger, err := setupLogger(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	tel, err := startTelemetry(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	return assembleApp(ctx, cfg, logger, tel)
}

// assembleApp takes ownership of tel, which may be nil.
func assembleApp(ctx context.Context, cfg serverConfig, logger *logrus.Logger, tel *telemetry) (*app, error) {
	fail := func(err error) (*app, error) {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}

	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return fail(err)
	}

	be, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return fail(err)
	}

	builder := authcore.New().WithConfig(engineCfg).WithIdentityStore(be.identities)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(authcore.NewLogrusSink(logger.WithField("component", "audit")))
	}
	engine, err := builder.Build()
	if err != nil {
		_ = be.close()
		return fail(oops.Code("CONFIG_INVALID").Wrapf(err, "build engine"))
	}

	report := engine.SecurityReport()
	logger.WithFields(logrus.Fields{
		"store":            cfg.Store.Driver,
		"signing":          report.SigningAlgorithm,
		"access_ttl":       report.AccessTTL.String(),
		"password_hash":    report.PasswordAlgorithm,
		"lockout":          fmt.Sprintf("%d/%s", report.LockoutThreshold, report.LockoutWindow),
		"throttled_routes": len(report.ThrottledRoutes),
		"audit":            report.AuditEnabled,
		"metrics":          report.MetricsEnabled,
		"telemetry":        tel != nil,
	}).Info("engine ready")

	a := &app{
		logger:    logger,
		engine:    engine,
		handler:   newHandler(cfg, engine, be.todos, tel, logger),
		backend:   be,
		telemetry: tel,
	}

	if tel != nil {
		a.otel, err = otelexport.NewExporter(tel.meterProvider.Meter(meterName), engine)
		if err != nil {
			a.Close()
			return nil, oops.Wrapf(err, "register otel instruments")
		}
	}

	return a, nil
}

func runServer(ctx context.Context, cfg serverConfig, logOut io.Writer) error {
	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", cfg.Addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return oops.With("addr", cfg.Addr).Wrapf(err, "listen")
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
