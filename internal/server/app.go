// Package server assembles the triage service from configuration and runs
// its gRPC endpoint, session sweeper and metrics listener until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/cytoguard/internal/audit"
	"github.com/dmitrijs2005/cytoguard/internal/cryptox"
	"github.com/dmitrijs2005/cytoguard/internal/inference"
	"github.com/dmitrijs2005/cytoguard/internal/logging"
	"github.com/dmitrijs2005/cytoguard/internal/metrics"
	"github.com/dmitrijs2005/cytoguard/internal/report"
	"github.com/dmitrijs2005/cytoguard/internal/securestore"
	"github.com/dmitrijs2005/cytoguard/internal/server/config"
	"github.com/dmitrijs2005/cytoguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cytoguard/internal/session"
	"github.com/dmitrijs2005/cytoguard/internal/triage"
	"github.com/dmitrijs2005/cytoguard/internal/validation"

	gs "github.com/dmitrijs2005/cytoguard/internal/server/grpc"
)

const shutdownTimeout = 10 * time.Second

// openDB is a seam for tests.
var openDB = func(ctx context.Context, dsn string) (*sql.DB, error) {
	return repomanager.Open(ctx, repomanager.NewPostgresRepositoryManager(), dsn)
}

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	audit          *audit.Log
	dirs           *securestore.DirSet
	registry       *session.Registry
	triage         *triage.Service
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	logWriter      io.Writer
}

type Option func(*App)

// WithLogWriter redirects structured logs (default os.Stdout).
func WithLogWriter(w io.Writer) Option {
	return func(a *App) { a.logWriter = w }
}

// WithMetrics supplies the collectors and the handler exposing them.
func WithMetrics(m *metrics.Metrics, h http.Handler) Option {
	return func(a *App) {
		a.metrics = m
		a.metricsHandler = h
	}
}

func NewApp(ctx context.Context, c *config.Config, opts ...Option) (*App, error) {
	app := &App{config: c, logWriter: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.metrics == nil {
		app.metrics = metrics.New(nil)
		app.metricsHandler = metrics.Handler()
	}

	app.logger = logging.New(app.logWriter, c.LogFormat, c.LogLevel)

	auditOpts := []audit.Option{audit.WithLogger(app.logger)}
	if c.DatabaseDSN != "" {
		db, err := openDB(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db
		m := repomanager.NewPostgresRepositoryManager()
		auditOpts = append(auditOpts, audit.WithSink(m.AuditLog(db)))
	}
	app.audit = audit.NewLog(auditOpts...)

	predictor, err := inference.NewHTTPPredictor(c.ModelURL, c.ModelTimeout, inference.WithMapping(c.ClassMapping))
	if err != nil {
		app.closeDB()
		return nil, fmt.Errorf("model init error: %w", err)
	}

	app.dirs = securestore.NewDirSet()
	storeOpts := []securestore.Option{
		securestore.WithBaseDir(c.TempBaseDir),
		securestore.WithTracker(app.dirs),
		securestore.WithLogger(app.logger),
	}
	app.registry = session.New(app.audit,
		session.WithTimeout(c.SessionTimeout),
		session.WithCryptoOptions(cryptox.WithIterations(c.KDFIterations)),
		session.WithLogger(app.logger),
		session.WithMetrics(app.metrics),
		session.WithStoreFactory(func(ctx context.Context, ci securestore.Cipher, rec audit.Recorder) (*securestore.Store, error) {
			return securestore.Open(ctx, ci, rec, storeOpts...)
		}),
	)

	triageOpts := []triage.Option{triage.WithLogger(app.logger), triage.WithMetrics(app.metrics)}
	if archive := c.ReportArchive(); archive.Enabled() {
		triageOpts = append(triageOpts, triage.WithArchiver(report.NewS3Archiver(archive)))
	}
	validator := validation.New(nil, validation.WithMaxSize(c.MaxUploadBytes))
	app.triage = triage.NewService(app.registry, validator, predictor, triageOpts...)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.triage, app.registry, app.config.MaxUploadBytes)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startMetricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metricsHandler)
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "metrics server failed", "error", err)
	}
}

// Run blocks until ctx is cancelled, a signal arrives or the gRPC server
// fails, then reclaims every session and sweeps leftover directories.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.registry.Run(ctx, app.config.SweepInterval)
	}()

	if app.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startMetricsServer(ctx)
		}()
	}

	wg.Wait()

	app.shutdown()
}

func (app *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	n := app.registry.Close(ctx)
	swept := app.dirs.Sweep(ctx, app.logger)
	app.logger.Info(ctx, "Stopped", "sessions_closed", n, "dirs_swept", swept)

	app.closeDB()
}

func (app *App) closeDB() {
	if app.db == nil {
		return
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(context.Background(), "db close failed", "error", err)
	}
	app.db = nil
}
