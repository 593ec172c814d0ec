/**
 * Main Application Coordinator for TradeImport
 *
 * Features:
 * - Dependency injection and initialization
 * - Component lifecycle management
 * - Graceful shutdown handling
 * - Signal handling (SIGINT/SIGTERM)
 * - Import target resolution from the catalogue or configuration
 *
 * Author: TradeImport Team
 * Updated: 2025-02-15
 */

package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
	"github.com/vishalSecmark/tradewebx-sub002/internal/config"
	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/logger"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
	"github.com/vishalSecmark/tradewebx-sub002/internal/queue"
	"github.com/vishalSecmark/tradewebx-sub002/internal/server"
	"github.com/vishalSecmark/tradewebx-sub002/internal/state"
	"github.com/vishalSecmark/tradewebx-sub002/internal/upload"
)

// App is the main application coordinator.
type App struct {
	config       *config.Config
	logger       *logger.Logger
	logFile      io.Closer
	stateManager *state.Manager
	apiClient    *api.Client
	uploader     upload.Uploader
	notifier     queue.Notifier
	queue        *queue.Manager
	shutdownChan chan struct{}
	mu           sync.RWMutex
	shutdownOnce sync.Once

	isInitialized bool
}

// New creates a new application instance.
func New() (*App, error) {
	return &App{
		shutdownChan: make(chan struct{}),
	}, nil
}

// Initialize loads configuration and opens storage.
func (app *App) Initialize() error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	return app.InitializeWithConfig(cfg)
}

// InitializeWithConfig opens storage using cfg.
func (app *App) InitializeWithConfig(cfg *config.Config) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.isInitialized {
		return errors.Errorf("application already initialized")
	}
	app.config = cfg

	log, closer, err := newLogger(cfg.Log)
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	app.logger = log
	app.logFile = closer

	app.logger.Info("Initializing TradeImport",
		"version", cfg.Version,
		"config", viper.ConfigFileUsed(),
	)

	if err := ensureDir(cfg.Store.Path); err != nil {
		return errors.Wrap(err, "failed to create data directory")
	}

	dbConfig := state.DefaultConfig()
	dbConfig.Path = cfg.Store.Path
	app.stateManager, err = state.NewManager(dbConfig)
	if err != nil {
		return errors.Wrap(err, "failed to initialize state manager")
	}
	app.logger.Info("Database initialized", "path", cfg.Store.Path)

	app.isInitialized = true
	return nil
}

func newLogger(cfg config.LogConfig) (*logger.Logger, io.Closer, error) {
	var output io.Writer = os.Stderr
	var closer io.Closer

	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "file":
		if err := ensureDir(cfg.File); err != nil {
			return nil, nil, err
		}
		fw, err := logger.NewFileWriter(cfg.File, int64(cfg.MaxSize)*1024*1024, cfg.MaxBackups)
		if err != nil {
			return nil, nil, err
		}
		output, closer = fw, fw
	}

	return logger.Init(&logger.Config{
		Level:         cfg.Level,
		Output:        output,
		Pretty:        cfg.Format == "pretty",
		IncludeCaller: cfg.Level == "debug",
		Fields:        map[string]interface{}{},
	}), closer, nil
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0750)
}

// InitializeQueue builds the API client, the notifier, and the queue
// manager. The persisted queue is loaded and recovered here.
func (app *App) InitializeQueue(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if !app.isInitialized {
		return errors.Errorf("application not initialized")
	}
	if app.queue != nil {
		return nil
	}

	cfg := app.config

	if app.apiClient == nil {
		rateLimiter := api.NewAdaptiveRateLimiter(&api.RateLimiterConfig{
			RateLimit: cfg.API.RateLimit,
			BurstSize: cfg.API.Burst,
		})
		app.apiClient = api.NewClient(api.ClientConfig{
			BaseURL:      cfg.API.BaseURL,
			UploadPath:   cfg.API.UploadPath,
			FinalizePath: cfg.API.FinalizePath,
			TargetsPath:  cfg.API.TargetsPath,
			Timeout:      cfg.RequestTimeout(),
			UserID:       cfg.API.UserID,
			UserType:     cfg.API.UserType,
		}, rateLimiter, app.logger)
	}

	if app.uploader == nil {
		app.uploader = api.NewChunkUploader(app.apiClient, &errors.RetryPolicy{
			MaxRetries:   cfg.Import.MaxRetries,
			InitialDelay: cfg.RetryDelay(),
			MaxDelay:     cfg.RetryMaxDelay(),
			Multiplier:   cfg.Import.RetryMultiplier,
		}, app.logger)
	}

	if err := app.initNotifierLocked(ctx); err != nil {
		return err
	}

	qcfg := queue.DefaultConfig()
	qcfg.QueueKey = cfg.Store.QueueKey
	qcfg.BreakerThreshold = cfg.Import.BreakerThreshold
	qcfg.Driver = upload.Config{ChunkSize: cfg.Import.ChunkSize, Sheet: cfg.Import.Sheet}
	qcfg.AllowedExtensions = cfg.Import.AllowedExtensions
	qcfg.MaxFileSize = cfg.MaxFileSizeBytes()
	qcfg.FinalizeTimeout = cfg.RequestTimeout()

	opts := queue.Options{
		Store:    app.stateManager,
		Uploader: app.uploader,
		Journal:  app.stateManager,
		Notifier: app.notifier,
		Logger:   app.logger,
	}
	if cfg.API.FinalizePath != "" {
		opts.Finalizer = app.apiClient
	}

	q, err := queue.NewManager(ctx, qcfg, opts)
	if err != nil {
		return errors.Wrap(err, "failed to initialize queue")
	}
	app.queue = q

	app.logger.Info("Queue initialized", "items", len(q.Snapshot().Items))
	return nil
}

// initNotifierLocked picks the change notifier. A redis notifier that
// cannot connect falls back to in-process delivery.
func (app *App) initNotifierLocked(ctx context.Context) error {
	if app.notifier != nil {
		return nil
	}

	ncfg := app.config.Notify
	switch strings.ToLower(ncfg.Driver) {
	case "redis":
		n, err := queue.NewRedisNotifier(ctx, queue.RedisConfig{
			Addr:     ncfg.RedisAddr,
			Password: ncfg.RedisPassword,
			DB:       ncfg.RedisDB,
			Channel:  ncfg.Channel,
		}, app.logger)
		if err != nil {
			app.logger.Warn("Redis notifier unavailable, using local notifications", "addr", ncfg.RedisAddr, "error", err)
			app.notifier = queue.NewLocalNotifier()
			return nil
		}
		app.notifier = n
	case "local", "":
		app.notifier = queue.NewLocalNotifier()
	default:
		return errors.New(errors.ErrorTypeConfiguration, "init_notifier", ncfg.Driver,
			errors.Errorf("unknown notify driver %q", ncfg.Driver))
	}
	return nil
}

// Observer returns a read-only view of the persisted queue that does not
// load or recover it.
func (app *App) Observer(ctx context.Context) (*queue.Observer, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if !app.isInitialized {
		return nil, errors.Errorf("application not initialized")
	}
	if err := app.initNotifierLocked(ctx); err != nil {
		return nil, err
	}
	return queue.NewObserver(app.stateManager, app.config.Store.QueueKey, app.notifier, 0, app.logger), nil
}

// targetFetchAttempts bounds catalogue fetches on transient failures.
const targetFetchAttempts = 3

// ResolveTargets returns the enabled and all import targets, from the
// backend catalogue when configured and from configuration otherwise.
func (app *App) ResolveTargets(ctx context.Context) ([]api.Target, []api.Target, error) {
	app.mu.RLock()
	cfg, client := app.config, app.apiClient
	app.mu.RUnlock()

	if cfg.API.TargetsPath != "" && client != nil {
		var enabled, all []api.Target
		err := errors.RetryWithBackoff(ctx, targetFetchAttempts, func() error {
			var err error
			enabled, all, err = client.FetchTargets(ctx)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		app.logger.Debug("Fetched import targets", "enabled", len(enabled), "total", len(all))
		return enabled, all, nil
	}

	enabled, all := targetsFromConfig(cfg.Targets)
	if len(all) == 0 {
		return nil, nil, errors.New(errors.ErrorTypeConfiguration, "resolve_targets", "",
			errors.NewSimple("no import targets configured; set api.targets_path or targets"))
	}
	return enabled, all, nil
}

func targetsFromConfig(tcs []config.TargetConfig) (enabled, all []api.Target) {
	for i, tc := range tcs {
		t := api.Target{
			ID:        tc.ID,
			FileName:  tc.FileName,
			FileType:  tc.FileType,
			Exchange:  tc.Exchange,
			Segment:   tc.Segment,
			ImportKey: tc.ImportKey,
			Enabled:   tc.Enabled,
		}
		if t.ID == "" {
			t.ID = strconv.Itoa(i + 1)
		}
		all = append(all, t)
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	return enabled, all
}

// Import opens paths and adds them to the queue. Unreadable paths are
// reported as rejected.
func (app *App) Import(ctx context.Context, paths []string, filters map[string]string) (*queue.AddResult, error) {
	if err := app.ensureReady(ctx); err != nil {
		return nil, err
	}

	enabled, all, err := app.ResolveTargets(ctx)
	if err != nil {
		return nil, err
	}

	var files []parser.FileHandle
	var rejected []queue.Rejected
	for _, p := range paths {
		fh, err := parser.OpenFile(app.expandPath(p))
		if err != nil {
			rejected = append(rejected, queue.Rejected{FileName: p, Reason: errors.Message(err)})
			continue
		}
		files = append(files, fh)
	}

	res, err := app.queue.AddFiles(ctx, files, enabled, all, filters)
	if res != nil {
		res.Rejected = append(rejected, res.Rejected...)
	}
	return res, err
}

// Reattach gives a queued item its file back from path.
func (app *App) Reattach(ctx context.Context, id, path string) error {
	if err := app.ensureReady(ctx); err != nil {
		return err
	}
	fh, err := parser.OpenFile(app.expandPath(path))
	if err != nil {
		return err
	}
	return app.queue.ReattachFile(ctx, id, fh)
}

// Run blocks until the queue goes idle, ctx ends, or a signal arrives.
// An interrupted file ends paused.
func (app *App) Run(ctx context.Context) error {
	if err := app.ensureReady(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go app.handleSignals(ctx, cancel)

	defer app.logPacing()

	if err := app.queue.Wait(ctx); err != nil {
		app.logger.Info("Import interrupted, pausing active file")
		return app.queue.Close()
	}
	return nil
}

func (app *App) logPacing() {
	if app.apiClient == nil {
		return
	}
	rl := app.apiClient.RateLimiter()
	m := rl.GetMetrics()
	app.logger.Debug("Request pacing",
		"requests", m.TotalRequests,
		"waited", m.BlockedRequests,
		"block_rate", m.BlockRate(),
		"rate", rl.GetCurrentRateLimit())
}

// Serve runs the HTTP surface until ctx ends or a signal arrives.
func (app *App) Serve(ctx context.Context) error {
	if err := app.ensureReady(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go app.handleSignals(ctx, cancel)

	srv := server.New(server.Config{
		Addr: app.config.Server.Addr,
		Mode: app.config.Server.Mode,
	}, app.queue, app.stateManager, app.ResolveTargets, app.logger)

	return srv.Run(ctx)
}

// Config returns the loaded configuration.
func (app *App) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.config
}

// Logger returns the application logger.
func (app *App) Logger() *logger.Logger {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.logger
}

// State returns the storage manager.
func (app *App) State() *state.Manager {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.stateManager
}

// Queue returns the queue manager, initializing it on first use.
func (app *App) Queue(ctx context.Context) (*queue.Manager, error) {
	if err := app.ensureReady(ctx); err != nil {
		return nil, err
	}
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.queue, nil
}

// Stop stops the application gracefully. The active file ends paused.
func (app *App) Stop() error {
	app.shutdownOnce.Do(func() {
		close(app.shutdownChan)

		app.mu.Lock()
		defer app.mu.Unlock()

		if app.logger == nil {
			return
		}
		app.logger.Info("Shutting down TradeImport...")

		if app.queue != nil {
			if err := app.queue.Close(); err != nil {
				app.logger.Error(err, "Failed to stop queue")
			}
		}

		if app.notifier != nil {
			if err := app.notifier.Close(); err != nil {
				app.logger.Error(err, "Failed to close notifier")
			}
		}

		if app.stateManager != nil {
			if err := app.stateManager.Close(); err != nil {
				app.logger.Error(err, "Failed to close state manager")
			}
		}

		app.logger.Info("TradeImport shutdown complete")

		if app.logFile != nil {
			_ = app.logFile.Close()
		}
	})

	return nil
}

func (app *App) ensureReady(ctx context.Context) error {
	app.mu.RLock()
	initialized, ready := app.isInitialized, app.queue != nil
	app.mu.RUnlock()

	if !initialized {
		return errors.Errorf("application not initialized")
	}
	if !ready {
		return app.InitializeQueue(ctx)
	}
	return nil
}

func (app *App) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	app.setupSignalHandling(sigChan)
	defer app.stopSignalHandling(sigChan)

	select {
	case sig := <-sigChan:
		app.logger.Info("Received signal", "signal", sig)
		cancel()
	case <-app.shutdownChan:
		cancel()
	case <-ctx.Done():
	}
}

func (app *App) expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	return path
}
