package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/schoolpulse/schoolpulse/config"
	"github.com/schoolpulse/schoolpulse/internal/cache"
	"github.com/schoolpulse/schoolpulse/internal/citydir"
	"github.com/schoolpulse/schoolpulse/internal/insights"
	"github.com/schoolpulse/schoolpulse/internal/registry"
	"github.com/schoolpulse/schoolpulse/internal/runtime"
	"github.com/schoolpulse/schoolpulse/internal/security"
	"github.com/schoolpulse/schoolpulse/internal/store"
	"github.com/schoolpulse/schoolpulse/internal/store/gormstore"
	"github.com/schoolpulse/schoolpulse/internal/telemetry"
	"github.com/schoolpulse/schoolpulse/internal/workbooks"
	"github.com/schoolpulse/schoolpulse/pkg/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var (
		useStdio        bool
		configFile      string
		envFile         string
		shutdownTimeout time.Duration
	)

	flag.BoolVar(&useStdio, "stdio", false, "Run server over stdio transport")
	flag.StringVar(&configFile, "config", "", "Optional YAML/JSON/TOML config file")
	flag.StringVar(&envFile, "env-file", ".env", "Optional dotenv file")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	flag.Parse()

	logger := zlog.With().Str("service", "schoolpulse-server").Logger()

	cfg, err := config.Load(envFile, configFile)
	if err != nil {
		logger.Error().Err(err).Msg("config: invalid configuration")
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}
	if cfg.Env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	reporter := telemetry.NewReporter(cfg.RollbarToken, cfg.Env, version.Version())
	defer reporter.Close()

	limits := runtime.NewLimits(cfg.MaxConcurrentRequests, cfg.MaxOpenWorkbooks)
	if cfg.MaxFactRows > 0 {
		limits.MaxFactRows = cfg.MaxFactRows
	}
	if cfg.OperationTimeout > 0 {
		limits.OperationTimeout = cfg.OperationTimeout
	}
	runtimeController := runtime.NewController(limits)

	wbManager := workbooks.NewManager(0, 0, runtimeController, nil)
	wbManager.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := wbManager.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("workbooks: close")
		}
	}()

	// Fact source
	mem := store.NewMemory()
	var (
		source store.Source = mem
		sink   store.Sink   = mem
	)
	switch cfg.Source.Kind {
	case "postgres":
		pg, err := gormstore.Open(gormstore.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			SlowQuery:       cfg.Database.SlowQuery,
			Logger:          logger.With().Str("component", "gorm").Logger(),
		})
		if err != nil {
			logger.Error().Err(err).Msg("store: failed to open database")
			return 1
		}
		defer pg.Close()
		source, sink = pg, nil
	case "workbook":
		// the configured workbook is trusted and read before the allow-list applies
		imp, total, err := insights.LoadWorkbook(ctx, wbManager, mem, cfg.Workbook.Path, cfg.Workbook.Sheet, insights.ModeReplace, limits.MaxFactRows)
		if err != nil {
			logger.Error().Err(err).Str("path", cfg.Workbook.Path).Msg("store: failed to load workbook")
			return 1
		}
		logger.Info().
			Str("path", cfg.Workbook.Path).
			Str("sheet", imp.Sheet).
			Int("rows", total).
			Int("skipped", imp.Skipped).
			Msg("workbook source loaded")
	}

	// City directory
	var cities citydir.Directory
	switch cfg.City.Source {
	case "sql":
		dir, err := citydir.OpenSQL("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error().Err(err).Msg("citydir: failed to open database")
			return 1
		}
		defer dir.Close()
		cities = citydir.NewCached(dir, cfg.City.Refresh)
	case "file":
		cities = citydir.NewCached(citydir.NewFile(cfg.City.File), cfg.City.Refresh)
	}

	// Security: imports are confined to allow-listed directories
	importsEnabled := cfg.ImportsEnabled && sink != nil
	if cfg.ImportsEnabled && sink == nil {
		logger.Warn().Str("source", cfg.Source.Kind).Msg("imports disabled: source is read-only")
	}
	if importsEnabled {
		secMgr, err := security.NewManager(cfg.AllowedDirs, nil)
		if err != nil {
			logger.Error().Err(err).Msg("security: failed to initialize manager")
			return 1
		}
		if err := secMgr.ValidateConfig(); err != nil {
			logger.Error().Err(err).Msg("security: invalid allow-list configuration")
			fmt.Fprintln(os.Stderr, "imports need allowed directories; set SCHOOLPULSE_SECURITY_ALLOWED_DIRS")
			return 1
		}
		wbManager.SetPathValidator(secMgr)
		logger.Info().Strs("allowed_dirs", secMgr.AllowedDirectories()).Msg("security allow-list configured")
	}

	svc := insights.New(insights.Deps{
		Source:         source,
		Cities:         cities,
		Cache:          cache.NewFIFO[any](cfg.CacheEntries),
		Limits:         limits,
		Sink:           sink,
		Workbooks:      wbManager,
		ImportsEnabled: importsEnabled,
		Logger:         logger,
	})

	runtimeMW := runtime.NewMiddleware(runtimeController, logger)
	toolRegistry := registry.New(cfg.LLMModel)
	importFilter := registry.NewImportToolFilter(svc.ImportsEnabled())

	srv := server.NewMCPServer(
		"SchoolPulse Analytics Server",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(telemetry.BuildHooks(logger, reporter)),
		server.WithToolHandlerMiddleware(telemetry.ToolMetrics),
		server.WithToolHandlerMiddleware(runtimeMW.ToolMiddleware),
		server.WithToolFilter(importFilter.FilterTools),
	)

	registry.RegisterTools(srv, toolRegistry, svc, reporter)

	go func() {
		if err := telemetry.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
			logger.Error().Err(err).Msg("metrics listener failed")
		}
	}()

	logger.Info().
		Ctx(ctx).
		Str("version", version.Version()).
		Str("revision", version.Revision()).
		Str("source", cfg.Source.Kind).
		Str("city_source", cfg.City.Source).
		Int("cache_entries", cfg.CacheEntries).
		Int("max_concurrent_requests", limits.MaxConcurrentRequests).
		Int("max_fact_rows", limits.MaxFactRows).
		Int("model_context_size", toolRegistry.ModelContextSize()).
		Strs("tools", toolRegistry.Visible(ctx, importFilter)).
		Bool("imports_enabled", importsEnabled).
		Bool("rollbar", reporter.Enabled()).
		Bool("stdio", useStdio).
		Msg("server bootstrap configured")

	if useStdio {
		if err := server.ServeStdio(srv); err != nil {
			// stderr keeps transport errors out of the protocol stream
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Fprintln(os.Stderr, "no transport selected; use --stdio to run over stdio")
	return 2
}
