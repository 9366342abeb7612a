package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vitalsum-lab/vitalsum/internal/catalog"
	corecfg "github.com/vitalsum-lab/vitalsum/internal/core/config"
	corerollup "github.com/vitalsum-lab/vitalsum/internal/core/rollup"
	"github.com/vitalsum-lab/vitalsum/internal/core/storage/postgres"
	redisstore "github.com/vitalsum-lab/vitalsum/internal/core/storage/redis"
	"github.com/vitalsum-lab/vitalsum/internal/migrations"
	"github.com/vitalsum-lab/vitalsum/internal/rollup"
	"github.com/vitalsum-lab/vitalsum/internal/server"
)

func main() {
	configPath := flag.String("config", "vitalsum.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage (PostgreSQL)
	db, err := postgres.NewDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(db, cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	rawStore, err := postgres.NewRawAdapter(db)
	if err != nil {
		slog.Error("Failed to initialize raw series adapter", "error", err)
		os.Exit(1)
	}
	defer rawStore.Close()

	summaryStore := postgres.NewSummaryAdapter(db)

	// 2.2. Initialize Redis (watermarks, stats, execution lock)
	rdb, err := redisstore.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Error("Failed to initialize redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	schedulerStore := redisstore.NewSchedulerAdapter(rdb)

	// 3. Build the rule registry from the indicator catalog plus any custom
	// rule files.
	registry := corerollup.NewRegistry(catalog.NewBuiltinCatalog())
	if err := registry.LoadCustomRules(cfg.Rollup.CustomRuleDir); err != nil {
		slog.Error("Failed to load custom rules", "dir", cfg.Rollup.CustomRuleDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Rule registry initialized", "rules", len(registry.Rules()))

	// 4. Assemble the rollup pipeline
	trigger := rollup.NewTriggerGenerator(rawStore, registry, cfg.Rollup.Lookback())
	engine := rollup.NewEngine(rawStore, cfg.Rollup.TaskCap, cfg.Rollup.WorkerCount)
	recomputer := rollup.NewRecomputer(rawStore, engine, registry, cfg.Rollup.ChunkDays)
	service := rollup.NewService(trigger, engine, recomputer, summaryStore, cfg.Rollup.UpsertBatch)
	task := rollup.NewTask(service, schedulerStore)
	scheduler := rollup.NewScheduler(task, schedulerStore, cfg.Rollup.IntervalDuration())

	// 5. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), db, rdb, service, schedulerStore, cfg.Server.Mode)

	// 6. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Rollup.Enabled {
		go scheduler.Start(ctx)
	} else {
		slog.Info("Rollup scheduler disabled by config")
	}

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
