package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammed-shakir/harmony-core/internal/core/config"
	"github.com/mohammed-shakir/harmony-core/internal/core/health"
	"github.com/mohammed-shakir/harmony-core/internal/core/httpclient"
	"github.com/mohammed-shakir/harmony-core/internal/core/router"
	"github.com/mohammed-shakir/harmony-core/internal/core/server"
	"github.com/mohammed-shakir/harmony-core/internal/dispatch"
	"github.com/mohammed-shakir/harmony-core/internal/jobupdates"
	"github.com/mohammed-shakir/harmony-core/internal/logger"
	"github.com/mohammed-shakir/harmony-core/internal/metrics"
	"github.com/mohammed-shakir/harmony-core/internal/publish"
	"github.com/mohammed-shakir/harmony-core/internal/schema"
	"github.com/mohammed-shakir/harmony-core/internal/stac/doccache"
	"github.com/mohammed-shakir/harmony-core/internal/store/jobstore"
	"github.com/mohammed-shakir/harmony-core/internal/store/redisstore"
	"github.com/mohammed-shakir/harmony-core/internal/workitems"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configFlag := flag.String("config", "", "path to a YAML config file (overrides CONFIG_FILE)")
	flag.Parse()
	if *configFlag != "" {
		_ = os.Setenv("CONFIG_FILE", *configFlag)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "harmony-core",
		Component: "main",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	reg := schema.Default()
	appLog.Info("starting harmony-core",
		"addr", cfg.Addr,
		"version", Version,
		"schema_versions", reg.Versions(),
		"job_store", cfg.JobStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	go func() {
		if err := p.Serve(ctx, appLog); err != nil {
			appLog.Error("metrics server exited", "err", err)
		}
	}()

	ready := health.NewReadiness(2 * time.Second)

	var jobs jobstore.Store
	switch cfg.JobStore {
	case "memory":
		jobs = jobstore.NewMemory()
	default:
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("redis setup failed", "addr", cfg.RedisAddr, "err", err)
			return 1
		}
		defer func() { _ = rc.Close() }()
		ready.Add("redis", rc.Ping)
		jobs = jobstore.NewRedis(rc, cfg.JobTTL, cfg.StoreOpTimeout)
	}

	docs := doccache.New(cfg.STACCacheSize)

	disp, err := dispatch.New(dispatch.Config{
		Enabled: cfg.Dispatch.Enabled,
		Brokers: cfg.Dispatch.BrokerList(),
		Topic:   cfg.Dispatch.Topic,
		Version: cfg.Dispatch.SchemaVersion,
	}, reg, appLog)
	if err != nil {
		appLog.Error("dispatch setup failed", "err", err)
		return 1
	}
	defer func() { _ = disp.Close() }()

	deps := router.Deps{
		Logger:     appLog,
		Registry:   reg,
		Jobs:       jobs,
		Docs:       docs,
		Dispatcher: disp,
	}

	if cfg.PublishBucket != "" {
		pub, err := publish.Open(ctx, cfg.PublishBucket, docs, appLog)
		if err != nil {
			appLog.Error("publish setup failed", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		deps.Publisher = pub
	}

	if cfg.WorkItemsURL != "" {
		tables := workitems.NewTables()
		poller, err := workitems.New(appLog, httpclient.NewOutbound(), workitems.Config{
			BaseURL:  cfg.WorkItemsURL,
			Interval: cfg.PollInterval,
		}, tables, workitems.LogNotifier{Log: appLog})
		if err != nil {
			appLog.Error("work-items setup failed", "err", err)
			return 1
		}
		watcher := workitems.NewWatcher(ctx, poller)
		defer watcher.Stop()
		deps.WorkItems = workitems.Service{Watcher: watcher, Tables: tables}
	}

	if cfg.JobUpdates.Enabled {
		var refresh jobupdates.Refresher
		if deps.WorkItems != nil {
			refresh = deps.WorkItems
		}
		cons := jobupdates.New(
			jobupdates.NewConfig(cfg.Dispatch.Brokers, cfg.JobUpdates.Topic, cfg.JobUpdates.GroupID),
			appLog, jobs, refresh)
		ready.Add("job_updates", cons.Ready)
		go func() {
			if err := cons.Start(ctx); err != nil {
				appLog.Error("job update consumer exited", "err", err)
			}
		}()
	}

	h := server.Handler(appLog, deps, p.Handler(), ready)
	if err := server.Run(ctx, cfg, appLog, h); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
