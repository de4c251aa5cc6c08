package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/robfig/cron/v3"

	"calsync/internal/cache"
	"calsync/internal/config"
	"calsync/internal/engine"
	"calsync/internal/groups"
	"calsync/internal/ics"
	"calsync/internal/log"
	"calsync/internal/store"
)

type flagConfig struct {
	configPath string
	once       bool
	logLevel   string
	logFormat  string
}

func main() {
	flags := parseFlags()
	log.Setup(flags.logLevel, flags.logFormat)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		slog.Error("failed to load config", "config_path", flags.configPath, "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		slog.Error("invalid timezone", "timezone", conf.Timezone, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	dynClient, err := newDynamoClient(ctx, conf.Dynamo)
	if err != nil {
		slog.Error("failed to initialize dynamodb client", "error", err)
		os.Exit(1)
	}

	feedCache, cleanup, err := newFeedCache(conf.Cache)
	if err != nil {
		slog.Error("failed to initialize feed cache", "backend", conf.Cache.Backend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	var registry groups.Registry
	if conf.Dynamo.GroupsTable != "" {
		registry = groups.NewDynamo(dynClient, conf.Dynamo.GroupsTable)
	} else {
		registry = groups.NewStatic(conf.Groups)
	}

	eng := engine.New(
		registry,
		ics.NewFetcher(feedCache, conf.FetchTimeout()),
		feedCache,
		store.NewDynamo(dynClient, conf.Dynamo.EventsTable, conf.Dynamo.GroupIndex),
		engine.Options{
			Location:    loc,
			WindowDays:  conf.WindowDays,
			Concurrency: conf.Concurrency,
			Retries:     conf.FetchRetries,
		},
	)

	if flags.once {
		if _, err := eng.Run(ctx); err != nil {
			slog.Error("pass failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Scheduled mode. Overlapping ticks are skipped rather than queued;
	// concurrent passes would race on the per-group diffs.
	var running sync.Mutex
	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		if !running.TryLock() {
			slog.Warn("previous pass still running, skipping tick")
			return
		}
		defer running.Unlock()

		if _, err := eng.Run(ctx); err != nil {
			slog.Error("pass failed", "error", err)
		}
	}); err != nil {
		slog.Error("invalid refresh schedule", "refresh", conf.RefreshCron, "error", err)
		os.Exit(1)
	}

	slog.Info("calsync starting", "refresh", conf.RefreshCron, "timezone", conf.Timezone)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("calsync exiting")
}

func newDynamoClient(ctx context.Context, dc config.DynamoConfig) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(dc.Region))
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if dc.Endpoint != "" {
			o.BaseEndpoint = aws.String(dc.Endpoint)
		}
	}), nil
}

func newFeedCache(cc config.CacheConfig) (cache.FeedCache, func(), error) {
	switch cc.Backend {
	case "disk":
		d, err := cache.NewDisk(cc.Dir)
		return d, func() {}, err
	case "redis":
		r := cache.NewRedis(cc.RedisAddr)
		return r, func() { r.Close() }, nil
	default:
		return cache.NewMemory(), func() {}, nil
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/calsync/config.yaml", "Path to config file")
	flag.BoolVar(&cfg.once, "once", false, "Run one synchronization pass and exit")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	flag.StringVar(&cfg.logFormat, "log-format", "text", "Log format (text|json)")

	flag.Parse()

	return cfg
}
