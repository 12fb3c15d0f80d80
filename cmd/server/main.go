// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the cascade engine server: the
// HTTP surface over the tiered execution core.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/cascadehq/cascade-engine/internal/authz"
	"github.com/cascadehq/cascade-engine/internal/buildinfo"
	"github.com/cascadehq/cascade-engine/internal/classifier"
	"github.com/cascadehq/cascade-engine/internal/config"
	"github.com/cascadehq/cascade-engine/internal/dispatcher"
	"github.com/cascadehq/cascade-engine/internal/envelope"
	"github.com/cascadehq/cascade-engine/internal/logaggregator"
	"github.com/cascadehq/cascade-engine/internal/logging"
	"github.com/cascadehq/cascade-engine/internal/metadata"
	"github.com/cascadehq/cascade-engine/internal/ratelimit"
	"github.com/cascadehq/cascade-engine/internal/store"
	"github.com/cascadehq/cascade-engine/internal/tier"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// localTaskQueue is the in-process human-task queue the binary ships with;
// a real deployment swaps in an external queue behind the same interface.
type localTaskQueue struct {
	baseURL string
}

func (q *localTaskQueue) CreateTask(_ context.Context, fn metadata.Function, _ map[string]any) (string, string, error) {
	taskID := "task_" + uuid.New().String()
	return taskID, fmt.Sprintf("%s/tasks/%s", q.baseURL, taskID), nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	watch := flag.Bool("watch", false, "hot-reload the config file on change")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath, true)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogsMaxTotalSizeMB); err != nil {
		log.Errorf("Failed to configure log output: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log.Infof("cascade-engine %s (%s, built %s)", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	ctx := context.Background()
	svc, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to assemble service: %v", err)
	}
	defer cleanup()

	if *watch {
		watcher, err := config.Watch(*configPath, func(next *config.Config) {
			// Only hot-path tunables reload without a restart.
			svc.RateLimit = rateLimitConfig(next)
			svc.ClassifierThreshold = next.Classifier.ConfidenceThreshold
			log.Info("Config reloaded")
		})
		if err != nil {
			log.Errorf("Failed to start config watcher: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	r := gin.New()
	// gin's default writers were routed through logrus by SetupBaseLogger.
	r.Use(gin.Recovery(), gin.Logger())
	svc.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.Infof("Listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Server exited: %v", err)
	}
}

func rateLimitConfig(cfg *config.Config) envelope.RateLimitConfig {
	return envelope.RateLimitConfig{
		Limit:  cfg.RateLimit.Limit,
		Window: time.Duration(cfg.RateLimit.WindowMs) * time.Millisecond,
	}
}

func buildService(ctx context.Context, cfg *config.Config) (*envelope.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var metadataStore store.MetadataStore
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := store.NewPostgresMetadataStore(ctx, cfg.Store.DSN, store.PostgresMetadataStoreConfig{TablePrefix: cfg.Store.TablePrefix})
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, pg.Close)
		metadataStore = pg
	default:
		metadataStore = store.NewMemoryMetadataStore()
	}

	codec := store.CompressionCodec(cfg.Store.CompressionCodec)
	var codeStore store.CodeStore
	switch cfg.Store.ObjectBackend {
	case "minio":
		obj, err := store.NewObjectCodeStore(ctx, store.ObjectCodeStoreConfig{
			Endpoint:  cfg.Store.ObjectEndpoint,
			AccessKey: cfg.Store.ObjectAccessKey,
			SecretKey: cfg.Store.ObjectSecretKey,
			Bucket:    cfg.Store.ObjectBucket,
			UseTLS:    cfg.Store.ObjectUseTLS,
			Codec:     codec,
		})
		if err != nil {
			return nil, cleanup, err
		}
		codeStore = obj
	default:
		codeStore = store.NewMemoryCodeStore(codec)
	}

	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr, DB: cfg.RateLimit.RedisDB})
		closers = append(closers, func() { client.Close() })
		limiter = ratelimit.NewRedisLimiter(client, cfg.RateLimit.Namespace)
	default:
		mem := ratelimit.NewMemoryLimiter()
		closers = append(closers, mem.Close)
		limiter = mem
	}

	logs := logaggregator.New(cfg.Logs.MaxMessageLen)
	closers = append(closers, func() { logs.Drain() })
	if cfg.Logs.DBPath != "" {
		table, err := logaggregator.OpenSQLiteTable(ctx, cfg.Logs.DBPath)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { table.Close() })
		logs.AttachSink(table)
	}
	if cfg.Logs.RetentionMaxAgeMs > 0 {
		logs.ScheduleRetention(logaggregator.RetentionPolicy{
			MaxAge: time.Duration(cfg.Logs.RetentionMaxAgeMs) * time.Millisecond,
		}, time.Hour)
	}

	disp := dispatcher.New()

	baseURL := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	disp.Install(tier.Human, dispatcher.NewHumanExecutor(&localTaskQueue{baseURL: baseURL}))

	var backend classifier.Backend
	if key := cfg.Classifier.AnthropicAPIKey; key != "" {
		backend = classifier.NewAnthropicBackend(key, cfg.Classifier.AnthropicModel)

		provider := dispatcher.NewAnthropicProvider(key, "")
		disp.Install(tier.Generative, dispatcher.NewGenerativeExecutor(provider))

		tokens, err := classifier.NewTokenEstimator()
		if err != nil {
			log.Warnf("Token estimator unavailable, agentic budget enforcement by steps only: %v", err)
		}
		var counter dispatcher.TokenCounter
		if tokens != nil {
			counter = tokens
		}
		disp.Install(tier.Agentic, dispatcher.NewAgenticExecutor(provider, counter, 16, 64_000))
	}

	tierTimeouts := map[tier.Tier]time.Duration{
		tier.Code:       time.Duration(cfg.Cascade.CodeTimeoutMs) * time.Millisecond,
		tier.Generative: time.Duration(cfg.Cascade.GenerativeTimeoutMs) * time.Millisecond,
		tier.Agentic:    time.Duration(cfg.Cascade.AgenticTimeoutMs) * time.Millisecond,
		tier.Human:      time.Duration(cfg.Cascade.HumanTimeoutMs) * time.Millisecond,
	}

	svc := &envelope.Service{
		Metadata:             metadataStore,
		Code:                 codeStore,
		Limiter:              limiter,
		RateLimit:            rateLimitConfig(cfg),
		TierTimeouts:         tierTimeouts,
		Dispatcher:           disp,
		Logs:                 logs,
		Stats:                envelope.NewStatistics(),
		Guard:                authz.NewGuard(),
		ClassifierBackend:    backend,
		ClassifierThreshold:  cfg.Classifier.ConfidenceThreshold,
		ClassifierCacheSize:  cfg.Classifier.CacheSize,
		ClassifierCacheTTL:   time.Duration(cfg.Classifier.CacheTTLMs) * time.Millisecond,
		AuthorizationEnabled: cfg.Cascade.AuthorizationEnabled,
	}
	return svc, cleanup, nil
}
