// Command pipelineworker is the process entrypoint: it wires the State
// Store, Lock Manager, Rate Limiter, Score Cache, LLM/classifier clients,
// Stage Executors, Pipeline Runner, and Bridging Scorer together, then
// hosts the supplemental long-running pieces (the operational HTTP
// surface and the stale-run reaper) until told to stop. Submitting and
// triggering individual runs is out of scope (spec.md §1 Non-goals) — the
// Runner built here is the embedding point a job-submission system (not
// part of this repo) would call Run/Cancel on.
//
// Grounded on the teacher's cmd/appserver/main.go: flag parsing, config
// loading, storage wiring, then block on SIGINT/SIGTERM for a bounded
// graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bridgelab/reportpipeline/internal/archive"
	"github.com/bridgelab/reportpipeline/internal/bridging"
	"github.com/bridgelab/reportpipeline/internal/classifier"
	core "github.com/bridgelab/reportpipeline/internal/core/service"
	"github.com/bridgelab/reportpipeline/internal/lifecycle"
	"github.com/bridgelab/reportpipeline/internal/lock"
	"github.com/bridgelab/reportpipeline/internal/llm"
	"github.com/bridgelab/reportpipeline/internal/opsapi"
	"github.com/bridgelab/reportpipeline/internal/ratelimit"
	"github.com/bridgelab/reportpipeline/internal/reaper"
	"github.com/bridgelab/reportpipeline/internal/resilience"
	"github.com/bridgelab/reportpipeline/internal/runner"
	"github.com/bridgelab/reportpipeline/internal/scorecache"
	"github.com/bridgelab/reportpipeline/internal/stages"
	"github.com/bridgelab/reportpipeline/internal/state"
	"github.com/bridgelab/reportpipeline/pkg/config"
	"github.com/bridgelab/reportpipeline/pkg/logger"
)

// reaperSchedule runs the stale-run sweep every five minutes.
const reaperSchedule = "*/5 * * * *"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides CONFIG_FILE)")
	opsAddr := flag.String("ops-addr", "", "operational HTTP surface listen address (overrides config)")
	flag.Parse()

	if trimmed := strings.TrimSpace(*configPath); trimmed != "" {
		os.Setenv("CONFIG_FILE", trimmed)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if trimmed := strings.TrimSpace(*opsAddr); trimmed != "" {
		cfg.OpsAPI.Addr = trimmed
	}

	log0 := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	rootCtx := context.Background()

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(rootCtx).Err(); err != nil {
		log0.Fatalf("connect to redis at %s: %v", cfg.Redis.Addr, err)
	}
	defer redisClient.Close()

	lockMgr := lock.NewRedisManager(redisClient, log0)
	stateStore := state.NewRedisStore(redisClient, log0)
	scoreCache := scorecache.NewRedisCache(scorecache.NewRedisClientAdapter(redisClient), log0)

	gate := ratelimit.NewRedisGate(redisClient, func() int64 { return time.Now().UnixMilli() })
	limiter := ratelimit.New(gate, ratelimit.DefaultConfig(), log0)

	llmClient := llm.NewClient(&http.Client{Timeout: cfg.LLM.Timeout}, log0).
		WithRetryPolicy(core.RetryPolicy{Attempts: 3, InitialBackoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second, Multiplier: 2})
	classifierClient := classifierClientFor(cfg, log0)
	breaker := resilience.NewNamed(bridging.BreakerName, resilience.DefaultConfig(), log0)

	metrics := opsapi.NewMetrics(prometheus.DefaultRegisterer)

	scorer := bridging.New(scoreCache, limiter, classifierClient, breaker, "pipeline", log0).
		WithMetrics(metrics)

	execs := runner.Executors{
		Clustering: stages.NewClusteringExecutor(llmClient),
		Extraction: stages.NewExtractionExecutor(llmClient),
		SortDedupe: stages.NewSortDedupeExecutor(llmClient),
		Summaries:  stages.NewSummariesExecutor(llmClient),
		Cruxes:     stages.NewCruxesExecutor(llmClient),
	}

	lockCfg := runner.LockConfig{
		TTL:                     cfg.Lock.TTL,
		RefreshInterval:         cfg.Lock.RefreshInterval,
		PostCompletionExtension: cfg.Lock.PostRunExtension,
	}
	pipelineRunner := runner.New(stateStore, lockMgr, execs, lockCfg, log0).
		WithMetrics(metrics).
		WithBridging(scorer)

	var archiveStore *archive.Store
	if strings.TrimSpace(cfg.Postgres.DSN) != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			log0.Fatalf("open archive database: %v", err)
		}
		defer db.Close()
		if cfg.Postgres.MigrateOnStart {
			if err := archive.Migrate(db); err != nil {
				log0.Fatalf("migrate archive database: %v", err)
			}
		}
		sqlxDB, err := archive.Open(cfg.Postgres.DSN)
		if err != nil {
			log0.Fatalf("connect archive database: %v", err)
		}
		defer sqlxDB.Close()
		archiveStore = archive.New(sqlxDB)
		pipelineRunner = pipelineRunner.WithArchive(archiveStore)
	}

	r := reaper.New(stateStore, lockMgr, log0)
	if err := r.Start(reaperSchedule); err != nil {
		log0.Fatalf("start reaper: %v", err)
	}
	defer r.Stop()

	// archiveStore is typed *archive.Store (nil-able) rather than the
	// archive.Archive interface here: passing a nil *Store through an
	// interface parameter would make opsapi's own nil check on the
	// interface value always fail, since the interface would carry a
	// non-nil type with a nil pointer.
	var archiveForOps archive.Archive
	if archiveStore != nil {
		archiveForOps = archiveStore
	}
	descriptors := lifecycle.CollectDescriptors([]lifecycle.DescriptorProvider{pipelineRunner, scorer, r})
	opsServer := opsapi.NewServer(stateStore, pipelineRunner, archiveForOps, descriptors, log0)
	httpServer := &http.Server{Addr: cfg.OpsAPI.Addr, Handler: opsServer}
	go func() {
		log0.Infof("ops api listening on %s", cfg.OpsAPI.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log0.Fatalf("ops api: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log0.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log0.Warnf("ops api shutdown: %v", err)
	}
}

// classifierClientFor builds the real Perspective API client, or one
// pointed at an explicit override endpoint for staging deployments that
// sit behind a regional proxy.
func classifierClientFor(cfg *config.Config, log0 *logger.Logger) *classifier.Client {
	httpClient := &http.Client{Timeout: cfg.Classifier.Timeout}
	if strings.TrimSpace(cfg.Classifier.BaseURL) != "" && cfg.Classifier.BaseURL != "https://commentanalyzer.googleapis.com" {
		return classifier.NewClientWithEndpoint(httpClient, cfg.Classifier.BaseURL, log0)
	}
	return classifier.NewClient(httpClient, cfg.Classifier.APIKey, log0)
}
