// Command server runs the document approval workflow service: HTTP API,
// PostgreSQL-backed document and audit stores (in-memory without a database
// URL), and the audit outbox worker publishing to Kafka.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"attesta/internal/audit"
	auditmem "attesta/internal/audit/store/memory"
	auditpg "attesta/internal/audit/store/postgres"
	auditworker "attesta/internal/audit/worker"
	"attesta/internal/auth/revocation"
	"attesta/internal/document/store"
	jwttoken "attesta/internal/jwt_token"
	"attesta/internal/platform/config"
	"attesta/internal/platform/httpserver"
	"attesta/internal/platform/logger"
	platformredis "attesta/internal/platform/redis"
	httptransport "attesta/internal/transport/http"
	"attesta/internal/workflow"
	workflowhandler "attesta/internal/workflow/handler"
	"attesta/internal/workflow/metrics"
	authmw "attesta/pkg/platform/middleware/auth"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthChecks := map[string]httptransport.HealthChecker{}

	var db *sql.DB
	if cfg.Postgres.URL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		healthChecks["postgres"] = db.PingContext
	}

	var (
		docStore   workflow.DocumentStore
		auditStore audit.Store
	)
	if db != nil {
		docStore = store.NewPostgres(db)
		auditStore = auditpg.New(db)
	} else {
		log.Warn("no POSTGRES_URL configured, using in-memory stores")
		docStore = store.NewInMemoryStore()
		auditStore = auditmem.New()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	var revocationChecker authmw.TokenRevocationChecker
	if redisClient != nil {
		defer redisClient.Close()
		revocationChecker = revocation.NewRedisTRL(redisClient.Client)
		healthChecks["redis"] = redisClient.Health
	} else {
		log.Warn("no REDIS_URL configured, token revocation checks disabled")
	}

	wfMetrics := metrics.New()
	emitter := audit.NewEmitter(auditStore, log)

	opts := []workflow.Option{
		workflow.WithLogger(log),
		workflow.WithMetrics(wfMetrics),
	}
	if db != nil {
		opts = append(opts, workflow.WithTxBeginner(db))
	}
	service := workflow.New(docStore, emitter, opts...)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	router := httptransport.NewRouter(httptransport.Deps{
		Workflow:     workflowhandler.New(service, log),
		Validator:    jwttoken.NewJWTServiceAdapter(jwtService),
		Revocation:   revocationChecker,
		AdminToken:   cfg.AdminToken,
		Logger:       log,
		HealthChecks: healthChecks,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting attesta", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.Kafka.Brokers) > 0 && db != nil {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.Topic),
		)
		if err != nil {
			log.Error("failed to create kafka client", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()

		outbox := auditworker.New(db, kafkaClient, cfg.Kafka.Topic, log,
			auditworker.WithMetrics(wfMetrics),
		)
		if err := outbox.EnsureTopic(ctx, 3, 1); err != nil {
			log.Error("failed to ensure audit topic", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			log.Info("starting audit outbox worker", "topic", cfg.Kafka.Topic)
			if err := outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else if len(cfg.Kafka.Brokers) > 0 {
		log.Warn("AUDIT_KAFKA_BROKERS set without POSTGRES_URL, outbox worker not started")
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
