package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"staygate/internal/audit"
	"staygate/internal/credentials/cipher"
	credservice "staygate/internal/credentials/service"
	credstore "staygate/internal/credentials/store"
	"staygate/internal/keystore"
	"staygate/internal/platform/config"
	"staygate/internal/platform/httpserver"
	"staygate/internal/platform/kafka"
	"staygate/internal/platform/logger"
	"staygate/internal/platform/metrics"
	platformredis "staygate/internal/platform/redis"
	"staygate/internal/scheduler"
	"staygate/internal/submission"
	subservice "staygate/internal/submission/service"
	substore "staygate/internal/submission/store"
	httptransport "staygate/internal/transport/http"
)

// main wires the dependency graph and runs the HTTP server next to the retry
// scheduler. Business logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Persistence. Without a DATABASE_URL the in-memory stores keep local
	// development self-contained; state does not survive a restart.
	var (
		guestStore subservice.Store
		selector   scheduler.Selector
		credStore  credservice.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		pg := substore.NewPostgres(db)
		guestStore = pg
		selector = pg
		credStore = credstore.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		mem := substore.NewMemory()
		guestStore = mem
		selector = mem
		credStore = credstore.NewMemory()
	}

	ciph, err := cipher.New(cfg.MasterKeyHex, log)
	if err != nil {
		return fmt.Errorf("credential cipher: %w", err)
	}

	var converter keystore.Converter = keystore.NewNativeConverter()
	if cfg.KeytoolPath != "" {
		converter = keystore.NewKeytoolConverter(cfg.KeytoolPath)
	}
	normalizer := keystore.New(cfg.KeystoreRoot, cfg.KeystoreSalt, cfg.PrivateKeySalt, converter,
		keystore.WithLogger(log),
		keystore.WithMetrics(m),
		keystore.WithConvertTimeout(cfg.ConvertTimeout))

	tokens := submission.NewTokenSource(cfg.KeystoreRoot, cfg.KeystoreSalt, cfg.PrivateKeySalt,
		cfg.BridgeStorePassword, cfg.DefaultSigningKeyPath, cfg.OverrideSubject)
	transport := submission.NewTransport(cfg.GatewayBaseURL, cfg.FormID, cfg.FormVersion,
		tokens, cfg.GatewayTimeout, submission.WithTransportLogger(log))

	// Audit sink: Kafka when configured, structured log otherwise.
	var auditPub credservice.AuditPublisher = audit.NewLogPublisher(log)
	producer, err := kafka.NewPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaAuditTopic, kafka.WithLogger(log))
	if err != nil {
		return fmt.Errorf("kafka publisher: %w", err)
	}
	if producer != nil {
		defer producer.Close()
		auditPub = audit.NewKafkaPublisher(producer)
	}

	credSvc := credservice.New(credStore, normalizer, ciph, transport,
		credservice.WithLogger(log),
		credservice.WithAuditPublisher(auditPub),
		credservice.WithMetrics(m))
	subSvc := subservice.New(guestStore, credSvc, transport,
		subservice.WithLogger(log),
		subservice.WithAuditPublisher(auditPub),
		subservice.WithMetrics(m))

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(log),
		scheduler.WithMetrics(m),
	}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis client: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		lease := platformredis.NewRunLock(redisClient, "staygate:scheduler:run", 30*time.Minute)
		schedOpts = append(schedOpts, scheduler.WithLease(lease))
	}
	sched := scheduler.New(selector, subSvc, cfg.Scheduler, schedOpts...)

	router := httptransport.NewRouter(log,
		httptransport.NewCredentialsHandler(credSvc, log),
		httptransport.NewSubmissionsHandler(subSvc, log))
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting staygate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
