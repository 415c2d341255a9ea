package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eidolon-project/eidolon/internal/api"
	"github.com/eidolon-project/eidolon/internal/auditsink"
	"github.com/eidolon-project/eidolon/internal/bus"
	"github.com/eidolon-project/eidolon/internal/config"
	"github.com/eidolon-project/eidolon/internal/driver"
	"github.com/eidolon-project/eidolon/internal/graph"
	"github.com/eidolon-project/eidolon/internal/netmeta"
	"github.com/eidolon-project/eidolon/internal/orchestrator"
	"github.com/eidolon-project/eidolon/internal/registry"
	"github.com/eidolon-project/eidolon/internal/store"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const shutdownGrace = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the eidolon HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Infow("starting eidolon",
		"port", cfg.Server.Port,
		"scanner_bin", cfg.Scanner.BinPath,
		"graph_url", cfg.Graph.URL,
	)

	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Graph.URL, neo4j.BasicAuth(cfg.Graph.User, cfg.Graph.Password, ""))
	if err != nil {
		return fmt.Errorf("connect to graph store: %w", err)
	}
	defer neo4jDriver.Close(context.Background())

	sessionFactory := graph.NewNeo4jSessionFactory(neo4jDriver, cfg.Graph.Database)
	writer := graph.NewWriter(sessionFactory, netmeta.NewDetector(), sugar)

	nmapDriver := driver.New(cfg.Scanner.BinPath, sugar)

	promReg := prometheus.NewRegistry()
	metrics := bus.NewMetrics(promReg)

	var sink bus.Sink
	if cfg.RabbitMQ.URL != "" {
		amqpSink, err := bus.NewAMQPSink(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, sugar)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		sink = amqpSink
	}

	eventBus := bus.New(cfg.Server.SubscriptionQueueCap, sink, metrics, sugar)
	defer eventBus.Shutdown()

	taskRegistry := registry.New(cfg.Server.TaskRetention(), sugar)
	orch := orchestrator.New(nmapDriver, writer, eventBus, sugar)

	cfgStore, closeStore, err := buildConfigStore(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("build config store: %w", err)
	}
	defer closeStore()

	var audit auditsink.Sink = auditsink.NoopSink{}
	if cfg.Audit.URL != "" {
		audit = auditsink.NewHTTPSink(cfg.Audit.URL, cfg.Audit.APIKey, sugar)
	}

	server := api.New(taskRegistry, eventBus, cfgStore, orch, audit, sugar)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     server.Router(),
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// WriteTimeout deliberately unset: /tasks/stream is a long-lived SSE
		// connection and a fixed write deadline would sever it mid-stream.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		sugar.Infof("http server listening on :%d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// Cancel every in-flight task and wait for its terminal event before
	// closing the listener, so no scan is left without a final status.
	if err := server.Drain(ctx); err != nil {
		sugar.Warnw("drain timed out waiting for in-flight scans", "error", err)
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		sugar.Errorw("http server forced shutdown", "error", err)
	}

	sugar.Info("stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	return cfg.Build()
}

// buildConfigStore returns a Postgres-backed store if dsn is set, else an
// in-memory fallback. The returned close func is always safe to call.
func buildConfigStore(dsn string) (store.ScanConfigStore, func(), error) {
	if dsn == "" {
		return store.NewMemoryConfigStore(), func() {}, nil
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to config database: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate config database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	return store.NewGormConfigStore(db), func() { _ = sqlDB.Close() }, nil
}
