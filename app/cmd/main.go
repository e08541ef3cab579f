package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"evador/app/config"
	"evador/app/usecase"
	"evador/internal/domain/repository"
	"evador/internal/infrastructure/format"
	"evador/internal/infrastructure/generator"
	"evador/internal/infrastructure/metrics"
	"evador/internal/infrastructure/modules"
	"evador/internal/infrastructure/store/filesystem"
	mongorepo "evador/internal/infrastructure/store/mongodb"
	"evador/internal/infrastructure/threatcheck"
	"evador/internal/infrastructure/transport"
	"evador/internal/infrastructure/validator"
)

func main() {
	configPath := flag.String("config", os.Getenv("EVADOR_CONFIG"), "path to .hcl or .yaml config file")
	flag.Parse()

	// load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Generation history
	var (
		records     repository.RecordRepository
		mongoClient *mongo.Client
	)
	if cfg.Mongo.URI != "" {
		mongoCtx, mongoCancel := context.WithTimeout(ctx, 30*time.Second)
		mongoClient, err = mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			mongoCancel()
			logger.Error("mongo connect failed", "err", err)
			log.Fatalf("mongo connect: %v", err)
		}
		if err := mongoClient.Ping(mongoCtx, nil); err != nil {
			mongoCancel()
			logger.Error("mongo ping failed", "err", err)
			log.Fatalf("mongo ping: %v", err)
		}
		mongoCancel()
		logger.Info("connected to mongo", "database", cfg.Mongo.Database)
		records = mongorepo.NewMongoRecordRepo(mongoClient.Database(cfg.Mongo.Database))
	} else {
		logger.Warn("MONGO_URI not set, generation history is disabled")
	}

	// Upload storage
	uploads, err := filesystem.NewUploadStore(cfg.Upload.Dir)
	if err != nil {
		logger.Error("init upload store failed", "err", err)
		os.Exit(1)
	}

	if cfg.Toolchain.Command == "" {
		logger.Warn("toolchain command not configured, generation requests will fail")
	}
	if cfg.ThreatCheck.URL == "" {
		logger.Warn("threat check backend not configured, self-checks will fail")
	}

	// Usecases / services
	factory := generator.NewCommandFactory(generator.CommandConfig{
		Command: cfg.Toolchain.Command,
		Args:    cfg.Toolchain.Args,
		WorkDir: cfg.Toolchain.WorkDir,
		Timeout: cfg.Toolchain.Timeout,
	}, logger)
	checker := threatcheck.NewHTTPChecker(cfg.ThreatCheck.URL, cfg.ThreatCheck.APIKey, cfg.ThreatCheck.Timeout)

	hub := transport.NewEventHub(logger)
	defer hub.Close()

	svc := usecase.NewEvadorService(
		usecase.NewDispatcher(validator.NewRequestValidator(), format.NewDetector(), factory),
		usecase.NewLifecycleManager(checker, logger),
		modules.NewStaticCatalog(cfg.Modules),
		records,
		hub,
		logger,
	)

	sweeper := usecase.NewSweeper(uploads, cfg.Upload.SweepSchedule, cfg.Upload.MaxAge, logger)
	if err := sweeper.Start(ctx); err != nil {
		logger.Error("start sweeper failed", "err", err)
		os.Exit(1)
	}

	// Transport (HTTP handlers)
	handler := transport.NewEvadorHandler(svc, uploads, hub, cfg.Upload.MaxSize, logger)

	// Router and server
	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.ExposedHeaders([]string{transport.DetectionReportHeader}),
	)(r)
	recovered := handlers.RecoveryHandler(handlers.RecoveryLogger(slogRecoveryLogger{logger}))(corsHandler)

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      recovered,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting metrics server", "addr", cfg.Metrics.Addr)
		if err := metrics.StartMetricsServer(cfg.Metrics.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	// Start HTTP server
	go func() {
		logger.Info("starting HTTP server", "addr", addr, "upload_dir", uploads.BasePath())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			cancel()
		}
	}()

	// OS signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	// Shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}

	sweeper.Stop()
	cancel()

	if mongoClient != nil {
		logger.Info("disconnecting mongo")
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			logger.Error("mongo disconnect error", "err", err)
		}
	}

	logger.Info("service stopped")
}

// slogRecoveryLogger adapts slog to handlers.RecoveryHandlerLogger.
type slogRecoveryLogger struct {
	logger *slog.Logger
}

func (l slogRecoveryLogger) Println(v ...interface{}) {
	l.logger.Error("panic recovered", "panic", v)
}
