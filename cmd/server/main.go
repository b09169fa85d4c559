package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/lexiqai/conversation-pipeline/internal/config"
	"github.com/lexiqai/conversation-pipeline/internal/events"
	"github.com/lexiqai/conversation-pipeline/internal/gateway"
	"github.com/lexiqai/conversation-pipeline/internal/models"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
	"github.com/lexiqai/conversation-pipeline/internal/pipeline"
	"github.com/lexiqai/conversation-pipeline/internal/session"
	"github.com/lexiqai/conversation-pipeline/internal/storage"
	"github.com/lexiqai/conversation-pipeline/internal/stt"
	"github.com/lexiqai/conversation-pipeline/internal/turns"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("stt_provider", cfg.STTProvider).
		Str("storage_driver", cfg.StorageDriver).
		Bool("kafka_enabled", cfg.KafkaEnabled).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Conversation pipeline starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Config{
		Driver:         cfg.StorageDriver,
		SQLitePath:     cfg.SQLitePath,
		DatabaseURL:    cfg.DatabaseURL,
		ConnectRetries: cfg.RetryMaxAttempts,
		RetryBackoff:   time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	recognizer, err := stt.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create speech recognizer")
	}
	if c, ok := recognizer.(io.Closer); ok {
		defer c.Close()
	}

	publisher := events.New(&events.Config{
		Enabled:          cfg.KafkaEnabled,
		Brokers:          cfg.KafkaBrokers,
		TopicTranscripts: cfg.KafkaTopicTranscripts,
		TopicTurns:       cfg.KafkaTopicTurns,
	})
	defer publisher.Close()

	sink := events.NewRecordSink(store, publisher)
	sessionStore := session.NewMemoryStore()
	sessions := pipeline.NewManager(recognizer, sink, pipeline.Options{
		MaxFrameBytes:  cfg.MaxWireFrameBytes,
		PersistTimeout: cfg.PersistTimeoutDuration(),
		Store:          sessionStore,
	})
	registry := turns.NewRegistry(sink, turns.WithProvenance(models.Provenance{
		Provider:      cfg.AIProvider,
		Mode:          "live",
		TriggerSource: "agent_stream",
	}))

	janitor := session.NewJanitor(sessionStore, cfg.StaleAfter(), cfg.CleanupInterval(), session.WithReaper(sessions.Reap))
	go janitor.Run(ctx)

	checks := map[string]observability.HealthCheckFunc{
		"storage": func(ctx context.Context) (bool, error) {
			if err := store.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		"kafka": func(ctx context.Context) (bool, error) {
			if err := publisher.HealthCheck(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
	}
	if hc, ok := recognizer.(interface {
		HealthCheck(context.Context) (bool, error)
	}); ok {
		checks["stt"] = hc.HealthCheck
	}

	srv := gateway.NewServer(sessions, registry, store, gateway.Options{
		ReadinessChecks: checks,
		MetricsEnabled:  cfg.MetricsEnabled,
		PersistTimeout:  cfg.PersistTimeoutDuration(),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("audio_endpoint", fmt.Sprintf("ws://localhost:%s/v1/sessions/{sessionID}/audio", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCHealthPort != "" {
		grpcServer = startHealthServer(ctx, cfg.GRPCHealthPort, checks, logger)
	}

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Sessions did not drain before shutdown deadline")
	}

	logger.Info().Msg("Server exited gracefully")
}

// startHealthServer serves grpc.health.v1 and reflection, keeping the
// overall status in step with the readiness checks
func startHealthServer(ctx context.Context, port string, checks map[string]observability.HealthCheckFunc, logger zerolog.Logger) *grpc.Server {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		logger.Fatal().Err(err).Str("port", port).Msg("Failed to listen for gRPC health")
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, healthy := observability.RunChecks(checkCtx, checks)
			cancel()

			status := healthpb.HealthCheckResponse_SERVING
			if !healthy {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			healthServer.SetServingStatus("", status)

			select {
			case <-ctx.Done():
				healthServer.Shutdown()
				return
			case <-ticker.C:
			}
		}
	}()

	go func() {
		logger.Info().Str("port", port).Msg("gRPC health server listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC health server stopped")
		}
	}()
	return grpcServer
}
