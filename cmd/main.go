package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"voice-intake-bridge/internal/api/media"
	"voice-intake-bridge/internal/api/voice"
	"voice-intake-bridge/internal/app"
	"voice-intake-bridge/internal/archive"
	"voice-intake-bridge/internal/config"
	"voice-intake-bridge/internal/events"
	httpapi "voice-intake-bridge/internal/http"
	"voice-intake-bridge/internal/observability"
	"voice-intake-bridge/internal/observability/logging"
	"voice-intake-bridge/internal/observability/metrics"
	"voice-intake-bridge/internal/service/finalize"
	"voice-intake-bridge/internal/service/instructions"
	"voice-intake-bridge/internal/service/realtime"
	"voice-intake-bridge/internal/service/realtime/mock"
	"voice-intake-bridge/internal/service/reference"
	"voice-intake-bridge/internal/service/session"
)

const (
	healthServiceName = "voice.intake.Bridge"
	drainTimeout      = 60 * time.Second
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.Load()

	profile := config.DefaultProfile()
	if cfg.Session.ProfilePath != "" {
		p, err := config.LoadProfile(cfg.Session.ProfilePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Session.ProfilePath).Msg("Failed to load session profile")
		}
		profile = p
	}
	if len(cfg.Reference.URLs) == 0 {
		cfg.Reference.URLs = profile.ReferenceURLs
	}

	application := app.New(cfg, profile)
	logger := application.Logger

	if err := cfg.Validate(); err != nil {
		logger.Warn().Err(err).Msg("Configuration problems found")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Kafka publisher with separate topics for partial and final transcripts
	publisher := events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicPartial:   cfg.Kafka.TopicPartial,
		TopicFinal:     cfg.Kafka.TopicFinal,
		TopicArtifacts: cfg.Kafka.TopicArtifacts,
		Principal:      cfg.Kafka.Principal,
	})
	defer publisher.Close()

	store, storeCloser, err := archive.Open(rootCtx, archive.Options{
		Backend: cfg.Archive.Backend,
		Azure: archive.AzureConfig{
			ConnectionString: cfg.Archive.AzureConnectionString,
			Container:        cfg.Archive.AzureContainer,
		},
		Firestore: archive.FirestoreConfig{
			ProjectID:       cfg.Archive.FirestoreProjectID,
			CredentialsFile: cfg.Archive.FirestoreCredentials,
			Collection:      cfg.Archive.FirestoreCollection,
		},
		Kafka: publisher,
	})
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.Archive.Backend).Msg("Archive unavailable, falling back to log-only")
		store = archive.LogStore{}
	}
	defer storeCloser.Close()

	finalizer := finalize.New(store, finalize.Config{
		MaxRetries:   cfg.Archive.MaxRetries,
		RetryBackoff: cfg.Archive.RetryBackoff,
	})

	fetcher := reference.New(reference.Config{
		URLs:     cfg.Reference.URLs,
		MaxChars: cfg.Reference.MaxChars,
		Timeout:  cfg.Reference.Timeout,
		CacheTTL: cfg.Reference.CacheTTL,
	}, nil, logging.WithComponent("reference"))

	builder, err := instructions.New(profile, fetcher)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid session instructions")
	}

	manager := session.NewManager(session.Config{
		NegotiationTimeout:   cfg.Realtime.NegotiationTimeout,
		FinalizeTimeout:      cfg.Archive.WriteTimeout,
		TranscriptMaxEntries: cfg.Session.TranscriptMaxEntries,
	}, newFactory(cfg.Realtime), builder, finalizer, publisher)

	voiceHandler, err := voice.NewHandler(cfg.Telephony)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid telephony configuration")
	}

	httpServer := &http.Server{
		Addr: ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(application, httpapi.Handlers{
			Voice:    voiceHandler,
			Media:    media.NewHandler(manager),
			Sessions: manager,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obsServer := observability.NewServer(cfg.Service.MetricsAddr, manager.Accepting)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(grpcServer)

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Application start failed")
	}

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("Call webhook and media stream listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(obsServer.Run)

	if cfg.Service.GRPCPort != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			logger.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health service listening")
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc serve: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Shutdown requested, draining calls")
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()

		if err := manager.Shutdown(drainCtx); err != nil {
			logger.Warn().Err(err).Int("sessions", manager.Count()).Msg("Calls still open at drain deadline")
		}
		if err := httpServer.Shutdown(drainCtx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server shutdown incomplete")
		}
		if err := obsServer.Shutdown(drainCtx); err != nil {
			logger.Warn().Err(err).Msg("Observability server shutdown incomplete")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Server exited with error")
	}
	application.Shutdown()
}

func newFactory(cfg config.RealtimeConfig) realtime.Factory {
	if cfg.Provider == config.ProviderMock {
		log.Warn().Msg("Using scripted mock realtime provider")
		return mock.Factory(mock.DefaultScript, 50)
	}

	rc := realtime.DefaultConfig()
	rc.Endpoint = cfg.Endpoint
	rc.APIKey = cfg.APIKey
	rc.Model = cfg.Model
	rc.APIVersion = cfg.APIVersion
	rc.Path = cfg.Path
	rc.HandshakeTimeout = cfg.HandshakeTimeout
	rc.SendBuffer = cfg.SendBuffer
	rc.DebugFrames = cfg.DebugFrames
	return realtime.NewFactory(rc, logging.WithComponent("realtime"))
}
