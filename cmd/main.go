package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	grpcapi "scribe-mcp-gateway/internal/api/grpc"
	httpapi "scribe-mcp-gateway/internal/api/http"
	"scribe-mcp-gateway/internal/app"
	"scribe-mcp-gateway/internal/config"
	"scribe-mcp-gateway/internal/events"
	"scribe-mcp-gateway/internal/netutil"
	"scribe-mcp-gateway/internal/observability"
	"scribe-mcp-gateway/internal/observability/tracing"
	"scribe-mcp-gateway/internal/service/pipeline"
	"scribe-mcp-gateway/internal/service/protocol"
	"scribe-mcp-gateway/internal/service/stt"
	"scribe-mcp-gateway/internal/service/stt/elevenlabs"
	"scribe-mcp-gateway/internal/service/stt/mock"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load .env")
	}
	cfg := config.Load()

	application := app.New(cfg)
	logger := application.Logger

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:  cfg.Service.Principal,
		Environment:  cfg.Service.Environment,
		Exporter:     cfg.Observability.TracesExporter,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
		OTLPInsecure: cfg.Observability.OTLPInsecure,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up tracing")
	}

	// Start observability server (metrics + health endpoints)
	obsServer := observability.NewServer(cfg.Observability.MetricsAddr)
	obsServer.Start()

	provider, err := newProvider(cfg.STT)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create STT provider")
	}

	// Kafka fan-out of results and session lifecycle events
	publisher := events.New(&events.Config{
		Enabled:       cfg.Kafka.Enabled,
		Brokers:       cfg.Kafka.Brokers,
		TopicResults:  cfg.Kafka.TopicResults,
		TopicSessions: cfg.Kafka.TopicSessions,
		Principal:     cfg.Kafka.Principal,
	})

	svc := pipeline.New(provider,
		pipeline.WithPublisher(publisher),
		pipeline.WithLimits(pipeline.Limits{MaxChunkBytes: cfg.Pipeline.MaxChunkBytes}),
	)
	registry := protocol.NewRegistry()
	handler := protocol.NewHandler(registry)

	httpLis, err := listenHTTP(cfg.Service.HTTPPort)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to bind HTTP port")
	}
	httpServer := &http.Server{
		Handler: httpapi.NewRouter(application, httpapi.Dependencies{
			Handler:           handler,
			Pipeline:          svc,
			FileResultTimeout: cfg.Service.FileResultTimeout,
			MaxChunkBytes:     cfg.Pipeline.MaxChunkBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Int("port", netutil.Port(httpLis.Addr())).Msg("HTTP server started")
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	var grpcServer *grpcapi.Server
	if cfg.Service.GRPCPort != "" {
		grpcLis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to bind gRPC port")
		}
		grpcServer = grpcapi.New(grpcapi.Dependencies{Handler: handler, Pipeline: svc})
		go func() {
			if err := grpcServer.Serve(grpcLis); err != nil {
				logger.Fatal().Err(err).Msg("gRPC server failed")
			}
		}()
	}

	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start application")
	}
	obsServer.SetReady(true)
	if grpcServer != nil {
		grpcServer.SetServing(true)
	}

	<-ctx.Done()
	stop()

	shutdown(logger, cfg.Service.ShutdownTimeout, func(ctx context.Context) {
		application.Shutdown()
		if grpcServer != nil {
			grpcServer.SetServing(false)
		}
		obsServer.SetReady(false)

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server shutdown")
		}
		svc.Close()
		if n := registry.CloseAll(); n > 0 {
			logger.Info().Int("sessions", n).Msg("Closed remaining sessions")
		}
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("Kafka publisher close")
		}
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn().Err(err).Msg("Tracer shutdown")
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		if err := obsServer.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Observability server shutdown")
		}
	})
}

// shutdown runs fn under the shutdown deadline and gives up once it passes.
func shutdown(logger zerolog.Logger, timeout time.Duration, fn func(context.Context)) {
	logger.Info().Dur("timeout", timeout).Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()

	select {
	case <-done:
		logger.Info().Msg("Shutdown complete")
	case <-ctx.Done():
		logger.Error().Msg("Shutdown timed out")
		os.Exit(1)
	}
}

func newProvider(cfg config.STTConfig) (stt.Provider, error) {
	switch cfg.Provider {
	case config.ProviderMock:
		log.Warn().Msg("Using mock STT provider")
		return mock.New(), nil
	default:
		return elevenlabs.New(elevenlabs.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	}
}

// listenHTTP binds the configured port, or scans from the default start
// port when it is "auto".
func listenHTTP(port string) (net.Listener, error) {
	if port == config.PortAuto {
		return netutil.ListenAvailable("", netutil.DefaultStartPort, netutil.DefaultAttempts)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, err
	}
	return net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(p)))
}
