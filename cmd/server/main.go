// Server runs the storytelling listener: the gRPC event ingress for the host application and
// the HTTP tracking API for browsers.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"

	"playground-flow/internal/config"
	"playground-flow/internal/db"
	"playground-flow/internal/event"
	gamedomain "playground-flow/internal/game/domain"
	healthhandler "playground-flow/internal/health/handler"
	"playground-flow/internal/logging"
	"playground-flow/internal/object"
	"playground-flow/internal/server"
	"playground-flow/internal/storymapping/catalog"
	mappingrepo "playground-flow/internal/storymapping/repository"
	"playground-flow/internal/storytelling/gate"
	eventhandler "playground-flow/internal/storytelling/handler"
	storyrepo "playground-flow/internal/storytelling/repository"
	"playground-flow/internal/storytelling/service"
	"playground-flow/internal/telemetry"
	telemetryotel "playground-flow/internal/telemetry/otel"
	"playground-flow/internal/telemetry/producer"
	trackinghandler "playground-flow/internal/tracking/handler"
	trackingrepo "playground-flow/internal/tracking/repository"
	userdomain "playground-flow/internal/user/domain"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conn *sql.DB
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer conn.Close()
	} else {
		logger.Warn("DATABASE_URL not set; stories and beacons will not be stored")
	}

	registry := object.NewRegistry(userdomain.Kind, gamedomain.GameKind, gamedomain.EntryKind)
	mappings := catalog.New(registry)
	if err := loadMappings(ctx, cfg, conn, mappings, logger); err != nil {
		return err
	}

	optin, err := gate.NewOPAGate(ctx, "", logger)
	if err != nil {
		return fmt.Errorf("opt-in policy: %w", err)
	}

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()

	emitters := telemetry.Multi{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	var publisher producer.Producer
	kafkaProducer, err := producer.NewKafkaProducer(cfg.StoryKafkaBrokersList(), cfg.StoryKafkaTopic)
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	if kafkaProducer != nil {
		publisher = kafkaProducer
		emitters = append(emitters, publisher)
		logger.Info("publishing stories to kafka", zap.String("topic", cfg.StoryKafkaTopic))
	}

	manager := event.NewManager()
	var listener *service.Listener
	var beacons trackinghandler.BeaconRepo
	if conn != nil {
		listener = service.NewListener(mappings, storyrepo.NewPostgresRepository(conn), optin, emitters, logger)
		beacons = trackingrepo.NewPostgresRepository(conn)
	} else {
		listener = service.NewListener(mappings, discardStories{}, optin, emitters, logger)
	}
	listener.Attach(manager)
	defer listener.Detach()

	var pinger healthhandler.Pinger
	if conn != nil {
		pinger = conn
	}
	checker := healthhandler.NewChecker(health.NewServer(), pinger, optin, logger, eventhandler.ServiceName)
	go checker.Run(ctx, cfg.HealthInterval())

	grpcServer := server.NewGRPCServer(server.Options{APIKey: cfg.EventsAPIKey, Logger: logger})
	server.RegisterServices(grpcServer, server.Deps{
		Events: eventhandler.NewServer(manager, registry, logger),
		Health: checker.Server(),
	})
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer lis.Close()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewHTTPRouter(logger, trackinghandler.New(mappings, beacons, cfg.TrackingAPIKey, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("server failed", zap.Error(serveErr))
	}

	logger.Info("shutting down")
	checker.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()

	// Let in-flight story emits finish before closing their sinks.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("kafka producer close", zap.Error(err))
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	logger.Info("stopped")
	return serveErr
}

func loadMappings(ctx context.Context, cfg *config.Config, conn *sql.DB, c *catalog.Catalog, logger *zap.Logger) error {
	switch cfg.MappingSource {
	case config.MappingSourcePostgres:
		if conn == nil {
			return errors.New("story mappings: postgres source needs DATABASE_URL")
		}
		if err := c.LoadSource(ctx, mappingrepo.NewPostgresRepository(conn)); err != nil {
			return fmt.Errorf("story mappings: %w", err)
		}
	default:
		if err := c.LoadFile(cfg.MappingFile); err != nil {
			return fmt.Errorf("story mappings: %w", err)
		}
		if cfg.MappingWatch {
			if err := c.Watch(ctx, cfg.MappingFile, logger); err != nil {
				return fmt.Errorf("story mappings watch: %w", err)
			}
		}
	}
	logger.Info("story mappings loaded", zap.String("source", cfg.MappingSource), zap.Int("count", len(c.All())))
	return nil
}
