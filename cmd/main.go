package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	// OpenTelemetry
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	// Drivers
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	// Interne
	"github.com/jupiterclapton/cenackle/services/social-service/config"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/primary/events"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/primary/rest"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/clients"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/eventbroker"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/metrics"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/repository/migrations"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/services"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger (slog sur un coeur zap)
	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()
	slog.Info("🚀 Starting Social Service", "env", cfg.Env, "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	initPropagator()
	tp, err := initTracer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("Error shutting down tracer", "error", err)
			}
		}()
	}

	// 4. Postgres (stats + réplica des profils)
	if err := migrations.Up(cfg.DBUrl); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	dbConfig, err := pgxpool.ParseConfig(cfg.DBUrl)
	if err != nil {
		slog.Error("Unable to parse DB config", "error", err)
		os.Exit(1)
	}
	dbConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		slog.Error("Database ping failed", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Database connected")

	// 5. Neo4j (graphe FOLLOWS / BLOCKS)
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		slog.Error("Failed to create neo4j driver", "error", err)
		os.Exit(1)
	}
	defer driver.Close(context.Background())

	if err := driver.VerifyConnectivity(ctx); err != nil {
		slog.Error("Failed to connect to Neo4j", "error", err)
		os.Exit(1)
	}
	graphRepo := repository.NewNeo4jRepo(driver)
	if err := graphRepo.EnsureSchema(ctx); err != nil {
		slog.Error("Failed to ensure Neo4j schema", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Connected to Neo4j")

	// 6. Redis (cache)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		panic(err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Unable to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Connected to Redis")

	// 7. NATS JetStream
	nc, err := nats.Connect(cfg.NatsUrl, nats.Name(cfg.ServiceName))
	if err != nil {
		slog.Error("Unable to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		slog.Error("Failed to init JetStream", "error", err)
		os.Exit(1)
	}
	stream, err := eventbroker.EnsureStream(ctx, js)
	if err != nil {
		slog.Error("Failed to ensure stream", "stream", eventbroker.StreamName, "error", err)
		os.Exit(1)
	}
	slog.Info("✅ NATS JetStream connected")

	// 8. Clé publique JWT (vérification seule)
	publicKey, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		slog.Error("Failed to read JWT public key", "path", cfg.JWTPublicKeyPath, "error", err)
		os.Exit(1)
	}
	verifier, err := rest.NewTokenVerifier(publicKey)
	if err != nil {
		slog.Error("Failed to init token verifier", "error", err)
		os.Exit(1)
	}

	// 9. Wiring
	registry := prometheus.NewRegistry()
	promMetrics := metrics.New(registry)

	socialService := services.NewSocialService(services.Deps{
		Graph:        graphRepo,
		Stats:        repository.NewStatsRepo(dbPool),
		Profiles:     repository.NewProfileRepo(dbPool),
		Cache:        repository.NewRedisCache(rdb),
		Publisher:    eventbroker.NewNatsPublisher(js, cfg.ServiceName),
		Identity:     clients.NewIdentityClient(cfg.IdentityURL, cfg.InternalServiceToken, cfg.IdentityTimeout),
		Metrics:      promMetrics,
		SyncMaxPages: cfg.IdentitySyncMaxPages,
	})

	// 10. Consumer JetStream (user.created / updated / deleted)
	consumeCtx, err := events.NewEventHandler(socialService).Start(ctx, stream)
	if err != nil {
		slog.Error("Failed to start event consumer", "error", err)
		os.Exit(1)
	}

	// 11. Réconciliation périodique des compteurs
	if cfg.StatsReconcileInterval > 0 {
		go services.NewStatsReconciler(socialService, cfg.StatsReconcileInterval).Run(ctx)
	}

	// 12. HTTP (gin) + CORS + OTEL
	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := rest.NewRouter(rest.RouterConfig{
		Service:     socialService,
		Verifier:    verifier,
		Observer:    promMetrics,
		Gatherer:    registry,
		ServiceName: cfg.ServiceName,
		Checks: map[string]rest.ReadinessCheck{
			"postgres": dbPool.Ping,
			"neo4j":    driver.VerifyConnectivity,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			"nats": func(context.Context) error {
				if !nc.IsConnected() {
					return errors.New("nats disconnected")
				}
				return nil
			},
		},
	})

	var h http.Handler = router
	h = cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "baggage", "traceparent"},
		AllowCredentials: !slices.Contains(cfg.CORSAllowedOrigins, "*"),
	}).Handler(h)
	h = otelhttp.NewHandler(h, cfg.ServiceName, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)
	}))

	srvHTTP := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("📡 HTTP server listening", "port", cfg.HTTPPort)
		if err := srvHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// 13. gRPC (health check pour l'orchestrateur)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen", "port", cfg.GRPCPort, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(cfg.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		slog.Info("🚀 gRPC health server listening", "address", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("Failed to serve", "error", err)
			os.Exit(1)
		}
	}()

	// 14. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	sig := <-quit
	slog.Info("⚠️  Signal received, shutting down...", "signal", sig)

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	consumeCtx.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced to shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("✅ gRPC Server stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("⏳ Timeout reached, forcing server stop")
		grpcServer.Stop()
	}

	slog.Info("👋 Service stopped")
}

// --- HELPERS ---

// initLogger: config zap de dev en local (debug, console), JSON de prod sinon
func initLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	logger = logger.With(zap.String("service", cfg.ServiceName))
	slog.SetDefault(slog.New(zapslog.NewHandler(logger.Core())))
	return logger
}

// initPropagator est indépendant de l'exporteur: le contexte traverse HTTP et les headers NATS même sans collecteur
func initPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
}

func initTracer(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
		otlptracegrpc.WithInsecure(), // En prod, gérez le TLS
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String("1.0.0"),
			semconv.DeploymentEnvironmentKey.String(cfg.Env),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	return tp, nil
}
