package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nalahealth/coach/internal/api"
	"github.com/nalahealth/coach/internal/cache"
	"github.com/nalahealth/coach/internal/database"
	"github.com/nalahealth/coach/internal/embedding"
	"github.com/nalahealth/coach/internal/events"
	"github.com/nalahealth/coach/internal/logging"
	"github.com/nalahealth/coach/internal/metrics"
	"github.com/nalahealth/coach/internal/orchestrator"
	"github.com/nalahealth/coach/internal/progress"
	"github.com/nalahealth/coach/internal/prompt"
	"github.com/nalahealth/coach/internal/provider"
	"github.com/nalahealth/coach/internal/retrieval"
	"github.com/nalahealth/coach/internal/telemetry"
	"github.com/nalahealth/coach/pkg/config"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("coachd v%s\n", version)
		return
	}

	cfg, err := config.LoadConfigFromFile(*configPath)
	if err != nil {
		log.Fatalf("failed to load config from %s: %v", *configPath, err)
	}

	// Initialize OpenTelemetry
	if cfg.Telemetry.Enabled {
		endpoint := cfg.Telemetry.OTLPEndpoint
		if fromEnv := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); fromEnv != "" {
			endpoint = fromEnv
		}
		shutdownTelemetry, err := telemetry.InitTelemetry(context.Background(), cfg.Telemetry.ServiceName, endpoint)
		if err != nil {
			log.Printf("Warning: Failed to initialize telemetry: %v", err)
		} else {
			defer func() {
				if err := shutdownTelemetry(context.Background()); err != nil {
					log.Printf("Error shutting down telemetry: %v", err)
				}
			}()
		}
	}

	db, err := database.NewPostgres(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	logManager := logging.NewManager(db.DB())
	metricsManager := metrics.NewMetrics()

	// Embedding cache, backed by Redis when configured.
	cacheConfig := cache.DefaultConfig()
	if cfg.Redis.TTL > 0 {
		cacheConfig.DefaultTTL = cfg.Redis.TTL
	}
	var embeddingCache *cache.Cache
	if cfg.Redis.Enabled {
		redisBackend, err := cache.NewRedisCache(context.Background(), cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			log.Printf("Warning: Redis unavailable, using in-memory embedding cache: %v", err)
			embeddingCache = cache.New(cacheConfig)
		} else {
			embeddingCache = cache.NewFromBackend(redisBackend, cacheConfig)
		}
	} else {
		embeddingCache = cache.New(cacheConfig)
	}

	embedder := embedding.NewClient(embedding.Config{
		Endpoint: cfg.Embedding.Endpoint,
		APIKey:   cfg.Embedding.APIKey,
		Model:    cfg.Embedding.Model,
		Timeout:  cfg.Embedding.Timeout,
	}, embeddingCache, metricsManager)

	index := retrieval.NewStoreIndex(embedder, db)

	registry := provider.NewRegistry()
	for _, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		name, err := provider.ParseName(p.Name)
		if err != nil {
			log.Fatalf("unknown provider %q in config: %v", p.Name, err)
		}
		if err := registry.Register(&provider.Config{
			Name:     name,
			Endpoint: p.Endpoint,
			APIKey:   p.APIKey,
			Model:    p.Model,
		}); err != nil {
			log.Fatalf("failed to register provider %s: %v", p.Name, err)
		}
	}

	defaultProvider, err := provider.ParseName(cfg.Program.DefaultProvider)
	if err != nil {
		log.Fatalf("invalid default provider: %v", err)
	}
	gateway, err := provider.NewGateway(registry, defaultProvider, metricsManager)
	if err != nil {
		log.Fatalf("failed to create completion gateway: %v", err)
	}

	isNotFound := func(err error) bool { return errors.Is(err, database.ErrNotFound) }
	tracker := progress.NewTracker(db, cfg.Program.StageCount, cfg.Program.UnlockDelay, isNotFound)

	var bus *events.Bus
	if cfg.NATS.Enabled {
		bus, err = events.NewBus(events.Config{
			URL:        cfg.NATS.URL,
			StreamName: cfg.NATS.StreamName,
			Timeout:    cfg.NATS.Timeout,
		})
		if err != nil {
			log.Printf("Warning: NATS unavailable, events disabled: %v", err)
			bus = nil
		} else {
			defer bus.Close()
		}
	}

	orchOpts := orchestrator.Options{
		Store:         db,
		Index:         index,
		Assembler:     prompt.NewAssembler(cfg.Program.HistoryWindow),
		Gateway:       gateway,
		Tracker:       tracker,
		Metrics:       metricsManager,
		Logs:          logManager,
		HistoryWindow: cfg.Program.HistoryWindow,
		TopK:          cfg.Retrieval.TopK,
		MinSimilarity: cfg.Retrieval.MinSimilarity,
		IsNotFound:    isNotFound,
	}
	if bus != nil {
		orchOpts.Publisher = bus
	}
	orch := orchestrator.New(orchOpts)

	serverOpts := api.Options{
		Coach:      orch,
		Tracker:    tracker,
		Store:      db,
		Examples:   db,
		Embedder:   embedder,
		Config:     cfg,
		Logs:       logManager,
		Metrics:    metricsManager,
		PingDB:     db.Ping,
		IsNotFound: isNotFound,
	}
	if bus != nil {
		serverOpts.BusHealth = bus
	}
	apiServer := api.NewServer(serverOpts)

	// Wrap handler with OpenTelemetry instrumentation
	handler := otelhttp.NewHandler(apiServer.SetupRoutes(), "coach-http-server")

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Coach API listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shutdownCtx)
}
