package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	hexprox "github.com/hexprox/hexprox"
	"github.com/hexprox/hexprox/internal/logging"
	"github.com/hexprox/hexprox/internal/ratelimit"
	"github.com/hexprox/hexprox/internal/secretstore"
	"github.com/hexprox/hexprox/internal/tasks"
	"github.com/hexprox/hexprox/internal/version"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("HEXPROX_CONFIG"), "path to config file (JSON/YAML)")
	flag.Parse()

	var cfg hexprox.Config
	if *cfgPath != "" {
		loaded, err := hexprox.LoadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	} else {
		cfg.ExternalBaseURL = os.Getenv("HEXPROX_EXTERNAL_BASE_URL")
	}
	cfg.ApplyDefaults()
	if err := hexprox.ValidateConfig(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := secretstore.New(ctx, cfg.SecretStore)
	if err != nil {
		log.Fatalf("Failed to open secret store: %v", err)
	}

	queue := tasks.NewQueue(64, 1)
	defer queue.Close()

	gw := hexprox.NewGateway(cfg, store, queue)

	var limits *ratelimit.Store
	if cfg.RateLimit.PerSecond > 0 {
		limits = ratelimit.NewStore(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	}

	s := &server{gw: gw, limits: limits}
	r := newRouter(s, cfg.Origins)

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("HexProx %s listening on %s (secret store: %s)",
		version.Short(), cfg.Listen, storeName(cfg.SecretStore.Driver))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

func storeName(driver string) string {
	if driver == "" {
		return "memory"
	}
	return driver
}

// newRouter builds the HTTP router.
func newRouter(s *server, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(corsMiddleware(hexprox.NewOriginPolicy(corsOrigins)))

	r.Get("/", s.handleRoot)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/about/{apiKey}", s.handleAbout)

	r.Get("/v2/wmts/{apiKey}/1.0.0/HxGN_Imagery/default/WebMercator/{matrix}/{row}/{col}.{ext}", s.handleKeyedTile)
	r.Get("/v2/wmts/{apiKey}/*", s.handleKeyedDocument)

	// Legacy scheme: vendor credentials embedded (base64) in the path.
	r.Get("/v1/wmts/{clientID}/{clientSecret}/1.0.0/HxGN_Imagery/default/WebMercator/{matrix}/{row}/{col}.{ext}", s.handleLegacyTile)
	r.Get("/v1/wmts/{clientID}/{clientSecret}/*", s.handleLegacyDocument)

	return r
}
