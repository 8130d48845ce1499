package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/doet/powermap/internal/api"
	"github.com/doet/powermap/internal/cache"
	"github.com/doet/powermap/internal/config"
	"github.com/doet/powermap/internal/db"
	"github.com/doet/powermap/internal/logger"
	"github.com/doet/powermap/internal/metrics"
	"github.com/doet/powermap/internal/middleware"
	"github.com/doet/powermap/internal/store"
	"github.com/doet/powermap/internal/webhooks"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

func main() {
	_ = godotenv.Load(".env.local")
	log := logger.Setup()

	cfg, err := config.LoadFromEnv()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	d, err := db.Connect(cfg.DatabaseURL, log.Enabled(context.Background(), slog.LevelDebug))
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := store.Setup(d); err != nil {
		log.Error("store setup failed", "error", err)
		os.Exit(1)
	}

	c, err := cache.New(cfg.RedisURL)
	if err != nil {
		log.Error("cache setup failed", "error", err)
		os.Exit(1)
	}
	st := store.NewGorm(d, log)
	svc := api.New(st, cfg.Projects, c, cfg.CacheTTL, log)

	r := chi.NewRouter()
	r.Use(logger.AccessMiddleware(log))
	r.Use(middleware.CORS(nil))
	r.Use(middleware.NewRateLimiter(cfg.RateLimitQPS, cfg.RateLimitBurst).Handler)
	r.Get("/", RootHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/projects", svc.SetupRoutes())
	if cfg.WebhookSecret != "" {
		r.Mount("/hooks", webhooks.New(cfg.Projects, st, cfg.WebhookSecret, log).SetupRoutes())
	}

	log.Info("Server listening", "port", cfg.Port, "projects", cfg.Projects.Names(), "cache", c.Name())

	if err := http.ListenAndServe("0.0.0.0:"+cfg.Port, r); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
