package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"dehive/internal/cache"
	"dehive/internal/config"
	"dehive/internal/decode"
	"dehive/internal/httpx"
	"dehive/internal/observability/logging"
	"dehive/internal/observability/metrics"
	obsmw "dehive/internal/observability/middleware"
	dmsvc "dehive/internal/service/dm"
	msvc "dehive/internal/service/membership"
	"dehive/internal/store"
	mhttp "dehive/internal/transport/http/membership"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "membership",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)
	metrics.MustRegister("membership")

	logger.Info("starting service")

	cfg := config.Load(":8086")

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		logger.Error("auto migrate", "error", err)
		os.Exit(1)
	}

	rdb, err := cache.NewRedis(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("redis connect", "error", err)
		os.Exit(1)
	}

	dc := decode.NewClient(cfg.DecodeBaseURL, cfg.DecodeTimeout, logger)
	sessions := cache.NewSessionCache(rdb)
	guard := httpx.NewGuard(sessions, dc, true, logger)

	members := cache.NewMemberCache(rdb, cfg.MembersTTL)
	resolver := dmsvc.NewProfileResolver(cache.NewProfileCache(rdb, cfg.ProfileTTL), dc, logger)
	svc := msvc.New(st, members, resolver, logger)

	h := mhttp.NewHandler(guard, svc, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(httprate.LimitByIP(300, time.Minute))
	r.Use(cors.Handler(corsOptions(cfg.CORSOrigins)))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	h.Mount(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           obsmw.WithRequestAndTrace(obsmw.WithMetrics(r)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("membership service listening", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func corsOptions(origins string) cors.Options {
	allowed := []string{"*"}
	if origins != "" {
		allowed = strings.Split(origins, ",")
	}
	return cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id", "x-session-id", "x-fingerprint-hashed"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}
