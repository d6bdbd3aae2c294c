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
	"dehive/internal/gateway"
	"dehive/internal/httpx"
	"dehive/internal/observability/logging"
	"dehive/internal/observability/metrics"
	obsmw "dehive/internal/observability/middleware"
	dmsvc "dehive/internal/service/dm"
	uploadsvc "dehive/internal/service/upload"
	"dehive/internal/store"
	dmhttp "dehive/internal/transport/http/dm"

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
		ServiceName: "dm",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)
	metrics.MustRegister("dm")

	logger.Info("starting service")

	cfg := config.Load(":8084")

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

	resolver := dmsvc.NewProfileResolver(cache.NewProfileCache(rdb, cfg.ProfileTTL), dc, logger)
	svc := dmsvc.New(st, resolver, logger)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Error("upload dir", "error", err)
		os.Exit(1)
	}
	uploads := uploadsvc.New(st, uploadsvc.Config{
		StorageDriver: cfg.StorageDriver,
		Dir:           cfg.UploadDir,
		PublicBaseURL: cfg.PublicBaseURL,
		Limits: uploadsvc.Limits{
			ImageMB: cfg.MaxImageMB,
			VideoMB: cfg.MaxVideoMB,
			AudioMB: cfg.MaxAudioMB,
			FileMB:  cfg.MaxFileMB,
		},
	}, logger)

	hub := gateway.NewHub()
	status := cache.NewStatusCache(rdb, cfg.StatusTTL)
	ws := gateway.NewDMGateway(hub, svc, status, dc, gateway.Options{
		EventsPerSec: cfg.SocketEventsPerSec,
		EventBurst:   cfg.SocketEventBurst,
	}, logger)

	h := dmhttp.NewHandler(guard, svc, uploads, ws, dc, cfg.UploadDir, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	// No global timeout: /ws holds connections open. The REST group applies
	// its own request timeout.
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

	logger.Info("dm service listening", "addr", cfg.Addr)
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
