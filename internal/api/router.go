package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hearme/signbridge/internal/api/middleware"
	"github.com/hearme/signbridge/internal/config"
	"github.com/hearme/signbridge/internal/handlers"
)

// NewRouter creates and configures the HTTP router. The rate limiter is
// only installed when a Redis client is given.
func NewRouter(logger zerolog.Logger, cfg *config.Config, h *handlers.Handler, redisClient *redis.Client) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if redisClient != nil {
		limiter := middleware.NewRateLimiter(redisClient, logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	// CORS for the browser frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Service info
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Recognition
	r.Post("/predict", h.Predict)

	// Relays
	r.Get("/transcription/{room_id}", h.ListTranscriptions)
	r.Post("/transcription/{room_id}", h.PostTranscription)
	r.Get("/gesture/{room_id}", h.ListGestures)
	r.Post("/gesture/{room_id}", h.PostGesture)

	// Call sessions
	r.Post("/token", h.Token)
	r.Post("/api/azure/token", h.ReusableToken)
	r.Get("/my-user-id", h.MyUserID)
	r.Post("/room", h.CreateRoom)
	r.Get("/room/{room_id}", h.GetRoom)
	r.Post("/room/{room_id}/add-participant", h.AddParticipant)

	return r
}
