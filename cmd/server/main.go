package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hearme/signbridge/internal/acs"
	"github.com/hearme/signbridge/internal/api"
	"github.com/hearme/signbridge/internal/config"
	"github.com/hearme/signbridge/internal/gesture"
	"github.com/hearme/signbridge/internal/handlers"
	"github.com/hearme/signbridge/internal/predict"
	"github.com/hearme/signbridge/internal/relay"
	"github.com/hearme/signbridge/internal/rooms"
	"github.com/hearme/signbridge/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Classifiers are optional; a missing model disables its mode.
	predictor := predict.NewService(loadAlphabet(cfg, logger), loadWords(cfg, logger), logger)

	// Initialize Redis
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisClient.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Relay queues
	var transcripts, gestures relay.Queue
	if redisClient != nil {
		transcripts = relay.NewRedisQueue(redisClient, "transcription", cfg.RelayCapacity)
		gestures = relay.NewRedisQueue(redisClient, "gesture", cfg.RelayCapacity)
	} else {
		transcripts = relay.NewMemoryQueue("transcription", cfg.RelayCapacity)
		gestures = relay.NewMemoryQueue("gesture", cfg.RelayCapacity)
	}

	// Room directory
	roomStore := openRoomStore(ctx, cfg, logger)
	defer roomStore.Close()

	// Communication provider
	var provider rooms.Provider
	if cfg.ACSConnectionString != "" {
		client, err := acs.NewClient(cfg.ACSConnectionString)
		if err != nil {
			logger.Warn().Err(err).Msg("communication services disabled")
		} else {
			provider = client
			logger.Info().Str("endpoint", client.Endpoint()).Msg("communication services configured")
		}
	} else {
		logger.Warn().Msg("AZURE_COMMUNICATION_CONNECTION_STRING not set, call endpoints disabled")
	}

	h := handlers.NewHandler(handlers.Deps{
		Transcripts: transcripts,
		Gestures:    gestures,
		Predictor:   predictor,
		Rooms:       rooms.NewService(provider, roomStore, cfg.RoomValidity, logger),
		Redis:       redisClient,
		Logger:      logger,
	})

	// Create router
	router := api.NewRouter(logger, cfg, h, redisClient)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("relay", transcripts.Name()).
			Msg("starting signbridge server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

func loadAlphabet(cfg *config.Config, logger zerolog.Logger) *predict.Model {
	m, err := predict.LoadModel(predict.ModeAlphabet, cfg.AlphabetModelPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.AlphabetModelPath).Msg("alphabet model not loaded")
		return nil
	}
	logger.Info().Str("id", m.ID).Int("classes", m.Classifier.Classes()).Msg("alphabet model loaded")
	return m
}

// loadWords loads the word model. A labels file, when present, replaces the
// labels stored in the artifact.
func loadWords(cfg *config.Config, logger zerolog.Logger) *predict.Model {
	m, err := predict.LoadModel(predict.ModeWord, cfg.WordModelPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.WordModelPath).Msg("word model not loaded")
		return nil
	}

	labels, err := gesture.LoadLabels(cfg.WordLabelsPath)
	switch {
	case err == nil && len(labels) > 0:
		m.Labels = labels
	case err != nil && !os.IsNotExist(err):
		logger.Warn().Err(err).Str("path", cfg.WordLabelsPath).Msg("word labels not loaded")
	}
	if len(m.Labels) != m.Classifier.Classes() {
		logger.Warn().
			Int("labels", len(m.Labels)).
			Int("classes", m.Classifier.Classes()).
			Msg("word label count does not match model classes")
	}

	logger.Info().Str("id", m.ID).Int("classes", m.Classifier.Classes()).Msg("word model loaded")
	return m
}

// openRoomStore picks Postgres, then SQLite, then process memory.
func openRoomStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) store.RoomStore {
	switch {
	case cfg.DatabaseURL != "":
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
		return pg
	case cfg.SQLitePath != "":
		s, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite room directory")
		return s
	default:
		logger.Info().Msg("using in-memory room directory")
		return store.NewMemoryStore()
	}
}
