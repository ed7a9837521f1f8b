package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	// Classifiers
	models := h.predictor.Status()
	for name, st := range map[string]bool{
		"alphabet_model": models.Alphabet.Loaded,
		"word_model":     models.Word.Loaded,
	} {
		if st {
			checks[name] = Check{Status: "pass"}
		} else {
			checks[name] = Check{Status: "fail", Message: "not loaded"}
			allHealthy = false
		}
	}

	// Communication provider is optional
	if h.rooms.Configured() {
		checks["provider"] = Check{Status: "pass"}
	} else {
		checks["provider"] = Check{Status: "skip", Message: "not configured"}
	}

	// Room directory
	dbStart := time.Now()
	if err := h.rooms.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("room directory ping failed")
		checks["database"] = Check{Status: "fail", Message: "connection failed"}
		allHealthy = false
	} else {
		checks["database"] = Check{Status: "pass", Latency: time.Since(dbStart).String()}
	}

	// Redis is optional
	if h.redis != nil {
		redisStart := time.Now()
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.logger.Warn().Err(err).Msg("redis ping failed")
			checks["redis"] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			checks["redis"] = Check{Status: "pass", Latency: time.Since(redisStart).String()}
		}
	} else {
		checks["redis"] = Check{Status: "skip", Message: "not configured"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Instance:  os.Getenv("FLY_ALLOC_ID"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	h.JSON(w, statusCode, resp)
}

// ModelsLoaded reports which classifiers are available.
type ModelsLoaded struct {
	Alphabet bool `json:"alphabet"`
	Word     bool `json:"word"`
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Status                       string       `json:"status"`
	ModelsLoaded                 ModelsLoaded `json:"models_loaded"`
	AzureCommunicationConfigured bool         `json:"azure_communication_configured"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	st := h.predictor.Status()
	h.JSON(w, http.StatusOK, RootResponse{
		Status: "ok",
		ModelsLoaded: ModelsLoaded{
			Alphabet: st.Alphabet.Loaded,
			Word:     st.Word.Loaded,
		},
		AzureCommunicationConfigured: h.rooms.Configured(),
	})
}
