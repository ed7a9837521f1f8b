package handlers

import (
	"errors"
	"net/http"

	"github.com/hearme/signbridge/internal/predict"
)

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Mode      string    `json:"mode"`
	Landmarks []float32 `json:"landmarks"`
}

// Predict classifies a landmark vector.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Mode == "" {
		h.Error(w, http.StatusBadRequest, "mode is required")
		return
	}

	res, err := h.predictor.Predict(r.Context(), predict.Mode(req.Mode), req.Landmarks)
	if err != nil {
		var shapeErr *predict.ShapeError
		switch {
		case errors.As(err, &shapeErr),
			errors.Is(err, predict.ErrUnknownMode),
			errors.Is(err, predict.ErrNoLandmarks):
			h.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, predict.ErrModelNotLoaded):
			h.Error(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error().Err(err).Str("mode", req.Mode).Msg("prediction failed")
			h.Error(w, http.StatusInternalServerError, "prediction failed")
		}
		return
	}

	h.JSON(w, http.StatusOK, res)
}
