package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/emsv/geovisor/internal/geospatial"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an error class to its HTTP status and metrics label.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, geospatial.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, geospatial.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, geospatial.ErrSchema):
		return http.StatusInternalServerError, "schema"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// clientMessage returns the text sent to the caller. Classified errors
// carry a safe message; anything else is reported generically.
func clientMessage(err error) string {
	var ge *geospatial.Error
	if errors.As(err, &ge) {
		return ge.Msg
	}
	return "internal server error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}
