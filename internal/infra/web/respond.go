package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"comfy-gateway/internal/domain"
	"comfy-gateway/internal/infra/logging"

	"github.com/rs/zerolog"
)

// envelope wraps every response body as {"data": ...}.
type envelope struct {
	Data any `json:"data"`
}

type errorBody struct {
	ErrorMessage string `json:"error_message"`
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: v})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeData(w, status, errorBody{ErrorMessage: msg})
}

// writeError maps err onto a status code. Server and backend faults are
// logged and reported with a fixed message; their detail may carry internal
// addresses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	var msg string
	switch status {
	case http.StatusInternalServerError:
		msg = "internal error"
	case http.StatusBadGateway:
		msg = "generation backend unavailable"
	default:
		writeMessage(w, status, err.Error())
		return
	}
	logger := zerolog.Ctx(r.Context())
	logging.With(r.Context(), logger).Error().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	writeMessage(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBackendUnavailable),
		errors.Is(err, domain.ErrProtocol):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnknownJob),
		errors.Is(err, domain.ErrNotReady),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		// includes ErrParse from stored workflow templates
		return http.StatusInternalServerError
	}
}
