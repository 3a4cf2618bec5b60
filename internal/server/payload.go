package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"hunt-server/pkg/api"
	"hunt-server/pkg/logger"
)

const maxBodySize = 64 << 10

// typedHandler - "чистый" хендлер, который получает готовую структуру T
type typedHandler[T any] func(w http.ResponseWriter, r *http.Request, payload T)

// withPayload берет на себя Unmarshal и Validate тела запроса
func withPayload[T any](handler typedHandler[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload T

		// 1. Распаковка JSON
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
		if err := dec.Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload format: %w", err))
			return
		}

		// 2. Валидация, если T реализует api.Validator
		if v, ok := any(payload).(api.Validator); ok {
			if err := v.Validate(); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("validation failed: %w", err))
				return
			}
		}

		// 3. Логика
		handler(w, r, payload)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.For("http").WithError(err).Debug("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, api.ErrorResponse{Success: false, Error: err.Error()})
}

func writeSuccess(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, api.SuccessResponse{Success: true, Message: msg})
}
