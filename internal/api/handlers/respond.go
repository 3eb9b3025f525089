package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	middleware "github.com/markdave123-py/documind/internal/api/middlewares"
	"github.com/markdave123-py/documind/internal/core"
)

const msgInternal = "Internal server error"

// RespondJSON writes data as JSON with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes {"error": msg} with the given status code.
func RespondError(w http.ResponseWriter, status int, msg string) {
	RespondJSON(w, status, map[string]string{"error": msg})
}

// respondErr maps a service error to its status. Messages of typed errors are
// shown as is; anything else becomes a generic 500.
func respondErr(w http.ResponseWriter, log *zap.Logger, err error) {
	status := core.MapHTTPStatus(err)
	msg := err.Error()

	var ce *core.Error
	if !errors.As(err, &ce) {
		msg = msgInternal
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	RespondError(w, status, msg)
}

// requireUser returns the caller's id or answers 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		RespondError(w, http.StatusUnauthorized, "Unauthorized")
	}
	return id, ok
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
