package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	appErr "github.com/samims/notifier/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes. Internal errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, appErr.ErrNotDraft), appErr.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case appErr.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case appErr.IsInvalid(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, appErr.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, appErr.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		logger.Error(op+" failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// queryInt reads a non-negative integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, appErr.NewInvalid("%s must be a non-negative integer", name)
	}
	return v, nil
}
