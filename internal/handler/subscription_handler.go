package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/samims/notifier/internal/middleware"
	"github.com/samims/notifier/internal/service"
)

type SubscriptionHandler struct {
	svc    service.SubscriptionService
	logger *slog.Logger
}

func NewSubscriptionHandler(svc service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		svc:    svc,
		logger: logger.With("layer", "handler", "component", "subscriptions"),
	}
}

// Register subscribes a device of the caller.
func (h *SubscriptionHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sub, err := h.svc.Register(r.Context(), userID, req)
	if err != nil {
		writeError(w, h.logger, "Register", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Deactivate unsubscribes one of the caller's devices. Admins may
// deactivate any subscription.
func (h *SubscriptionHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	owner := p.UserID
	if p.HasRole(middleware.RoleAdmin) {
		owner = ""
	}
	if err := h.svc.Deactivate(r.Context(), chi.URLParam(r, "id"), owner); err != nil {
		writeError(w, h.logger, "Deactivate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubscriptionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	subs, err := h.svc.ListActive(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, "ListMine", err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, "Stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
