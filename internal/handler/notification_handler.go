package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/middleware"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/service"
	"github.com/samims/notifier/pkg/tracing"
)

type NotificationHandler struct {
	svc    service.NotificationService
	logger *slog.Logger
	tracer *tracing.Tracer
}

func NewNotificationHandler(svc service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		svc:    svc,
		logger: logger.With("layer", "handler", "component", "notifications"),
		tracer: tracing.NewTracer("notifier/handler"),
	}
}

type notificationRequest struct {
	Title    string           `json:"title"`
	Body     string           `json:"body"`
	Category string           `json:"category"`
	Priority model.Priority   `json:"priority"`
	Target   model.TargetSpec `json:"target"`
	Metadata model.Metadata   `json:"metadata"`
}

func (h *NotificationHandler) decode(w http.ResponseWriter, r *http.Request) (*model.Notification, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &model.Notification{
		Title:     req.Title,
		Body:      req.Body,
		Category:  req.Category,
		Priority:  req.Priority,
		Target:    req.Target,
		Metadata:  req.Metadata,
		CreatedBy: userID,
	}, true
}

func (h *NotificationHandler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "Publish")
	defer span.End()

	n, ok := h.decode(w, r)
	if !ok {
		return
	}
	published, err := h.svc.Publish(ctx, n)
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "Publish", err)
		return
	}
	writeJSON(w, http.StatusCreated, published)
}

func (h *NotificationHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	n, ok := h.decode(w, r)
	if !ok {
		return
	}
	draft, err := h.svc.CreateDraft(r.Context(), n)
	if err != nil {
		writeError(w, h.logger, "CreateDraft", err)
		return
	}
	writeJSON(w, http.StatusCreated, draft)
}

func (h *NotificationHandler) PublishDraft(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.StartServerSpan(r.Context(), "PublishDraft")
	defer span.End()

	id := chi.URLParam(r, "id")
	if err := h.authorize(r, id); err != nil {
		writeError(w, h.logger, "PublishDraft", err)
		return
	}
	n, err := h.svc.PublishDraft(ctx, id)
	if err != nil {
		h.tracer.RecordError(span, err)
		writeError(w, h.logger, "PublishDraft", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) Discard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.authorize(r, id); err != nil {
		writeError(w, h.logger, "Discard", err)
		return
	}
	if err := h.svc.DiscardDraft(r.Context(), id); err != nil {
		writeError(w, h.logger, "Discard", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "Get", err)
		return
	}
	p, _ := middleware.PrincipalFromContext(r.Context())
	if detail.CreatedBy != p.UserID && !p.HasRole(middleware.RoleAdmin) {
		// do not reveal notifications of other authors
		writeError(w, h.logger, "Get", appErr.NewNotFound("notification %s", id))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *NotificationHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	created, err := h.svc.Requeue(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "Requeue", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"entries_created": created})
}

func (h *NotificationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, h.logger, "ListMine", err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, h.logger, "ListMine", err)
		return
	}
	unread := r.URL.Query().Get("unread") == "true"

	items, err := h.svc.ListForUser(r.Context(), userID, unread, limit, offset)
	if err != nil {
		writeError(w, h.logger, "ListMine", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := h.svc.MarkRead(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, h.logger, "MarkRead", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	count, err := h.svc.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, "MarkAllRead", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": count})
}

// authorize lets the author or an admin act on a notification.
func (h *NotificationHandler) authorize(r *http.Request, id string) error {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if p.HasRole(middleware.RoleAdmin) {
		return nil
	}
	detail, err := h.svc.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if detail.CreatedBy != p.UserID {
		return appErr.NewNotFound("notification %s", id)
	}
	return nil
}
