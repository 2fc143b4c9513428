package router

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samims/notifier/internal/config"
	"github.com/samims/notifier/internal/directory"
	"github.com/samims/notifier/internal/handler"
	"github.com/samims/notifier/internal/middleware"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/push"
	"github.com/samims/notifier/internal/service"
	"github.com/samims/notifier/internal/storage/storagetest"
)

const testSecret = "router-test-secret"

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storagetest.New(t)

	dir := directory.NewStaticDirectory([]directory.User{
		{ID: "alice", Roles: []string{"manager"}},
		{ID: "bob", Roles: []string{"cashier"}},
		{ID: "root", Admin: true},
	})
	queue := service.NewQueueBuilder(store, 3, logger)
	notifications := service.NewNotificationService(store, service.NewRecipientResolver(dir, logger), service.NewFanOutEngine(store, queue, logger), logger)
	subscriptions := service.NewSubscriptionService(store, logger)
	worker := service.NewDeliveryWorker(store, push.NewLogSender(logger), nil, config.WorkerConfig{
		BatchSize: 10, Limit: 2, MaxAttempts: 3,
		RetryBaseDelay: time.Minute, RetryMaxDelay: time.Hour, ClaimTimeout: time.Minute,
	}, logger)
	runner := service.NewJobRunner(store, logger)
	runner.RegisterDefaults(service.Jobs{Worker: worker})

	h := NewRouter(Handlers{
		Notifications: handler.NewNotificationHandler(notifications, logger),
		Subscriptions: handler.NewSubscriptionHandler(subscriptions, logger),
		Jobs:          handler.NewJobHandler(runner, logger),
		Health:        handler.NewHealthHandler(service.NewHealthService(map[string]service.Pinger{"db": store}), logger),
	}, testSecret)
	return &testServer{t: t, handler: h}
}

func (s *testServer) token(user string, roles ...string) string {
	s.t.Helper()
	claims := middleware.Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(s.t, err)
	return signed
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)

	rec := s.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"db":"ok"`)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/metrics", "", nil).Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/me/notifications", "/me/subscriptions", "/jobs/runs"} {
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, path, "", nil).Code, path)
	}
}

func TestPublishDeliverAndRead(t *testing.T) {
	s := newTestServer(t)
	alice := s.token("alice")
	admin := s.token("root", middleware.RoleAdmin)

	rec := s.do(http.MethodPost, "/subscriptions", alice, map[string]any{
		"device_id":   "phone",
		"device_type": "mobile",
		"endpoint":    "https://push.example/alice",
		"keys":        map[string]string{"p256dh": "pk", "auth": "secret"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sub := decode[model.Subscription](t, rec)
	assert.Equal(t, "alice", sub.UserID)

	rec = s.do(http.MethodPost, "/notifications", admin, map[string]any{
		"title":    "Inventory",
		"body":     "Count the stock room before close",
		"priority": "high",
		"target":   map[string]any{"kind": "roles", "values": []string{"manager"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	n := decode[model.Notification](t, rec)
	assert.Equal(t, model.StatusPublished, n.Status)
	assert.Equal(t, 1, n.TotalRecipients)
	assert.Equal(t, "root", n.CreatedBy)

	rec = s.do(http.MethodPost, "/jobs/deliver?limit=5", s.token("cron", middleware.RoleSystem), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.Summary{Processed: 1, Succeeded: 1}, decode[model.Summary](t, rec))

	rec = s.do(http.MethodGet, "/notifications/"+n.ID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[service.NotificationDetail](t, rec)
	require.Len(t, detail.Deliveries, 1)
	assert.Equal(t, model.QueueSent, detail.Deliveries[0].Status)

	// alice did not author it
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/notifications/"+n.ID, alice, nil).Code)

	rec = s.do(http.MethodGet, "/me/notifications?unread=true", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inbox := decode[[]model.InboxItem](t, rec)
	require.Len(t, inbox, 1)
	assert.Equal(t, model.RecipientDelivered, inbox[0].RecipientStatus)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPut, "/me/notifications/"+n.ID+"/read", alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPut, "/me/notifications/"+n.ID+"/read", s.token("bob"), nil).Code)

	rec = s.do(http.MethodGet, "/me/notifications?unread=true", alice, nil)
	assert.Empty(t, decode[[]model.InboxItem](t, rec))

	rec = s.do(http.MethodGet, "/jobs/runs?job=deliver", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.JobRun](t, rec), 1)
}

func TestDraftRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.token("alice")

	rec := s.do(http.MethodPost, "/notifications/drafts", alice, map[string]any{
		"title":  "Team lunch",
		"body":   "Friday noon",
		"target": map[string]any{"kind": "explicit-users", "values": []string{"bob"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	draft := decode[model.Notification](t, rec)
	assert.Equal(t, model.StatusDraft, draft.Status)

	// only the author or an admin may act on the draft
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/notifications/"+draft.ID+"/publish", s.token("bob"), nil).Code)

	rec = s.do(http.MethodPost, "/notifications/"+draft.ID+"/publish", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/notifications/"+draft.ID+"/publish", alice, nil).Code)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodDelete, "/notifications/"+draft.ID, alice, nil).Code)

	rec = s.do(http.MethodPost, "/notifications/drafts", alice, map[string]any{
		"title":  "Scratch",
		"body":   "never sent",
		"target": map[string]any{"kind": "all-admins"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	scratch := decode[model.Notification](t, rec)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/notifications/"+scratch.ID, alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/notifications/"+scratch.ID, alice, nil).Code)
}

func TestValidationAndRoles(t *testing.T) {
	s := newTestServer(t)
	alice := s.token("alice")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{name: "missing title", method: http.MethodPost, path: "/notifications", token: alice,
			body: map[string]any{"body": "b", "target": map[string]any{"kind": "all-admins"}}, want: http.StatusBadRequest},
		{name: "unknown target", method: http.MethodPost, path: "/notifications", token: alice,
			body: map[string]any{"title": "t", "body": "b", "target": map[string]any{"kind": "everyone"}}, want: http.StatusBadRequest},
		{name: "bad subscription endpoint", method: http.MethodPost, path: "/subscriptions", token: alice,
			body: map[string]any{"device_id": "d", "endpoint": "not a url"}, want: http.StatusBadRequest},
		{name: "requeue needs admin", method: http.MethodPost, path: "/notifications/x/requeue", token: alice, want: http.StatusForbidden},
		{name: "jobs need system role", method: http.MethodPost, path: "/jobs/deliver", token: alice, want: http.StatusForbidden},
		{name: "unknown job", method: http.MethodPost, path: "/jobs/nope", token: s.token("cron", middleware.RoleSystem), want: http.StatusNotFound},
		{name: "bad limit", method: http.MethodPost, path: "/jobs/deliver?limit=lots", token: s.token("cron", middleware.RoleSystem), want: http.StatusBadRequest},
		{name: "stats need admin", method: http.MethodGet, path: "/subscriptions/stats", token: alice, want: http.StatusForbidden},
		{name: "unknown subscription", method: http.MethodDelete, path: "/subscriptions/missing", token: alice, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/notifications", bytes.NewBufferString("{broken"))
	req.Header.Set("Authorization", "Bearer "+alice)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscriptionRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.token("alice")

	rec := s.do(http.MethodPost, "/subscriptions", alice, map[string]any{
		"device_id": "laptop", "device_type": "desktop", "endpoint": "https://push.example/laptop",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	sub := decode[model.Subscription](t, rec)

	rec = s.do(http.MethodGet, "/me/subscriptions", alice, nil)
	assert.Len(t, decode[[]model.Subscription](t, rec), 1)

	// bob cannot see or remove alice's device
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/subscriptions/"+sub.ID, s.token("bob"), nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/subscriptions/"+sub.ID, alice, nil).Code)

	rec = s.do(http.MethodGet, "/me/subscriptions", alice, nil)
	assert.Empty(t, decode[[]model.Subscription](t, rec))

	rec = s.do(http.MethodGet, "/subscriptions/stats", s.token("root", middleware.RoleAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.SubscriptionStats{Total: 1, Inactive: 1}, decode[model.SubscriptionStats](t, rec))
}
