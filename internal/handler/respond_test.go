package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	appErr "github.com/samims/notifier/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: appErr.NewNotFound("notification %s", "n1"), want: http.StatusNotFound},
		{name: "invalid", err: appErr.NewInvalid("title is required"), want: http.StatusBadRequest},
		{name: "not draft", err: fmt.Errorf("publish: %w", appErr.ErrNotDraft), want: http.StatusConflict},
		{name: "conflict", err: appErr.NewConflict("duplicate"), want: http.StatusConflict},
		{name: "unauthorized", err: appErr.ErrUnauthorized, want: http.StatusUnauthorized},
		{name: "forbidden", err: appErr.ErrForbidden, want: http.StatusForbidden},
		{name: "internal", err: errors.New("connection refused"), want: http.StatusInternalServerError},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, logger, "test", tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{query: "", want: 5},
		{query: "limit=12", want: 12},
		{query: "limit=-1", wantErr: true},
		{query: "limit=ten", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			got, err := queryInt(r, "limit", 5)
			if tt.wantErr {
				assert.True(t, appErr.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
