package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samims/notifier/internal/directory"
	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/model"
)

func Test_recipientResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name      string
		target    model.TargetSpec
		setup     func(d *directory.MockDirectory)
		want      []string
		wantErr   bool
		isInvalid bool
	}{
		{
			name:   "explicit users are deduplicated and sorted",
			target: model.TargetSpec{Kind: model.TargetUsers, Values: []string{"b", "a", "b", ""}},
			want:   []string{"a", "b"},
		},
		{
			name:   "explicit users may be empty",
			target: model.TargetSpec{Kind: model.TargetUsers},
			want:   []string{},
		},
		{
			name:   "roles union with extra users",
			target: model.TargetSpec{Kind: model.TargetRoles, Values: []string{"manager", "cashier"}, Users: []string{"u3", "u1"}},
			setup: func(d *directory.MockDirectory) {
				d.On("UsersByRoles", ctx, []string{"manager", "cashier"}).Return([]string{"u1", "u2"}, nil)
			},
			want: []string{"u1", "u2", "u3"},
		},
		{
			name:   "branches",
			target: model.TargetSpec{Kind: model.TargetBranches, Values: []string{"north"}},
			setup: func(d *directory.MockDirectory) {
				d.On("UsersByBranches", ctx, []string{"north"}).Return([]string{"u9"}, nil)
			},
			want: []string{"u9"},
		},
		{
			name:   "no admins is not an error",
			target: model.TargetSpec{Kind: model.TargetAllAdmins},
			setup: func(d *directory.MockDirectory) {
				d.On("Admins", ctx).Return(nil, nil)
			},
			want: []string{},
		},
		{
			name:   "directory failure is surfaced",
			target: model.TargetSpec{Kind: model.TargetAllAdmins},
			setup: func(d *directory.MockDirectory) {
				d.On("Admins", ctx).Return(nil, errors.New("directory down"))
			},
			wantErr: true,
		},
		{
			name:      "roles without values",
			target:    model.TargetSpec{Kind: model.TargetRoles},
			wantErr:   true,
			isInvalid: true,
		},
		{
			name:      "unknown kind",
			target:    model.TargetSpec{Kind: "everyone"},
			wantErr:   true,
			isInvalid: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := directory.NewMockDirectory(t)
			if tt.setup != nil {
				tt.setup(dir)
			}
			got, err := NewRecipientResolver(dir, logger).Resolve(ctx, tt.target)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.isInvalid, appErr.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
