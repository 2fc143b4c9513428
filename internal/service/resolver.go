package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/samims/notifier/internal/directory"
	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/model"
)

// RecipientResolver expands a target specification into user ids.
type RecipientResolver interface {
	Resolve(ctx context.Context, target model.TargetSpec) ([]string, error)
}

type recipientResolver struct {
	dir    directory.Directory
	logger *slog.Logger
}

func NewRecipientResolver(dir directory.Directory, logger *slog.Logger) RecipientResolver {
	return &recipientResolver{
		dir:    dir,
		logger: logger.With("layer", "service", "component", "resolver"),
	}
}

// Resolve returns the sorted, deduplicated union of the selector result and
// target.Users. An empty result is valid.
func (r *recipientResolver) Resolve(ctx context.Context, target model.TargetSpec) ([]string, error) {
	if err := target.Validate(); err != nil {
		return nil, appErr.NewInvalid("%v", err)
	}

	var selected []string
	var err error
	switch target.Kind {
	case model.TargetUsers:
		selected = target.Values
	case model.TargetRoles:
		selected, err = r.dir.UsersByRoles(ctx, target.Values)
	case model.TargetBranches:
		selected, err = r.dir.UsersByBranches(ctx, target.Values)
	case model.TargetAllAdmins:
		selected, err = r.dir.Admins(ctx)
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "recipient resolution failed", "kind", target.Kind, "error", err)
		return nil, fmt.Errorf("resolve %s recipients: %w", target.Kind, err)
	}

	return uniqueIDs(selected, target.Users), nil
}

func uniqueIDs(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
