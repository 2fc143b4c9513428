// Package source reads reminder candidates from the task and finance services.
package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/pkg/httpclient"
)

// TaskSource lists assignments past their deadline that are not completed.
type TaskSource interface {
	ListOverdueAssignments(ctx context.Context, now time.Time) ([]model.OverdueAssignment, error)
}

// ScheduleSource lists the next occurrences of active recurring schedules
// falling within windowDays of now.
type ScheduleSource interface {
	ListUpcomingOccurrences(ctx context.Context, now time.Time, windowDays int) ([]model.Occurrence, error)
}

type HTTPTaskSource struct {
	client *httpclient.Client
}

func NewHTTPTaskSource(baseURL string, timeout time.Duration) *HTTPTaskSource {
	return &HTTPTaskSource{client: httpclient.New(baseURL, timeout)}
}

func (s *HTTPTaskSource) ListOverdueAssignments(ctx context.Context, now time.Time) ([]model.OverdueAssignment, error) {
	var resp struct {
		Assignments []model.OverdueAssignment `json:"assignments"`
	}
	query := url.Values{"before": {now.UTC().Format(time.RFC3339)}}
	if err := s.client.GetJSON(ctx, "/assignments/overdue", query, &resp); err != nil {
		return nil, fmt.Errorf("list overdue assignments: %w", err)
	}
	return resp.Assignments, nil
}

type HTTPScheduleSource struct {
	client *httpclient.Client
}

func NewHTTPScheduleSource(baseURL string, timeout time.Duration) *HTTPScheduleSource {
	return &HTTPScheduleSource{client: httpclient.New(baseURL, timeout)}
}

func (s *HTTPScheduleSource) ListUpcomingOccurrences(ctx context.Context, now time.Time, windowDays int) ([]model.Occurrence, error) {
	var resp struct {
		Occurrences []model.Occurrence `json:"occurrences"`
	}
	query := url.Values{
		"from": {now.UTC().Format(time.DateOnly)},
		"days": {strconv.Itoa(windowDays)},
	}
	if err := s.client.GetJSON(ctx, "/recurring-schedules/upcoming", query, &resp); err != nil {
		return nil, fmt.Errorf("list upcoming occurrences: %w", err)
	}
	return resp.Occurrences, nil
}
