package service

import (
	"context"
	"fmt"
	"time"
)

// Pinger is anything whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService reports the state of critical dependencies.
type HealthService interface {
	Check(ctx context.Context) map[string]string
}

type healthService struct {
	deps map[string]Pinger
}

// NewHealthService checks each named dependency with a short timeout.
func NewHealthService(deps map[string]Pinger) HealthService {
	return &healthService{deps: deps}
}

func (s *healthService) Check(ctx context.Context) map[string]string {
	status := make(map[string]string, len(s.deps))
	for name, dep := range s.deps {
		depCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := dep.Ping(depCtx); err != nil {
			status[name] = fmt.Sprintf("error: %s", err.Error())
		} else {
			status[name] = "ok"
		}
		cancel()
	}
	return status
}
