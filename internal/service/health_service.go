package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Health statuses reported for the process and each dependency.
const (
	HealthOK   = "ok"
	HealthDown = "unavailable"
)

type healthPinger interface {
	Ping(ctx context.Context) error
}

// HealthReport summarises dependency reachability.
type HealthReport struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
	Failed       []string          `json:"failed,omitempty"`
}

// Healthy reports whether every dependency answered.
func (r HealthReport) Healthy() bool {
	return r.Status == HealthOK
}

// HealthService pings the registered dependencies concurrently.
type HealthService struct {
	checks  map[string]healthPinger
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthService constructs the service; each ping gets timeout.
func NewHealthService(timeout time.Duration, logger *zap.Logger) *HealthService {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthService{checks: make(map[string]healthPinger), timeout: timeout, logger: logger}
}

// Register adds a dependency under name. Call before serving traffic.
func (s *HealthService) Register(name string, p healthPinger) {
	s.checks[name] = p
}

// Check pings every dependency.
func (s *HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{Status: HealthOK, Dependencies: make(map[string]string, len(s.checks))}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, p := range s.checks {
		wg.Add(1)
		go func(name string, p healthPinger) {
			defer wg.Done()
			pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			err := p.Ping(pingCtx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("dependency unhealthy", zap.String("dependency", name), zap.Error(err))
				report.Dependencies[name] = HealthDown
				report.Failed = append(report.Failed, name)
				return
			}
			report.Dependencies[name] = HealthOK
		}(name, p)
	}
	wg.Wait()

	if len(report.Failed) > 0 {
		sort.Strings(report.Failed)
		report.Status = HealthDown
	}
	return report
}
