// Package monitor periodically reports service status and prunes idle
// sessions.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ridemap/ridemap/internal/session"
)

// Status is one periodic service report.
type Status struct {
	Time            time.Time `json:"time"`
	Uptime          string    `json:"uptime"`
	ActiveSessions  int       `json:"activeSessions"`
	RoutingSessions int       `json:"routingSessions"`
	LiveClients     int       `json:"liveClients"`
	Pruned          int       `json:"pruned"`
	ExpiredRoutes   int       `json:"expiredRoutes"`
}

// ClientCounter reports live websocket clients of a session.
type ClientCounter interface {
	Clients(sessionID string) int
}

// CachePruner drops expired entries from a cache.
type CachePruner interface {
	Prune() int
}

// StatusRecorder receives every report, e.g. for time-series storage.
type StatusRecorder interface {
	RecordStatus(st Status)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Controller *session.Controller
	Clients    ClientCounter
	Cache      CachePruner
	Recorder   StatusRecorder
	Logger     *slog.Logger
	// StatusPath, when set, is rewritten with the latest report as JSON.
	StatusPath string
	Interval   time.Duration
	MaxIdle    time.Duration
}

// Service manages status monitoring
type Service struct {
	deps    Dependencies
	started time.Time

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps, started: time.Now()}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Collect prunes idle sessions and expired cached routes and builds a report.
func (s *Service) Collect(now time.Time) Status {
	st := Status{Time: now, Uptime: now.Sub(s.started).Round(time.Second).String()}
	if s.deps.MaxIdle > 0 {
		st.Pruned = s.deps.Controller.PruneIdle(s.deps.MaxIdle)
	}
	if s.deps.Cache != nil {
		st.ExpiredRoutes = s.deps.Cache.Prune()
	}

	reg := s.deps.Controller.Registry()
	for _, id := range reg.IDs() {
		sess, err := reg.Get(id)
		if err != nil {
			continue
		}
		st.ActiveSessions++
		if sess.Snapshot().Routing {
			st.RoutingSessions++
		}
		if s.deps.Clients != nil {
			st.LiveClients += s.deps.Clients.Clients(id)
		}
	}
	return st
}

// Report collects a status and hands it to the status file and recorder.
func (s *Service) Report(now time.Time) (Status, error) {
	st := s.Collect(now)
	if st.Pruned > 0 {
		s.deps.Logger.Info("Pruned idle sessions", "count", st.Pruned)
	}
	if s.deps.Recorder != nil {
		s.deps.Recorder.RecordStatus(st)
	}
	if s.deps.StatusPath == "" {
		return st, nil
	}
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return st, err
	}
	if err := os.WriteFile(s.deps.StatusPath, out, 0644); err != nil {
		return st, fmt.Errorf("failed to write status file: %w", err)
	}
	return st, nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	if s.deps.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", s.deps.Interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopChan, s.done)
	return nil
}

func (s *Service) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if _, err := s.Report(now); err != nil {
				s.deps.Logger.Error("Status report failed", "error", err)
			}
		}
	}
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
