package session

import (
	"context"
	"errors"
	"time"

	"github.com/ridemap/ridemap/internal/observability"
	"github.com/ridemap/ridemap/internal/route"
	"github.com/ridemap/ridemap/pkg/core"
)

// startRouteLocked issues a new route request token for the current marker
// pair and resolves it in the background. The previous request, if any, is
// canceled and its response will be discarded.
func (c *Controller) startRouteLocked(s *Session) {
	from, okFrom := s.surface.Marker(core.RoleUser)
	to, okTo := s.surface.Marker(core.RoleDestination)
	if !okFrom || !okTo {
		return
	}

	s.cancelRouteLocked()
	token := s.token

	var ctx context.Context
	var cancel context.CancelFunc
	if c.deps.RouteTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.deps.RouteTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	s.cancel = cancel
	s.routing = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()

		start := time.Now()
		r, err := c.deps.Resolver.Resolve(ctx, from, to)
		c.applyRoute(s, token, r, err, time.Since(start))
	}()
}

// applyRoute installs a route response if its token is still the latest.
// A failed or empty response leaves the displayed route untouched.
func (c *Controller) applyRoute(s *Session, token uint64, r core.Route, err error, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := c.deps.Logger.With("sessionId", s.ID, "token", token)

	if token != s.token {
		c.deps.Metrics.IncOutcome(observability.OutcomeStale)
		c.deps.Recorder.RecordRoute(s.ID, observability.OutcomeStale, elapsed, 0)
		log.Debug("discarding stale route response", "latest", s.token)
		return
	}
	s.routing = false
	s.cancel = nil

	outcome := observability.OutcomeApplied
	switch {
	case err == nil:
		r.Token = token
		if setErr := s.surface.SetRoute(r); setErr != nil {
			outcome = observability.OutcomeNoRoute
			s.notes.Error(msgNoRoute)
			break
		}
		if fitErr := s.surface.FitPath(r.Path); fitErr != nil {
			log.Warn("failed to fit view to route", "error", fitErr)
		}
		s.notes.Success(msgRouteShown)
	case errors.Is(err, route.ErrNoRoute):
		outcome = observability.OutcomeNoRoute
		s.notes.Error(msgNoRoute)
	case c.ctx.Err() != nil:
		outcome = observability.OutcomeCanceled
		log.Debug("route request aborted on shutdown")
	default:
		outcome = observability.OutcomeFailed
		s.notes.Error(msgRouteError)
		log.Error("route request failed", "error", err)
	}

	c.deps.Metrics.IncOutcome(outcome)
	c.deps.Recorder.RecordRoute(s.ID, outcome, elapsed, r.DistanceMeters)
	c.publishLocked(s)
}
