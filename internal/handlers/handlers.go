// Package handlers binds client commands to the session controller.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ridemap/ridemap/internal/dispatcher"
	"github.com/ridemap/ridemap/internal/geo"
	"github.com/ridemap/ridemap/internal/geolocation"
	"github.com/ridemap/ridemap/internal/session"
	"github.com/ridemap/ridemap/internal/util"
)

// Command names accepted from clients.
const (
	CmdLocationCurrent = ":LOCATION:CURRENT:"
	CmdDestinationSet  = ":DESTINATION:SET:"
	CmdLocationsClear  = ":LOCATIONS:CLEAR:"
	CmdRideRequest     = ":RIDE:REQUEST:"
	CmdAccountUpdate   = ":ACCOUNT:UPDATE:"
	CmdTripsList       = ":TRIPS:LIST:"
	CmdStateGet        = ":STATE:GET:"
)

// ErrInvalidArgs marks a command whose arguments could not be parsed.
var ErrInvalidArgs = errors.New("invalid command arguments")

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Controller *session.Controller
	Logger     *slog.Logger
}

// Service translates dispatcher events into controller operations.
type Service struct {
	deps Dependencies
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// RegisterHandlers registers every client command with the dispatcher.
// Handlers run synchronously since callers need the resulting snapshot.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdLocationCurrent, s.handleLocationCurrent, dispatcher.Logged())
	d.Register(CmdDestinationSet, s.handleDestinationSet, dispatcher.Logged())
	d.Register(CmdLocationsClear, s.handleLocationsClear, dispatcher.Logged())
	d.Register(CmdRideRequest, s.handleRideRequest, dispatcher.Logged())
	d.Register(CmdAccountUpdate, s.handleAccountUpdate, dispatcher.Logged())
	d.Register(CmdTripsList, s.handleTripsList)
	d.Register(CmdStateGet, s.handleStateGet)
}

func (s *Service) session(e dispatcher.Event) (*session.Session, error) {
	return s.deps.Controller.Session(e.SessionID)
}

func (s *Service) handleLocationCurrent(e dispatcher.Event) (any, error) {
	sess, err := s.session(e)
	if err != nil {
		return nil, err
	}
	args := cleanArgs(e.Args)
	report, err := geolocation.FromArgs(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if err := s.deps.Controller.ResolveCurrentLocation(context.Background(), sess, report); err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

func (s *Service) handleDestinationSet(e dispatcher.Event) (any, error) {
	sess, err := s.session(e)
	if err != nil {
		return nil, err
	}
	args := cleanArgs(e.Args)
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: destination needs [lat, lon], got %d args", ErrInvalidArgs, len(args))
	}
	pos, err := geo.ParseLatLonPair(args[0], args[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if err := s.deps.Controller.SetDestinationFromClick(sess, pos); err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

func (s *Service) handleLocationsClear(e dispatcher.Event) (any, error) {
	sess, err := s.session(e)
	if err != nil {
		return nil, err
	}
	s.deps.Controller.ClearLocations(sess)
	return sess.Snapshot(), nil
}

func (s *Service) handleRideRequest(e dispatcher.Event) (any, error) {
	sess, err := s.session(e)
	if err != nil {
		return nil, err
	}
	pickup, destination := argAt(e.Args, 0), argAt(e.Args, 1)
	return s.deps.Controller.RequestRide(sess, pickup, destination)
}

func (s *Service) handleAccountUpdate(e dispatcher.Event) (any, error) {
	sess, err := s.session(e)
	if err != nil {
		return nil, err
	}
	username, email := argAt(e.Args, 0), argAt(e.Args, 1)
	return s.deps.Controller.UpdateAccount(sess, username, email)
}

func (s *Service) handleTripsList(e dispatcher.Event) (any, error) {
	sess, err := s.session(e)
	if err != nil {
		return nil, err
	}
	return s.deps.Controller.TripHistory(sess)
}

func (s *Service) handleStateGet(e dispatcher.Event) (any, error) {
	sess, err := s.session(e)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

func cleanArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = util.CleanArg(a)
	}
	return out
}

// argAt returns the cleaned argument at i, or "" when absent so that form
// validation reports it as missing.
func argAt(args []string, i int) string {
	if i >= len(args) {
		return ""
	}
	return util.CleanArg(args[i])
}
