// Package geolocation adapts client-side position reports to a Locator.
package geolocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ridemap/ridemap/internal/geo"
	"github.com/ridemap/ridemap/pkg/core"
)

var (
	ErrUnsupported         = errors.New("geolocation is not supported by this device")
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("location information is unavailable")
	ErrTimeout             = errors.New("location request timed out")
)

// Error codes reported by the browser geolocation API.
const (
	CodeUnsupported         = 0
	CodePermissionDenied    = 1
	CodePositionUnavailable = 2
	CodeTimeout             = 3
)

// Locator produces a single current position.
type Locator interface {
	CurrentPosition(ctx context.Context) (core.Coordinate, error)
}

// Report is one geolocation callback result from a client: either a position
// or an error code with an optional message.
type Report struct {
	Position core.Coordinate
	Code     int
	Message  string
	Failed   bool
}

// Position returns a successful report.
func Position(c core.Coordinate) Report {
	return Report{Position: c}
}

// Failure returns a failed report with the given code.
func Failure(code int, message string) Report {
	return Report{Code: code, Message: message, Failed: true}
}

// ErrorForCode maps a geolocation error code to its sentinel.
func ErrorForCode(code int) error {
	switch code {
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodePositionUnavailable:
		return ErrPositionUnavailable
	case CodeTimeout:
		return ErrTimeout
	default:
		return ErrUnsupported
	}
}

// CurrentPosition implements Locator.
func (r Report) CurrentPosition(ctx context.Context) (core.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return core.Coordinate{}, err
	}
	if r.Failed {
		err := ErrorForCode(r.Code)
		if r.Message != "" {
			return core.Coordinate{}, fmt.Errorf("%w: %s", err, r.Message)
		}
		return core.Coordinate{}, err
	}
	if err := geo.Validate(r.Position); err != nil {
		return core.Coordinate{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	return r.Position, nil
}

// Unsupported is a Locator for clients without a geolocation API.
type Unsupported struct{}

// CurrentPosition implements Locator.
func (Unsupported) CurrentPosition(context.Context) (core.Coordinate, error) {
	return core.Coordinate{}, ErrUnsupported
}
