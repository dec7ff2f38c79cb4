package geolocation

import (
	"fmt"

	"github.com/ridemap/ridemap/internal/geo"
	"github.com/ridemap/ridemap/internal/util"
)

// FromArgs builds a Report from command arguments: either [lat, lon] or
// ["error", code, message]. An empty argument list means the client has no
// geolocation API.
func FromArgs(args []string) (Report, error) {
	if len(args) == 0 {
		return Failure(CodeUnsupported, ""), nil
	}
	if args[0] == "error" {
		if len(args) < 2 {
			return Report{}, fmt.Errorf("error report needs a code, got %d args", len(args))
		}
		code, err := util.ParseInt(args[1])
		if err != nil {
			return Report{}, fmt.Errorf("invalid error code %q: %w", args[1], err)
		}
		msg := ""
		if len(args) > 2 {
			msg = args[2]
		}
		return Failure(code, msg), nil
	}
	if len(args) != 2 {
		return Report{}, fmt.Errorf("position needs [lat, lon], got %d args", len(args))
	}
	c, err := geo.ParseLatLonPair(args[0], args[1])
	if err != nil {
		return Report{}, err
	}
	return Position(c), nil
}
