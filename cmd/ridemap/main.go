// Command ridemap serves ride-request map sessions over HTTP and websockets.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// BuildDate and Version can be set at build time via ldflags.
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

// AppName names log files, the GELF facility and the OTel service default.
const AppName = "ridemap"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "ridemap:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch strings.ToLower(cmd) {
	case "serve":
		return runServe(args)
	case "route":
		return runRoute(args, out)
	case "trips":
		return runTrips(args, out)
	case "healthcheck":
		return runHealthcheck(args, out)
	case "version":
		fmt.Fprintf(out, "%s %s (built %s)\n", AppName, Version, BuildDate)
		return nil
	default:
		return fmt.Errorf("unknown command %q (want serve, route, trips, healthcheck or version)", cmd)
	}
}
