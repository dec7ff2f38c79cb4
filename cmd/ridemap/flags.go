package main

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ridemap/ridemap/internal/config"
)

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	fs        *pflag.FlagSet
	configDir string
}

func newFlagSet(name string) *commonFlags {
	c := &commonFlags{fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	c.fs.StringVar(&c.configDir, "config", ".", "directory containing "+config.FileName)
	c.fs.String("log-level", "", "log level: debug, info, warn or error")
	return c
}

// parse parses args and loads the config file. A missing config file is not
// fatal: defaults apply and the error is returned as configErr for logging.
func (c *commonFlags) parse(args []string) (configErr error, err error) {
	if err := c.fs.Parse(args); err != nil {
		return nil, err
	}
	configErr = config.Load(c.configDir)

	bindings := map[string]string{
		"logLevel":      "log-level",
		"server.listen": "listen",
		"storage.type":  "storage",
		"osrm.endpoint": "osrm",
	}
	for key, name := range bindings {
		f := c.fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return configErr, fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return configErr, nil
}
