package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/compute"
	_ "github.com/gogpu/compute/backend/native"   // registers "native"
	_ "github.com/gogpu/compute/backend/rust"     // registers "rust"
	_ "github.com/gogpu/compute/backend/software" // registers "software"
	_ "github.com/gogpu/compute/backend/wgpucgo"  // registers "cgo"
	"github.com/gogpu/compute/cmd/computedemo/config"
)

// Execute runs the root command
func Execute() error {
	return newRootCmd().Execute()
}

// cli carries the state shared by the subcommands of one invocation.
type cli struct {
	cfgFile string
	v       *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:   "computedemo",
		Short: "Run GPU compute scenarios",
		Long: `computedemo dispatches a set of WGSL compute shaders through the compute
package and checks the results read back from the device.

Settings come from flags, COMPUTE_* environment variables and an optional
computedemo.yaml in the working directory.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is ./computedemo.yaml)")
	flags.String("backend", "", "backend to use (native, rust, cgo, software; empty picks the best)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	_ = c.v.BindPFlag("backend.name", flags.Lookup("backend"))
	_ = c.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("logging.format", flags.Lookup("log-format"))

	root.AddCommand(newRunCmd(c), newBackendsCmd())
	return root
}

// load reads the configuration and installs the configured logger.
func (c *cli) load(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadWith(c.v, c.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(w, cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	compute.SetLogger(log)
	return cfg, log, nil
}

func newLogger(w io.Writer, lc config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(lc.Level))); err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
