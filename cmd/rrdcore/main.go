// rrdcore manages round-robin databases through the rrdtool binary.
//
// It runs either as a long-lived service (rrdcore serve) that applies updates
// from MQTT and the HTTP API, or as a one-shot command line front end to the
// same typed rrdtool wrapper.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-rrd/internal/infotree"
	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rrd/internal/process"
	"github.com/nerrad567/gray-logic-rrd/internal/rrdtool"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// newCommandRunner builds the process that executes rrdtool. Tests replace it.
var newCommandRunner = func(cfg *config.Config) rrdtool.CommandRunner {
	return process.NewRunner(process.Config{
		Name:    "rrdtool",
		Binary:  cfg.RRDTool.Binary,
		Timeout: cfg.GetCommandTimeout(),
	})
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called explicitly above
	}
}

// cliOptions are the flags shared by every subcommand.
type cliOptions struct {
	configPath string
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag state
// out of package globals.
func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "rrdcore",
		Short:         "Manage round-robin databases through rrdtool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"path to the YAML configuration file (env RRDCORE_CONFIG, default "+defaultConfigPath+")")

	root.AddCommand(
		newServeCmd(opts),
		newCreateCmd(opts),
		newInfoCmd(opts),
		newFetchCmd(opts),
		newLastCmd(opts),
		newLastUpdateCmd(opts),
		newUpdateCmd(opts),
		newDumpCmd(opts),
		newHashPasswordCmd(),
		newVersionCmd(),
	)
	return root
}

// path returns the configuration file path: the --config flag, then
// RRDCORE_CONFIG, then the default.
func (o *cliOptions) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	if path := os.Getenv("RRDCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newManager builds a Manager over the configured binary and data directory.
func newManager(cfg *config.Config, runner rrdtool.CommandRunner) *rrdtool.Manager {
	tool := rrdtool.NewTool(runner, infotree.Options{
		NullSentinel: cfg.RRDTool.Parser.NullSentinel,
		Strict:       cfg.RRDTool.Parser.StrictNumbers,
	})
	return rrdtool.NewManager(tool, cfg.RRDTool.DataDir)
}
