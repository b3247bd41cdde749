// SleepGrind runs screen-automation scripts.
//
// A script is a graph of screen states. At every step the engine looks at
// the screen, decides which successor state is showing, acts on it with a
// humanized pointer, and repeats until an end node wins.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/logging"
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

func main() {
	// Cancel on Ctrl+C or SIGTERM so a run stops between steps.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run builds the command tree and executes it with args.
// Separated from main for testability.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "sleepgrind",
		Short:         "Run screen-automation scripts",
		Long:          "SleepGrind walks a script graph, matching reference images on screen and driving a humanized pointer.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "configuration file (default $SLEEPGRIND_CONFIG or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newRunCmd(flags),
		newValidateCmd(flags),
		newScriptCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sleepgrind %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// getConfigPath returns the configuration file path.
// The --config flag wins over SLEEPGRIND_CONFIG, which wins over the default.
func (f *globalFlags) getConfigPath() string {
	if f.configPath != "" {
		return f.configPath
	}
	if path := os.Getenv("SLEEPGRIND_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// setup loads configuration and builds the logger from it.
// A missing file falls back to defaults unless the path was given explicitly.
func (f *globalFlags) setup() (*config.Config, *logging.Logger, error) {
	path := f.getConfigPath()

	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" || os.Getenv("SLEEPGRIND_CONFIG") != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}

	log := logging.New(cfg.Logging, version)
	log.Debug("configuration loaded", "path", path)
	return cfg, log, nil
}
