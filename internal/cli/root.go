package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version.
// This is typically called by the main package during initialization with values
// injected via ldflags at build time.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the termview CLI and returns an error if any command fails.
// This is the main entry point for the CLI application. The provided context
// carries cancellation from signal handling in main.
//
// The function sets up the root command with all subcommands (show,
// convert, routes, graph, cache), configures logging based on the
// --verbose flag, and executes the command tree.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext.
func Execute(ctx context.Context) error {
	var verbose bool
	var configPath string

	root := &cobra.Command{
		Use:          "termview",
		Short:        "Termview displays images and rich content in the terminal",
		Long:         `Termview converts data between terminal display formats and renders images inline using the sixel, kitty or iTerm graphics protocols, picking the best protocol the terminal supports.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("termview %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(newShowCmd(&configPath))
	root.AddCommand(newConvertCmd(&configPath))
	root.AddCommand(newRoutesCmd(&configPath))
	root.AddCommand(newGraphCmd(&configPath))
	root.AddCommand(newCacheCmd(&configPath))

	return root.ExecuteContext(ctx)
}
