// Package cli implements the messenger command line client.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/omochice/taskflow-chat/internal/config"
	"github.com/omochice/taskflow-chat/internal/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

// App carries what every command needs. It is filled by the root command
// before any subcommand runs.
type App struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	readPassword func() (string, error)

	configPath string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

// Option configures the App behind a root command.
type Option func(*App)

// WithIO replaces stdin, stdout and stderr.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
		a.errOut = errOut
	}
}

// WithPasswordReader replaces the masked password prompt.
func WithPasswordReader(fn func() (string, error)) Option {
	return func(a *App) { a.readPassword = fn }
}

// NewRootCmd builds the messenger command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	a := &App{
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "messenger",
		Short: "TaskFlow direct messaging client",
		Long: `messenger talks to the TaskFlow backend: it logs in, lists and searches
conversations, and runs an interactive chat with live updates.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (default is the user config dir)")

	root.AddCommand(
		a.newLoginCmd(),
		a.newLogoutCmd(),
		a.newConversationsCmd(),
		a.newSearchCmd(),
		a.newFriendsCmd(),
		a.newChatCmd(),
	)
	return root
}

// Execute runs the messenger command. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	a.logger = logger.New(level, cfg.Log.Format, a.errOut)
	return nil
}
