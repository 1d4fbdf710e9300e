// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, logger setup, the endpoint registry and
// the run journal to reduce boilerplate across commands.
package appctx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/aiomigrate/internal/config"
	"github.com/lherron/aiomigrate/internal/journal"
	"github.com/lherron/aiomigrate/internal/render"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Endpoints addresses the configured endpoints by id
	Endpoints *config.Registry

	Logger *slog.Logger

	// Renderer writes command output in the selected format
	Renderer *render.Renderer

	// Journal is the run history (nil if not requested or disabled)
	Journal *journal.Journal
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.Journal != nil {
		a.Journal.Close()
		a.Journal = nil
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsJournal opens the run journal unless --no-journal is set
	NeedsJournal bool

	// ForceJournal opens the journal even when --no-journal is set
	ForceJournal bool
}

// DefaultOptions returns options for commands that only need config.
func DefaultOptions() Options {
	return Options{}
}

// WithJournal returns options that open the run journal.
func WithJournal() Options {
	return Options{NeedsJournal: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// The journal is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{}

	cfg, err := config.Load(flagString(cmd, "config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg
	app.Endpoints = config.NewRegistry(cfg)

	level := cfg.LogLevel
	if flagBool(cmd, "verbose") {
		level = "debug"
	}
	app.Logger = NewLogger(cmd.ErrOrStderr(), level)

	output := cfg.Output
	if o := flagString(cmd, "output"); o != "" {
		output = o
	}
	format, err := render.ParseFormat(output)
	if err != nil {
		return nil, err
	}
	app.Renderer = render.NewRenderer(cmd.OutOrStdout(), render.Options{
		Format:    format,
		Porcelain: flagBool(cmd, "porcelain"),
	})

	if opts.ForceJournal || (opts.NeedsJournal && !flagBool(cmd, "no-journal")) {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal %s: %w", cfg.JournalPath, err)
		}
		app.Journal = j
	}

	return app, nil
}

// NewLogger returns a text logger on w at the named level. Unknown level
// names fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

func flagString(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}

func flagBool(cmd *cobra.Command, name string) bool {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String() == "true"
	}
	return false
}
