// Package logging sets up c8ylp's console + rotating file logging, as
// specified in spec §6.6 and §7. It follows the teacher's own
// slog.New(slog.NewTextHandler(...)) idiom (see cmd/c8ylp/main.go's
// predecessor in the teacher repo), extended with a rotating file sink
// and color-aware console output.
package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMB  = 10
	maxBackups = 5
)

// Config controls where and how verbosely c8ylp logs.
type Config struct {
	// Dir is the log directory. Defaults to ~/.c8ylp when empty, per
	// C8YLP_LOG_DIR (spec §6.4).
	Dir string

	// Verbose enables debug-level console logging and disables console
	// colorization (spec §7: "plain text when verbose, since logs then
	// carry the detail").
	Verbose bool
}

// New builds the process-wide logger: a colorized (when appropriate)
// console handler on stderr, fanned out to a rotating JSON file handler
// under Config.Dir when that directory can be created/written.
func New(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	console := newConsoleHandler(os.Stderr, level, cfg.Verbose)

	dir := cfg.Dir
	if dir == "" {
		dir = defaultLogDir()
	}

	fileHandler, err := newFileHandler(dir, level)
	if err != nil {
		// Logging setup itself must not be fatal — fall back to console-only.
		return slog.New(console)
	}

	return slog.New(&fanoutHandler{handlers: []slog.Handler{console, fileHandler}})
}

func defaultLogDir() string {
	if dir := os.Getenv("C8YLP_LOG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".c8ylp"
	}
	return filepath.Join(home, ".c8ylp")
}

func newFileHandler(dir string, level slog.Level) (slog.Handler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "localproxy.log"),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   false,
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), nil
}

// consoleHandler wraps slog.NewTextHandler, colorizing the rendered line by
// record level when colorization is appropriate (a real terminal, and not
// verbose mode — spec §7).
type consoleHandler struct {
	slog.Handler
	colorize bool
}

func newConsoleHandler(w *os.File, level slog.Level, verbose bool) slog.Handler {
	colorize := !verbose && isatty.IsTerminal(w.Fd())
	return &consoleHandler{
		Handler:  slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
		colorize: colorize,
	}
}

var (
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F76C7C"))
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CD57B"))
)

func (h *consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.colorize {
		return h.Handler.Handle(ctx, r)
	}

	switch {
	case r.Level >= slog.LevelError:
		r.Message = styleError.Render(r.Message)
	case r.Level == slog.LevelInfo && isSuccess(r):
		r.Message = styleSuccess.Render(r.Message)
	}
	return h.Handler.Handle(ctx, r)
}

// isSuccess checks for a success=true attribute, used by call sites that
// want the green "success" styling spec §7 asks for (e.g. "connected",
// "listening on localhost:port").
func isSuccess(r slog.Record) bool {
	found := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "success" && a.Value.Kind() == slog.KindBool && a.Value.Bool() {
			found = true
			return false
		}
		return true
	})
	return found
}

// fanoutHandler dispatches every record to all of its handlers.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

// Redact masks all but the first and last character of a secret for safe
// logging (spec §9(d): credentials must never be logged in full, even at
// debug level).
func Redact(secret string) string {
	if len(secret) <= 2 {
		if secret == "" {
			return ""
		}
		return "*"
	}
	masked := make([]byte, len(secret))
	for i := range masked {
		masked[i] = '*'
	}
	masked[0] = secret[0]
	masked[len(masked)-1] = secret[len(secret)-1]
	return string(masked)
}
