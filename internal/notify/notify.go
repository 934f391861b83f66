// ABOUTME: Notification sinks for session status changes
// ABOUTME: A narrow Notifier interface with log, terminal, multi, and fallback implementations

package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one user-facing message.
type Notification struct {
	Title    string
	Message  string
	Severity Severity
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications as structured log lines.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a Notifier backed by logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

// Notify logs n at a level matching its severity.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	level := slog.LevelInfo
	switch n.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	l.logger.Log(ctx, level, "[NOTIFICATION] "+n.Title, "message", n.Message, "severity", string(n.Severity))
	return nil
}

// TerminalNotifier prints colorized one-line notifications to a writer.
type TerminalNotifier struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewTerminalNotifier writes to out.
func NewTerminalNotifier(out io.Writer) *TerminalNotifier {
	return &TerminalNotifier{out: out, now: time.Now}
}

// Notify prints n.
func (t *TerminalNotifier) Notify(ctx context.Context, n Notification) error {
	if t.out == nil {
		return errors.New("terminal notifier has no output")
	}

	var badge string
	switch n.Severity {
	case SeveritySuccess:
		badge = color.New(color.FgGreen, color.Bold).Sprint("✔")
	case SeverityWarning:
		badge = color.YellowString("!")
	case SeverityError:
		badge = color.New(color.FgRed, color.Bold).Sprint("✖")
	default:
		badge = color.CyanString("•")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.out, "%s %s %s %s\n",
		color.HiBlackString(t.now().Format("15:04:05")),
		badge,
		color.New(color.Bold).Sprint(n.Title),
		n.Message,
	)
	return err
}

// fallback degrades to a log line when its primary sink is missing or fails.
type fallback struct {
	primary Notifier
	log     *LogNotifier
	logger  *slog.Logger
}

// WithFallback wraps primary so Notify never fails: a nil primary or a
// delivery error results in the notification being logged instead.
func WithFallback(primary Notifier, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &fallback{
		primary: primary,
		log:     NewLogNotifier(logger),
		logger:  logger.With("component", "notify"),
	}
}

func (f *fallback) Notify(ctx context.Context, n Notification) (err error) {
	if f.primary == nil {
		return f.log.Notify(ctx, n)
	}

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("notification sink panicked", "panic", r, "title", n.Title)
			err = f.log.Notify(ctx, n)
		}
	}()

	if perr := f.primary.Notify(ctx, n); perr != nil {
		f.logger.Warn("failed to deliver notification", "error", perr, "title", n.Title)
		return f.log.Notify(ctx, n)
	}
	return nil
}
