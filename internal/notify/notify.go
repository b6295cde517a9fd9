// Package notify holds the user-visible alert collaborator and the error
// boundary used for every best-effort side effect.
package notify

import (
	"fmt"
	"time"

	"github.com/matheus3301/rentchat/internal/bus"
	"go.uber.org/zap"
)

type Severity string

const (
	Info    Severity = "info"
	Warning Severity = "warning"
	Error   Severity = "error"
)

// Options refine how an alert is shown.
type Options struct {
	ConversationID string
	// Sticky alerts stay until replaced, e.g. the connectivity banner.
	Sticky bool
}

// Alert is the payload of notify.display.
type Alert struct {
	Message  string
	Severity Severity
	Options  Options
	At       time.Time
}

// Displayer shows alerts to the user.
type Displayer interface {
	Display(message string, severity Severity, opts Options)
}

// BusDisplayer publishes alerts as notify.display events; the TUI flash
// line and `rentchatctl watch` render them.
type BusDisplayer struct {
	Bus *bus.Bus
}

func (d BusDisplayer) Display(message string, severity Severity, opts Options) {
	now := time.Now()
	d.Bus.Publish(bus.Event{
		Kind:           bus.NotifyDisplay,
		ConversationID: opts.ConversationID,
		Timestamp:      now,
		Payload:        Alert{Message: message, Severity: severity, Options: opts, At: now},
	})
}

// FireAndForget runs fn on its own goroutine. Errors and panics are logged
// and go nowhere else: the caller's outcome never depends on fn.
func FireAndForget(logger *zap.Logger, name string, fn func() error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("side effect panicked", zap.String("effect", name), zap.String("panic", fmt.Sprint(r)))
			}
		}()
		if err := fn(); err != nil {
			logger.Warn("side effect failed", zap.String("effect", name), zap.Error(err))
		}
	}()
}
