// Package notify surfaces auto-type outcomes to the user. Desktop
// notifications are best effort; every message also lands in the log, which
// is the only channel on platforms without a session bus.
package notify

import (
	"log/slog"
)

const appName = "autotyped"

// desktop is the platform notification backend.
type desktop interface {
	send(summary, body string) error
}

// Notifier fans a message out to the desktop and the log. Bodies must
// already be redacted; the notifier does not inspect them.
type Notifier struct {
	log  *slog.Logger
	desk desktop
}

// New connects the platform backend. A missing session bus is not an error,
// messages just stay in the log.
func New(log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	n := &Notifier{log: log}
	desk, err := newDesktop()
	if err != nil {
		log.Debug("desktop notifications unavailable", "error", err)
		return n
	}
	n.desk = desk
	return n
}

// Notify delivers one message. Never blocks on user interaction.
func (n *Notifier) Notify(summary, body string) {
	if n.desk != nil {
		if err := n.desk.send(summary, body); err != nil {
			n.log.Warn("desktop notification failed", "summary", summary, "error", err)
		}
	}
	n.log.Info("notify", "summary", summary, "body", body)
}
