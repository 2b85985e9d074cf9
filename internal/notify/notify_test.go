package notify

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubDesktop struct {
	sent [][2]string
	err  error
}

func (s *stubDesktop) send(summary, body string) error {
	s.sent = append(s.sent, [2]string{summary, body})
	return s.err
}

func TestNotifyAlwaysLogs(t *testing.T) {
	var buf bytes.Buffer
	n := &Notifier{log: slog.New(slog.NewTextHandler(&buf, nil))}

	n.Notify("Auto-type failed", "no matching entry")

	out := buf.String()
	assert.Contains(t, out, "Auto-type failed")
	assert.Contains(t, out, "no matching entry")
}

func TestNotifyDeliversToDesktop(t *testing.T) {
	var buf bytes.Buffer
	desk := &stubDesktop{}
	n := &Notifier{log: slog.New(slog.NewTextHandler(&buf, nil)), desk: desk}

	n.Notify("Auto-type", "Focus the target window first.")

	assert.Equal(t, [][2]string{{"Auto-type", "Focus the target window first."}}, desk.sent)
	assert.Contains(t, buf.String(), "Auto-type")
}

func TestNotifyDesktopFailureStillLogs(t *testing.T) {
	var buf bytes.Buffer
	desk := &stubDesktop{err: errors.New("bus gone")}
	n := &Notifier{log: slog.New(slog.NewTextHandler(&buf, nil)), desk: desk}

	n.Notify("Auto-type", "body")

	out := buf.String()
	assert.Contains(t, out, "desktop notification failed")
	assert.Contains(t, out, "body")
}
