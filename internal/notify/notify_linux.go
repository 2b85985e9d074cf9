//go:build linux

package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Desktop notification constants, org.freedesktop.Notifications spec.
const (
	notifyService = "org.freedesktop.Notifications"
	notifyPath    = "/org/freedesktop/Notifications"
	notifyMethod  = "org.freedesktop.Notifications.Notify"

	notifyIcon = "dialog-password"

	// expireTimeout is the notification lifetime in milliseconds.
	expireTimeout = int32(5000)

	urgencyNormal = byte(1)
)

// sessionNotifier posts to the session bus. The connection is the shared
// process-wide one, so it is never closed here.
type sessionNotifier struct {
	conn *dbus.Conn
}

func newDesktop() (desktop, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &sessionNotifier{conn: conn}, nil
}

func (s *sessionNotifier) send(summary, body string) error {
	obj := s.conn.Object(notifyService, dbus.ObjectPath(notifyPath))
	call := obj.Call(notifyMethod, 0,
		appName,
		uint32(0), // replaces_id: always a fresh notification
		notifyIcon,
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgencyNormal)},
		expireTimeout,
	)
	if call.Err != nil {
		return fmt.Errorf("post notification: %w", call.Err)
	}
	return nil
}
