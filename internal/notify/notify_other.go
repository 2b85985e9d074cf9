//go:build !linux

package notify

import "fmt"

func newDesktop() (desktop, error) {
	return nil, fmt.Errorf("no desktop notification backend on this platform")
}
