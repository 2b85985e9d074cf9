package vault

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"autotyped/internal/entry"
)

// Collection tracks every vault known to the daemon and notifies
// subscribers when one transitions from locked to open. The engine defers
// triggers on a fully locked collection and replays them on that signal.
type Collection struct {
	mu      sync.Mutex
	stores  []*Store
	subs    map[int]func()
	nextSub int
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{subs: make(map[int]func())}
}

// Add registers a store. Names must be unique across the collection.
func (c *Collection) Add(s *Store) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.stores {
		if existing.Name() == s.Name() {
			return fmt.Errorf("store %q already registered", s.Name())
		}
	}
	c.stores = append(c.stores, s)

	// A store created through Create arrives already open.
	if s.IsOpen() {
		defer c.notifyOpened()
	}
	return nil
}

// Remove closes and drops a store by name.
func (c *Collection) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.stores {
		if s.Name() == name {
			c.stores = append(c.stores[:i], c.stores[i+1:]...)
			return s.Close()
		}
	}
	return fmt.Errorf("store %q not registered", name)
}

// Store finds a registered store by name.
func (c *Collection) Store(name string) (*Store, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.stores {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Stores returns a snapshot of the registered stores.
func (c *Collection) Stores() []*Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Store, len(c.stores))
	copy(out, c.stores)
	return out
}

// HasOpen reports whether at least one store is unlocked.
func (c *Collection) HasOpen() bool {
	for _, s := range c.Stores() {
		if s.IsOpen() {
			return true
		}
	}
	return false
}

// Entries returns the union of entries across all open stores.
func (c *Collection) Entries() ([]*entry.Entry, error) {
	var out []*entry.Entry
	for _, s := range c.Stores() {
		if !s.IsOpen() {
			continue
		}
		entries, err := s.List()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", s.Name(), err)
		}
		out = append(out, entries...)
	}
	return out, nil
}

// Unlock opens a named store. Key derivation is deliberately slow, so the
// collection lock is not held across it.
func (c *Collection) Unlock(name, passphrase string) error {
	s, ok := c.Store(name)
	if !ok {
		return fmt.Errorf("store %q not registered", name)
	}
	wasOpen := s.IsOpen()
	if err := s.Unlock(passphrase); err != nil {
		return err
	}
	if !wasOpen {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.notifyOpened()
	}
	return nil
}

// Lock locks a named store.
func (c *Collection) Lock(name string) error {
	s, ok := c.Store(name)
	if !ok {
		return fmt.Errorf("store %q not registered", name)
	}
	s.Lock()
	return nil
}

// LockAll locks every store.
func (c *Collection) LockAll() {
	for _, s := range c.Stores() {
		s.Lock()
	}
}

// CloseAll closes every store and empties the collection.
func (c *Collection) CloseAll() error {
	c.mu.Lock()
	stores := c.stores
	c.stores = nil
	c.mu.Unlock()

	var firstErr error
	for _, s := range stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SubscribeOpened registers fn to run whenever a store transitions from
// locked to open. Notifications may coalesce or duplicate under concurrent
// unlocks; subscribers must re-check collection state. The returned cancel
// removes the subscription and is safe to call more than once.
func (c *Collection) SubscribeOpened(fn func()) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// notifyOpened runs subscribers on their own goroutines. Callers hold c.mu;
// the snapshot keeps subscriber work outside the lock.
func (c *Collection) notifyOpened() {
	snapshot := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		snapshot = append(snapshot, fn)
	}
	go func() {
		for _, fn := range snapshot {
			fn()
		}
	}()
}

// WatchDir watches a directory for vault files appearing or disappearing
// and keeps the collection in sync. New files register locked; removed
// files are dropped. Returns a stop function.
func (c *Collection) WatchDir(dir string, log *slog.Logger) (func(), error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return

			case event, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, Ext) {
					continue
				}
				name := strings.TrimSuffix(filepath.Base(event.Name), Ext)
				switch {
				case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
					if _, known := c.Store(name); known {
						continue
					}
					// A vault being written is incomplete until its meta
					// rows land; failures here resolve on a later event.
					s, err := OpenFile(event.Name)
					if err != nil {
						log.Debug("vault file not openable yet", "path", event.Name, "error", err)
						continue
					}
					if err := c.Add(s); err != nil {
						s.Close()
						continue
					}
					log.Info("vault discovered", "store", name, "path", event.Name)

				case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
					if err := c.Remove(name); err == nil {
						log.Info("vault removed", "store", name, "path", event.Name)
					}
				}

			case err, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				log.Warn("vault watch error", "error", err)
			}
		}
	}()

	return func() {
		close(done)
		fsWatcher.Close()
		wg.Wait()
	}, nil
}
