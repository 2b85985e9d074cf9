package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"gioui.org/app"

	"autotyped/internal/autotype"
	"autotyped/internal/config"
	"autotyped/internal/executor"
	"autotyped/internal/hotkey"
	"autotyped/internal/ipc"
	"autotyped/internal/logging"
	"autotyped/internal/native"
	"autotyped/internal/notify"
	"autotyped/internal/picker"
	"autotyped/internal/vault"
)

// daemon owns the wired-up service: engine, vaults, hotkey, picker UI and
// IPC socket. Everything is built in newDaemon; run only waits and tears
// down.
type daemon struct {
	cfg    *config.Config
	loader *config.Loader
	logger *logging.Logger
	log    *slog.Logger
	audit  *logging.AuditLogger
	crash  *logging.CrashHandler
	stores *vault.Collection
	engine *autotype.Engine
	ui     *picker.UI
	server *ipc.Server

	stopFns []func()

	quit     chan struct{}
	quitOnce sync.Once
}

func newDaemon(cfg *config.Config, cfgPath string) (*daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}

	d := &daemon{cfg: cfg, quit: make(chan struct{})}

	logger, err := logging.New(loggingConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	logging.SetDefault(logger)
	d.logger = logger
	d.log = logger.Logger

	d.crash = logging.DefaultCrashHandler()
	d.crash.SetVersion(Version)

	d.audit, err = logging.NewAuditLogger(logging.DefaultAuditConfig())
	if err != nil {
		d.log.Warn("audit log unavailable", "error", err)
	}

	if err := d.openStores(); err != nil {
		return nil, err
	}
	d.buildEngine()

	if err := d.startHotkey(); err != nil {
		// A hotkey that cannot register is degraded service, not a
		// startup failure; IPC triggers still work.
		d.log.Error("hotkey unavailable", "chord", cfg.Hotkey.Chord, "error", err)
	}
	d.watchConfig(cfgPath)
	if err := d.startIPC(); err != nil {
		d.teardown("startup failed")
		return nil, err
	}
	d.startAutoLock()

	if d.audit != nil {
		d.audit.LogStartup(context.Background(), Version, map[string]interface{}{
			"stores": len(d.stores.Stores()),
			"hotkey": cfg.Hotkey.Enabled,
		})
	}
	d.log.Info("autotyped started",
		"version", Version,
		"stores", len(d.stores.Stores()),
		"socket", cfg.IPC.SocketPath,
		"chord", cfg.Hotkey.Chord)

	return d, nil
}

// run blocks until shutdown. With the picker enabled the gio event loop
// must own the main goroutine, so the signal wait moves to a helper
// goroutine and teardown ends the process explicitly.
func (d *daemon) run() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	wait := func() {
		select {
		case sig := <-sigChan:
			d.log.Info("signal received", "signal", sig.String())
		case <-d.quit:
		}
		d.teardown("shutdown")
	}

	if d.ui != nil {
		go func() {
			defer d.crash.RecoverGoroutine()
			wait()
			os.Exit(0)
		}()
		app.Main()
		return
	}
	wait()
}

// requestShutdown is the IPC shutdown path.
func (d *daemon) requestShutdown() {
	d.quitOnce.Do(func() { close(d.quit) })
}

func (d *daemon) teardown(reason string) {
	for i := len(d.stopFns) - 1; i >= 0; i-- {
		d.stopFns[i]()
	}
	d.stores.CloseAll()

	if d.audit != nil {
		d.audit.LogShutdown(context.Background(), reason)
		d.audit.Close()
	}
	d.log.Info("autotyped stopped", "reason", reason)
	d.logger.Close()
}

// openStores registers the configured vault files and scans the vault
// directories. Everything registers locked; unlocking happens over IPC or
// through the unlock window.
func (d *daemon) openStores() error {
	d.stores = vault.NewCollection()

	register := func(path string) {
		s, err := vault.OpenFile(path)
		if err != nil {
			d.log.Warn("skipping vault file", "path", path, "error", err)
			return
		}
		if err := d.stores.Add(s); err != nil {
			d.log.Warn("skipping vault file", "path", path, "error", err)
			s.Close()
			return
		}
		d.log.Debug("vault registered", "store", s.Name(), "path", path)
	}

	for _, f := range d.cfg.Vaults.Files {
		register(f)
	}
	for _, dir := range d.cfg.Vaults.Dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+vault.Ext))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if _, known := d.stores.Store(strings.TrimSuffix(filepath.Base(m), vault.Ext)); known {
				continue
			}
			register(m)
		}
		if d.cfg.Vaults.WatchDirs {
			stop, err := d.stores.WatchDir(dir, d.log)
			if err != nil {
				d.log.Warn("cannot watch vault directory", "dir", dir, "error", err)
				continue
			}
			d.stopFns = append(d.stopFns, stop)
		}
	}
	return nil
}

// buildEngine wires the orchestration engine and, when enabled, the picker
// UI that doubles as the engine's host window handle.
func (d *daemon) buildEngine() {
	deps := autotype.Deps{
		Log:     d.log,
		Adapter: native.NewRobot(),
		Typist:  native.NewRobot(),
		Clip:    native.SystemClipboard{},
		Stores:  d.stores,
		Executor: executor.Config{
			InterKeyDelay: d.cfg.Injection.InterKeyDelay(),
			PasteSettle:   d.cfg.Injection.PasteSettle(),
		},
	}

	if d.cfg.UI.PickerEnabled {
		d.ui = picker.New(d.log, d.unlockStore, d.lockedStores)
		deps.Host = d.ui
		deps.Picker = d.ui
	}
	if d.cfg.UI.Notifications {
		deps.Notifier = notify.New(d.log)
	}

	d.engine = autotype.New(autotype.Config{
		DefaultSequence: d.cfg.Engine.DefaultSequence,
		HideHostSettle:  d.cfg.Engine.HideHostSettle(),
		FocusHostDelay:  d.cfg.Engine.FocusHostDelay(),
		MatchTitle:      d.cfg.Engine.MatchTitle,
		MatchURL:        d.cfg.Engine.MatchURL,
		Unmask:          d.cfg.Engine.UnmaskLogs,
	}, deps)

	if d.ui != nil {
		// Closing the unlock window without unlocking cancels a deferred
		// trigger, same as navigating away from the prompt.
		d.ui.OnUnlockDismissed = d.engine.CancelPending
	}
}

// unlockStore backs the unlock window. The audit record and the
// store-opened event match what an IPC unlock produces.
func (d *daemon) unlockStore(name string, passphrase []byte) error {
	if err := d.stores.Unlock(name, string(passphrase)); err != nil {
		return err
	}
	if s, ok := d.stores.Store(name); ok && d.audit != nil {
		d.audit.LogStoreOpened(context.Background(), s.Path())
	}
	d.broadcast(&ipc.Event{
		Type: ipc.EventStoreOpened,
		Data: map[string]any{"store": name},
	})
	return nil
}

func (d *daemon) lockedStores() []string {
	var names []string
	for _, s := range d.stores.Stores() {
		if !s.IsOpen() {
			names = append(names, s.Name())
		}
	}
	return names
}

func (d *daemon) startHotkey() error {
	if !d.cfg.Hotkey.Enabled {
		return nil
	}
	hk, err := hotkey.New(d.cfg.Hotkey.Chord, d.log, func() {
		defer d.crash.RecoverGoroutine()
		d.engine.HandleTrigger(context.Background(), autotype.Trigger{Source: "hotkey"})
	})
	if err != nil {
		return err
	}
	stop, err := hk.Start()
	if err != nil {
		return err
	}
	d.stopFns = append(d.stopFns, stop)
	return nil
}

func (d *daemon) startIPC() error {
	if !d.cfg.IPC.Enabled {
		return nil
	}

	handler := ipc.NewDaemonHandler(ipc.DaemonHandlerConfig{
		Version:  Version,
		Engine:   d.engine,
		Stores:   d.stores,
		Loader:   d.loader,
		Audit:    d.audit,
		Log:      d.log,
		Shutdown: d.requestShutdown,
	})

	serverCfg := ipc.DefaultServerConfig(d.cfg.IPC.SocketPath)
	serverCfg.Version = Version
	serverCfg.Log = d.log
	if d.cfg.IPC.MaxConnections > 0 {
		serverCfg.MaxConnections = d.cfg.IPC.MaxConnections
	}
	if d.cfg.IPC.TimeoutSec > 0 {
		serverCfg.ReadTimeout = time.Duration(d.cfg.IPC.TimeoutSec) * time.Second
	}

	server, err := ipc.NewServer(serverCfg, handler)
	if err != nil {
		return fmt.Errorf("create ipc server: %w", err)
	}
	handler.SetBroadcaster(server.Broadcast)

	if err := server.Start(); err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	d.server = server
	d.stopFns = append(d.stopFns, func() { server.Stop() })
	return nil
}

// watchConfig reloads the file on change. Engine, hotkey and IPC settings
// are bound at construction and need a restart; the reload exists so edits
// are validated immediately and picked up by the next start, and so the
// get-config IPC request reflects the file.
func (d *daemon) watchConfig(cfgPath string) {
	d.loader = config.NewLoader(cfgPath)
	if _, err := d.loader.Load(); err != nil {
		d.log.Warn("config loader init failed", "error", err)
		return
	}
	d.loader.OnChange(func(cfg *config.Config) {
		d.log.Info("configuration file changed; engine, hotkey and ipc settings apply on restart")
		if d.audit != nil {
			d.audit.LogConfigChange(context.Background(), "config_file", "", "reloaded from disk")
		}
		d.broadcast(&ipc.Event{Type: ipc.EventConfigChanged})
	})
	if err := d.loader.Watch(); err != nil {
		d.log.Warn("config watch failed", "error", err)
	}
	d.stopFns = append(d.stopFns, func() { d.loader.Close() })
}

// startAutoLock relocks every open store after the configured idle window.
// The timer restarts whenever a store is unlocked.
func (d *daemon) startAutoLock() {
	interval := d.cfg.Vaults.AutoLock()
	if interval <= 0 {
		return
	}

	timer := time.NewTimer(interval)
	cancelSub := d.stores.SubscribeOpened(func() { timer.Reset(interval) })
	done := make(chan struct{})

	go func() {
		defer d.crash.RecoverGoroutine()
		for {
			select {
			case <-done:
				return
			case <-timer.C:
				d.lockExpired()
				timer.Reset(interval)
			}
		}
	}()

	d.stopFns = append(d.stopFns, func() {
		cancelSub()
		timer.Stop()
		close(done)
	})
}

func (d *daemon) lockExpired() {
	if !d.stores.HasOpen() {
		return
	}
	d.log.Info("auto-lock interval elapsed, locking stores")
	for _, s := range d.stores.Stores() {
		if !s.IsOpen() {
			continue
		}
		if d.audit != nil {
			d.audit.LogStoreLocked(context.Background(), s.Path(), "auto-lock")
		}
		d.broadcast(&ipc.Event{
			Type: ipc.EventStoreLocked,
			Data: map[string]any{"store": s.Name()},
		})
	}
	d.stores.LockAll()
}

func (d *daemon) broadcast(ev *ipc.Event) {
	if d.server == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	d.server.Broadcast(ev)
}

// loggingConfig maps the config file's logging section onto the logging
// package's config.
func loggingConfig(cfg *config.Config) *logging.Config {
	lc := logging.DefaultConfig()

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		lc.Level = logging.LevelDebug
	case "warn":
		lc.Level = logging.LevelWarn
	case "error":
		lc.Level = logging.LevelError
	default:
		lc.Level = logging.LevelInfo
	}
	if strings.EqualFold(cfg.Logging.Format, "json") {
		lc.Format = logging.FormatJSON
	} else {
		lc.Format = logging.FormatText
	}
	if cfg.Logging.Output != "" {
		lc.Output = cfg.Logging.Output
	}
	if cfg.Logging.FilePath != "" {
		lc.FilePath = cfg.Logging.FilePath
	}
	if cfg.Logging.MaxSizeMB > 0 {
		lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	}
	if cfg.Logging.MaxAgeDays > 0 {
		lc.MaxAge = cfg.Logging.MaxAgeDays
	}
	if cfg.Logging.MaxBackups > 0 {
		lc.MaxBackups = cfg.Logging.MaxBackups
	}
	lc.Compress = cfg.Logging.Compress
	return lc
}
