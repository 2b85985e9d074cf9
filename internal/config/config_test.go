package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if cfg.Engine.DefaultSequence == "" {
		t.Error("default sequence should not be empty")
	}
	if !strings.Contains(cfg.Logging.FilePath, "autotyped") {
		t.Errorf("log path should contain autotyped: %s", cfg.Logging.FilePath)
	}

	// The shipped defaults must validate.
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if path == "" {
		t.Error("ConfigPath returned empty string")
	}
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
	if !strings.Contains(path, "autotyped") {
		t.Errorf("config path should contain autotyped: %s", path)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}

	if cfg.Engine.DefaultSequence != DefaultConfig().Engine.DefaultSequence {
		t.Error("missing file should yield defaults")
	}
}

func TestLoadTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	content := `
[vaults]
dirs = ["/tmp/vaults"]
auto_lock_minutes = 15

[engine]
default_sequence = "{PASSWORD}{ENTER}"
hide_host_settle_ms = 400

[hotkey]
enabled = true
chord = "ctrl+shift+v"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Vaults.Dirs) != 1 || cfg.Vaults.Dirs[0] != "/tmp/vaults" {
		t.Errorf("unexpected vault dirs: %v", cfg.Vaults.Dirs)
	}
	if cfg.Vaults.AutoLockMinutes != 15 {
		t.Errorf("expected auto_lock_minutes 15, got %d", cfg.Vaults.AutoLockMinutes)
	}
	if cfg.Engine.DefaultSequence != "{PASSWORD}{ENTER}" {
		t.Errorf("unexpected default sequence: %s", cfg.Engine.DefaultSequence)
	}
	if cfg.Engine.HideHostSettleMs != 400 {
		t.Errorf("expected hide_host_settle_ms 400, got %d", cfg.Engine.HideHostSettleMs)
	}
	if cfg.Hotkey.Chord != "ctrl+shift+v" {
		t.Errorf("unexpected chord: %s", cfg.Hotkey.Chord)
	}

	// Untouched sections keep their defaults.
	if cfg.Injection.PasteSettleMs != DefaultConfig().Injection.PasteSettleMs {
		t.Error("unset injection fields should keep defaults")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	content := `{"engine": {"default_sequence": "{USERNAME}{ENTER}"}, "ui": {"picker_enabled": false}}`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.DefaultSequence != "{USERNAME}{ENTER}" {
		t.Errorf("unexpected default sequence: %s", cfg.Engine.DefaultSequence)
	}
	if cfg.UI.PickerEnabled {
		t.Error("picker_enabled should be false")
	}
}

func TestLoadAutodetect(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "autotyped.conf")

	content := `
[hotkey]
chord = "ctrl+alt+a"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Hotkey.Chord != "ctrl+alt+a" {
		t.Errorf("unexpected chord: %s", cfg.Hotkey.Chord)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUTOTYPE_HOTKEY", "ctrl+alt+x")
	t.Setenv("AUTOTYPE_LOG_LEVEL", "debug")
	t.Setenv("AUTOTYPE_SOCKET_PATH", "/tmp/override.sock")

	cfg, err := Load("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Hotkey.Chord != "ctrl+alt+x" {
		t.Errorf("env chord override not applied: %s", cfg.Hotkey.Chord)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("env level override not applied: %s", cfg.Logging.Level)
	}
	if cfg.IPC.SocketPath != "/tmp/override.sock" {
		t.Errorf("env socket override not applied: %s", cfg.IPC.SocketPath)
	}
}

func TestDataDirEnvOverride(t *testing.T) {
	t.Setenv("AUTOTYPE_DATA_DIR", "/tmp/autotyped-test")
	if DataDir() != "/tmp/autotyped-test" {
		t.Errorf("expected env data dir, got %s", DataDir())
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "bad version",
			mutate: func(c *Config) { c.Version = 99 },
			field:  "version",
		},
		{
			name:   "empty sequence",
			mutate: func(c *Config) { c.Engine.DefaultSequence = "" },
			field:  "engine.default_sequence",
		},
		{
			name:   "malformed sequence",
			mutate: func(c *Config) { c.Engine.DefaultSequence = "{UNTERMINATED" },
			field:  "engine.default_sequence",
		},
		{
			name:   "bad chord",
			mutate: func(c *Config) { c.Hotkey.Chord = "ctrl+alt" },
			field:  "hotkey.chord",
		},
		{
			name:   "settle out of range",
			mutate: func(c *Config) { c.Engine.HideHostSettleMs = 60000 },
			field:  "engine.hide_host_settle_ms",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
			field:  "logging.level",
		},
		{
			name:   "file output without path",
			mutate: func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" },
			field:  "logging.file_path",
		},
		{
			name:   "bad permissions",
			mutate: func(c *Config) { c.IPC.Permissions = "rw-rw----" },
			field:  "ipc.permissions",
		},
		{
			name:   "negative auto lock",
			mutate: func(c *Config) { c.Vaults.AutoLockMinutes = -1 },
			field:  "vaults.auto_lock_minutes",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error should mention %s: %v", tc.field, err)
			}
		})
	}
}

func TestDisabledHotkeySkipsChordValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hotkey.Enabled = false
	cfg.Hotkey.Chord = "not a chord"
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled hotkey should skip chord validation: %v", err)
	}
}

func TestDisabledIPCSkipsValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IPC.Enabled = false
	cfg.IPC.Permissions = "banana"
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled IPC should skip socket validation: %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()

	for _, name := range []string{"config.toml", "config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(tmpDir, name)

			cfg := DefaultConfig()
			cfg.Hotkey.Chord = "ctrl+shift+p"
			cfg.Engine.DefaultSequence = "{PASSWORD}{TAB}"
			cfg.Vaults.Dirs = []string{"/tmp/a", "/tmp/b"}

			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Hotkey.Chord != "ctrl+shift+p" {
				t.Errorf("chord did not survive round trip: %s", loaded.Hotkey.Chord)
			}
			if loaded.Engine.DefaultSequence != "{PASSWORD}{TAB}" {
				t.Errorf("sequence did not survive round trip: %s", loaded.Engine.DefaultSequence)
			}
			if len(loaded.Vaults.Dirs) != 2 {
				t.Errorf("vault dirs did not survive round trip: %v", loaded.Vaults.Dirs)
			}
		})
	}
}

func TestSaveConfigPermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := SaveConfig(DefaultConfig(), path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %o", info.Mode().Perm())
	}
}

func TestLoadOrCreate(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected created=true for missing file")
	}
	if cfg == nil {
		t.Fatal("LoadOrCreate returned nil config")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist: %v", err)
	}

	// Second call loads the existing file.
	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected created=false for existing file")
	}
}

func TestLoaderReload(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := os.WriteFile(path, []byte("[hotkey]\nchord = \"ctrl+alt+t\"\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path)
	defer loader.Close()

	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var changed *Config
	loader.OnChange(func(c *Config) { changed = c })

	if err := os.WriteFile(path, []byte("[hotkey]\nchord = \"ctrl+alt+z\"\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if loader.Config().Hotkey.Chord != "ctrl+alt+z" {
		t.Errorf("reload did not pick up new chord: %s", loader.Config().Hotkey.Chord)
	}
	if changed == nil {
		t.Fatal("OnChange callback not invoked")
	}
	if changed.Hotkey.Chord != "ctrl+alt+z" {
		t.Errorf("callback got stale config: %s", changed.Hotkey.Chord)
	}
}

func TestLoaderReloadRejectsInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := os.WriteFile(path, []byte("[hotkey]\nchord = \"ctrl+alt+t\"\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path)
	defer loader.Close()
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// A config that fails validation must not replace the current one.
	if err := os.WriteFile(path, []byte("[hotkey]\nchord = \"ctrl+alt\"\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := loader.Reload(); err == nil {
		t.Error("expected reload of invalid config to fail")
	}

	if loader.Config().Hotkey.Chord != "ctrl+alt+t" {
		t.Errorf("invalid reload replaced config: %s", loader.Config().Hotkey.Chord)
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vaults.Dirs = []string{"/one"}

	clone := cfg.Clone()
	clone.Vaults.Dirs[0] = "/two"
	clone.Hotkey.Chord = "ctrl+alt+q"

	if cfg.Vaults.Dirs[0] != "/one" {
		t.Error("clone shares vault dirs slice with original")
	}
	if cfg.Hotkey.Chord == "ctrl+alt+q" {
		t.Error("clone shares scalar fields with original")
	}
}

func TestMerge(t *testing.T) {
	dst := DefaultConfig()
	src := &Config{}
	src.Engine.DefaultSequence = "{PASSWORD}{ENTER}"
	src.Logging.Level = "debug"

	merged := Merge(dst, src)
	if merged.Engine.DefaultSequence != "{PASSWORD}{ENTER}" {
		t.Errorf("merge did not apply sequence: %s", merged.Engine.DefaultSequence)
	}
	if merged.Logging.Level != "debug" {
		t.Errorf("merge did not apply level: %s", merged.Logging.Level)
	}
	// Zero values in src leave dst untouched.
	if merged.Injection.PasteSettleMs != dst.Injection.PasteSettleMs {
		t.Error("merge clobbered unset paste settle")
	}
	if merged.Hotkey.Chord != dst.Hotkey.Chord {
		t.Error("merge clobbered unset chord")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.HideHostSettleMs = 250
	cfg.Engine.FocusHostDelayMs = 100
	cfg.Injection.PasteSettleMs = 50
	cfg.Vaults.AutoLockMinutes = 30

	if cfg.Engine.HideHostSettle() != 250*time.Millisecond {
		t.Errorf("unexpected hide host settle: %v", cfg.Engine.HideHostSettle())
	}
	if cfg.Engine.FocusHostDelay() != 100*time.Millisecond {
		t.Errorf("unexpected focus host delay: %v", cfg.Engine.FocusHostDelay())
	}
	if cfg.Injection.PasteSettle() != 50*time.Millisecond {
		t.Errorf("unexpected paste settle: %v", cfg.Injection.PasteSettle())
	}
	if cfg.Vaults.AutoLock() != 30*time.Minute {
		t.Errorf("unexpected auto lock: %v", cfg.Vaults.AutoLock())
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Vaults.Dirs = []string{filepath.Join(tmpDir, "vaults")}
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(tmpDir, "logs", "autotyped.log")
	cfg.IPC.SocketPath = filepath.Join(tmpDir, "run", "autotyped.sock")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{
		filepath.Join(tmpDir, "vaults"),
		filepath.Join(tmpDir, "logs"),
		filepath.Join(tmpDir, "run"),
	} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("directory %s should exist: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := expandPath("~/vaults"); got != filepath.Join(home, "vaults") {
		t.Errorf("expected expanded home path, got %s", got)
	}
	if got := expandPath("/absolute/path"); got != "/absolute/path" {
		t.Errorf("absolute path should pass through, got %s", got)
	}
	if got := expandPath("~"); got != home {
		t.Errorf("bare tilde should expand to home, got %s", got)
	}
}

func TestFindConfigFormats(t *testing.T) {
	formats := SupportedConfigFormats()
	if len(formats) == 0 {
		t.Fatal("no supported formats")
	}
	seen := map[string]bool{}
	for _, f := range formats {
		seen[f] = true
	}
	for _, want := range []string{"toml", "json", "yaml"} {
		if !seen[want] {
			t.Errorf("missing format %s", want)
		}
	}
}
