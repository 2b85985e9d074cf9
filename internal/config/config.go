// Package config handles configuration loading, validation, and management
// for autotyped.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Vaults configures which credential stores are opened and watched.
	Vaults VaultsConfig `toml:"vaults" json:"vaults" yaml:"vaults"`

	// Engine configures matching and the run pipeline.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Hotkey configures the global trigger chord.
	Hotkey HotkeyConfig `toml:"hotkey" json:"hotkey" yaml:"hotkey"`

	// Injection configures keystroke timing.
	Injection InjectionConfig `toml:"injection" json:"injection" yaml:"injection"`

	// UI configures the picker and notifications.
	UI UIConfig `toml:"ui" json:"ui" yaml:"ui"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`
}

// VaultsConfig holds credential store configuration.
type VaultsConfig struct {
	// Dirs are directories scanned and watched for store files.
	Dirs []string `toml:"dirs" json:"dirs" yaml:"dirs"`

	// Files are explicit store files opened at startup.
	Files []string `toml:"files" json:"files" yaml:"files"`

	// WatchDirs enables live discovery of stores appearing in Dirs.
	WatchDirs bool `toml:"watch_dirs" json:"watch_dirs" yaml:"watch_dirs"`

	// AutoLockMinutes relocks open stores after this many minutes.
	// 0 disables automatic locking.
	AutoLockMinutes int `toml:"auto_lock_minutes" json:"auto_lock_minutes" yaml:"auto_lock_minutes"`
}

// EngineConfig holds matching and pipeline configuration.
type EngineConfig struct {
	// DefaultSequence is used by entries without their own template.
	DefaultSequence string `toml:"default_sequence" json:"default_sequence" yaml:"default_sequence"`

	// MatchTitle enables the title-substring candidate heuristic.
	MatchTitle bool `toml:"match_title" json:"match_title" yaml:"match_title"`

	// MatchURL enables the URL-host candidate heuristic.
	MatchURL bool `toml:"match_url" json:"match_url" yaml:"match_url"`

	// HideHostSettleMs is the pause after hiding our own window before
	// injection starts.
	HideHostSettleMs int `toml:"hide_host_settle_ms" json:"hide_host_settle_ms" yaml:"hide_host_settle_ms"`

	// FocusHostDelayMs is the pause before raising our window for a
	// deferred trigger.
	FocusHostDelayMs int `toml:"focus_host_delay_ms" json:"focus_host_delay_ms" yaml:"focus_host_delay_ms"`

	// UnmaskLogs logs resolved sequences verbatim. Development only.
	UnmaskLogs bool `toml:"unmask_logs" json:"unmask_logs" yaml:"unmask_logs"`
}

// HotkeyConfig holds the global trigger chord.
type HotkeyConfig struct {
	// Enabled determines whether the global chord is registered.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Chord is the trigger combination, e.g. "ctrl+alt+t".
	Chord string `toml:"chord" json:"chord" yaml:"chord"`
}

// InjectionConfig holds keystroke timing configuration.
type InjectionConfig struct {
	// InterKeyDelayMs is the pause between characters of a literal.
	InterKeyDelayMs int `toml:"inter_key_delay_ms" json:"inter_key_delay_ms" yaml:"inter_key_delay_ms"`

	// PasteSettleMs is the pause after a paste chord.
	PasteSettleMs int `toml:"paste_settle_ms" json:"paste_settle_ms" yaml:"paste_settle_ms"`
}

// UIConfig holds picker and notification configuration.
type UIConfig struct {
	// PickerEnabled shows the selection window for ambiguous matches.
	// With the picker disabled, ambiguous triggers are dropped.
	PickerEnabled bool `toml:"picker_enabled" json:"picker_enabled" yaml:"picker_enabled"`

	// Notifications enables desktop notifications for failures.
	Notifications bool `toml:"notifications" json:"notifications" yaml:"notifications"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of rotated log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether rotated logs are gzipped.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	// Enabled determines whether the IPC server is started.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the path to the Unix socket (or named pipe on
	// Windows).
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// Permissions is the Unix socket mode (e.g. "0600").
	Permissions string `toml:"permissions" json:"permissions" yaml:"permissions"`

	// MaxConnections is the maximum concurrent connections.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// TimeoutSec is the per-connection timeout.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// DefaultConfig returns a configuration with the shipped defaults.
func DefaultConfig() *Config {
	dataDir := DataDir()

	return &Config{
		Version: Version,
		Vaults: VaultsConfig{
			Dirs:            []string{filepath.Join(dataDir, "vaults")},
			Files:           []string{},
			WatchDirs:       true,
			AutoLockMinutes: 30,
		},
		Engine: EngineConfig{
			DefaultSequence:  "{USERNAME}{TAB}{PASSWORD}{ENTER}",
			MatchTitle:       true,
			MatchURL:         true,
			HideHostSettleMs: 250,
			FocusHostDelayMs: 100,
			UnmaskLogs:       false,
		},
		Hotkey: HotkeyConfig{
			Enabled: true,
			Chord:   "ctrl+alt+t",
		},
		Injection: InjectionConfig{
			InterKeyDelayMs: 0,
			PasteSettleMs:   50,
		},
		UI: UIConfig{
			PickerEnabled: true,
			Notifications: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(PlatformLogDir(), "autotyped.log"),
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     defaultSocketPath(),
			Permissions:    "0600",
			MaxConnections: 10,
			TimeoutSec:     30,
		},
	}
}

// Duration views of the millisecond fields.

func (e EngineConfig) HideHostSettle() time.Duration {
	return time.Duration(e.HideHostSettleMs) * time.Millisecond
}

func (e EngineConfig) FocusHostDelay() time.Duration {
	return time.Duration(e.FocusHostDelayMs) * time.Millisecond
}

func (i InjectionConfig) InterKeyDelay() time.Duration {
	return time.Duration(i.InterKeyDelayMs) * time.Millisecond
}

func (i InjectionConfig) PasteSettle() time.Duration {
	return time.Duration(i.PasteSettleMs) * time.Millisecond
}

func (v VaultsConfig) AutoLock() time.Duration {
	return time.Duration(v.AutoLockMinutes) * time.Minute
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads the configuration from path, or the defaults when the file
// does not exist. The format follows the file extension: TOML, JSON or
// YAML. Environment overrides are applied after decoding.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := make([]string, 0, len(c.Vaults.Dirs)+2)
	dirs = append(dirs, c.Vaults.Dirs...)
	if c.Logging.Output == "file" && c.Logging.FilePath != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	if c.IPC.Enabled && c.IPC.SocketPath != "" && !strings.HasPrefix(c.IPC.SocketPath, `\\.\pipe\`) {
		dirs = append(dirs, filepath.Dir(c.IPC.SocketPath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(expandPath(dir), 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DataDir returns the base autotyped data directory, honoring the
// AUTOTYPE_DATA_DIR override.
func DataDir() string {
	if envDir := os.Getenv("AUTOTYPE_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies AUTOTYPE_* environment overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AUTOTYPE_VAULT_DIRS"); v != "" {
		c.Vaults.Dirs = filepath.SplitList(v)
	}
	if v := os.Getenv("AUTOTYPE_DEFAULT_SEQUENCE"); v != "" {
		c.Engine.DefaultSequence = v
	}
	if v := os.Getenv("AUTOTYPE_HOTKEY"); v != "" {
		c.Hotkey.Chord = v
	}
	if v := os.Getenv("AUTOTYPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AUTOTYPE_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("AUTOTYPE_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Vaults.Dirs = append([]string{}, c.Vaults.Dirs...)
	clone.Vaults.Files = append([]string{}, c.Vaults.Files...)
	return &clone
}

func defaultSocketPath() string {
	return platformSocketPath(PlatformRuntimeDir())
}

// SaveConfig writes the configuration to path in the format matching the
// extension. TOML output carries the commented template; JSON and YAML are
// plain encodings.
func SaveConfig(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".json":
		data, err = encodeJSON(cfg)
	case ".yaml", ".yml":
		data, err = encodeYAML(cfg)
	default:
		data = []byte(generateTOML(cfg))
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// generateTOML renders the commented config template the init command
// writes.
func generateTOML(cfg *Config) string {
	return fmt.Sprintf(`# autotyped configuration

version = %d

[vaults]
# Directories scanned and watched for *.atdb store files.
dirs = %s
# Explicit store files opened at startup.
files = %s
watch_dirs = %t
# Relock open stores after this many idle minutes. 0 disables.
auto_lock_minutes = %d

[engine]
default_sequence = %q
match_title = %t
match_url = %t
hide_host_settle_ms = %d
focus_host_delay_ms = %d
unmask_logs = %t

[hotkey]
enabled = %t
chord = %q

[injection]
inter_key_delay_ms = %d
paste_settle_ms = %d

[ui]
picker_enabled = %t
notifications = %t

[logging]
level = %q
format = %q
output = %q
file_path = %q
max_size_mb = %d
max_backups = %d
max_age_days = %d
compress = %t

[ipc]
enabled = %t
socket_path = %q
permissions = %q
max_connections = %d
timeout_sec = %d
`,
		cfg.Version,
		tomlStrings(cfg.Vaults.Dirs),
		tomlStrings(cfg.Vaults.Files),
		cfg.Vaults.WatchDirs,
		cfg.Vaults.AutoLockMinutes,
		cfg.Engine.DefaultSequence,
		cfg.Engine.MatchTitle,
		cfg.Engine.MatchURL,
		cfg.Engine.HideHostSettleMs,
		cfg.Engine.FocusHostDelayMs,
		cfg.Engine.UnmaskLogs,
		cfg.Hotkey.Enabled,
		cfg.Hotkey.Chord,
		cfg.Injection.InterKeyDelayMs,
		cfg.Injection.PasteSettleMs,
		cfg.UI.PickerEnabled,
		cfg.UI.Notifications,
		cfg.Logging.Level,
		cfg.Logging.Format,
		cfg.Logging.Output,
		cfg.Logging.FilePath,
		cfg.Logging.MaxSizeMB,
		cfg.Logging.MaxBackups,
		cfg.Logging.MaxAgeDays,
		cfg.Logging.Compress,
		cfg.IPC.Enabled,
		cfg.IPC.SocketPath,
		cfg.IPC.Permissions,
		cfg.IPC.MaxConnections,
		cfg.IPC.TimeoutSec,
	)
}

func tomlStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
