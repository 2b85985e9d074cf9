package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"autotyped/internal/hotkey"
	"autotyped/internal/sequence"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	if vaultErrs := validateVaults(&c.Vaults); len(vaultErrs) > 0 {
		errs = append(errs, vaultErrs...)
	}
	if engineErrs := validateEngine(&c.Engine); len(engineErrs) > 0 {
		errs = append(errs, engineErrs...)
	}
	if hotkeyErrs := validateHotkey(&c.Hotkey); len(hotkeyErrs) > 0 {
		errs = append(errs, hotkeyErrs...)
	}
	if injErrs := validateInjection(&c.Injection); len(injErrs) > 0 {
		errs = append(errs, injErrs...)
	}
	if logErrs := validateLogging(&c.Logging); len(logErrs) > 0 {
		errs = append(errs, logErrs...)
	}
	if ipcErrs := validateIPC(&c.IPC); len(ipcErrs) > 0 {
		errs = append(errs, ipcErrs...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateVaults(v *VaultsConfig) ValidationErrors {
	var errs ValidationErrors

	for i, dir := range v.Dirs {
		if strings.TrimSpace(dir) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("vaults.dirs[%d]", i),
				Message: "empty directory path",
			})
		}
	}
	for i, file := range v.Files {
		if strings.TrimSpace(file) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("vaults.files[%d]", i),
				Message: "empty file path",
			})
		}
	}

	if v.AutoLockMinutes < 0 {
		errs = append(errs, ValidationError{
			Field:   "vaults.auto_lock_minutes",
			Message: "must not be negative",
		})
	}
	if v.AutoLockMinutes > 1440 {
		errs = append(errs, ValidationError{
			Field:   "vaults.auto_lock_minutes",
			Message: "must not exceed 1440 (one day)",
		})
	}

	return errs
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if e.DefaultSequence == "" {
		errs = append(errs, ValidationError{
			Field:   "engine.default_sequence",
			Message: "must not be empty",
		})
	} else if _, err := sequence.Parse(e.DefaultSequence); err != nil {
		errs = append(errs, ValidationError{
			Field:   "engine.default_sequence",
			Message: err.Error(),
		})
	}

	if e.HideHostSettleMs < 0 || e.HideHostSettleMs > 5000 {
		errs = append(errs, ValidationError{
			Field:   "engine.hide_host_settle_ms",
			Message: "must be between 0 and 5000",
		})
	}
	if e.FocusHostDelayMs < 0 || e.FocusHostDelayMs > 5000 {
		errs = append(errs, ValidationError{
			Field:   "engine.focus_host_delay_ms",
			Message: "must be between 0 and 5000",
		})
	}

	return errs
}

func validateHotkey(h *HotkeyConfig) ValidationErrors {
	var errs ValidationErrors

	if h.Enabled {
		if _, err := hotkey.ParseChord(h.Chord); err != nil {
			errs = append(errs, ValidationError{
				Field:   "hotkey.chord",
				Message: err.Error(),
			})
		}
	}

	return errs
}

func validateInjection(i *InjectionConfig) ValidationErrors {
	var errs ValidationErrors

	if i.InterKeyDelayMs < 0 || i.InterKeyDelayMs > 500 {
		errs = append(errs, ValidationError{
			Field:   "injection.inter_key_delay_ms",
			Message: "must be between 0 and 500",
		})
	}
	if i.PasteSettleMs < 0 || i.PasteSettleMs > 5000 {
		errs = append(errs, ValidationError{
			Field:   "injection.paste_settle_ms",
			Message: "must be between 0 and 5000",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(l.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q (debug, info, warn, error)", l.Level),
		})
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(l.Format)] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format %q (text, json)", l.Format),
		})
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[strings.ToLower(l.Output)] {
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output %q (stdout, stderr, file)", l.Output),
		})
	}

	if strings.ToLower(l.Output) == "file" && l.FilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "logging.file_path",
			Message: "required when output is \"file\"",
		})
	}

	if l.MaxSizeMB < 1 || l.MaxSizeMB > 1000 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "must be between 1 and 1000",
		})
	}
	if l.MaxBackups < 0 || l.MaxBackups > 100 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "must be between 0 and 100",
		})
	}
	if l.MaxAgeDays < 0 || l.MaxAgeDays > 3650 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "must be between 0 and 3650",
		})
	}

	return errs
}

var permissionsPattern = regexp.MustCompile(`^0[0-7]{3}$`)

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors

	if !i.Enabled {
		return errs
	}

	if i.SocketPath == "" {
		errs = append(errs, ValidationError{
			Field:   "ipc.socket_path",
			Message: "must not be empty when IPC is enabled",
		})
	}

	if !permissionsPattern.MatchString(i.Permissions) {
		errs = append(errs, ValidationError{
			Field:   "ipc.permissions",
			Message: fmt.Sprintf("invalid mode %q (expected e.g. \"0600\")", i.Permissions),
		})
	}

	if i.MaxConnections < 1 || i.MaxConnections > 100 {
		errs = append(errs, ValidationError{
			Field:   "ipc.max_connections",
			Message: "must be between 1 and 100",
		})
	}
	if i.TimeoutSec < 1 || i.TimeoutSec > 300 {
		errs = append(errs, ValidationError{
			Field:   "ipc.timeout_sec",
			Message: "must be between 1 and 300",
		})
	}

	return errs
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
