// Package ipc provides the daemon handler implementation.
//
// The handler processes IPC messages and integrates with the autotyped
// daemon's engine, store collection, and configuration.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"autotyped/internal/autotype"
	"autotyped/internal/config"
	"autotyped/internal/entry"
	"autotyped/internal/logging"
	"autotyped/internal/native"
	"autotyped/internal/sequence"
	"autotyped/internal/vault"
)

// DaemonHandler implements the Handler interface for the autotyped daemon
type DaemonHandler struct {
	mu        sync.RWMutex
	version   string
	startedAt time.Time

	engine *autotype.Engine
	stores *vault.Collection
	loader *config.Loader

	audit *logging.AuditLogger
	log   *slog.Logger

	// shutdown asks the daemon to exit; wired by main.
	shutdown func()

	// Event broadcaster (for sending events to clients)
	broadcaster func(*Event)
}

// DaemonHandlerConfig configures the daemon handler
type DaemonHandlerConfig struct {
	Version  string
	Engine   *autotype.Engine
	Stores   *vault.Collection
	Loader   *config.Loader
	Audit    *logging.AuditLogger
	Log      *slog.Logger
	Shutdown func()
}

// NewDaemonHandler creates a new daemon handler
func NewDaemonHandler(cfg DaemonHandlerConfig) *DaemonHandler {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &DaemonHandler{
		version:   cfg.Version,
		startedAt: time.Now(),
		engine:    cfg.Engine,
		stores:    cfg.Stores,
		loader:    cfg.Loader,
		audit:     cfg.Audit,
		log:       log,
		shutdown:  cfg.Shutdown,
	}
}

// SetBroadcaster sets the function used to broadcast events
func (h *DaemonHandler) SetBroadcaster(broadcaster func(*Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcaster = broadcaster
}

// HandleMessage processes an IPC message
func (h *DaemonHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgStatusRequest:
		return h.handleStatus(ctx, client, msg)

	case MsgListStores:
		return h.handleListStores(ctx, client, msg)

	case MsgUnlockStore:
		return h.handleUnlockStore(ctx, client, msg)

	case MsgLockStore:
		return h.handleLockStore(ctx, client, msg)

	case MsgListEntries:
		return h.handleListEntries(ctx, client, msg)

	case MsgTypeEntry:
		return h.handleTypeEntry(ctx, client, msg)

	case MsgTypeGlobal:
		return h.handleTypeGlobal(ctx, client, msg)

	case MsgValidate:
		return h.handleValidate(ctx, client, msg)

	case MsgCancelPending:
		return h.handleCancelPending(ctx, client, msg)

	case MsgGetConfig:
		return h.handleGetConfig(ctx, client, msg)

	case MsgReloadConfig:
		return h.handleReloadConfig(ctx, client, msg)

	case MsgImportEntries:
		return h.handleImport(ctx, client, msg)

	case MsgExportEntries:
		return h.handleExport(ctx, client, msg)

	case MsgShutdown:
		return h.handleShutdown(ctx, client, msg)

	default:
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
			fmt.Sprintf("unknown message type: %d", msg.Header.Type)), nil
	}
}

// handleStatus handles status requests
func (h *DaemonHandler) handleStatus(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	var req StatusRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
		}
	}

	resp := &StatusResponse{
		Version:   h.version,
		Uptime:    time.Since(h.startedAt),
		StartedAt: h.startedAt,
		Phase:     "idle",
	}

	if h.engine != nil {
		st := h.engine.Snapshot()
		resp.Phase = st.Phase
		resp.PendingTitle = st.PendingTitle
	}

	if h.stores != nil {
		for _, s := range h.stores.Stores() {
			sum := StoreSummary{Name: s.Name(), Path: s.Path(), Open: s.IsOpen()}
			if sum.Open {
				resp.OpenStores++
				if n, err := s.EntryCount(); err == nil {
					sum.Entries = n
					resp.EntryCount += n
				}
			}
			if req.IncludeStores {
				resp.Stores = append(resp.Stores, sum)
			}
		}
	}

	if req.IncludeConfig && h.loader != nil {
		if cfg := h.loader.Config(); cfg != nil {
			resp.Config = configMap(cfg, nil)
		}
	}

	return NewResponse(MsgStatusResponse, msg.Header.RequestID, resp)
}

// handleListStores handles store list requests
func (h *DaemonHandler) handleListStores(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	resp := &ListStoresResponse{}
	if h.stores != nil {
		for _, s := range h.stores.Stores() {
			sum := StoreSummary{Name: s.Name(), Path: s.Path(), Open: s.IsOpen()}
			if sum.Open {
				if n, err := s.EntryCount(); err == nil {
					sum.Entries = n
				}
			}
			resp.Stores = append(resp.Stores, sum)
		}
	}
	return NewResponse(MsgListStoresResp, msg.Header.RequestID, resp)
}

// handleUnlockStore handles unlock requests. The request payload carries
// the passphrase; nothing from it may reach a log or an audit record.
func (h *DaemonHandler) handleUnlockStore(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	var req UnlockStoreRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
	}

	if client.Permission < PermReadWrite {
		return NewErrorMessage(msg.Header.RequestID, ErrPermissionDenied, "write permission required"), nil
	}
	if h.stores == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "no store collection"), nil
	}
	if req.Store == "" {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "store name required"), nil
	}

	resp := &UnlockStoreResponse{}
	if err := h.stores.Unlock(req.Store, req.Passphrase); err != nil {
		resp.Error = err.Error()
		h.log.Info("unlock failed", "store", req.Store)
		return NewResponse(MsgUnlockStoreResp, msg.Header.RequestID, resp)
	}
	resp.Success = true

	if s, ok := h.stores.Store(req.Store); ok && h.audit != nil {
		h.audit.LogStoreOpened(ctx, s.Path())
	}
	h.broadcast(&Event{
		Type: EventStoreOpened,
		Data: map[string]any{"store": req.Store},
	})

	return NewResponse(MsgUnlockStoreResp, msg.Header.RequestID, resp)
}

// handleLockStore handles lock requests
func (h *DaemonHandler) handleLockStore(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	var req LockStoreRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
		}
	}

	if client.Permission < PermReadWrite {
		return NewErrorMessage(msg.Header.RequestID, ErrPermissionDenied, "write permission required"), nil
	}
	if h.stores == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "no store collection"), nil
	}

	resp := &LockStoreResponse{Success: true}

	if req.Store == "" {
		for _, s := range h.stores.Stores() {
			if s.IsOpen() {
				resp.Locked = append(resp.Locked, s.Name())
				if h.audit != nil {
					h.audit.LogStoreLocked(ctx, s.Path(), "ipc request")
				}
			}
		}
		h.stores.LockAll()
	} else {
		s, ok := h.stores.Store(req.Store)
		if !ok {
			return NewErrorMessage(msg.Header.RequestID, ErrNotFound, fmt.Sprintf("store %q not registered", req.Store)), nil
		}
		if s.IsOpen() {
			resp.Locked = append(resp.Locked, s.Name())
			if h.audit != nil {
				h.audit.LogStoreLocked(ctx, s.Path(), "ipc request")
			}
		}
		s.Lock()
	}

	for _, name := range resp.Locked {
		h.broadcast(&Event{
			Type: EventStoreLocked,
			Data: map[string]any{"store": name},
		})
	}

	return NewResponse(MsgLockStoreResp, msg.Header.RequestID, resp)
}

// handleListEntries handles entry list requests
func (h *DaemonHandler) handleListEntries(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	var req ListEntriesRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
		}
	}

	if client.Permission < PermReadWrite {
		return NewErrorMessage(msg.Header.RequestID, ErrPermissionDenied, "write permission required"), nil
	}
	if h.stores == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "no store collection"), nil
	}

	resp := &ListEntriesResponse{}
	for _, s := range h.stores.Stores() {
		if !s.IsOpen() {
			continue
		}
		if req.Store != "" && s.Name() != req.Store {
			continue
		}
		ents, err := s.List()
		if err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "listing entries failed"), nil
		}
		for _, ent := range ents {
			if req.Query != "" && !strings.Contains(strings.ToLower(ent.Title), strings.ToLower(req.Query)) {
				continue
			}
			resp.Entries = append(resp.Entries, EntrySummary{
				ID:        ent.ID.String(),
				Title:     ent.Title,
				Username:  ent.Username,
				URL:       ent.URL,
				Store:     s.Name(),
				Sequence:  ent.AutoType.Sequence,
				Obfuscate: ent.AutoType.Obfuscate,
				Enabled:   ent.AutoType.Enabled,
			})
		}
	}

	return NewResponse(MsgListEntriesResp, msg.Header.RequestID, resp)
}

// handleTypeEntry handles direct typing requests
func (h *DaemonHandler) handleTypeEntry(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	var req TypeEntryRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
	}

	if client.Permission < PermReadWrite {
		return NewErrorMessage(msg.Header.RequestID, ErrPermissionDenied, "write permission required"), nil
	}
	if h.engine == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "engine not wired"), nil
	}

	ent, errMsg := h.lookupEntry(msg.Header.RequestID, req.EntryID, req.Title)
	if errMsg != nil {
		return errMsg, nil
	}

	h.broadcast(&Event{
		Type: EventRunStarted,
		Data: map[string]any{"entry": ent.Title, "source": "ipc"},
	})

	err := h.engine.HandleTrigger(ctx, autotype.Trigger{
		Entry:    ent,
		Sequence: req.Sequence,
		Source:   "ipc",
	})

	resp := &TypeResponse{Entry: ent.Title}
	return h.finishRun(ctx, msg.Header.RequestID, MsgTypeEntryResp, resp, err)
}

// handleTypeGlobal handles window-matched typing requests
func (h *DaemonHandler) handleTypeGlobal(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	var req TypeGlobalRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
		}
	}

	if client.Permission < PermReadWrite {
		return NewErrorMessage(msg.Header.RequestID, ErrPermissionDenied, "write permission required"), nil
	}
	if h.engine == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "engine not wired"), nil
	}

	t := autotype.Trigger{Source: "ipc"}
	if req.WindowTitle != "" || req.WindowURL != "" {
		t.Window = &native.Window{Title: req.WindowTitle, URL: req.WindowURL}
	}

	h.broadcast(&Event{
		Type: EventRunStarted,
		Data: map[string]any{"source": "ipc", "window": req.WindowTitle},
	})

	err := h.engine.HandleTrigger(ctx, t)
	return h.finishRun(ctx, msg.Header.RequestID, MsgTypeGlobalResp, &TypeResponse{}, err)
}

// finishRun maps an engine outcome to a typing response. Deferred and
// canceled are reported in-band; hard failures become error messages with
// a matching code.
func (h *DaemonHandler) finishRun(ctx context.Context, requestID uint32, respType MessageType, resp *TypeResponse, err error) (*Message, error) {
	switch {
	case err == nil:
		resp.Success = true

	case errors.Is(err, autotype.ErrDeferred):
		resp.Deferred = true
		h.broadcast(&Event{
			Type: EventTriggerDeferred,
			Data: map[string]any{"source": "ipc"},
		})

	case errors.Is(err, autotype.ErrCanceled):
		resp.Canceled = true
		resp.Error = err.Error()
		h.broadcast(&Event{
			Type: EventRunFinished,
			Data: map[string]any{"entry": resp.Entry, "success": false, "canceled": true},
		})

	default:
		h.broadcast(&Event{
			Type: EventRunFinished,
			Data: map[string]any{"entry": resp.Entry, "success": false, "error": err.Error()},
		})
		if h.audit != nil && resp.Entry != "" {
			h.audit.LogRun(ctx, resp.Entry, "", false, map[string]any{"error": err.Error()})
		}
		return NewErrorMessage(requestID, engineErrorCode(err), err.Error()), nil
	}

	if resp.Success {
		h.broadcast(&Event{
			Type: EventRunFinished,
			Data: map[string]any{"entry": resp.Entry, "success": true},
		})
		if h.audit != nil && resp.Entry != "" {
			h.audit.LogRun(ctx, resp.Entry, "", true, nil)
		}
	}

	return NewResponse(respType, requestID, resp)
}

// handleValidate handles sequence dry-run requests
func (h *DaemonHandler) handleValidate(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	var req ValidateRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
	}

	if h.engine == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "engine not wired"), nil
	}

	ent := entry.New("validation target")
	if req.EntryID != "" || req.Title != "" {
		found, errMsg := h.lookupEntry(msg.Header.RequestID, req.EntryID, req.Title)
		if errMsg != nil {
			return errMsg, nil
		}
		ent = found
	}

	resp := &ValidateResponse{}
	rendered, err := h.engine.Validate(ctx, ent, req.Sequence)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Valid = true
		resp.Rendered = rendered
	}

	return NewResponse(MsgValidateResp, msg.Header.RequestID, resp)
}

// handleCancelPending handles deferred-trigger cancel requests
func (h *DaemonHandler) handleCancelPending(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	if client.Permission < PermReadWrite {
		return NewErrorMessage(msg.Header.RequestID, ErrPermissionDenied, "write permission required"), nil
	}
	if h.engine == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "engine not wired"), nil
	}

	wasPending := h.engine.Snapshot().Phase == "deferred"
	h.engine.CancelPending()

	resp := &CancelPendingResponse{Success: true, WasPending: wasPending}
	return NewResponse(MsgCancelPendingResp, msg.Header.RequestID, resp)
}

// handleGetConfig handles config requests
func (h *DaemonHandler) handleGetConfig(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	var req ConfigRequest
	if len(msg.Payload) > 0 {
		if err := Decode(msg.Payload, &req); err != nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
		}
	}

	if h.loader == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "config not wired"), nil
	}
	cfg := h.loader.Config()
	if cfg == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "config not loaded"), nil
	}

	resp := &ConfigResponse{Config: configMap(cfg, req.Keys)}
	return NewResponse(MsgGetConfigResp, msg.Header.RequestID, resp)
}

// handleReloadConfig handles config reload requests
func (h *DaemonHandler) handleReloadConfig(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	if client.Permission < PermFullControl {
		return NewErrorMessage(msg.Header.RequestID, ErrPermissionDenied, "full control required"), nil
	}
	if h.loader == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "config not wired"), nil
	}

	resp := &ReloadConfigResponse{}
	if err := h.loader.Reload(); err != nil {
		resp.Error = err.Error()
		return NewResponse(MsgReloadConfigResp, msg.Header.RequestID, resp)
	}
	resp.Success = true

	if h.audit != nil {
		h.audit.LogConfigChange(ctx, "config_file", "", "reloaded over ipc")
	}
	h.broadcast(&Event{Type: EventConfigChanged})

	return NewResponse(MsgReloadConfigResp, msg.Header.RequestID, resp)
}

// handleImport handles entry import requests
func (h *DaemonHandler) handleImport(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	var req ImportRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
	}

	if client.Permission < PermFullControl {
		return NewErrorMessage(msg.Header.RequestID, ErrPermissionDenied, "full control required"), nil
	}

	s, errMsg := h.targetStore(msg.Header.RequestID, req.Store)
	if errMsg != nil {
		return errMsg, nil
	}

	ents, err := vault.Import(req.Data, vault.Format(req.Format))
	if err != nil {
		return NewResponse(MsgImportEntriesResp, msg.Header.RequestID, &ImportResponse{Error: err.Error()})
	}

	for _, ent := range ents {
		if err := s.Put(ent); err != nil {
			return NewResponse(MsgImportEntriesResp, msg.Header.RequestID, &ImportResponse{
				Error: fmt.Sprintf("storing %q: %v", ent.Title, err),
			})
		}
	}

	if h.audit != nil {
		h.audit.LogImport(ctx, s.Path(), "ipc", len(ents))
	}
	h.log.Info("entries imported", "store", s.Name(), "count", len(ents))

	resp := &ImportResponse{Success: true, Count: len(ents)}
	return NewResponse(MsgImportEntriesResp, msg.Header.RequestID, resp)
}

// handleExport handles entry export requests. The response carries the
// store's decrypted entries.
func (h *DaemonHandler) handleExport(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	var req ExportRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid request"), nil
	}

	if client.Permission < PermFullControl {
		return NewErrorMessage(msg.Header.RequestID, ErrPermissionDenied, "full control required"), nil
	}

	s, errMsg := h.targetStore(msg.Header.RequestID, req.Store)
	if errMsg != nil {
		return errMsg, nil
	}

	ents, err := s.List()
	if err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInternalError, "listing entries failed"), nil
	}

	data, err := vault.Export(ents, vault.Format(req.Format))
	if err != nil {
		return NewResponse(MsgExportEntriesResp, msg.Header.RequestID, &ExportResponse{Error: err.Error()})
	}

	if h.audit != nil {
		h.audit.LogExport(ctx, s.Path(), "ipc", len(ents))
	}
	h.log.Info("entries exported", "store", s.Name(), "count", len(ents))

	resp := &ExportResponse{Success: true, Count: len(ents), Data: data}
	return NewResponse(MsgExportEntriesResp, msg.Header.RequestID, resp)
}

// handleShutdown handles daemon shutdown requests
func (h *DaemonHandler) handleShutdown(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	if client.Permission < PermFullControl {
		return NewErrorMessage(msg.Header.RequestID, ErrPermissionDenied, "full control required"), nil
	}

	h.mu.RLock()
	shutdown := h.shutdown
	h.mu.RUnlock()
	if shutdown == nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "shutdown not supported"), nil
	}

	h.log.Info("shutdown requested over ipc", "client", client.ID)
	h.broadcast(&Event{Type: EventDaemonShutdown})

	// Let the response and the event flush before the daemon exits.
	time.AfterFunc(100*time.Millisecond, shutdown)

	return NewResponse(MsgShutdownResp, msg.Header.RequestID, &ShutdownResponse{Stopping: true})
}

// lookupEntry resolves an entry reference by ID or exact title across open
// stores. Returns a response message describing the failure when the
// reference does not resolve to exactly one entry.
func (h *DaemonHandler) lookupEntry(requestID uint32, id, title string) (*entry.Entry, *Message) {
	if h.stores == nil {
		return nil, NewErrorMessage(requestID, ErrInternalError, "no store collection")
	}
	if !h.stores.HasOpen() {
		return nil, NewErrorMessage(requestID, ErrStoreLocked, "no store is unlocked")
	}

	ents, err := h.stores.Entries()
	if err != nil {
		return nil, NewErrorMessage(requestID, ErrInternalError, "listing entries failed")
	}

	if id != "" {
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, NewErrorMessage(requestID, ErrInvalidRequest, "invalid entry id")
		}
		for _, ent := range ents {
			if ent.ID == uid {
				return ent, nil
			}
		}
		return nil, NewErrorMessage(requestID, ErrNotFound, "entry not found")
	}

	if title == "" {
		return nil, NewErrorMessage(requestID, ErrInvalidRequest, "entry id or title required")
	}

	var found *entry.Entry
	for _, ent := range ents {
		if strings.EqualFold(ent.Title, title) {
			if found != nil {
				return nil, NewErrorMessage(requestID, ErrInvalidRequest,
					fmt.Sprintf("title %q is ambiguous", title))
			}
			found = ent
		}
	}
	if found == nil {
		return nil, NewErrorMessage(requestID, ErrNotFound, "entry not found")
	}
	return found, nil
}

// targetStore resolves the store an exchange operation acts on. An empty
// name is accepted only when exactly one store is open.
func (h *DaemonHandler) targetStore(requestID uint32, name string) (*vault.Store, *Message) {
	if h.stores == nil {
		return nil, NewErrorMessage(requestID, ErrInternalError, "no store collection")
	}

	if name != "" {
		s, ok := h.stores.Store(name)
		if !ok {
			return nil, NewErrorMessage(requestID, ErrNotFound, fmt.Sprintf("store %q not registered", name))
		}
		if !s.IsOpen() {
			return nil, NewErrorMessage(requestID, ErrStoreLocked, fmt.Sprintf("store %q is locked", name))
		}
		return s, nil
	}

	var open []*vault.Store
	for _, s := range h.stores.Stores() {
		if s.IsOpen() {
			open = append(open, s)
		}
	}
	switch len(open) {
	case 0:
		return nil, NewErrorMessage(requestID, ErrStoreLocked, "no store is unlocked")
	case 1:
		return open[0], nil
	default:
		return nil, NewErrorMessage(requestID, ErrInvalidRequest, "multiple stores open, name one")
	}
}

// broadcast sends an event to all subscribers
func (h *DaemonHandler) broadcast(event *Event) {
	h.mu.RLock()
	broadcaster := h.broadcaster
	h.mu.RUnlock()

	if broadcaster != nil {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now()
		}
		broadcaster(event)
	}
}

// engineErrorCode maps engine sentinel errors to protocol error codes.
func engineErrorCode(err error) int {
	switch {
	case errors.Is(err, autotype.ErrBusy):
		return ErrRunInProgress
	case errors.Is(err, autotype.ErrSelectionOpen):
		return ErrSelectionOpen
	case errors.Is(err, autotype.ErrNoMatch):
		return ErrNoMatch
	case errors.Is(err, autotype.ErrSelfFocus):
		return ErrInvalidRequest
	default:
		var pe *sequence.ParseError
		if errors.As(err, &pe) {
			return ErrBadSequence
		}
		return ErrInternalError
	}
}

// configMap flattens the config sections clients care about. Secrets have
// no business in the config, but the map is still assembled key by key
// rather than reflected, so nothing slips in by accident.
func configMap(cfg *config.Config, keys []string) map[string]any {
	all := map[string]any{
		"vault_dirs":          cfg.Vaults.Dirs,
		"vault_files":         cfg.Vaults.Files,
		"watch_dirs":          cfg.Vaults.WatchDirs,
		"auto_lock_minutes":   cfg.Vaults.AutoLockMinutes,
		"default_sequence":    cfg.Engine.DefaultSequence,
		"match_title":         cfg.Engine.MatchTitle,
		"match_url":           cfg.Engine.MatchURL,
		"hide_host_settle_ms": cfg.Engine.HideHostSettleMs,
		"focus_host_delay_ms": cfg.Engine.FocusHostDelayMs,
		"hotkey_enabled":      cfg.Hotkey.Enabled,
		"chord":               cfg.Hotkey.Chord,
		"inter_key_delay_ms":  cfg.Injection.InterKeyDelayMs,
		"paste_settle_ms":     cfg.Injection.PasteSettleMs,
		"picker_enabled":      cfg.UI.PickerEnabled,
		"notifications":       cfg.UI.Notifications,
		"log_level":           cfg.Logging.Level,
		"socket_path":         cfg.IPC.SocketPath,
	}
	if len(keys) == 0 {
		return all
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out
}
