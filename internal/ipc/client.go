// Package ipc provides client implementation for daemon-client communication.
//
// The client supports:
// - Automatic connection and reconnection
// - Request/response pattern with timeouts
// - Event streaming for real-time updates
// - Thread-safe operations
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// RemoteError is a decoded error response from the daemon.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// IPCClient is the client for communicating with the autotyped daemon
type IPCClient struct {
	mu         sync.RWMutex
	conn       net.Conn
	socketPath string
	sessionID  string
	version    string
	permission PermissionLevel

	// Connection state
	connected    atomic.Bool
	reconnecting atomic.Bool

	// Request handling
	pending   map[uint32]chan *Message
	pendingMu sync.Mutex
	nextReqID atomic.Uint32

	// Event handling
	eventChan    chan *Event
	eventHandler EventHandler
	eventMu      sync.RWMutex

	// Reconnection
	autoReconnect bool
	reconnectWait time.Duration
	maxReconnect  int

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Configuration
	config ClientConfig
}

// ClientConfig configures the IPC client
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	AutoReconnect  bool
	ReconnectWait  time.Duration
	MaxReconnect   int
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ClientName:     "autotypectl",
		ClientVersion:  "1.0.0",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 30 * time.Second,
		AutoReconnect:  false,
		ReconnectWait:  time.Second,
		MaxReconnect:   3,
	}
}

// EventHandler is called when events are received
type EventHandler func(event *Event)

// NewClient creates a new IPC client
func NewClient(cfg ClientConfig) *IPCClient {
	ctx, cancel := context.WithCancel(context.Background())

	return &IPCClient{
		socketPath:    cfg.SocketPath,
		pending:       make(map[uint32]chan *Message),
		eventChan:     make(chan *Event, 100),
		autoReconnect: cfg.AutoReconnect,
		reconnectWait: cfg.ReconnectWait,
		maxReconnect:  cfg.MaxReconnect,
		ctx:           ctx,
		cancel:        cancel,
		config:        cfg,
	}
}

// Connect establishes a connection to the daemon and completes the
// handshake and authentication exchange.
func (c *IPCClient) Connect() error {
	c.mu.Lock()
	if c.connected.Load() {
		c.mu.Unlock()
		return nil
	}

	conn, err := c.dial()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}

	c.conn = conn
	c.connected.Store(true)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()

	if err := c.handshake(); err != nil {
		c.close()
		return fmt.Errorf("handshake: %w", err)
	}

	if err := c.authenticate(); err != nil {
		c.close()
		return fmt.Errorf("authenticate: %w", err)
	}

	return nil
}

// Close closes the connection to the daemon
func (c *IPCClient) Close() error {
	c.cancel()
	c.close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}

	close(c.eventChan)
	return nil
}

// close closes the connection without signaling shutdown
func (c *IPCClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected.Store(false)

	// Cancel all pending requests
	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *Message)
	c.pendingMu.Unlock()
}

// IsConnected returns whether the client is connected
func (c *IPCClient) IsConnected() bool {
	return c.connected.Load()
}

// SessionID returns the session ID assigned by the server
func (c *IPCClient) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// ServerVersion returns the daemon version reported in the handshake
func (c *IPCClient) ServerVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Permission returns the access level granted by the daemon
func (c *IPCClient) Permission() PermissionLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.permission
}

// SetEventHandler sets the handler for streamed events
func (c *IPCClient) SetEventHandler(handler EventHandler) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	c.eventHandler = handler
}

// Events returns the event channel for streaming events
func (c *IPCClient) Events() <-chan *Event {
	return c.eventChan
}

// handshake performs the initial handshake with the server
func (c *IPCClient) handshake() error {
	req := &HandshakeRequest{
		ClientVersion:   c.config.ClientVersion,
		ClientName:      c.config.ClientName,
		ProtocolVersion: ProtocolVersion,
	}

	resp, err := c.request(MsgHandshake, req)
	if err != nil {
		return err
	}

	if resp.Header.Type != MsgHandshakeAck {
		return fmt.Errorf("unexpected response type: %d", resp.Header.Type)
	}

	var ack HandshakeResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		return err
	}

	c.mu.Lock()
	c.sessionID = ack.SessionID
	c.version = ack.ServerVersion
	c.permission = ack.Permission
	c.mu.Unlock()

	return nil
}

// authenticate authenticates with the server via peer credentials
func (c *IPCClient) authenticate() error {
	req := &AuthRequest{Method: "peer"}

	resp, err := c.request(MsgAuthenticate, req)
	if err != nil {
		return err
	}

	if resp.Header.Type != MsgAuthResponse {
		return fmt.Errorf("unexpected response type: %d", resp.Header.Type)
	}

	var authResp AuthResponse
	if err := Decode(resp.Payload, &authResp); err != nil {
		return err
	}

	if !authResp.Success {
		return fmt.Errorf("authentication failed: %s", authResp.Error)
	}

	c.mu.Lock()
	c.permission = authResp.Permission
	c.mu.Unlock()
	return nil
}

// request sends a request and waits for a response
func (c *IPCClient) request(msgType MessageType, payload any) (*Message, error) {
	return c.requestWithTimeout(msgType, payload, c.config.RequestTimeout)
}

// requestWithTimeout sends a request with a custom timeout
func (c *IPCClient) requestWithTimeout(msgType MessageType, payload any, timeout time.Duration) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = Encode(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	reqID := c.nextReqID.Add(1)
	msg := NewMessage(msgType, reqID, data)

	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := msg.Write(conn); err != nil {
		c.close()
		return nil, fmt.Errorf("write message: %w", err)
	}

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		return resp, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// readLoop reads messages from the connection
func (c *IPCClient) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			if c.autoReconnect {
				c.tryReconnect()
				continue
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		msg, err := ReadMessage(conn)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}

			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.sendPing()
				continue
			}

			c.close()
			if c.autoReconnect {
				c.tryReconnect()
				continue
			}
			return
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes an incoming message
func (c *IPCClient) handleMessage(msg *Message) {
	switch msg.Header.Type {
	case MsgPong:
		// Keep-alive response, ignore

	case MsgPing:
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			pong := NewMessage(MsgPong, msg.Header.RequestID, nil)
			pong.Write(conn)
		}

	case MsgEvent:
		var event Event
		if err := Decode(msg.Payload, &event); err == nil {
			select {
			case c.eventChan <- &event:
			default:
				// Channel full, drop event
			}

			c.eventMu.RLock()
			handler := c.eventHandler
			c.eventMu.RUnlock()
			if handler != nil {
				go handler(&event)
			}
		}

	default:
		// Response to a request
		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.Header.RequestID]; ok {
			select {
			case ch <- msg:
			default:
			}
		}
		c.pendingMu.Unlock()
	}
}

// sendPing sends a ping to keep connection alive
func (c *IPCClient) sendPing() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil {
		msg := NewMessage(MsgPing, c.nextReqID.Add(1), nil)
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		msg.Write(conn)
	}
}

// tryReconnect attempts to reconnect to the daemon
func (c *IPCClient) tryReconnect() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return // Already reconnecting
	}
	defer c.reconnecting.Store(false)

	for i := 0; i < c.maxReconnect; i++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.reconnectWait):
		}

		if err := c.Connect(); err == nil {
			return
		}
	}
}

// decodeResult decodes a response payload into out, turning daemon error
// messages into a RemoteError.
func decodeResult(resp *Message, out any) error {
	if resp.Header.Type == MsgError {
		var errResp ErrorResponse
		if err := Decode(resp.Payload, &errResp); err != nil {
			return fmt.Errorf("undecodable error response: %w", err)
		}
		return &RemoteError{Code: errResp.Code, Message: errResp.Message}
	}
	if out == nil {
		return nil
	}
	return Decode(resp.Payload, out)
}

// High-level API methods

// Ping checks if the daemon is responsive
func (c *IPCClient) Ping() error {
	resp, err := c.requestWithTimeout(MsgPing, nil, 5*time.Second)
	if err != nil {
		return err
	}

	if resp.Header.Type != MsgPong {
		return fmt.Errorf("unexpected response: %d", resp.Header.Type)
	}

	return nil
}

// Status requests the daemon status
func (c *IPCClient) Status(includeStores, includeConfig bool) (*StatusResponse, error) {
	req := &StatusRequest{
		IncludeStores: includeStores,
		IncludeConfig: includeConfig,
	}

	resp, err := c.request(MsgStatusRequest, req)
	if err != nil {
		return nil, err
	}

	var status StatusResponse
	if err := decodeResult(resp, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListStores lists registered credential stores
func (c *IPCClient) ListStores() (*ListStoresResponse, error) {
	resp, err := c.request(MsgListStores, &ListStoresRequest{})
	if err != nil {
		return nil, err
	}

	var result ListStoresResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UnlockStore unlocks a store with the given passphrase
func (c *IPCClient) UnlockStore(store, passphrase string) (*UnlockStoreResponse, error) {
	req := &UnlockStoreRequest{Store: store, Passphrase: passphrase}

	// Key derivation is deliberately slow; leave headroom.
	resp, err := c.requestWithTimeout(MsgUnlockStore, req, 2*time.Minute)
	if err != nil {
		return nil, err
	}

	var result UnlockStoreResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LockStore locks the named store, or every store when name is empty
func (c *IPCClient) LockStore(store string) (*LockStoreResponse, error) {
	req := &LockStoreRequest{Store: store}

	resp, err := c.request(MsgLockStore, req)
	if err != nil {
		return nil, err
	}

	var result LockStoreResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListEntries lists entry summaries from open stores
func (c *IPCClient) ListEntries(store, query string) (*ListEntriesResponse, error) {
	req := &ListEntriesRequest{Store: store, Query: query}

	resp, err := c.request(MsgListEntries, req)
	if err != nil {
		return nil, err
	}

	var result ListEntriesResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TypeEntry triggers a typing run for a specific entry. The run blocks on
// the target window's focus choreography and possibly on the user, so the
// timeout is generous.
func (c *IPCClient) TypeEntry(entryID, title, sequence string) (*TypeResponse, error) {
	req := &TypeEntryRequest{EntryID: entryID, Title: title, Sequence: sequence}

	resp, err := c.requestWithTimeout(MsgTypeEntry, req, 2*time.Minute)
	if err != nil {
		return nil, err
	}

	var result TypeResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TypeGlobal triggers window-matched typing as the hotkey would. Title and
// URL, when non-empty, stand in for the live focus query.
func (c *IPCClient) TypeGlobal(windowTitle, windowURL string) (*TypeResponse, error) {
	req := &TypeGlobalRequest{WindowTitle: windowTitle, WindowURL: windowURL}

	resp, err := c.requestWithTimeout(MsgTypeGlobal, req, 2*time.Minute)
	if err != nil {
		return nil, err
	}

	var result TypeResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate dry-runs a sequence, optionally against a named entry
func (c *IPCClient) Validate(sequence, entryID, title string) (*ValidateResponse, error) {
	req := &ValidateRequest{Sequence: sequence, EntryID: entryID, Title: title}

	resp, err := c.request(MsgValidate, req)
	if err != nil {
		return nil, err
	}

	var result ValidateResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelPending drops a deferred trigger
func (c *IPCClient) CancelPending() (*CancelPendingResponse, error) {
	resp, err := c.request(MsgCancelPending, &CancelPendingRequest{})
	if err != nil {
		return nil, err
	}

	var result CancelPendingResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetConfig gets daemon configuration
func (c *IPCClient) GetConfig(keys []string) (*ConfigResponse, error) {
	req := &ConfigRequest{Keys: keys}

	resp, err := c.request(MsgGetConfig, req)
	if err != nil {
		return nil, err
	}

	var result ConfigResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReloadConfig asks the daemon to re-read its config file
func (c *IPCClient) ReloadConfig() (*ReloadConfigResponse, error) {
	resp, err := c.request(MsgReloadConfig, &ReloadConfigRequest{})
	if err != nil {
		return nil, err
	}

	var result ReloadConfigResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ImportEntries imports an exchange document into a store
func (c *IPCClient) ImportEntries(store, format string, data []byte) (*ImportResponse, error) {
	req := &ImportRequest{Store: store, Format: format, Data: data}

	resp, err := c.requestWithTimeout(MsgImportEntries, req, time.Minute)
	if err != nil {
		return nil, err
	}

	var result ImportResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportEntries exports a store's entries as an exchange document. The
// returned data holds decrypted credentials; the caller owns its fate.
func (c *IPCClient) ExportEntries(store, format string) (*ExportResponse, error) {
	req := &ExportRequest{Store: store, Format: format}

	resp, err := c.requestWithTimeout(MsgExportEntries, req, time.Minute)
	if err != nil {
		return nil, err
	}

	var result ExportResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Shutdown asks the daemon to exit
func (c *IPCClient) Shutdown() error {
	resp, err := c.request(MsgShutdown, &ShutdownRequest{})
	if err != nil {
		return err
	}

	var result ShutdownResponse
	if err := decodeResult(resp, &result); err != nil {
		return err
	}
	if !result.Stopping {
		return errors.New("daemon refused shutdown")
	}
	return nil
}

// Subscribe subscribes to events
func (c *IPCClient) Subscribe(events []EventType) error {
	req := &SubscribeRequest{Events: events}

	resp, err := c.request(MsgSubscribe, req)
	if err != nil {
		return err
	}

	var result SubscribeResponse
	if err := decodeResult(resp, &result); err != nil {
		return err
	}

	if !result.Success {
		return errors.New("subscription failed")
	}
	return nil
}

// Unsubscribe unsubscribes from events
func (c *IPCClient) Unsubscribe() error {
	resp, err := c.request(MsgUnsubscribe, &UnsubscribeRequest{})
	if err != nil {
		return err
	}

	if resp.Header.Type != MsgUnsubscribeResp {
		return fmt.Errorf("unexpected response: %d", resp.Header.Type)
	}
	return nil
}
