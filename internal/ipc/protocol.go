// Package ipc provides inter-process communication between the autotyped
// daemon and client applications (CLI, GUI, browser bridges).
//
// The protocol is designed for:
// - Request/response pattern for commands
// - Event streaming for real-time updates
// - Protocol versioning for compatibility
//
// Payloads are JSON. Credential secrets never cross this channel except in
// the two places the user explicitly asks for it: the unlock request
// (passphrase in) and the export response (entries out). Both are gated on
// peer credentials.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x41544950 // "ATIP" - autotyped IPC
)

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005
	MsgShutdown     MessageType = 0x0006
	MsgAuthenticate MessageType = 0x0007
	MsgAuthResponse MessageType = 0x0008
	MsgShutdownResp MessageType = 0x0009

	// Status messages (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Store management (0x02xx)
	MsgListStores      MessageType = 0x0200
	MsgListStoresResp  MessageType = 0x0201
	MsgUnlockStore     MessageType = 0x0202
	MsgUnlockStoreResp MessageType = 0x0203
	MsgLockStore       MessageType = 0x0204
	MsgLockStoreResp   MessageType = 0x0205
	MsgListEntries     MessageType = 0x0206
	MsgListEntriesResp MessageType = 0x0207

	// Typing operations (0x03xx)
	MsgTypeEntry         MessageType = 0x0300
	MsgTypeEntryResp     MessageType = 0x0301
	MsgTypeGlobal        MessageType = 0x0302
	MsgTypeGlobalResp    MessageType = 0x0303
	MsgValidate          MessageType = 0x0304
	MsgValidateResp      MessageType = 0x0305
	MsgCancelPending     MessageType = 0x0306
	MsgCancelPendingResp MessageType = 0x0307

	// Configuration (0x04xx)
	MsgGetConfig        MessageType = 0x0400
	MsgGetConfigResp    MessageType = 0x0401
	MsgReloadConfig     MessageType = 0x0402
	MsgReloadConfigResp MessageType = 0x0403

	// Event streaming (0x05xx)
	MsgSubscribe       MessageType = 0x0500
	MsgSubscribeResp   MessageType = 0x0501
	MsgUnsubscribe     MessageType = 0x0502
	MsgUnsubscribeResp MessageType = 0x0503
	MsgEvent           MessageType = 0x0504

	// Entry exchange (0x06xx)
	MsgImportEntries     MessageType = 0x0600
	MsgImportEntriesResp MessageType = 0x0601
	MsgExportEntries     MessageType = 0x0602
	MsgExportEntriesResp MessageType = 0x0603
)

// EventType identifies the type of streamed event
type EventType uint16

const (
	EventRunStarted      EventType = 0x0001
	EventRunFinished     EventType = 0x0002
	EventStoreOpened     EventType = 0x0003
	EventStoreLocked     EventType = 0x0004
	EventTriggerDeferred EventType = 0x0005
	EventConfigChanged   EventType = 0x0006
	EventError           EventType = 0x0007
	EventDaemonShutdown  EventType = 0x0008
)

// PermissionLevel defines client access levels
type PermissionLevel uint8

const (
	PermReadOnly    PermissionLevel = 0x01
	PermReadWrite   PermissionLevel = 0x02
	PermFullControl PermissionLevel = 0x03
)

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// Header flags
const (
	FlagJSON       uint8 = 0x01 // Payload is JSON encoded
	FlagCompressed uint8 = 0x02 // Reserved for large exports
)

// MaxPayloadSize caps a single message payload. A full vault export of a
// few thousand entries stays well under this.
const MaxPayloadSize = 16 * 1024 * 1024

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}

	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer
func (m *Message) Write(w io.Writer) error {
	if err := m.Header.Write(w); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		_, err := w.Write(m.Payload)
		return err
	}
	return nil
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayloadSize {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Request/Response payloads

// HandshakeRequest is sent by the client to initiate connection
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge connection
type HandshakeResponse struct {
	ServerVersion   string          `json:"server_version"`
	ProtocolVersion uint8           `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	Permission      PermissionLevel `json:"permission"`
}

// AuthRequest is sent to authenticate a client. Method "peer" asks the
// server to check socket peer credentials; "token" is reserved for browser
// bridge clients that cannot present a same-user socket.
type AuthRequest struct {
	Method string `json:"method"` // "peer", "token"
	PID    int    `json:"pid,omitempty"`
	Token  string `json:"token,omitempty"`
}

// AuthResponse acknowledges authentication
type AuthResponse struct {
	Success    bool            `json:"success"`
	Permission PermissionLevel `json:"permission"`
	Error      string          `json:"error,omitempty"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error codes
const (
	ErrUnknown          = 1
	ErrInvalidRequest   = 2
	ErrNotFound         = 3
	ErrPermissionDenied = 4
	ErrInternalError    = 5
	ErrStoreLocked      = 6
	ErrRunInProgress    = 7
	ErrSelectionOpen    = 8
	ErrNoMatch          = 9
	ErrBadSequence      = 10
)

// StatusRequest requests daemon status
type StatusRequest struct {
	IncludeStores bool `json:"include_stores,omitempty"`
	IncludeConfig bool `json:"include_config,omitempty"`
}

// StatusResponse contains daemon status
type StatusResponse struct {
	Version      string         `json:"version"`
	Uptime       time.Duration  `json:"uptime"`
	StartedAt    time.Time      `json:"started_at"`
	Phase        string         `json:"phase"` // idle, running, awaiting-selection, deferred
	PendingTitle string         `json:"pending_title,omitempty"`
	OpenStores   int            `json:"open_stores"`
	EntryCount   int            `json:"entry_count"`
	Stores       []StoreSummary `json:"stores,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

// StoreSummary provides brief credential store info
type StoreSummary struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Open    bool   `json:"open"`
	Entries int    `json:"entries,omitempty"` // only populated while open
}

// ListStoresRequest requests the registered store list
type ListStoresRequest struct{}

// ListStoresResponse contains the registered store list
type ListStoresResponse struct {
	Stores []StoreSummary `json:"stores"`
}

// UnlockStoreRequest asks the daemon to unlock a store. The passphrase
// travels over the local socket only and must never be logged.
type UnlockStoreRequest struct {
	Store      string `json:"store"`
	Passphrase string `json:"passphrase"`
}

// UnlockStoreResponse acknowledges an unlock attempt
type UnlockStoreResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// LockStoreRequest asks the daemon to lock a store. An empty store name
// locks everything.
type LockStoreRequest struct {
	Store string `json:"store,omitempty"`
}

// LockStoreResponse acknowledges a lock request
type LockStoreResponse struct {
	Success bool     `json:"success"`
	Locked  []string `json:"locked,omitempty"`
}

// ListEntriesRequest requests entry summaries from open stores
type ListEntriesRequest struct {
	Store string `json:"store,omitempty"` // empty means all open stores
	Query string `json:"query,omitempty"` // case-insensitive title substring
}

// EntrySummary is the listable view of an entry. No field values, secret
// or otherwise, appear here.
type EntrySummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Username  string `json:"username,omitempty"`
	URL       string `json:"url,omitempty"`
	Store     string `json:"store"`
	Sequence  string `json:"sequence,omitempty"` // entry-level override template
	Obfuscate bool   `json:"obfuscate,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// ListEntriesResponse contains entry summaries
type ListEntriesResponse struct {
	Entries []EntrySummary `json:"entries"`
}

// TypeEntryRequest triggers a typing run for a named entry. EntryID wins
// over Title when both are set. Sequence overrides the entry's template
// for this run only.
type TypeEntryRequest struct {
	EntryID  string `json:"entry_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Sequence string `json:"sequence,omitempty"`
}

// TypeGlobalRequest triggers window-matched typing, as the hotkey would.
// WindowTitle and WindowURL, when set, stand in for the live focus query;
// browser bridges use this to pass the page context.
type TypeGlobalRequest struct {
	WindowTitle string `json:"window_title,omitempty"`
	WindowURL   string `json:"window_url,omitempty"`
}

// TypeResponse reports the outcome of a typing request
type TypeResponse struct {
	Success  bool   `json:"success"`
	Deferred bool   `json:"deferred,omitempty"` // parked until a store unlocks
	Canceled bool   `json:"canceled,omitempty"` // user dismissed the picker
	Entry    string `json:"entry,omitempty"`    // title of the entry typed
	Error    string `json:"error,omitempty"`
}

// ValidateRequest asks for a dry-run parse and resolution of a sequence.
// EntryID or Title selects the entry to resolve against; with neither set
// the sequence resolves against an empty entry.
type ValidateRequest struct {
	Sequence string `json:"sequence"`
	EntryID  string `json:"entry_id,omitempty"`
	Title    string `json:"title,omitempty"`
}

// ValidateResponse reports the dry-run result. Rendered is the op tree with
// secret-bearing text redacted.
type ValidateResponse struct {
	Valid    bool   `json:"valid"`
	Rendered string `json:"rendered,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CancelPendingRequest drops a deferred trigger
type CancelPendingRequest struct{}

// CancelPendingResponse acknowledges the cancel
type CancelPendingResponse struct {
	Success    bool `json:"success"`
	WasPending bool `json:"was_pending"`
}

// ConfigRequest requests configuration
type ConfigRequest struct {
	Keys []string `json:"keys,omitempty"` // empty returns all keys
}

// ConfigResponse contains configuration
type ConfigResponse struct {
	Config map[string]any `json:"config"`
}

// ReloadConfigRequest asks the daemon to re-read its config file
type ReloadConfigRequest struct{}

// ReloadConfigResponse acknowledges the reload
type ReloadConfigResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SubscribeRequest requests event subscription
type SubscribeRequest struct {
	Events []EventType `json:"events"` // empty means all events
}

// SubscribeResponse acknowledges subscription
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// UnsubscribeRequest requests event unsubscription
type UnsubscribeRequest struct {
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// Event is a streamed event. Data carries routing metadata only: entry and
// store names, window titles, error text. Never field values.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// ImportRequest imports entries into an open store. Data is a complete
// exchange document; the client reads the file, the daemon never touches
// client paths.
type ImportRequest struct {
	Store  string `json:"store,omitempty"` // empty targets the only open store
	Format string `json:"format"`          // "json" or "yaml"
	Data   []byte `json:"data"`
}

// ImportResponse acknowledges an import
type ImportResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// ExportRequest exports an open store's entries as an exchange document.
// The response carries decrypted credentials; full control permission is
// required.
type ExportRequest struct {
	Store  string `json:"store,omitempty"`
	Format string `json:"format"` // "json" or "yaml"
}

// ExportResponse contains the exported document
type ExportResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Data    []byte `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ShutdownRequest asks the daemon to exit
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request
type ShutdownResponse struct {
	Stopping bool `json:"stopping"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
