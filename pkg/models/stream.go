package models

import "time"

// SessionState represents the current state of the casting session
type SessionState string

const (
	SessionStateIdle     SessionState = "idle"
	SessionStateStarting SessionState = "starting"
	SessionStateActive   SessionState = "active"
	SessionStateStopping SessionState = "stopping"
	SessionStateFailed   SessionState = "failed"
)

// ClientInfo describes the viewer currently attached to the stream server.
type ClientInfo struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remoteAddr"`
	AttachedAt time.Time `json:"attachedAt"`
	BytesSent  uint64    `json:"bytesSent"`
	UnitsSent  uint64    `json:"unitsSent"`
}

// SessionInfo is a point-in-time snapshot of the session returned by the API
type SessionInfo struct {
	ID         string         `json:"id,omitempty"`
	State      SessionState   `json:"state"`
	Streaming  bool           `json:"streaming"`
	Config     *CaptureConfig `json:"config,omitempty"`
	StartedAt  string         `json:"startedAt,omitempty"`
	Uptime     int            `json:"uptime,omitempty"` // seconds
	ListenAddr string         `json:"listenAddr,omitempty"`
	Client     *ClientInfo    `json:"client,omitempty"`
}
