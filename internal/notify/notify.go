// Package notify carries informational session events to the host.
// Delivery is fire-and-forget: a Notifier must never block the pipeline.
package notify

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Event names one host-facing session milestone.
type Event string

const (
	EventServerStarted   Event = "server started"
	EventAwaitingClient  Event = "awaiting client"
	EventClientConnected Event = "client connected"
	EventSessionStopped  Event = "session stopped"
	EventSessionFailed   Event = "session ended unexpectedly"
)

// Notification is one event with its context.
type Notification struct {
	Event     Event     `json:"event"`
	SessionID string    `json:"sessionId,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier receives notifications. Implementations must return promptly.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a plain function to a Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, nt := range m {
		if nt != nil {
			nt.Notify(n)
		}
	}
}

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Log writes notifications to a logrus logger.
type Log struct {
	Logger logrus.FieldLogger
}

func (l Log) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("event", string(n.Event))
	if n.SessionID != "" {
		entry = entry.WithField("session", n.SessionID)
	}
	if n.Detail != "" {
		entry = entry.WithField("detail", n.Detail)
	}
	if n.Event == EventSessionFailed {
		entry.Warn("session notification")
		return
	}
	entry.Info("session notification")
}

// New stamps a notification with the current time.
func New(event Event, sessionID, detail string) Notification {
	return Notification{
		Event:     event,
		SessionID: sessionID,
		Detail:    detail,
		Time:      time.Now(),
	}
}
