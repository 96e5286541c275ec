package server

import (
	"time"

	"github.com/pkale/intervue/internal/interview"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type PhaseChangedEvent struct {
	Event
	SessionID string          `json:"session_id"`
	Phase     interview.Phase `json:"phase"`
	Index     int             `json:"index"`
}

type ResultAppendedEvent struct {
	Event
	SessionID string           `json:"session_id"`
	Index     int              `json:"index"`
	Result    interview.Result `json:"result"`
}

type SessionCompletedEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type AnomalyEvent struct {
	Event
	Label string `json:"label"`
}

type NotificationEvent struct {
	Event
	Message string `json:"message"`
}

type FeedbackReadyEvent struct {
	Event
	SessionID string `json:"session_id"`
	Feedback  string `json:"feedback"`
	Status    string `json:"status"`
}

// StateEvent is the first frame on a websocket connection: a full snapshot of
// the session so clients resync after a reconnect.
type StateEvent struct {
	Event
	State interview.State `json:"state"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
