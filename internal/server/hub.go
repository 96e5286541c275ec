package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/pkale/intervue/internal/interview"
)

// Hub fans session events out to connected clients. It is the one-way
// notification sink shared by the session controller and the surveillance
// poller; sends never block, slow clients drop messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// NotifyPhase implements interview.Notifier.
func (h *Hub) NotifyPhase(sessionID string, phase interview.Phase, index int) {
	h.broadcastEvent(PhaseChangedEvent{
		Event:     newEvent("phase_changed", time.Now().UTC()),
		SessionID: sessionID,
		Phase:     phase,
		Index:     index,
	})
}

// NotifyResult implements interview.Notifier.
func (h *Hub) NotifyResult(sessionID string, index int, result interview.Result) {
	h.broadcastEvent(ResultAppendedEvent{
		Event:     newEvent("result_appended", time.Now().UTC()),
		SessionID: sessionID,
		Index:     index,
		Result:    result,
	})
}

// NotifyCompleted implements interview.Notifier.
func (h *Hub) NotifyCompleted(sessionID string) {
	h.broadcastEvent(SessionCompletedEvent{
		Event:     newEvent("session_completed", time.Now().UTC()),
		SessionID: sessionID,
	})
}

// NotifyError implements interview.Notifier. All recoverable session errors
// surface as non-blocking notifications.
func (h *Hub) NotifyError(message string) {
	h.broadcastEvent(NotificationEvent{
		Event:   newEvent("notification", time.Now().UTC()),
		Message: message,
	})
}

// NotifyAnomaly implements watch.AlertSink.
func (h *Hub) NotifyAnomaly(label string) {
	h.broadcastEvent(AnomalyEvent{
		Event: newEvent("anomaly_detected", time.Now().UTC()),
		Label: label,
	})
}

func (h *Hub) BroadcastFeedbackReady(sessionID, feedback, status string) {
	h.broadcastEvent(FeedbackReadyEvent{
		Event:     newEvent("feedback_ready", time.Now().UTC()),
		SessionID: sessionID,
		Feedback:  feedback,
		Status:    status,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
