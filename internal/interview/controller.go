// Package interview holds the session state machine: it sequences
// questions, coordinates the capture stream and the scoring round-trip, and
// reconciles their asynchronous results into the ordered ledger.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkale/intervue/internal/audio"
)

// State is a read-only snapshot of the session for display.
type State struct {
	SessionID     string `json:"session_id"`
	Phase         Phase  `json:"phase"`
	Index         int    `json:"index"`
	Total         int    `json:"total"`
	Question      string `json:"question,omitempty"`
	PendingSample bool   `json:"pending_sample"`
}

// Controller owns all mutable session state. Every transition happens under
// one mutex; backend and device round-trips run outside it, with an epoch
// check before their results are applied so that completions resolving after
// a reset or teardown are discarded.
type Controller struct {
	recorder Recorder
	scorer   Scorer
	notifier Notifier
	store    Store

	onCompleted func(sessionID string, results []Result)

	mu         sync.Mutex
	sessionID  string
	questions  []QuestionAnswer
	index      int
	phase      Phase
	pending    *audio.Sample
	finalizing bool
	ledger     *Ledger
	epoch      uint64
	closed     bool
}

func NewController(recorder Recorder, scorer Scorer, notifier Notifier, store Store) *Controller {
	return &Controller{
		recorder: recorder,
		scorer:   scorer,
		notifier: notifier,
		store:    store,
		phase:    PhaseIdle,
		ledger:   NewLedger(),
	}
}

// OnCompleted registers a hook invoked once per session after the final
// result is appended. Called outside the controller lock.
func (c *Controller) OnCompleted(fn func(sessionID string, results []Result)) {
	c.onCompleted = fn
}

// LoadQuestions installs a new ordered question set and begins a fresh
// session: index 0, empty ledger, idle phase. Any in-flight operation from
// the previous session resolves against a stale epoch and is discarded.
// An empty set is valid; Start will refuse until questions are loaded.
func (c *Controller) LoadQuestions(questions []QuestionAnswer) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrSessionClosed
	}

	wasRecording := c.phase == PhaseRecording

	sessionID := "sess_" + uuid.NewString()
	c.sessionID = sessionID
	c.questions = append([]QuestionAnswer(nil), questions...)
	c.index = 0
	c.phase = PhaseIdle
	c.pending = nil
	c.finalizing = false
	c.ledger.Reset()
	c.epoch++
	c.mu.Unlock()

	if wasRecording {
		// Release the device; the sample belongs to the abandoned session.
		if _, err := c.recorder.End(context.Background()); err != nil && !errors.Is(err, audio.ErrNotCapturing) {
			log.Printf("warning: release capture on reset: %v", err)
		}
	}

	if len(questions) > 0 && c.store != nil {
		if err := c.store.CreateSession(sessionID, questions, time.Now().UTC()); err != nil {
			log.Printf("warning: persist session %s: %v", sessionID, err)
		}
	}

	c.notifyPhase(sessionID, PhaseIdle, 0)
	return sessionID, nil
}

// Resume restores a partially-completed session: the question set plus the
// results already recorded. The next unanswered question becomes current.
func (c *Controller) Resume(sessionID string, questions []QuestionAnswer, results []Result) error {
	if len(results) > len(questions) {
		return fmt.Errorf("%w: %d results for %d questions", ErrSequenceViolation, len(results), len(questions))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionClosed
	}

	c.sessionID = sessionID
	c.questions = append([]QuestionAnswer(nil), questions...)
	c.ledger.Reset()
	for i, r := range results {
		if err := c.ledger.Append(i, r); err != nil {
			return err
		}
	}
	c.index = len(results)
	if c.index == len(questions) && len(questions) > 0 {
		c.phase = PhaseCompleted
	} else {
		c.phase = PhaseIdle
	}
	c.pending = nil
	c.finalizing = false
	c.epoch++
	return nil
}

// Start acquires the microphone and enters the recording phase. Valid only
// from idle; a denied or missing device surfaces a transient notification
// and leaves the session in idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if len(c.questions) == 0 {
		c.mu.Unlock()
		return ErrNoQuestions
	}
	next, err := Transition(c.phase, EventStart)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.index >= len(c.questions) {
		c.mu.Unlock()
		return fmt.Errorf("question %d out of range: %w", c.index, ErrNoQuestions)
	}

	// Claim the recording phase before touching the device so a concurrent
	// Start is rejected rather than racing for the microphone.
	c.phase = next
	epoch := c.epoch
	sessionID := c.sessionID
	index := c.index
	c.mu.Unlock()

	if err := c.recorder.Begin(ctx); err != nil {
		c.mu.Lock()
		if c.epoch == epoch && !c.closed {
			c.phase = PhaseIdle
		}
		c.mu.Unlock()

		c.notifyError("Microphone access denied or unavailable.")
		return err
	}

	c.mu.Lock()
	if c.epoch != epoch || c.closed {
		c.mu.Unlock()
		if _, endErr := c.recorder.End(context.Background()); endErr != nil && !errors.Is(endErr, audio.ErrNotCapturing) {
			log.Printf("warning: release stale capture: %v", endErr)
		}
		return ErrSessionClosed
	}
	c.mu.Unlock()

	c.notifyPhase(sessionID, PhaseRecording, index)
	return nil
}

// Stop ends capture and finalizes the sample. Finalization is not
// instantaneous: buffered chunks drain before the sample is complete, and
// only then does the session hold a pending sample in awaiting_submission.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.finalizing {
		c.mu.Unlock()
		return fmt.Errorf("%w: finalization already in progress", ErrInvalidTransition)
	}
	if c.phase != PhaseRecording {
		err := invalidTransition(c.phase, EventFinalized)
		c.mu.Unlock()
		return err
	}
	c.finalizing = true
	epoch := c.epoch
	sessionID := c.sessionID
	index := c.index
	c.mu.Unlock()

	sample, err := c.recorder.End(ctx)

	c.mu.Lock()
	c.finalizing = false
	if c.epoch != epoch || c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if err != nil {
		c.phase = PhaseIdle
		c.mu.Unlock()
		c.notifyError("Recording failed. Try again.")
		return err
	}
	c.pending = &sample
	c.phase = PhaseAwaiting
	c.mu.Unlock()

	c.notifyPhase(sessionID, PhaseAwaiting, index)
	return nil
}

// Submit sends the pending sample with the current question's reference
// answer for scoring. On success the result is appended at the current
// index and the session advances; on failure the sample is discarded and
// the session returns to idle at the same index so the question can be
// retried. Exactly one scoring request is ever in flight.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	next, err := Transition(c.phase, EventSubmit)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.pending == nil {
		c.mu.Unlock()
		return ErrNoPendingSample
	}

	sample := *c.pending
	qa := c.questions[c.index]
	index := c.index
	sessionID := c.sessionID
	epoch := c.epoch
	c.phase = next
	c.mu.Unlock()

	c.notifyPhase(sessionID, PhaseProcessing, index)

	score, err := c.scorer.ScoreAnswer(ctx, sample, qa.ReferenceAnswer)

	c.mu.Lock()
	if c.epoch != epoch || c.closed {
		// The session this request belonged to is gone; never apply its
		// outcome to the replacement ledger.
		c.mu.Unlock()
		return ErrSessionClosed
	}

	c.pending = nil

	if err != nil {
		c.phase = PhaseIdle
		c.mu.Unlock()
		c.notifyError("Error processing voice. Try again.")
		c.notifyPhase(sessionID, PhaseIdle, index)
		return err
	}

	result := Result{
		Question:      qa.Question,
		CorrectAnswer: qa.ReferenceAnswer,
		UserAnswer:    score.Text,
		Emotion:       score.Emotion,
		Similarity:    score.Similarity,
	}
	if err := c.ledger.Append(index, result); err != nil {
		c.phase = PhaseIdle
		c.mu.Unlock()
		return err
	}

	c.index++
	completed := c.index == len(c.questions)
	if completed {
		c.phase = PhaseCompleted
	} else {
		c.phase = PhaseIdle
	}
	nextIndex := c.index
	var snapshot []Result
	if completed {
		snapshot = c.ledger.Snapshot()
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.AppendResult(sessionID, index, result); err != nil {
			log.Printf("warning: persist result %d for session %s: %v", index, sessionID, err)
		}
	}

	c.notifyResult(sessionID, index, result)

	if completed {
		if c.store != nil {
			if err := c.store.CompleteSession(sessionID, time.Now().UTC()); err != nil {
				log.Printf("warning: mark session %s completed: %v", sessionID, err)
			}
		}
		c.notifyPhase(sessionID, PhaseCompleted, nextIndex)
		if c.notifier != nil {
			c.notifier.NotifyCompleted(sessionID)
		}
		if c.onCompleted != nil {
			c.onCompleted(sessionID, snapshot)
		}
	} else {
		c.notifyPhase(sessionID, PhaseIdle, nextIndex)
	}

	return nil
}

// State returns a display snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		SessionID:     c.sessionID,
		Phase:         c.phase,
		Index:         c.index,
		Total:         len(c.questions),
		PendingSample: c.pending != nil,
	}
	if c.index < len(c.questions) {
		s.Question = c.questions[c.index].Question
	}
	return s
}

// Results returns a copy of the ledger in question order.
func (c *Controller) Results() []Result {
	return c.ledger.Snapshot()
}

// Close tears the session down. Any in-flight completion is discarded and
// the capture device is released.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	wasRecording := c.phase == PhaseRecording
	c.closed = true
	c.epoch++
	c.pending = nil
	c.mu.Unlock()

	if wasRecording {
		if _, err := c.recorder.End(context.Background()); err != nil && !errors.Is(err, audio.ErrNotCapturing) {
			log.Printf("warning: release capture on close: %v", err)
		}
	}
}

func (c *Controller) notifyPhase(sessionID string, phase Phase, index int) {
	if c.notifier != nil {
		c.notifier.NotifyPhase(sessionID, phase, index)
	}
}

func (c *Controller) notifyResult(sessionID string, index int, r Result) {
	if c.notifier != nil {
		c.notifier.NotifyResult(sessionID, index, r)
	}
}

func (c *Controller) notifyError(message string) {
	if c.notifier != nil {
		c.notifier.NotifyError(message)
	}
}
