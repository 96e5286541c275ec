package interview

import (
	"context"
	"time"

	"github.com/pkale/intervue/internal/audio"
	"github.com/pkale/intervue/internal/backend"
)

// QuestionAnswer is one interview question with its reference answer. The
// ordered sequence is supplied once at session start and never mutated;
// index in the sequence is the canonical question identity.
type QuestionAnswer struct {
	Question        string `json:"question"`
	ReferenceAnswer string `json:"reference_answer"`
}

// Result is the scored outcome for one question. Immutable once created.
type Result struct {
	Question      string  `json:"question"`
	CorrectAnswer string  `json:"correct_answer"`
	UserAnswer    string  `json:"user_answer"`
	Emotion       string  `json:"emotion"`
	Similarity    float64 `json:"similarity"`
}

// Recorder owns the audio input device between Begin and End.
type Recorder interface {
	Begin(ctx context.Context) error
	End(ctx context.Context) (audio.Sample, error)
}

// Scorer submits one finalized sample for scoring. Implementations perform
// exactly one request per call and no retries.
type Scorer interface {
	ScoreAnswer(ctx context.Context, sample audio.Sample, correctAnswer string) (backend.Score, error)
}

// Notifier is the one-way sink for user-facing session events. All methods
// must be non-blocking; implementations drop rather than stall.
type Notifier interface {
	NotifyPhase(sessionID string, phase Phase, index int)
	NotifyResult(sessionID string, index int, result Result)
	NotifyCompleted(sessionID string)
	NotifyError(message string)
}

// Store persists session progress so an interrupted session can be resumed.
// Persistence failures are logged and never fail the interview flow.
type Store interface {
	CreateSession(id string, questions []QuestionAnswer, createdAt time.Time) error
	AppendResult(sessionID string, position int, result Result) error
	CompleteSession(id string, completedAt time.Time) error
}
