package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pkale/intervue/internal/audio"
	"github.com/pkale/intervue/internal/backend"
)

type recorderMock struct {
	mu       sync.Mutex
	active   bool
	begins   int
	ends     int
	beginErr error
	endErr   error
}

func (r *recorderMock) Begin(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beginErr != nil {
		return r.beginErr
	}
	if r.active {
		return audio.ErrCaptureActive
	}
	r.active = true
	r.begins++
	return nil
}

func (r *recorderMock) End(_ context.Context) (audio.Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return audio.Sample{}, audio.ErrNotCapturing
	}
	r.active = false
	r.ends++
	if r.endErr != nil {
		return audio.Sample{}, r.endErr
	}
	return audio.Sample{WAV: []byte("RIFFwav"), SampleRate: 16000}, nil
}

type scorerMock struct {
	mu      sync.Mutex
	calls   int
	errOn   map[int]error
	gate    chan struct{}
	answers []string
}

func (s *scorerMock) ScoreAnswer(_ context.Context, _ audio.Sample, correctAnswer string) (backend.Score, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	gate := s.gate
	s.answers = append(s.answers, correctAnswer)
	err := s.errOn[call]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return backend.Score{}, err
	}
	return backend.Score{Text: "spoken " + correctAnswer, Emotion: "neutral", Similarity: 80}, nil
}

type notifierMock struct {
	mu        sync.Mutex
	phases    []Phase
	errors    []string
	results   []Result
	completed []string
}

func (n *notifierMock) NotifyPhase(_ string, phase Phase, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.phases = append(n.phases, phase)
}

func (n *notifierMock) NotifyResult(_ string, _ int, r Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, r)
}

func (n *notifierMock) NotifyCompleted(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, sessionID)
}

func (n *notifierMock) NotifyError(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *notifierMock) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

type storeMock struct {
	mu        sync.Mutex
	sessions  map[string]int
	results   map[string][]Result
	completed map[string]bool
}

func newStoreMock() *storeMock {
	return &storeMock{
		sessions:  map[string]int{},
		results:   map[string][]Result{},
		completed: map[string]bool{},
	}
}

func (s *storeMock) CreateSession(id string, questions []QuestionAnswer, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = len(questions)
	return nil
}

func (s *storeMock) AppendResult(sessionID string, _ int, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[sessionID] = append(s.results[sessionID], r)
	return nil
}

func (s *storeMock) CompleteSession(id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[id] = true
	return nil
}

func threeQuestions() []QuestionAnswer {
	return []QuestionAnswer{
		{Question: "Q1", ReferenceAnswer: "A1"},
		{Question: "Q2", ReferenceAnswer: "A2"},
		{Question: "Q3", ReferenceAnswer: "A3"},
	}
}

func newTestController(scorer *scorerMock) (*Controller, *recorderMock, *notifierMock, *storeMock) {
	rec := &recorderMock{}
	notifier := &notifierMock{}
	store := newStoreMock()
	return NewController(rec, scorer, notifier, store), rec, notifier, store
}

func answerOne(t *testing.T, c *Controller) {
	t.Helper()
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestFullSessionInOrder(t *testing.T) {
	scorer := &scorerMock{}
	c, rec, notifier, store := newTestController(scorer)

	sessionID, err := c.LoadQuestions(threeQuestions())
	if err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}

	for i := 0; i < 3; i++ {
		answerOne(t, c)

		st := c.State()
		if got := len(c.Results()); got != st.Index {
			t.Fatalf("after question %d: ledger length %d != index %d", i, got, st.Index)
		}
	}

	st := c.State()
	if st.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want completed", st.Phase)
	}
	if st.Index != 3 {
		t.Fatalf("index = %d, want 3", st.Index)
	}

	results := c.Results()
	if len(results) != 3 {
		t.Fatalf("ledger length = %d, want 3", len(results))
	}
	for i, want := range []string{"Q1", "Q2", "Q3"} {
		if results[i].Question != want {
			t.Fatalf("results[%d].Question = %q, want %q", i, results[i].Question, want)
		}
	}
	if results[0].UserAnswer != "spoken A1" || results[0].Emotion != "neutral" {
		t.Fatalf("results[0] = %+v", results[0])
	}

	if rec.begins != 3 || rec.ends != 3 {
		t.Fatalf("device acquired %d released %d, want 3/3", rec.begins, rec.ends)
	}
	notifier.mu.Lock()
	completed := append([]string(nil), notifier.completed...)
	notifier.mu.Unlock()
	if len(completed) != 1 || completed[0] != sessionID {
		t.Fatalf("completed notifications = %v", completed)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if !store.completed[sessionID] || len(store.results[sessionID]) != 3 {
		t.Fatalf("store: completed=%v results=%d", store.completed[sessionID], len(store.results[sessionID]))
	}
}

func TestSubmitFailureRetriesSameQuestion(t *testing.T) {
	scorer := &scorerMock{errOn: map[int]error{2: errors.New("network down")}}
	c, _, notifier, _ := newTestController(scorer)

	if _, err := c.LoadQuestions(threeQuestions()); err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}

	answerOne(t, c)

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start q2: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop q2: %v", err)
	}
	if err := c.Submit(ctx); err == nil {
		t.Fatal("expected submit failure on question 2")
	}

	st := c.State()
	if st.Index != 1 || st.Phase != PhaseIdle {
		t.Fatalf("after failure: index=%d phase=%s, want 1/idle", st.Index, st.Phase)
	}
	if got := len(c.Results()); got != 1 {
		t.Fatalf("ledger length = %d, want 1", got)
	}
	if st.PendingSample {
		t.Fatal("failed submit must discard the sample")
	}
	if notifier.errorCount() == 0 {
		t.Fatal("expected a transient error notification")
	}

	// The question is retried by re-recording.
	answerOne(t, c)
	answerOne(t, c)

	if st := c.State(); st.Phase != PhaseCompleted {
		t.Fatalf("phase after retry = %s, want completed", st.Phase)
	}
	if got := len(c.Results()); got != 3 {
		t.Fatalf("ledger length = %d, want 3", got)
	}
}

func TestLoadQuestionsResetsLedger(t *testing.T) {
	scorer := &scorerMock{}
	c, _, _, _ := newTestController(scorer)

	if _, err := c.LoadQuestions(threeQuestions()); err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}
	answerOne(t, c)
	if got := len(c.Results()); got != 1 {
		t.Fatalf("ledger length = %d, want 1", got)
	}

	first := c.State().SessionID
	second, err := c.LoadQuestions(threeQuestions())
	if err != nil {
		t.Fatalf("second LoadQuestions: %v", err)
	}
	if second == first {
		t.Fatal("new session must get a new id")
	}

	st := c.State()
	if st.Index != 0 || st.Phase != PhaseIdle {
		t.Fatalf("after reset: index=%d phase=%s", st.Index, st.Phase)
	}
	if got := len(c.Results()); got != 0 {
		t.Fatalf("ledger not reset: length = %d", got)
	}
}

func TestStartRejectedOutsideIdle(t *testing.T) {
	scorer := &scorerMock{}
	c, rec, _, _ := newTestController(scorer)

	if _, err := c.LoadQuestions(threeQuestions()); err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Start while recording = %v, want ErrInvalidTransition", err)
	}
	if rec.begins != 1 {
		t.Fatalf("device acquired %d times, want 1", rec.begins)
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Start(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Start while awaiting = %v, want ErrInvalidTransition", err)
	}
}

func TestStartDeviceUnavailable(t *testing.T) {
	scorer := &scorerMock{}
	c, rec, notifier, _ := newTestController(scorer)
	rec.beginErr = audio.ErrDeviceUnavailable

	if _, err := c.LoadQuestions(threeQuestions()); err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}

	err := c.Start(context.Background())
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("Start = %v, want ErrDeviceUnavailable", err)
	}

	st := c.State()
	if st.Phase != PhaseIdle || st.Index != 0 {
		t.Fatalf("after device failure: phase=%s index=%d", st.Phase, st.Index)
	}
	if notifier.errorCount() != 1 {
		t.Fatalf("notifications = %d, want 1", notifier.errorCount())
	}

	// Retry succeeds once the device comes back.
	rec.mu.Lock()
	rec.beginErr = nil
	rec.mu.Unlock()
	answerOne(t, c)
	if got := len(c.Results()); got != 1 {
		t.Fatalf("ledger length = %d, want 1", got)
	}
}

func TestSubmitRequiresPendingSample(t *testing.T) {
	scorer := &scorerMock{}
	c, _, _, _ := newTestController(scorer)

	if _, err := c.LoadQuestions(threeQuestions()); err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}

	if err := c.Submit(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Submit from idle = %v, want ErrInvalidTransition", err)
	}
	if scorer.calls != 0 {
		t.Fatalf("scorer called %d times, want 0", scorer.calls)
	}
}

func TestEmptyQuestionSet(t *testing.T) {
	scorer := &scorerMock{}
	c, rec, _, store := newTestController(scorer)

	if _, err := c.LoadQuestions(nil); err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}

	if err := c.Start(context.Background()); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("Start = %v, want ErrNoQuestions", err)
	}
	if rec.begins != 0 {
		t.Fatal("device must not be touched without questions")
	}

	st := c.State()
	if st.Total != 0 || st.Phase != PhaseIdle {
		t.Fatalf("state = %+v", st)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.sessions) != 0 {
		t.Fatal("empty question set must not persist a session")
	}
}

func TestLateScoreResolutionDiscarded(t *testing.T) {
	gate := make(chan struct{})
	scorer := &scorerMock{gate: gate}
	c, _, _, _ := newTestController(scorer)

	if _, err := c.LoadQuestions(threeQuestions()); err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	submitDone := make(chan error, 1)
	go func() { submitDone <- c.Submit(ctx) }()

	// Wait for the scoring request to be in flight, then replace the session.
	for {
		scorer.mu.Lock()
		inFlight := scorer.calls == 1
		scorer.mu.Unlock()
		if inFlight {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := c.LoadQuestions(threeQuestions()); err != nil {
		t.Fatalf("LoadQuestions during processing: %v", err)
	}

	close(gate)
	if err := <-submitDone; !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("late submit = %v, want ErrSessionClosed", err)
	}

	if got := len(c.Results()); got != 0 {
		t.Fatalf("torn-down result applied to new ledger: length = %d", got)
	}
	if st := c.State(); st.Index != 0 || st.Phase != PhaseIdle {
		t.Fatalf("new session state = %+v", st)
	}
}

func TestCloseDiscardsInFlightWork(t *testing.T) {
	gate := make(chan struct{})
	scorer := &scorerMock{gate: gate}
	c, _, _, _ := newTestController(scorer)

	if _, err := c.LoadQuestions(threeQuestions()); err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	submitDone := make(chan error, 1)
	go func() { submitDone <- c.Submit(ctx) }()

	for {
		scorer.mu.Lock()
		inFlight := scorer.calls == 1
		scorer.mu.Unlock()
		if inFlight {
			break
		}
		time.Sleep(time.Millisecond)
	}

	c.Close()
	close(gate)

	if err := <-submitDone; !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("submit after close = %v, want ErrSessionClosed", err)
	}
	if got := len(c.Results()); got != 0 {
		t.Fatalf("ledger mutated after close: length = %d", got)
	}
	if err := c.Start(ctx); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Start after close = %v, want ErrSessionClosed", err)
	}
}

func TestStopFinalizeFailureRevertsToIdle(t *testing.T) {
	scorer := &scorerMock{}
	c, rec, notifier, _ := newTestController(scorer)
	rec.endErr = errors.New("stream torn")

	if _, err := c.LoadQuestions(threeQuestions()); err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(ctx); err == nil {
		t.Fatal("expected finalize failure")
	}

	st := c.State()
	if st.Phase != PhaseIdle || st.PendingSample {
		t.Fatalf("after finalize failure: %+v", st)
	}
	if notifier.errorCount() != 1 {
		t.Fatalf("notifications = %d, want 1", notifier.errorCount())
	}
}

func TestResume(t *testing.T) {
	scorer := &scorerMock{}
	c, _, _, _ := newTestController(scorer)

	prior := []Result{
		{Question: "Q1", CorrectAnswer: "A1", UserAnswer: "spoken A1", Emotion: "calm", Similarity: 90},
		{Question: "Q2", CorrectAnswer: "A2", UserAnswer: "spoken A2", Emotion: "calm", Similarity: 70},
	}
	if err := c.Resume("sess_prior", threeQuestions(), prior); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	st := c.State()
	if st.Index != 2 || st.Phase != PhaseIdle || st.Question != "Q3" {
		t.Fatalf("resumed state = %+v", st)
	}

	answerOne(t, c)

	if st := c.State(); st.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want completed", st.Phase)
	}
	results := c.Results()
	if len(results) != 3 || results[0].Similarity != 90 || results[2].Question != "Q3" {
		t.Fatalf("results = %+v", results)
	}
}

func TestResumeFullyCompleted(t *testing.T) {
	scorer := &scorerMock{}
	c, _, _, _ := newTestController(scorer)

	qa := []QuestionAnswer{{Question: "Q1", ReferenceAnswer: "A1"}}
	results := []Result{{Question: "Q1", CorrectAnswer: "A1"}}
	if err := c.Resume("sess_done", qa, results); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if st := c.State(); st.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want completed", st.Phase)
	}
}

func TestResumeTooManyResults(t *testing.T) {
	scorer := &scorerMock{}
	c, _, _, _ := newTestController(scorer)

	qa := []QuestionAnswer{{Question: "Q1", ReferenceAnswer: "A1"}}
	results := []Result{{Question: "Q1"}, {Question: "Q2"}}
	if err := c.Resume("sess_bad", qa, results); !errors.Is(err, ErrSequenceViolation) {
		t.Fatalf("Resume = %v, want ErrSequenceViolation", err)
	}
}

func TestCompletionHook(t *testing.T) {
	scorer := &scorerMock{}
	c, _, _, _ := newTestController(scorer)

	var hookSession string
	var hookResults int
	done := make(chan struct{})
	c.OnCompleted(func(sessionID string, results []Result) {
		hookSession = sessionID
		hookResults = len(results)
		close(done)
	})

	qa := []QuestionAnswer{{Question: "Q1", ReferenceAnswer: "A1"}}
	sessionID, err := c.LoadQuestions(qa)
	if err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}
	answerOne(t, c)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("completion hook not invoked")
	}
	if hookSession != sessionID || hookResults != 1 {
		t.Fatalf("hook got %q/%d", hookSession, hookResults)
	}
}
