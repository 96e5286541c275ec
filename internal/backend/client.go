// Package backend talks to the analysis backend. All routes are relative to
// a single base address resolved at startup.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkale/intervue/internal/audio"
)

// AllClear is the sentinel classification meaning no anomaly was detected.
const AllClear = "All clear"

// ErrMalformedResponse means the backend answered but the payload was
// missing required fields. Callers treat it the same as a network failure.
var ErrMalformedResponse = errors.New("malformed backend response")

// Score is the normalized outcome of one answer submission.
type Score struct {
	Text       string
	Emotion    string
	Similarity float64
}

// QuestionAnswer is one generated question with its reference answer.
type QuestionAnswer struct {
	Question string
	Answer   string
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type scoreResponse struct {
	Emotion    *string  `json:"emotion"`
	Text       *string  `json:"text"`
	Similarity *float64 `json:"similarity"`
}

// ScoreAnswer submits one finalized sample with the expected answer as a
// multipart request. Exactly one request per call; no retries here — the
// session controller owns the retry policy.
func (c *Client) ScoreAnswer(ctx context.Context, sample audio.Sample, correctAnswer string) (Score, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("audio", "answer.wav")
	if err != nil {
		return Score{}, fmt.Errorf("build audio part: %w", err)
	}
	if _, err := part.Write(sample.WAV); err != nil {
		return Score{}, fmt.Errorf("write audio part: %w", err)
	}
	if err := mw.WriteField("correct_answer", correctAnswer); err != nil {
		return Score{}, fmt.Errorf("write correct_answer field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Score{}, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/response", &body)
	if err != nil {
		return Score{}, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Score{}, fmt.Errorf("score request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Score{}, fmt.Errorf("score request: unexpected status %d", resp.StatusCode)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Score{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if decoded.Emotion == nil || decoded.Text == nil || decoded.Similarity == nil {
		return Score{}, fmt.Errorf("%w: missing emotion, text, or similarity", ErrMalformedResponse)
	}

	return Score{
		Text:       *decoded.Text,
		Emotion:    *decoded.Emotion,
		Similarity: *decoded.Similarity,
	}, nil
}

type cheatRequest struct {
	Image string `json:"image"`
}

type cheatResponse struct {
	Anomaly *string `json:"anomaly"`
}

// DetectCheat classifies a single webcam frame. The frame is sent as a
// base64 JSON field; the "All clear" sentinel means no alert.
func (c *Client) DetectCheat(ctx context.Context, frame []byte) (string, error) {
	payload, err := json.Marshal(cheatRequest{Image: base64.StdEncoding.EncodeToString(frame)})
	if err != nil {
		return "", fmt.Errorf("encode cheat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/cheat_detection", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build cheat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("cheat request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cheat request: unexpected status %d", resp.StatusCode)
	}

	var decoded cheatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if decoded.Anomaly == nil {
		return "", fmt.Errorf("%w: missing anomaly", ErrMalformedResponse)
	}

	return *decoded.Anomaly, nil
}

type qaResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Pairs   []struct {
		Question string `json:"Question"`
		Answer   string `json:"Answer"`
	} `json:"qa_pairs"`
}

// GenerateQuestions uploads a PDF document and returns the ordered
// question/answer pairs the ingestion service produced. An empty list is a
// valid response.
func (c *Client) GenerateQuestions(ctx context.Context, pdf io.Reader, filename string) ([]QuestionAnswer, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("pdf", filename)
	if err != nil {
		return nil, fmt.Errorf("build pdf part: %w", err)
	}
	if _, err := io.Copy(part, pdf); err != nil {
		return nil, fmt.Errorf("copy pdf payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/qa", &body)
	if err != nil {
		return nil, fmt.Errorf("build qa request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qa request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qa request: unexpected status %d", resp.StatusCode)
	}

	var decoded qaResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !decoded.Success {
		return nil, fmt.Errorf("question generation failed: %s", decoded.Message)
	}

	pairs := make([]QuestionAnswer, 0, len(decoded.Pairs))
	for _, p := range decoded.Pairs {
		pairs = append(pairs, QuestionAnswer{Question: p.Question, Answer: p.Answer})
	}
	return pairs, nil
}
