package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkale/intervue/internal/audio"
	"github.com/pkale/intervue/internal/backend"
	"github.com/pkale/intervue/internal/interview"
	"github.com/pkale/intervue/internal/report"
)

const maxPDFUpload = 32 << 20

// SessionController is the server-facing surface of the session state
// machine.
type SessionController interface {
	LoadQuestions(questions []interview.QuestionAnswer) (string, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Submit(ctx context.Context) error
	State() interview.State
	Results() []interview.Result
}

// QuestionGenerator produces the ordered question set from an uploaded
// document. backend.Client satisfies this.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, pdf io.Reader, filename string) ([]backend.QuestionAnswer, error)
}

// ReportUploader pushes an exported report to external storage. Optional.
type ReportUploader interface {
	Upload(ctx context.Context, name string, r io.Reader) error
}

func registerAPIRoutes(mux *http.ServeMux, ctrl SessionController, generator QuestionGenerator, uploader ReportUploader) {
	mux.HandleFunc("POST /api/questions", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxPDFUpload); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse upload: %v", err))
			return
		}

		file, header, err := r.FormFile("pdf")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "no pdf file uploaded")
			return
		}
		defer func() { _ = file.Close() }()

		pairs, err := generator.GenerateQuestions(r.Context(), file, header.Filename)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("generate questions: %v", err))
			return
		}

		questions := make([]interview.QuestionAnswer, 0, len(pairs))
		for _, p := range pairs {
			questions = append(questions, interview.QuestionAnswer{
				Question:        p.Question,
				ReferenceAnswer: p.Answer,
			})
		}

		sessionID, err := ctrl.LoadQuestions(questions)
		if err != nil {
			writeJSONError(w, statusForError(err), fmt.Sprintf("load questions: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": sessionID,
			"count":      len(questions),
		})
	})

	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ctrl.State())
	})

	mux.HandleFunc("POST /api/record/start", func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.Start(r.Context()); err != nil {
			writeJSONError(w, statusForError(err), fmt.Sprintf("start recording: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, ctrl.State())
	})

	mux.HandleFunc("POST /api/record/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.Stop(r.Context()); err != nil {
			writeJSONError(w, statusForError(err), fmt.Sprintf("stop recording: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, ctrl.State())
	})

	mux.HandleFunc("POST /api/answer", func(w http.ResponseWriter, r *http.Request) {
		if err := ctrl.Submit(r.Context()); err != nil {
			writeJSONError(w, statusForError(err), fmt.Sprintf("submit answer: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, ctrl.State())
	})

	mux.HandleFunc("GET /api/results", func(w http.ResponseWriter, r *http.Request) {
		results := ctrl.Results()
		if results == nil {
			results = []interview.Result{}
		}
		writeJSON(w, http.StatusOK, results)
	})

	mux.HandleFunc("GET /api/report", func(w http.ResponseWriter, r *http.Request) {
		st := ctrl.State()
		if st.Phase != interview.PhaseCompleted {
			writeJSONError(w, http.StatusConflict, "session not completed")
			return
		}

		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, report.Build(ctrl.Results())); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("build report: %v", err))
			return
		}

		name := fmt.Sprintf("interview_report_%s.csv", time.Now().UTC().Format("20060102"))

		if r.URL.Query().Get("upload") == "1" {
			if uploader == nil {
				writeJSONError(w, http.StatusNotImplemented, "report upload not configured")
				return
			}
			if err := uploader.Upload(r.Context(), name, bytes.NewReader(buf.Bytes())); err != nil {
				writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("upload report: %v", err))
				return
			}
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		_, _ = w.Write(buf.Bytes())
	})
}

// statusForError maps session errors onto HTTP statuses: ordering/phase
// misuse is a conflict, a missing device is service unavailable, everything
// else from the backend is a bad gateway.
func statusForError(err error) int {
	switch {
	case errors.Is(err, interview.ErrInvalidTransition),
		errors.Is(err, interview.ErrNoPendingSample),
		errors.Is(err, interview.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, interview.ErrNoQuestions):
		return http.StatusPreconditionFailed
	case errors.Is(err, interview.ErrSequenceViolation):
		return http.StatusInternalServerError
	case errors.Is(err, audio.ErrDeviceUnavailable), errors.Is(err, audio.ErrCaptureActive):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
