package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/joho/godotenv"

	"github.com/pkale/intervue/internal/audio"
	"github.com/pkale/intervue/internal/backend"
	"github.com/pkale/intervue/internal/config"
	"github.com/pkale/intervue/internal/feedback"
	"github.com/pkale/intervue/internal/gdrive"
	"github.com/pkale/intervue/internal/interview"
	"github.com/pkale/intervue/internal/llm"
	"github.com/pkale/intervue/internal/server"
	"github.com/pkale/intervue/internal/storage"
	"github.com/pkale/intervue/internal/watch"
)

func main() {
	log.Println("intervue: starting")

	_ = godotenv.Load()

	configPath := os.Getenv(config.EnvPrefix + "CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := portaudio.Initialize(); err != nil {
		log.Printf("warning: portaudio init failed, microphone unavailable: %v", err)
	} else {
		defer func() { _ = portaudio.Terminate() }()
	}

	hub := server.NewHub()
	capture := audio.NewCapture(cfg.SampleRateCandidates(), cfg.FramesPerBuffer)
	client := backend.NewClient(cfg.BackendURL, cfg.ParsedBackendTimeout())

	ctrl := interview.NewController(capture, client, hub, store)

	if rec, loadErr := store.LoadActive(); loadErr != nil {
		log.Printf("warning: load active session failed: %v", loadErr)
	} else if rec != nil {
		if resumeErr := ctrl.Resume(rec.ID, rec.Questions, rec.Results); resumeErr != nil {
			log.Printf("warning: resume session %s failed: %v", rec.ID, resumeErr)
		} else {
			log.Printf("resumed session %s (%d/%d answered)", rec.ID, len(rec.Results), len(rec.Questions))
		}
	}

	if provider, _, parseErr := llm.ParseModel(cfg.FeedbackModel); parseErr == nil && cfg.APIKeyFor(provider) != "" {
		coach := feedback.NewCoach(cfg.FeedbackModel, func(provider, model string) (llm.Client, error) {
			return llm.NewClient(provider, cfg.APIKeyFor(provider), model)
		})
		ctrl.OnCompleted(func(sessionID string, results []interview.Result) {
			go func() {
				feedbackCtx, feedbackCancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer feedbackCancel()

				notes, genErr := coach.Generate(feedbackCtx, results)
				if genErr != nil {
					log.Printf("warning: coaching feedback failed: %v", genErr)
					hub.BroadcastFeedbackReady(sessionID, "", "failed")
					return
				}
				hub.BroadcastFeedbackReady(sessionID, notes, "complete")
			}()
		})
	}

	var uploader server.ReportUploader
	if cfg.GDriveFolderID != "" {
		drive, driveErr := gdrive.NewUploader(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if driveErr != nil {
			log.Printf("warning: report upload disabled: %v", driveErr)
		} else {
			uploader = drive
		}
	}

	poller := watch.NewPoller(
		watch.NewFFmpegSource(cfg.CameraDevice, ""),
		client,
		hub,
		cfg.ParsedPollInterval(),
	)
	poller.Start(ctx)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(hub, ctrl, client, uploader),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	log.Printf("intervue: session API on http://%s", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("intervue: shutting down")
	cancel()

	poller.Stop()
	ctrl.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}
