// Package watch runs the fixed-interval webcam sampler. It is fully
// decoupled from interview progress: ticks fire whether the session is
// idle, recording, or processing, and its only output is the alert sink.
package watch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pkale/intervue/internal/backend"
)

const defaultInterval = 2 * time.Second

// FrameSource produces one still frame per call. A nil frame with a nil
// error means no frame was available; the tick is skipped.
type FrameSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

// Detector classifies a single frame. backend.Client satisfies this.
type Detector interface {
	DetectCheat(ctx context.Context, frame []byte) (string, error)
}

// AlertSink receives anomaly labels for user-facing notification.
type AlertSink interface {
	NotifyAnomaly(label string)
}

// Poller samples the frame source on a fixed interval and dispatches each
// frame for out-of-band classification. Detection is best-effort: a missed
// frame is skipped silently and a failed detection call is logged and
// suppressed, never interrupting the interview flow.
type Poller struct {
	source   FrameSource
	detector Detector
	sink     AlertSink
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(source FrameSource, detector Detector, sink AlertSink, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Poller{
		source:   source,
		detector: detector,
		sink:     sink,
		interval: interval,
	}
}

// Start launches the polling loop. Calling Start while running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(ctx, p.done)
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	frame, err := p.source.Frame(ctx)
	if err != nil || len(frame) == 0 {
		// No frame this tick; detection is advisory, skip silently.
		return
	}

	label, err := p.detector.DetectCheat(ctx, frame)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("cheat detection error: %v", err)
		}
		return
	}

	if label != backend.AllClear && p.sink != nil {
		p.sink.NotifyAnomaly(label)
	}
}

// Stop cancels the timer and waits for the loop to exit. No tick fires
// after Stop returns. Stopping an unstarted poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
