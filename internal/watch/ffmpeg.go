package watch

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

const frameGrabTimeout = 5 * time.Second

// FFmpegSource grabs single JPEG frames from a video device by exec-ing
// ffmpeg. An unavailable camera yields a nil frame, not an error, so the
// poller skips the tick.
type FFmpegSource struct {
	device string
	format string
}

// NewFFmpegSource builds a source for the given device (e.g. /dev/video0)
// and input format (e.g. v4l2).
func NewFFmpegSource(device, format string) *FFmpegSource {
	if device == "" {
		device = "/dev/video0"
	}
	if format == "" {
		format = "v4l2"
	}
	return &FFmpegSource{device: device, format: format}
}

func (s *FFmpegSource) Frame(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, frameGrabTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-loglevel", "error",
		"-f", s.format,
		"-i", s.device,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	)
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return nil, nil
	}
	return out.Bytes(), nil
}
