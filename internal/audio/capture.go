// Package audio owns the microphone capture lifecycle: begin buffering,
// end, and finalize the buffered PCM into a single transferable WAV sample.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	pcmChannels = 1
	pcmBitDepth = 16

	defaultFramesPerBuffer = 1024
)

var (
	// ErrDeviceUnavailable means the audio input could not be acquired at
	// any candidate sample rate (no device, or permission denied).
	ErrDeviceUnavailable = errors.New("audio input device unavailable")

	// ErrCaptureActive means Begin was called while a capture is running.
	ErrCaptureActive = errors.New("capture already active")

	// ErrNotCapturing means End was called without an active capture.
	ErrNotCapturing = errors.New("no active capture")
)

// Sample is a finalized, immutable audio payload ready for submission.
type Sample struct {
	WAV        []byte
	SampleRate int
	Duration   time.Duration
}

type inputStream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
}

// Capture wraps a PortAudio default input stream. Exactly one capture may
// be active at a time; End drains all buffered chunks before returning the
// finalized sample.
type Capture struct {
	framesPerBuffer int
	rates           []int

	mu         sync.Mutex
	stream     inputStream
	buf        []int16
	pcm        bytes.Buffer
	sampleRate int
	active     bool
	ending     bool
	stop       chan struct{}
	drained    chan struct{}
	readErr    error

	open func(rate, framesPerBuffer int, buf []int16) (inputStream, error)
}

// NewCapture builds a capture stream trying the given sample rates in order.
func NewCapture(rates []int, framesPerBuffer int) *Capture {
	if len(rates) == 0 {
		rates = []int{16000, 48000, 44100, 32000, 24000}
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	return &Capture{
		framesPerBuffer: framesPerBuffer,
		rates:           rates,
		open:            openPortAudio,
	}
}

func openPortAudio(rate, framesPerBuffer int, buf []int16) (inputStream, error) {
	return portaudio.OpenDefaultStream(pcmChannels, 0, float64(rate), framesPerBuffer, buf)
}

// Begin acquires the input device and starts buffering. It walks the sample
// rate ladder and returns ErrDeviceUnavailable when no rate can be opened.
func (c *Capture) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		return ErrCaptureActive
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var stream inputStream
	var rate int
	buf := make([]int16, c.framesPerBuffer)
	for _, candidate := range c.rates {
		s, err := c.open(candidate, c.framesPerBuffer, buf)
		if err != nil {
			continue
		}
		if err := s.Start(); err != nil {
			_ = s.Close()
			continue
		}
		stream = s
		rate = candidate
		break
	}
	if stream == nil {
		return ErrDeviceUnavailable
	}

	c.stream = stream
	c.buf = buf
	c.sampleRate = rate
	c.pcm.Reset()
	c.readErr = nil
	c.active = true
	c.stop = make(chan struct{})
	c.drained = make(chan struct{})

	go c.readLoop(stream, c.stop, c.drained)
	return nil
}

// readLoop pulls frames from the stream into the PCM buffer until stopped.
func (c *Capture) readLoop(stream inputStream, stop, drained chan struct{}) {
	defer close(drained)

	var chunk bytes.Buffer
	chunk.Grow(c.framesPerBuffer * 2)
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		chunk.Reset()
		if err := binary.Write(&chunk, binary.LittleEndian, c.buf); err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		_, _ = c.pcm.Write(chunk.Bytes())
		c.mu.Unlock()
	}
}

// End stops buffering, waits for the reader to drain, releases the device,
// and produces exactly one finalized sample. Only one caller may finalize a
// capture; concurrent End calls get ErrNotCapturing.
func (c *Capture) End(ctx context.Context) (Sample, error) {
	c.mu.Lock()
	if !c.active || c.ending {
		c.mu.Unlock()
		return Sample{}, ErrNotCapturing
	}
	c.ending = true
	stop := c.stop
	drained := c.drained
	c.mu.Unlock()

	close(stop)

	select {
	case <-drained:
	case <-ctx.Done():
		// Device teardown still happens; the sample is abandoned.
		c.teardown()
		return Sample{}, ctx.Err()
	}

	c.mu.Lock()
	pcmData := append([]byte(nil), c.pcm.Bytes()...)
	rate := c.sampleRate
	readErr := c.readErr
	c.mu.Unlock()

	c.teardown()

	if readErr != nil && len(pcmData) == 0 {
		return Sample{}, fmt.Errorf("read capture stream: %w", readErr)
	}

	wav, err := wavFromPCM(pcmData, rate)
	if err != nil {
		return Sample{}, fmt.Errorf("finalize wav sample: %w", err)
	}

	frames := len(pcmData) / (pcmChannels * pcmBitDepth / 8)
	duration := time.Duration(frames) * time.Second / time.Duration(rate)

	return Sample{WAV: wav, SampleRate: rate, Duration: duration}, nil
}

func (c *Capture) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		_ = c.stream.Stop()
		_ = c.stream.Close()
		c.stream = nil
	}
	c.pcm.Reset()
	c.active = false
	c.ending = false
}

// Active reports whether a capture is in progress.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func wavFromPCM(pcmData []byte, sampleRate int) ([]byte, error) {
	header, err := wavHeader(len(pcmData), sampleRate, pcmChannels, pcmBitDepth)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(header)+len(pcmData))
	out = append(out, header...)
	out = append(out, pcmData...)
	return out, nil
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8
	chunkSize := 36 + dataSize

	buf := bytes.NewBuffer(make([]byte, 0, 44))
	if _, err := buf.WriteString("RIFF"); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(chunkSize)); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("WAVE"); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("fmt "); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(16)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(1)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(channels)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(byteRate)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(blockAlign)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(bitDepth)); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("data"); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(dataSize)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
