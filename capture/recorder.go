// Package capture accumulates microphone buffers into a single recorded payload.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/bosley/voiceguard/audio"
)

var (
	ErrCapture          = errors.New("microphone not available")
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// Stream is an opened input stream. Stop must not return until the last
// buffer callback has completed.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Source opens an input stream that delivers mono int16 buffers to onChunk.
// The buffer passed to onChunk may be reused after the callback returns.
type Source interface {
	Open(ctx context.Context, onChunk func([]int16)) (Stream, error)
	SampleRate() uint32
}

type Recorder struct {
	source Source

	mu         sync.Mutex
	stream     Stream
	chunks     [][]byte
	recording  bool
	stopping   bool
	opened     chan struct{} // closed once Start has settled
	logCounter int
}

func NewRecorder(source Source) *Recorder {
	return &Recorder{source: source}
}

// Start requests the microphone and begins accumulating buffers.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.recording = true
	r.chunks = nil
	r.logCounter = 0
	opened := make(chan struct{})
	r.opened = opened
	r.mu.Unlock()
	defer close(opened)

	stream, err := r.source.Open(ctx, r.appendChunk)
	if err != nil {
		r.reset()
		return fmt.Errorf("%w: %w", ErrCapture, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		r.reset()
		return fmt.Errorf("%w: failed to start stream: %w", ErrCapture, err)
	}

	r.mu.Lock()
	r.stream = stream
	r.mu.Unlock()

	slog.Info("Recording started", "sampleRate", r.source.SampleRate())
	return nil
}

// Stop finalizes the capture and returns the chunks assembled, in capture
// order, into one WAV payload. A Stop issued while Start is still opening the
// microphone waits for it and then finalizes the recording.
func (r *Recorder) Stop() (*audio.Payload, error) {
	r.mu.Lock()
	for r.recording && r.stream == nil && !r.stopping {
		opened := r.opened
		r.mu.Unlock()
		<-opened
		r.mu.Lock()
	}
	if !r.recording || r.stopping {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	stream := r.stream
	r.stopping = true
	r.mu.Unlock()

	// Stop outside the lock: the final callback still needs it.
	stopErr := stream.Stop()
	if err := stream.Close(); err != nil {
		slog.Error("Failed to close audio stream", "error", err)
	}

	r.mu.Lock()
	chunks := r.chunks
	r.chunks = nil
	r.stream = nil
	r.recording = false
	r.stopping = false
	r.mu.Unlock()

	if stopErr != nil {
		slog.Error("Failed to stop audio stream", "error", stopErr)
	}

	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	pcm := make([]byte, 0, size)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}

	payload, err := audio.NewRecording(pcm, r.source.SampleRate())
	if err != nil {
		return nil, fmt.Errorf("failed to assemble recording: %w", err)
	}

	slog.Info("Recording finished",
		"chunks", len(chunks),
		"bytes", len(pcm))
	return payload, nil
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) appendChunk(in []int16) {
	chunk := audio.AppendSamples(make([]byte, 0, len(in)*2), in)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return
	}
	r.chunks = append(r.chunks, chunk)

	r.logCounter++
	if r.logCounter%10 == 0 {
		slog.Debug("Audio chunk received",
			"chunks", len(r.chunks),
			"amplitude", calculateChunkAmplitude(in))
	}
}

func (r *Recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	r.stream = nil
	r.chunks = nil
}

func calculateChunkAmplitude(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var totalAmplitude float64
	for _, sample := range chunk {
		totalAmplitude += math.Abs(float64(sample))
	}
	return totalAmplitude / float64(len(chunk))
}
