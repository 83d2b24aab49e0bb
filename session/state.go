// Package session holds the client state machine. State changes only through
// Reduce; the Controller runs the side effects that produce events.
package session

import (
	"errors"

	"github.com/bosley/voiceguard/audio"
	"github.com/bosley/voiceguard/predict"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhaseSelected
	PhaseSubmitting
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseSelected:
		return "selected"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// User-facing alert texts.
const (
	AlertNoPayload        = "Upload or record audio first"
	AlertBackend          = "Backend not reachable"
	AlertCapture          = "Microphone not available"
	AlertBusy             = "Analysis already in progress"
	AlertRecordingActive  = "Stop recording first"
	AlertAlreadyRecording = "Already recording"
	AlertNotRecording     = "Not recording"
)

var (
	ErrNoPayload        = errors.New("no audio selected")
	ErrBusy             = errors.New("analysis in progress")
	ErrRecordingActive  = errors.New("recording in progress")
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
	ErrSuperseded       = errors.New("analysis superseded by a newer request")
)

// State is an immutable snapshot. Reduce always returns a new value and never
// modifies the payload or result it points to.
type State struct {
	Phase Phase

	// Payload is the audio that the next analysis will submit.
	Payload *audio.Payload

	// Preview is the playback reference of the last finished recording. File
	// selection leaves it untouched.
	Preview string

	// Result is only replaced by a successful analysis.
	Result *predict.Result

	// Generation identifies the current analysis request.
	Generation uint64

	Alert string
	Err   error
}

func (s State) Busy() bool {
	return s.Phase == PhaseRecording || s.Phase == PhaseSubmitting
}

// restingPhase is where the machine settles when nothing is in flight.
func (s State) restingPhase() Phase {
	if s.Payload == nil {
		return PhaseIdle
	}
	return PhaseSelected
}
