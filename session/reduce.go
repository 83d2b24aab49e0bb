package session

import (
	"github.com/bosley/voiceguard/audio"
	"github.com/bosley/voiceguard/predict"
)

// Event is one of the events declared in this file.
type Event interface {
	event()
}

type RecordRequested struct{}

type RecordStopped struct {
	Payload *audio.Payload
	Preview string
}

// CaptureFailed reports a microphone failure, either while opening the
// device or while finalizing the recording.
type CaptureFailed struct {
	Err error
}

type FileSelected struct {
	Payload *audio.Payload
}

type SubmitRequested struct{}

type SubmitSucceeded struct {
	Generation uint64
	Result     *predict.Result
}

type SubmitFailed struct {
	Generation uint64
	Err        error
}

type AlertDismissed struct{}

func (RecordRequested) event() {}
func (RecordStopped) event()   {}
func (CaptureFailed) event()   {}
func (FileSelected) event()    {}
func (SubmitRequested) event() {}
func (SubmitSucceeded) event() {}
func (SubmitFailed) event()    {}
func (AlertDismissed) event()  {}

// Reduce returns the state that follows s after ev.
func Reduce(s State, ev Event) State {
	next := s
	next.Alert = ""
	next.Err = nil

	switch e := ev.(type) {
	case RecordRequested:
		switch s.Phase {
		case PhaseRecording:
			return reject(s, ErrAlreadyRecording, AlertAlreadyRecording)
		case PhaseSubmitting:
			return reject(s, ErrBusy, AlertBusy)
		}
		next.Phase = PhaseRecording

	case RecordStopped:
		if s.Phase != PhaseRecording {
			return reject(s, ErrNotRecording, AlertNotRecording)
		}
		next.Payload = e.Payload
		next.Preview = e.Preview
		next.Phase = next.restingPhase()

	case CaptureFailed:
		if s.Phase == PhaseRecording {
			next.Phase = next.restingPhase()
		}
		next.Alert = AlertCapture
		next.Err = e.Err

	case FileSelected:
		if e.Payload == nil {
			return s
		}
		next.Payload = e.Payload
		// A selection made mid-recording or mid-analysis takes effect once
		// that activity finishes.
		if !s.Busy() {
			next.Phase = PhaseSelected
		}

	case SubmitRequested:
		switch {
		case s.Phase == PhaseRecording:
			return reject(s, ErrRecordingActive, AlertRecordingActive)
		case s.Payload == nil:
			return reject(s, ErrNoPayload, AlertNoPayload)
		}
		next.Phase = PhaseSubmitting
		next.Generation = s.Generation + 1

	case SubmitSucceeded:
		if s.Phase != PhaseSubmitting || e.Generation != s.Generation {
			return s
		}
		next.Phase = PhaseSucceeded
		next.Result = e.Result

	case SubmitFailed:
		if s.Phase != PhaseSubmitting || e.Generation != s.Generation {
			return s
		}
		next.Phase = PhaseFailed
		next.Alert = AlertBackend
		next.Err = e.Err

	case AlertDismissed:

	default:
		return s
	}

	return next
}

func reject(s State, err error, alert string) State {
	s.Err = err
	s.Alert = alert
	return s
}
