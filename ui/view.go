// Package ui renders session state for people.
package ui

import (
	"github.com/bosley/voiceguard/predict"
	"github.com/bosley/voiceguard/session"
)

const (
	ColorFake    = "#dc2626"
	ColorReal    = "#16a34a"
	ColorNeutral = "#111827"
)

const (
	Title    = "VoiceGuard AI"
	Subtitle = "Real-time Deepfake Voice Detection"

	StatusIdle      = "Upload or record audio to begin"
	StatusRecording = "Recording…"
	StatusSelected  = "Ready to analyze"
	StatusBusy      = "Analyzing voice…"
	StatusDone      = "Analysis complete"
	StatusFailed    = "Analysis failed"
)

// View is everything a front end needs to draw the session.
type View struct {
	Phase     string      `json:"phase"`
	Status    string      `json:"status"`
	Recording bool        `json:"recording"`
	Busy      bool        `json:"busy"`
	Payload   string      `json:"payload,omitempty"`
	Preview   string      `json:"preview,omitempty"`
	Alert     string      `json:"alert,omitempty"`
	Result    *ResultView `json:"result,omitempty"`
}

type ResultView struct {
	Label      string `json:"label"`
	Color      string `json:"color"`
	Confidence string `json:"confidence"`
}

// Render maps a session state to its view.
func Render(s session.State) View {
	v := View{
		Phase:     s.Phase.String(),
		Recording: s.Phase == session.PhaseRecording,
		Busy:      s.Phase == session.PhaseSubmitting,
		Preview:   s.Preview,
		Alert:     s.Alert,
	}
	if s.Payload != nil {
		v.Payload = s.Payload.Name
	}

	switch s.Phase {
	case session.PhaseRecording:
		v.Status = StatusRecording
	case session.PhaseSelected:
		v.Status = StatusSelected
	case session.PhaseSubmitting:
		v.Status = StatusBusy
	case session.PhaseSucceeded:
		v.Status = StatusDone
	case session.PhaseFailed:
		v.Status = StatusFailed
	default:
		v.Status = StatusIdle
	}

	// The result is hidden while a new analysis is in flight.
	if s.Result != nil && s.Phase != session.PhaseSubmitting {
		v.Result = &ResultView{
			Label:      s.Result.Prediction,
			Color:      LabelColor(s.Result.Prediction),
			Confidence: s.Result.Confidence.String(),
		}
	}
	return v
}

func LabelColor(label string) string {
	switch label {
	case predict.LabelFake:
		return ColorFake
	case predict.LabelReal:
		return ColorReal
	default:
		return ColorNeutral
	}
}
