package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/voiceguard/audio"
	"github.com/bosley/voiceguard/predict"
	"github.com/bosley/voiceguard/session"
)

func TestLabelColor(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{label: "FAKE", want: ColorFake},
		{label: "REAL", want: ColorReal},
		{label: "UNKNOWN", want: ColorNeutral},
		{label: "fake", want: ColorNeutral},
		{label: "", want: ColorNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			s := session.State{
				Phase:  session.PhaseSucceeded,
				Result: &predict.Result{Prediction: tt.label, Confidence: predict.NumberConfidence(0.5)},
			}
			v := Render(s)
			require.NotNil(t, v.Result)
			assert.Equal(t, tt.want, v.Result.Color)
		})
	}
}

func TestRenderPhases(t *testing.T) {
	p := audio.NewPayload("a.wav", audio.MIMETypeWAV, audio.OriginFile, nil)
	prior := &predict.Result{Prediction: "REAL", Confidence: predict.TextConfidence("0.9")}

	v := Render(session.State{})
	assert.Equal(t, StatusIdle, v.Status)
	assert.Empty(t, v.Preview)

	v = Render(session.State{Phase: session.PhaseRecording})
	assert.True(t, v.Recording)
	assert.Equal(t, StatusRecording, v.Status)

	v = Render(session.State{Phase: session.PhaseSubmitting, Payload: p, Result: prior})
	assert.True(t, v.Busy)
	assert.Equal(t, StatusBusy, v.Status)
	assert.Nil(t, v.Result)

	v = Render(session.State{Phase: session.PhaseFailed, Payload: p, Result: prior, Alert: session.AlertBackend})
	assert.False(t, v.Busy)
	assert.Equal(t, session.AlertBackend, v.Alert)
	require.NotNil(t, v.Result)
	assert.Equal(t, "0.9", v.Result.Confidence)

	v = Render(session.State{Phase: session.PhaseSelected, Payload: p, Preview: "recordings/x.wav"})
	assert.Equal(t, "a.wav", v.Payload)
	assert.Equal(t, "recordings/x.wav", v.Preview)
}

func TestTerminalShow(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminalWriter(&buf, true)

	term.Show(View{Status: StatusDone, Result: &ResultView{Label: "FAKE", Color: ColorFake, Confidence: "0.81"}})
	out := buf.String()
	assert.Contains(t, out, "\x1b[38;2;220;38;38m")
	assert.Contains(t, out, "FAKE")
	assert.Contains(t, out, "Confidence: ")

	buf.Reset()
	term.Show(View{Status: StatusDone, Result: &ResultView{Label: "FAKE", Color: ColorFake, Confidence: "0.81"}})
	assert.Empty(t, buf.String())
}

func TestParseHex(t *testing.T) {
	r, g, b, ok := parseHex(ColorReal)
	require.True(t, ok)
	assert.Equal(t, [3]uint8{0x16, 0xa3, 0x4a}, [3]uint8{r, g, b})

	_, _, _, ok = parseHex("#12")
	assert.False(t, ok)
}

// Selecting sample.wav and analyzing it against an endpoint that answers
// REAL/0.93 shows REAL in green with its confidence.
func TestSelectAnalyzeRender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			http.NotFound(w, r)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"prediction": "REAL", "confidence": 0.93})
	}))
	defer srv.Close()

	client, err := predict.NewClient(predict.Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sample.wav")
	wav, err := audio.EncodePCM(audio.AppendSamples(nil, []int16{1, 2, 3}), audio.SampleRate)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, wav, 0644))

	var buf bytes.Buffer
	term := NewTerminalWriter(&buf, false)

	ctrl := session.NewController(session.Options{Predictor: client})
	ctrl.Subscribe(func(s session.State) { term.Show(Render(s)) })

	_, err = ctrl.SelectPath(path)
	require.NoError(t, err)
	_, err = ctrl.Analyze(context.Background())
	require.NoError(t, err)

	v := Render(ctrl.State())
	require.NotNil(t, v.Result)
	assert.Equal(t, "REAL", v.Result.Label)
	assert.Equal(t, ColorReal, v.Result.Color)
	assert.Equal(t, "0.93", v.Result.Confidence)

	out := buf.String()
	assert.Contains(t, out, StatusBusy)
	assert.Contains(t, out, "REAL")
	assert.Contains(t, out, "Confidence: 0.93")
}
