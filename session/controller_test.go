package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/voiceguard/audio"
	"github.com/bosley/voiceguard/capture"
	"github.com/bosley/voiceguard/predict"
)

type fakeRecorder struct {
	startErr error
	stopErr  error
	payload  *audio.Payload
}

func (f *fakeRecorder) Start(ctx context.Context) error { return f.startErr }

func (f *fakeRecorder) Stop() (*audio.Payload, error) {
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return f.payload, nil
}

type predictorFunc func(ctx context.Context, p *audio.Payload) (*predict.Result, error)

func (f predictorFunc) Predict(ctx context.Context, p *audio.Payload) (*predict.Result, error) {
	return f(ctx, p)
}

type fakePreviews struct{ path string }

func (f fakePreviews) Save(p *audio.Payload) (string, error) { return f.path, nil }

func TestAnalyzeWithoutPayloadMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	c := NewController(Options{
		Predictor: predictorFunc(func(ctx context.Context, p *audio.Payload) (*predict.Result, error) {
			calls.Add(1)
			return nil, nil
		}),
	})

	_, err := c.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrNoPayload)
	assert.True(t, IsUserError(err))
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, AlertNoPayload, c.State().Alert)
	assert.Equal(t, PhaseIdle, c.State().Phase)
}

func TestAnalyzeFailureKeepsPreviousResult(t *testing.T) {
	prior := &predict.Result{Prediction: predict.LabelFake, Confidence: predict.NumberConfidence(0.8)}
	fail := false
	c := NewController(Options{
		Predictor: predictorFunc(func(ctx context.Context, p *audio.Payload) (*predict.Result, error) {
			if fail {
				return nil, predict.ErrBackendUnreachable
			}
			return prior, nil
		}),
	})
	c.SelectFile(payload("sample.wav"))

	_, err := c.Analyze(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = c.Analyze(context.Background())
	assert.ErrorIs(t, err, predict.ErrBackendUnreachable)

	s := c.State()
	assert.Equal(t, PhaseFailed, s.Phase)
	assert.False(t, s.Busy())
	assert.Equal(t, AlertBackend, s.Alert)
	assert.Same(t, prior, s.Result)
	assert.NotNil(t, s.Payload)
}

func TestAnalyzeNotifiesBusyThenResult(t *testing.T) {
	result := &predict.Result{Prediction: predict.LabelReal, Confidence: predict.NumberConfidence(0.93)}
	c := NewController(Options{
		Predictor: predictorFunc(func(ctx context.Context, p *audio.Payload) (*predict.Result, error) {
			return result, nil
		}),
	})

	var phases []Phase
	unsubscribe := c.Subscribe(func(s State) { phases = append(phases, s.Phase) })
	defer unsubscribe()

	c.SelectFile(payload("sample.wav"))
	got, err := c.Analyze(context.Background())
	require.NoError(t, err)
	assert.Same(t, result, got)
	assert.Equal(t, []Phase{PhaseSelected, PhaseSubmitting, PhaseSucceeded}, phases)
}

func TestAnalyzeSupersedesInFlightRequest(t *testing.T) {
	started := make(chan struct{})
	fresh := &predict.Result{Prediction: predict.LabelReal, Confidence: predict.NumberConfidence(0.5)}

	var calls atomic.Int32
	c := NewController(Options{
		Predictor: predictorFunc(func(ctx context.Context, p *audio.Payload) (*predict.Result, error) {
			if calls.Add(1) == 1 {
				close(started)
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return fresh, nil
		}),
	})
	c.SelectFile(payload("sample.wav"))

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = c.Analyze(context.Background())
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first analysis never started")
	}

	got, err := c.Analyze(context.Background())
	require.NoError(t, err)
	assert.Same(t, fresh, got)

	wg.Wait()
	assert.ErrorIs(t, firstErr, context.Canceled)

	s := c.State()
	assert.Equal(t, PhaseSucceeded, s.Phase)
	assert.Equal(t, uint64(2), s.Generation)
	assert.Same(t, fresh, s.Result)
	assert.Empty(t, s.Alert)
}

func TestRecordingLifecycle(t *testing.T) {
	rec := audio.NewPayload(audio.RecordedFileName, audio.MIMETypeWAV, audio.OriginRecording, []byte("pcm"))
	c := NewController(Options{
		Recorder: &fakeRecorder{payload: rec},
		Previews: fakePreviews{path: "recordings/20260101/recorded.wav"},
	})

	require.NoError(t, c.StartRecording(context.Background()))
	assert.Equal(t, PhaseRecording, c.State().Phase)
	assert.ErrorIs(t, c.StartRecording(context.Background()), ErrAlreadyRecording)

	_, err := c.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrRecordingActive)

	got, err := c.StopRecording()
	require.NoError(t, err)
	assert.Same(t, rec, got)

	s := c.State()
	assert.Equal(t, PhaseSelected, s.Phase)
	assert.Same(t, rec, s.Payload)
	assert.Equal(t, "recordings/20260101/recorded.wav", s.Preview)

	// Selecting a file drops the recording but not its preview.
	file := payload("other.wav")
	c.SelectFile(file)
	s = c.State()
	assert.Same(t, file, s.Payload)
	assert.Equal(t, "recordings/20260101/recorded.wav", s.Preview)

	_, err = c.StopRecording()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestStartRecordingCaptureFailure(t *testing.T) {
	denied := errors.New("permission denied")
	c := NewController(Options{Recorder: &fakeRecorder{startErr: denied}})

	err := c.StartRecording(context.Background())
	assert.ErrorIs(t, err, denied)

	s := c.State()
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Equal(t, AlertCapture, s.Alert)
	assert.ErrorIs(t, s.Err, denied)
}

func TestStartRecordingWithoutMicrophone(t *testing.T) {
	c := NewController(Options{})

	assert.Error(t, c.StartRecording(context.Background()))
	assert.Equal(t, AlertCapture, c.State().Alert)
	assert.Equal(t, PhaseIdle, c.State().Phase)
}

func TestUnsubscribe(t *testing.T) {
	c := NewController(Options{})
	var n int
	unsubscribe := c.Subscribe(func(State) { n++ })

	c.DismissAlert()
	unsubscribe()
	c.DismissAlert()
	assert.Equal(t, 1, n)
}

// gatedSource holds Open until release is closed.
type gatedSource struct {
	entered chan struct{}
	release chan struct{}
	onChunk func([]int16)
}

func (g *gatedSource) Open(ctx context.Context, onChunk func([]int16)) (capture.Stream, error) {
	close(g.entered)
	<-g.release
	g.onChunk = onChunk
	return g, nil
}

func (g *gatedSource) SampleRate() uint32 { return audio.SampleRate }
func (g *gatedSource) Start() error {
	g.onChunk([]int16{4, 5, 6})
	return nil
}
func (g *gatedSource) Stop() error  { return nil }
func (g *gatedSource) Close() error { return nil }

func TestStopRecordingWhileMicrophoneOpens(t *testing.T) {
	src := &gatedSource{entered: make(chan struct{}), release: make(chan struct{})}
	recorder := capture.NewRecorder(src)
	c := NewController(Options{Recorder: recorder})

	startErr := make(chan error, 1)
	go func() { startErr <- c.StartRecording(context.Background()) }()
	<-src.entered
	assert.Equal(t, PhaseRecording, c.State().Phase)

	type stopResult struct {
		payload *audio.Payload
		err     error
	}
	stopped := make(chan stopResult, 1)
	go func() {
		p, err := c.StopRecording()
		stopped <- stopResult{p, err}
	}()

	time.Sleep(20 * time.Millisecond)
	close(src.release)

	require.NoError(t, <-startErr)
	res := <-stopped
	require.NoError(t, res.err)
	require.NotNil(t, res.payload)

	s := c.State()
	assert.Equal(t, PhaseSelected, s.Phase)
	assert.Same(t, res.payload, s.Payload)
	assert.Empty(t, s.Alert)
	assert.False(t, recorder.Recording())

	pcm, err := audio.PCMData(res.payload.Data)
	require.NoError(t, err)
	assert.Equal(t, audio.AppendSamples(nil, []int16{4, 5, 6}), pcm)
}

func TestSubscriberMayReadState(t *testing.T) {
	c := NewController(Options{})
	var reads atomic.Int32
	c.Subscribe(func(State) {
		c.State()
		reads.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.SelectFile(payload("sample.wav"))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch deadlocked with a subscriber reading state")
	}
	assert.Equal(t, int32(400), reads.Load())
}

func TestSupersededSubmissionIsNotSent(t *testing.T) {
	var calls atomic.Int32
	c := NewController(Options{
		Predictor: predictorFunc(func(ctx context.Context, p *audio.Payload) (*predict.Result, error) {
			calls.Add(1)
			return &predict.Result{Prediction: predict.LabelReal}, nil
		}),
	})
	c.SelectFile(payload("sample.wav"))

	first, err := c.Submit(context.Background())
	require.NoError(t, err)
	second, err := c.Submit(context.Background())
	require.NoError(t, err)
	assert.Greater(t, second.State().Generation, first.State().Generation)

	_, err = first.Run()
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, int32(0), calls.Load())

	result, err := second.Run()
	require.NoError(t, err)
	assert.Equal(t, predict.LabelReal, result.Prediction)
	assert.Equal(t, PhaseSucceeded, c.State().Phase)
}

func TestAbandonedSubmissionFails(t *testing.T) {
	c := NewController(Options{})
	c.SelectFile(payload("sample.wav"))

	sub, err := c.Submit(context.Background())
	require.NoError(t, err)
	sub.Abandon(errors.New("queue full"))

	s := c.State()
	assert.Equal(t, PhaseFailed, s.Phase)
	assert.Equal(t, AlertBackend, s.Alert)
	assert.Same(t, sub.State().Payload, s.Payload)
}
