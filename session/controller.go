package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bosley/voiceguard/audio"
	"github.com/bosley/voiceguard/metrics"
	"github.com/bosley/voiceguard/predict"
)

type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*audio.Payload, error)
}

type Predictor interface {
	Predict(ctx context.Context, p *audio.Payload) (*predict.Result, error)
}

// PreviewStore keeps finished recordings so they can be played back.
type PreviewStore interface {
	Save(p *audio.Payload) (string, error)
}

type Options struct {
	Recorder  Recorder
	Predictor Predictor
	Previews  PreviewStore
	Metrics   *metrics.Metrics
}

// Controller owns the session state. Subscribers are called in dispatch order.
// They may read State but must not call methods that dispatch.
type Controller struct {
	recorder  Recorder
	predictor Predictor
	previews  PreviewStore
	metrics   *metrics.Metrics

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	seq    uint64

	// notified is the last dispatch sequence whose subscribers have run.
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	notified   uint64

	subMu       sync.Mutex
	subscribers map[int]func(State)
	nextSubID   int
}

func NewController(opts Options) *Controller {
	c := &Controller{
		recorder:    opts.Recorder,
		predictor:   opts.Predictor,
		previews:    opts.Previews,
		metrics:     opts.Metrics,
		subscribers: make(map[int]func(State)),
	}
	c.notifyCond = sync.NewCond(&c.notifyMu)
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every future state and returns a function that
// removes it.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subscribers, id)
		c.subMu.Unlock()
	}
}

// Dispatch applies ev and notifies subscribers.
func (c *Controller) Dispatch(ev Event) State {
	return c.dispatchLocked(ev, nil)
}

// dispatchLocked reduces under the state lock; hook runs while the lock is
// still held, before subscribers see the new state.
func (c *Controller) dispatchLocked(ev Event, hook func(prev, next State)) State {
	c.mu.Lock()
	prev := c.state
	next := Reduce(prev, ev)
	c.state = next
	if hook != nil {
		hook(prev, next)
	}
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	// Wait for earlier dispatches to finish notifying, without holding mu.
	c.notifyMu.Lock()
	for c.notified != seq-1 {
		c.notifyCond.Wait()
	}
	c.notifyMu.Unlock()

	c.subMu.Lock()
	subs := make([]func(State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(next)
	}

	c.notifyMu.Lock()
	c.notified = seq
	c.notifyCond.Broadcast()
	c.notifyMu.Unlock()

	slog.Debug("Session state changed",
		"event", fmt.Sprintf("%T", ev),
		"phase", next.Phase.String(),
		"generation", next.Generation,
		"alert", next.Alert)
	return next
}

// StartRecording requests the microphone. Capture failures are reported
// through the alert path like network failures.
func (c *Controller) StartRecording(ctx context.Context) error {
	next := c.Dispatch(RecordRequested{})
	if next.Err != nil {
		return next.Err
	}

	if c.recorder == nil {
		err := fmt.Errorf("no microphone configured")
		c.metrics.ObserveCaptureFailure()
		c.Dispatch(CaptureFailed{Err: err})
		return err
	}

	if err := c.recorder.Start(ctx); err != nil {
		slog.Error("Failed to start recording", "error", err)
		c.metrics.ObserveCaptureFailure()
		c.Dispatch(CaptureFailed{Err: err})
		return err
	}
	return nil
}

// StopRecording finalizes the capture and makes it the active payload.
func (c *Controller) StopRecording() (*audio.Payload, error) {
	if c.State().Phase != PhaseRecording {
		next := c.Dispatch(RecordStopped{})
		return nil, next.Err
	}

	payload, err := c.recorder.Stop()
	if err != nil {
		slog.Error("Failed to stop recording", "error", err)
		c.metrics.ObserveCaptureFailure()
		c.Dispatch(CaptureFailed{Err: err})
		return nil, err
	}
	c.metrics.ObserveRecording()

	var preview string
	if c.previews != nil {
		preview, err = c.previews.Save(payload)
		if err != nil {
			slog.Error("Failed to save recording preview", "error", err)
			preview = ""
		}
	}

	c.Dispatch(RecordStopped{Payload: payload, Preview: preview})
	return payload, nil
}

// SelectFile makes p the active payload.
func (c *Controller) SelectFile(p *audio.Payload) State {
	if p == nil {
		return c.State()
	}
	slog.Info("Audio selected", "name", p.Name, "bytes", p.Size())
	return c.Dispatch(FileSelected{Payload: p})
}

// SelectPath loads a file from disk and selects it. Content that does not
// parse as WAV is logged but still selected.
func (c *Controller) SelectPath(path string) (*audio.Payload, error) {
	p, err := audio.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if !audio.AcceptsFile(p.Name) {
		slog.Warn("Selected file is not a .wav file", "file", p.Name)
	}
	if _, err := audio.Inspect(p.Data); err != nil {
		slog.Warn("Selected file does not look like WAV audio", "file", p.Name, "error", err)
	}
	c.SelectFile(p)
	return p, nil
}

// Submission is an accepted analysis request that has not been sent yet.
type Submission struct {
	c      *Controller
	ctx    context.Context
	cancel context.CancelFunc
	state  State
}

// Submit accepts an analysis of the active payload and moves the session to
// Submitting. The request itself is sent by Run. Accepting a new submission
// cancels the previous one.
func (c *Controller) Submit(ctx context.Context) (*Submission, error) {
	sub := &Submission{c: c}
	next := c.dispatchLocked(SubmitRequested{}, func(prev, next State) {
		if next.Err != nil {
			return
		}
		if c.cancel != nil {
			c.cancel()
		}
		sub.ctx, sub.cancel = context.WithCancel(ctx)
		c.cancel = sub.cancel
	})
	if next.Err != nil {
		return nil, next.Err
	}
	sub.state = next
	return sub, nil
}

// State is the session state at the moment the submission was accepted.
func (s *Submission) State() State {
	return s.state
}

// Run sends the payload and records the outcome. A superseded submission is
// not sent and reports ErrSuperseded.
func (s *Submission) Run() (*predict.Result, error) {
	c := s.c
	gen := s.state.Generation
	defer s.cancel()

	if s.ctx.Err() != nil && c.State().Generation != gen {
		return nil, ErrSuperseded
	}

	if c.predictor == nil {
		err := fmt.Errorf("%w: no endpoint configured", predict.ErrBackendUnreachable)
		c.Dispatch(SubmitFailed{Generation: gen, Err: err})
		return nil, err
	}

	result, err := c.predictor.Predict(s.ctx, s.state.Payload)
	if err != nil {
		after := c.Dispatch(SubmitFailed{Generation: gen, Err: err})
		if after.Generation != gen {
			slog.Debug("Discarded failure of superseded analysis", "generation", gen)
		}
		return nil, err
	}

	after := c.Dispatch(SubmitSucceeded{Generation: gen, Result: result})
	if after.Generation != gen {
		slog.Debug("Discarded result of superseded analysis", "generation", gen)
		return nil, ErrSuperseded
	}
	return result, nil
}

// Abandon fails a submission that will never be run.
func (s *Submission) Abandon(err error) {
	s.cancel()
	s.c.Dispatch(SubmitFailed{Generation: s.state.Generation, Err: err})
}

// Analyze submits the active payload and waits for the outcome. A newer
// submission cancels this one and its late outcome is ignored by the state
// machine.
func (c *Controller) Analyze(ctx context.Context) (*predict.Result, error) {
	sub, err := c.Submit(ctx)
	if err != nil {
		return nil, err
	}
	return sub.Run()
}

func (c *Controller) DismissAlert() State {
	return c.Dispatch(AlertDismissed{})
}

// Close cancels any analysis in flight.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// IsUserError reports whether err is a rejected action rather than an I/O
// failure.
func IsUserError(err error) bool {
	return errors.Is(err, ErrNoPayload) ||
		errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrRecordingActive) ||
		errors.Is(err, ErrAlreadyRecording) ||
		errors.Is(err, ErrNotRecording)
}
