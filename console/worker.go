package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/bosley/voiceguard/session"
)

// analysisJob either runs an accepted Submission or selects the file at Path
// and, when Analyze is set, submits it.
type analysisJob struct {
	Submission *session.Submission
	Path       string
	Analyze    bool
}

func (c *Console) enqueue(job analysisJob) error {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	if c.queueClosed {
		return fmt.Errorf("console is shutting down")
	}

	select {
	case c.queue <- job:
		c.config.Metrics.SetQueueSize(len(c.queue))
		if job.Submission != nil {
			slog.Info("Queued analysis", "generation", job.Submission.State().Generation)
		} else {
			slog.Info("Queued audio file", "file", filepath.Base(job.Path), "analyze", job.Analyze)
		}
		return nil
	default:
		return fmt.Errorf("job queue is full")
	}
}

func (c *Console) startWorker(ctx context.Context) {
	c.workers.Add(1)
	go c.worker(ctx)
}

func (c *Console) worker(ctx context.Context) {
	slog.Debug("Worker starting")
	defer func() {
		slog.Debug("Worker shutting down")
		c.workers.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Worker context cancelled")
			return

		case job, ok := <-c.queue:
			if !ok {
				slog.Debug("Worker queue closed")
				return
			}
			c.config.Metrics.SetQueueSize(len(c.queue))

			if err := c.processJob(ctx, job); err != nil {
				slog.Error("Failed to process audio file",
					"error", err,
					"file", job.Path)
			}
		}
	}
}

func (c *Console) processJob(ctx context.Context, job analysisJob) error {
	if job.Submission != nil {
		return c.runSubmission(job.Submission)
	}

	if _, err := c.ctrl.SelectPath(job.Path); err != nil {
		return err
	}
	if !job.Analyze {
		return nil
	}

	result, err := c.ctrl.Analyze(ctx)
	if err != nil {
		if session.IsUserError(err) {
			slog.Info("Analysis rejected", "file", filepath.Base(job.Path), "reason", err)
			return nil
		}
		return err
	}

	slog.Info("Analyzed watched file",
		"file", filepath.Base(job.Path),
		"prediction", result.Prediction,
		"confidence", result.Confidence.String())
	return nil
}

func (c *Console) runSubmission(sub *session.Submission) error {
	result, err := sub.Run()
	switch {
	case errors.Is(err, session.ErrSuperseded):
		slog.Debug("Skipped superseded analysis", "generation", sub.State().Generation)
		return nil
	case err != nil:
		return err
	}

	slog.Info("Analyzed audio",
		"name", sub.State().Payload.Name,
		"prediction", result.Prediction,
		"confidence", result.Confidence.String())
	return nil
}
