package console

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/bosley/voiceguard/audio"
)

// watchFiles queues every .wav file created in the watch directory. Writers
// should write to a .tmp name and rename, so the file is complete when seen.
func (c *Console) watchFiles(ctx context.Context) {
	if err := os.MkdirAll(c.config.WatchDir, 0755); err != nil {
		slog.Error("Failed to create watch directory",
			"error", err,
			"path", c.config.WatchDir)
		return
	}

	if err := c.watcher.Add(c.config.WatchDir); err != nil {
		slog.Error("Failed to start watching directory",
			"error", err,
			"path", c.config.WatchDir)
		return
	}

	slog.Info("Started watching directory",
		"path", c.config.WatchDir,
		"autoAnalyze", c.config.AutoAnalyze)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}

			if job, ok := c.jobForEvent(event); ok {
				if err := c.enqueue(job); err != nil {
					slog.Error("Failed to queue audio file",
						"error", err,
						"event", event)
				}
			}

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func (c *Console) jobForEvent(event fsnotify.Event) (analysisJob, bool) {
	// Skip temporary files and non-create events
	if strings.HasSuffix(event.Name, ".tmp") || !event.Has(fsnotify.Create) {
		return analysisJob{}, false
	}

	if !audio.AcceptsFile(event.Name) {
		slog.Debug("Ignoring non-WAV file", "file", event.Name)
		return analysisJob{}, false
	}

	if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
		return analysisJob{}, false
	}

	return analysisJob{Path: event.Name, Analyze: c.config.AutoAnalyze}, true
}
