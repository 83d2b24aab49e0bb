package audio

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Recordings saves finished captures under <dir>/YYYYMMDD/ so they can be
// replayed as the preview of the last recording.
type Recordings struct {
	dir string
	now func() time.Time

	mu         sync.Mutex
	currentDay string
}

func NewRecordings(dir string) *Recordings {
	return &Recordings{
		dir: dir,
		now: time.Now,
	}
}

func (r *Recordings) Dir() string {
	return r.dir
}

// Save writes the payload to disk and returns its path.
func (r *Recordings) Save(p *Payload) (string, error) {
	if p == nil {
		return "", fmt.Errorf("no recording to save")
	}

	dailyDir, err := r.updateCurrentDay()
	if err != nil {
		return "", err
	}

	timestamp := r.now().Format("150405") // HHMMSS
	filename := fmt.Sprintf("recorded_%s_%s.wav", timestamp, p.ID.String()[:8])
	path := filepath.Join(dailyDir, filename)

	if err := os.WriteFile(path, p.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write recording: %w", err)
	}

	slog.Debug("Saved recording", "path", path, "bytes", len(p.Data))
	return path, nil
}

func (r *Recordings) updateCurrentDay() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	newDay := r.now().Format("20060102") // YYYYMMDD
	dailyDir := filepath.Join(r.dir, newDay)
	if newDay == r.currentDay {
		return dailyDir, nil
	}

	if err := os.MkdirAll(dailyDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create daily directory: %w", err)
	}
	r.currentDay = newDay
	slog.Info("Created new daily directory", "path", dailyDir)
	return dailyDir, nil
}
