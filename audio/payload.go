package audio

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	MIMETypeWAV      = "audio/wav"
	RecordedFileName = "recorded.wav"
)

// Origin records where a payload came from.
type Origin int

const (
	OriginFile Origin = iota
	OriginRecording
)

func (o Origin) String() string {
	switch o {
	case OriginRecording:
		return "recording"
	default:
		return "file"
	}
}

// Payload is the audio submitted for analysis. It is never modified after
// construction; a new selection or recording produces a new Payload.
type Payload struct {
	ID       uuid.UUID
	Name     string
	MIMEType string
	Origin   Origin
	Data     []byte
}

func NewPayload(name, mimeType string, origin Origin, data []byte) *Payload {
	return &Payload{
		ID:       uuid.New(),
		Name:     name,
		MIMEType: mimeType,
		Origin:   origin,
		Data:     data,
	}
}

// NewRecording builds the payload for a finished microphone capture.
func NewRecording(pcm []byte, sampleRate uint32) (*Payload, error) {
	data, err := EncodePCM(pcm, sampleRate)
	if err != nil {
		return nil, err
	}
	return NewPayload(RecordedFileName, MIMETypeWAV, OriginRecording, data), nil
}

// LoadFile reads a user-selected file. The content is not validated.
func LoadFile(path string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file: %w", err)
	}
	name := filepath.Base(path)
	return NewPayload(name, MIMETypeFor(name), OriginFile, data), nil
}

// AcceptsFile reports whether a file name matches the .wav picker filter.
func AcceptsFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".wav")
}

func MIMETypeFor(name string) string {
	if AcceptsFile(name) {
		return MIMETypeWAV
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (p *Payload) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Data)
}
