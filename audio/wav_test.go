package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePCM(t *testing.T) {
	pcm := AppendSamples(nil, []int16{0, 1, -1, 32767, -32768})

	data, err := EncodePCM(pcm, SampleRate)
	require.NoError(t, err)
	assert.Len(t, data, headerSize+len(pcm))
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))

	body, err := PCMData(data)
	require.NoError(t, err)
	assert.Equal(t, pcm, body)

	info, err := Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), info.AudioFormat)
	assert.Equal(t, uint16(Channels), info.Channels)
	assert.Equal(t, uint32(SampleRate), info.SampleRate)
	assert.Equal(t, uint16(BitsPerSample), info.BitsPerSample)
}

func TestAppendSamplesLittleEndian(t *testing.T) {
	got := AppendSamples([]byte{0xAA}, []int16{0x0102, -2})
	assert.Equal(t, []byte{0xAA, 0x02, 0x01, 0xFE, 0xFF}, got)
}

func TestInspectRejectsNonWAV(t *testing.T) {
	_, err := Inspect([]byte("definitely not a riff file at all, just text"))
	assert.Error(t, err)
}

func TestPCMDataTooShort(t *testing.T) {
	_, err := PCMData([]byte("RIFF"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.wav")
	require.NoError(t, os.WriteFile(path, []byte("not validated"), 0644))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sample.wav", p.Name)
	assert.Equal(t, MIMETypeWAV, p.MIMEType)
	assert.Equal(t, OriginFile, p.Origin)
	assert.Equal(t, []byte("not validated"), p.Data)

	_, err = LoadFile(filepath.Join(dir, "missing.wav"))
	assert.Error(t, err)
}

func TestAcceptsFile(t *testing.T) {
	assert.True(t, AcceptsFile("voice.wav"))
	assert.True(t, AcceptsFile("VOICE.WAV"))
	assert.False(t, AcceptsFile("voice.mp3"))
	assert.False(t, AcceptsFile("voice.wav.tmp"))
}

func TestRecordingsSave(t *testing.T) {
	dir := t.TempDir()
	store := NewRecordings(dir)
	store.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}

	p, err := NewRecording(AppendSamples(nil, []int16{1, 2, 3}), SampleRate)
	require.NoError(t, err)

	path, err := store.Save(p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260314"), filepath.Dir(path))
	assert.Contains(t, filepath.Base(path), "recorded_092653_")

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, p.Data, saved)

	_, err = store.Save(nil)
	assert.Error(t, err)
}
