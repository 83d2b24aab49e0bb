package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/youpy/go-wav"
)

const (
	SampleRate    = 44100 // Rate at which the microphone is recorded
	Channels      = 1     // Mono audio
	BitsPerSample = 16    // Using int16 for samples

	headerSize = 44
)

type WavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// Info describes the format of a WAV file as read back by go-wav.
type Info struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

func WriteWavHeader(w io.Writer, sampleRate, dataSize uint32) error {
	header := WavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     dataSize + 36,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   Channels,
		SampleRate:    sampleRate,
		ByteRate:      sampleRate * uint32(Channels) * uint32(BitsPerSample) / 8,
		BlockAlign:    Channels * BitsPerSample / 8,
		BitsPerSample: BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	return binary.Write(w, binary.LittleEndian, header)
}

// EncodePCM wraps little-endian 16-bit mono PCM in a WAV container.
func EncodePCM(pcm []byte, sampleRate uint32) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + len(pcm))

	if err := WriteWavHeader(&buf, sampleRate, uint32(len(pcm))); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// PCMData returns the sample bytes of a WAV produced by EncodePCM.
func PCMData(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("WAV data too short: %d bytes", len(data))
	}
	return data[headerSize:], nil
}

// AppendSamples encodes samples as little-endian int16 and appends them to dst.
func AppendSamples(dst []byte, samples []int16) []byte {
	for _, sample := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(sample))
	}
	return dst
}

// Inspect parses the format chunk of a WAV file.
func Inspect(data []byte) (Info, error) {
	reader := wav.NewReader(bytes.NewReader(data))

	format, err := reader.Format()
	if err != nil {
		return Info{}, fmt.Errorf("failed to read WAV format: %w", err)
	}

	return Info{
		AudioFormat:   format.AudioFormat,
		Channels:      format.NumChannels,
		SampleRate:    format.SampleRate,
		BitsPerSample: format.BitsPerSample,
	}, nil
}
