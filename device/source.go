package device

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"github.com/bosley/voiceguard/audio"
	"github.com/bosley/voiceguard/capture"
)

const (
	channels        = audio.Channels
	framesPerBuffer = 1024
)

// Source opens the microphone through portaudio. A zero DeviceID selects the
// default input device.
type Source struct {
	DeviceID int
}

var _ capture.Source = (*Source)(nil)

func NewSource(deviceID int) *Source {
	return &Source{DeviceID: deviceID}
}

func (s *Source) SampleRate() uint32 {
	return audio.SampleRate
}

func (s *Source) Open(ctx context.Context, onChunk func([]int16)) (capture.Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	inputParams, err := s.inputParameters()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	stream, err := portaudio.OpenStream(inputParams, func(in []int16) {
		select {
		case <-ctx.Done():
			return
		default:
			onChunk(in)
		}
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	return &paStream{stream: stream}, nil
}

func (s *Source) inputParameters() (portaudio.StreamParameters, error) {
	var device *portaudio.DeviceInfo

	if s.DeviceID > 0 { // Only use specific device if explicitly requested (non-zero)
		devices, err := portaudio.Devices()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get audio devices: %w", err)
		}
		if s.DeviceID >= len(devices) {
			return portaudio.StreamParameters{}, fmt.Errorf("invalid device ID %d", s.DeviceID)
		}
		device = devices[s.DeviceID]
		if device.MaxInputChannels == 0 {
			return portaudio.StreamParameters{}, fmt.Errorf("device %d (%s) is not an input device", s.DeviceID, device.Name)
		}
		slog.Info("Using specified audio device",
			"deviceID", s.DeviceID,
			"deviceName", device.Name,
			"sampleRate", device.DefaultSampleRate,
			"inputChannels", device.MaxInputChannels)
	} else {
		var err error
		device, err = portaudio.DefaultInputDevice()
		if err != nil {
			return portaudio.StreamParameters{}, fmt.Errorf("failed to get default input device: %w", err)
		}
		slog.Info("Using default audio device",
			"deviceName", device.Name,
			"sampleRate", device.DefaultSampleRate,
			"inputChannels", device.MaxInputChannels)
	}

	return portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      audio.SampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, nil
}

// paStream releases the portaudio library together with the stream.
type paStream struct {
	stream *portaudio.Stream
}

func (p *paStream) Start() error {
	return p.stream.Start()
}

func (p *paStream) Stop() error {
	return p.stream.Stop()
}

func (p *paStream) Close() error {
	err := p.stream.Close()
	if termErr := portaudio.Terminate(); termErr != nil && err == nil {
		err = termErr
	}
	return err
}

func ListInputDevices() ([]portaudio.DeviceInfo, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	// Filter to only input devices
	inputDevices := make([]portaudio.DeviceInfo, 0)
	for _, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, *device)
		}
	}

	return inputDevices, nil
}
