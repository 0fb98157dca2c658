//go:build portaudio

package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/frames"
	"github.com/harunnryd/voicetrigger/pkg/logging"
)

// PortAudioAvailable reports whether microphone capture is compiled in.
const PortAudioAvailable = true

// PortAudioSource captures from a PortAudio input device. Each Open
// initializes PortAudio and each Close terminates it; PortAudio reference
// counts nested initialization.
type PortAudioSource struct {
	logger *slog.Logger
}

func NewPortAudioSource() *PortAudioSource {
	return &PortAudioSource{logger: logging.NewComponentLogger(slog.Default(), "portaudio")}
}

func (s *PortAudioSource) Name() string { return "portaudio" }

func (s *PortAudioSource) Open(p Params) (Stream, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonDependencyUnavailable, "portaudio init")
	}
	dev, err := inputDevice(p.DeviceIndex)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, errorsx.Wrap(err, errorsx.ReasonDevice)
	}

	buf := make([]int16, p.FrameLength*p.Channels)
	sp := portaudio.LowLatencyParameters(dev, nil)
	sp.Input.Channels = p.Channels
	sp.SampleRate = float64(p.SampleRate)
	sp.FramesPerBuffer = p.FrameLength

	stream, err := portaudio.OpenStream(sp, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, errorsx.Wrapf(err, errorsx.ReasonDevice, "open device %d (%s)", p.DeviceIndex, dev.Name)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, errorsx.Wrapf(err, errorsx.ReasonDevice, "start device %d (%s)", p.DeviceIndex, dev.Name)
	}
	s.logger.Info("audio_device_opened",
		slog.Int("device_index", p.DeviceIndex),
		slog.String("device", dev.Name),
		slog.Int("sample_rate", p.SampleRate),
		slog.Int("frame_length", p.FrameLength))

	return &paStream{
		stream: stream,
		buf:    buf,
		params: p,
		pts:    frames.NewPTSGen(p.SampleRate, p.Channels),
		logger: s.logger,
	}, nil
}

type paStream struct {
	stream *portaudio.Stream
	buf    []int16
	params Params
	pts    *frames.PTSGen
	logger *slog.Logger
	once   sync.Once
}

func (s *paStream) Read() (frames.AudioFrame, error) {
	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return frames.AudioFrame{}, err
		}
		s.logger.Debug("audio_input_overflowed")
	}
	return frames.NewAudioFrame(s.pts.Next(len(s.buf)), s.buf, s.params.SampleRate, s.params.Channels), nil
}

func (s *paStream) Close() error {
	var err error
	s.once.Do(func() {
		err = errors.Join(s.stream.Stop(), s.stream.Close(), portaudio.Terminate())
		s.logger.Info("audio_device_closed", slog.Int("device_index", s.params.DeviceIndex))
	})
	return err
}

func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (%d devices)", index, len(devices))
	}
	dev := devices[index]
	if dev.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("device %d (%s) has no input channels", index, dev.Name)
	}
	return dev, nil
}

// ListDevices enumerates PortAudio devices.
func ListDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonDependencyUnavailable, "portaudio init")
	}
	defer func() { _ = portaudio.Terminate() }()
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonDevice)
	}
	out := make([]DeviceInfo, 0, len(devices))
	for i, d := range devices {
		out = append(out, DeviceInfo{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	return out, nil
}
