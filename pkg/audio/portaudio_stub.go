//go:build !portaudio

package audio

import "github.com/harunnryd/voicetrigger/pkg/errorsx"

// This file stands in for the PortAudio source in builds without the
// `portaudio` tag (no libportaudio). The real implementation is in
// portaudio.go.

const PortAudioAvailable = false

type PortAudioSource struct{}

func NewPortAudioSource() *PortAudioSource { return &PortAudioSource{} }

func (s *PortAudioSource) Name() string { return "portaudio" }

func (s *PortAudioSource) Open(Params) (Stream, error) {
	return nil, errorsx.New(errorsx.ReasonDependencyUnavailable, "portaudio support not compiled in (build with -tags portaudio)")
}

func ListDevices() ([]DeviceInfo, error) {
	return nil, errorsx.New(errorsx.ReasonDependencyUnavailable, "portaudio support not compiled in (build with -tags portaudio)")
}
