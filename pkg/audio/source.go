package audio

import (
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
	"github.com/harunnryd/voicetrigger/pkg/frames"
)

// Params are the capture parameters a backend requires from a Source.
type Params struct {
	// DeviceIndex selects the capture device. Negative selects the host
	// default input device.
	DeviceIndex int
	SampleRate  int
	Channels    int
	// FrameLength is the number of samples per channel in every frame.
	FrameLength int
}

func (p Params) Validate() error {
	if p.SampleRate <= 0 {
		return errorsx.New(errorsx.ReasonConfiguration, "sample rate must be positive, got %d", p.SampleRate)
	}
	if p.Channels <= 0 {
		return errorsx.New(errorsx.ReasonConfiguration, "channels must be positive, got %d", p.Channels)
	}
	if p.FrameLength <= 0 {
		return errorsx.New(errorsx.ReasonConfiguration, "frame length must be positive, got %d", p.FrameLength)
	}
	return nil
}

// Source opens capture streams. Every Open yields an independent stream that
// owns the underlying device until Close.
type Source interface {
	// Name returns the source name for logging.
	Name() string
	// Open acquires the device. Failures carry errorsx.ReasonDevice or
	// errorsx.ReasonDependencyUnavailable and leave nothing open.
	Open(p Params) (Stream, error)
}

// Stream produces fixed-length frames. Read blocks for at most one frame
// interval on a live device. Close releases the device and is idempotent.
type Stream interface {
	Read() (frames.AudioFrame, error)
	Close() error
}
