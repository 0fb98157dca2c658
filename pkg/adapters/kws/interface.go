package kws

// Engine is a local keyword-spotting engine working on fixed-size frames.
type Engine interface {
	// Name returns engine name for logging/metrics.
	Name() string
	// SampleRate is the rate the capture device must be opened with.
	SampleRate() int
	// FrameLength is the number of samples Process expects per call.
	FrameLength() int
	// Process scores one frame. A negative result means no match; a
	// non-negative result is the index of the matched keyword.
	Process(pcm []int16) (int, error)
	// Close releases the native engine handle.
	Close() error
}

// Factory creates an engine for the given keywords. Creation failures carry
// errorsx.ReasonConfiguration or errorsx.ReasonDependencyUnavailable.
type Factory func(keywords []string, sensitivities []float32) (Engine, error)
