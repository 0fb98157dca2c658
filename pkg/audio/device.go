package audio

// DeviceInfo describes a capture device as listed by the host audio API.
type DeviceInfo struct {
	Index             int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
}

func (d DeviceInfo) IsInput() bool { return d.MaxInputChannels > 0 }
