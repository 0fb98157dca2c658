package detect

import (
	"context"
	"strings"
	"sync"

	"github.com/harunnryd/voicetrigger/pkg/adapters/kws"
	"github.com/harunnryd/voicetrigger/pkg/audio"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

// KeywordSpotter runs a local keyword-spotting engine on every frame.
type KeywordSpotter struct {
	engine      kws.Engine
	deviceIndex int
	once        sync.Once
}

// NewKeywordSpotter creates the engine for cfg.WakeWord. It opens no audio
// device, so a bad keyword or missing engine fails before capture starts.
func NewKeywordSpotter(cfg Config, factory kws.Factory) (*KeywordSpotter, error) {
	if factory == nil {
		return nil, errorsx.New(errorsx.ReasonDependencyUnavailable, "no keyword spotting engine registered")
	}
	keyword := strings.ToLower(strings.TrimSpace(cfg.WakeWord))
	engine, err := factory([]string{keyword}, []float32{float32(cfg.Sensitivity)})
	if err != nil {
		return nil, errorsx.Wrapf(err, errorsx.ReasonConfiguration, "create keyword engine for %q", keyword)
	}
	if engine.SampleRate() <= 0 || engine.FrameLength() <= 0 {
		_ = engine.Close()
		return nil, errorsx.New(errorsx.ReasonConfiguration,
			"engine %s reported invalid format (%dHz, %d samples)", engine.Name(), engine.SampleRate(), engine.FrameLength())
	}
	return &KeywordSpotter{engine: engine, deviceIndex: cfg.DeviceIndex}, nil
}

func (k *KeywordSpotter) Kind() Kind { return LocalKeywordSpotting }

func (k *KeywordSpotter) Params() audio.Params {
	return audio.Params{
		DeviceIndex: k.deviceIndex,
		SampleRate:  k.engine.SampleRate(),
		Channels:    1,
		FrameLength: k.engine.FrameLength(),
	}
}

func (k *KeywordSpotter) Sample(_ context.Context, stream audio.Stream) (Unit, error) {
	f, err := stream.Read()
	if err != nil {
		return Unit{}, errorsx.Wrapf(err, errorsx.ReasonUnrecoverableIO, "read frame")
	}
	return Unit{Frame: f}, nil
}

func (k *KeywordSpotter) Analyze(_ context.Context, u Unit) (bool, error) {
	idx, err := k.engine.Process(u.Frame.RawSamples())
	if err != nil {
		return false, errorsx.Wrapf(err, errorsx.ReasonRecognition, "%s process", k.engine.Name())
	}
	return idx >= 0, nil
}

func (k *KeywordSpotter) Close() error {
	var err error
	k.once.Do(func() { err = k.engine.Close() })
	return err
}

func (k *KeywordSpotter) sealed() {}

var _ Backend = (*KeywordSpotter)(nil)
