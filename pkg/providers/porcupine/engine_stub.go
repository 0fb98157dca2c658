//go:build !porcupine

package porcupine

import (
	"github.com/harunnryd/voicetrigger/pkg/adapters/kws"
	"github.com/harunnryd/voicetrigger/pkg/errorsx"
)

// Available reports whether the native engine is compiled in.
const Available = false

// NewFactory returns a factory that always fails: this binary was built
// without the porcupine tag.
func NewFactory(cfg Config) kws.Factory {
	return func([]string, []float32) (kws.Engine, error) {
		return nil, errorsx.New(errorsx.ReasonDependencyUnavailable, "porcupine support not compiled in (build with -tags porcupine)")
	}
}
