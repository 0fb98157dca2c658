package porcupine

import "github.com/harunnryd/voicetrigger/pkg/errorsx"

// Config selects the keyword models. A keyword found in KeywordPaths uses
// that .ppn file; any other keyword must be one of the engine's built-ins.
type Config struct {
	AccessKey    string            `mapstructure:"access_key"`
	ModelPath    string            `mapstructure:"model_path"`
	KeywordPaths map[string]string `mapstructure:"keyword_paths"`
}

func (c Config) Validate() error {
	if c.AccessKey == "" {
		return errorsx.New(errorsx.ReasonConfiguration, "porcupine access_key is required")
	}
	return nil
}
