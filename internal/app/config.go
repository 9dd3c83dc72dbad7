package app

import "errors"

// Config holds everything an App instance needs to run one model fit.
// Numeric zero values and empty strings mean "not set": the run block of
// the model file and the ambient defaults fill them in.
type Config struct {
	ModelPath string // .hcl file or directory

	LogFormat string
	LogLevel  string

	Chains    int
	Iter      int
	Warmup    *int // pointer so an explicit zero survives the merge
	Thin      int
	Seed      int64
	Cores     int
	Strategy  string
	Algorithm string
	Init      string
	File      string // durable fit-cache key
	SaveModel string // export generated program source here
	Quiet     bool

	CompilerBin   string
	CompilerFlags []string
	CacheDir      string
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("ModelPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
