package app

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Ambient holds process-wide option defaults read from the environment.
// They are resolved exactly once at call entry so a long-running build
// never observes a mid-flight change.
type Ambient struct {
	Cores       int
	Futures     bool
	CompilerBin string
	CacheDir    string
	WorkDir     string
}

// ResolveAmbient reads the FITGRID_* environment once and returns the
// resolved defaults.
func ResolveAmbient() Ambient {
	v := viper.New()
	v.SetEnvPrefix("fitgrid")
	v.AutomaticEnv()
	v.SetDefault("cores", runtime.NumCPU())
	v.SetDefault("futures", false)
	v.SetDefault("compiler", "modelc")
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("work_dir", os.TempDir())

	return Ambient{
		Cores:       v.GetInt("cores"),
		Futures:     v.GetBool("futures"),
		CompilerBin: v.GetString("compiler"),
		CacheDir:    v.GetString("cache_dir"),
		WorkDir:     v.GetString("work_dir"),
	}
}

func defaultCacheDir() string {
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "fitgrid")
	}
	return filepath.Join(os.TempDir(), "fitgrid-cache")
}
