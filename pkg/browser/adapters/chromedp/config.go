package chromedp

import (
	"errors"
	"strings"
	"time"
)

// Config controls how the chromedp adapter launches Chrome.
type Config struct {
	ExecPath      string
	ExtraFlags    map[string]any
	LaunchTimeout time.Duration
	DisableGPU    bool
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		LaunchTimeout: 30 * time.Second,
		DisableGPU:    true,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.ExecPath) != "" {
		defaults.ExecPath = c.ExecPath
	}
	if len(c.ExtraFlags) > 0 {
		defaults.ExtraFlags = c.ExtraFlags
	}
	if c.LaunchTimeout != 0 {
		defaults.LaunchTimeout = c.LaunchTimeout
	}
	defaults.DisableGPU = c.DisableGPU || defaults.DisableGPU
	return defaults
}

// Validate checks whether the config is usable.
func (c Config) Validate() error {
	if c.LaunchTimeout < 0 {
		return errors.New("launch_timeout must be zero or positive")
	}
	for name := range c.ExtraFlags {
		if strings.TrimSpace(name) == "" {
			return errors.New("extra flag names cannot be empty")
		}
	}
	return nil
}
