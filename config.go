package hubloop

import (
	"errors"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the adapter options, e.g.
//
//	default: true
//	log_level: info
//	diagnostics: stderr
//	exit_when_idle: true
//	error_rate_limits:
//	  1s: 10
//	  1m: 100
type Config struct {
	Default         *bool          `yaml:"default"`
	ExitWhenIdle    *bool          `yaml:"exit_when_idle"`
	ErrorRateLimits map[string]int `yaml:"error_rate_limits"`
	LogLevel        string         `yaml:"log_level"`
	// Diagnostics is one of "stderr" (the default), "stdout" or "discard".
	Diagnostics string `yaml:"diagnostics"`
}

// LoadConfig decodes and validates a YAML config. Unknown fields are
// rejected. An empty document is a valid, empty config.
func LoadConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ArgumentError{Op: "config", Message: "decode failed", Cause: err}
	}

	if _, err := cfg.Options(io.Discard); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options converts the config to adapter options. Logs are written to
// logOut, if a log level is set.
func (c *Config) Options(logOut io.Writer) ([]Option, error) {
	var opts []Option

	if c.Default != nil {
		opts = append(opts, WithDefault(*c.Default))
	}
	if c.ExitWhenIdle != nil {
		opts = append(opts, WithExitWhenIdle(*c.ExitWhenIdle))
	}

	if c.LogLevel != "" {
		level, err := ParseLevel(c.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLogger(NewLogger(logOut, level)))
	}

	switch c.Diagnostics {
	case "", "stderr":
	case "stdout":
		opts = append(opts, WithDiagnostics(os.Stdout))
	case "discard":
		opts = append(opts, WithDiagnostics(io.Discard))
	default:
		return nil, argumentErrorf("config", "unknown diagnostics %q", c.Diagnostics)
	}

	if c.ErrorRateLimits != nil {
		rates := make(map[time.Duration]int, len(c.ErrorRateLimits))
		for k, v := range c.ErrorRateLimits {
			d, err := time.ParseDuration(k)
			if err != nil {
				return nil, &ArgumentError{Op: "config", Message: "invalid error rate limit duration", Cause: err}
			}
			rates[d] = v
		}
		if _, err := newLimiter(rates); err != nil {
			return nil, err
		}
		opts = append(opts, WithErrorRateLimits(rates))
	}

	return opts, nil
}
