package adb

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// FallbackPolicy decides when the next command form is tried after one fails.
type FallbackPolicy string

const (
	// FallbackIncompatible falls back only when the output says the form is unsupported.
	FallbackIncompatible FallbackPolicy = "incompatible"
	// FallbackAny falls back on any non-zero exit.
	FallbackAny FallbackPolicy = "any"
	// FallbackNever uses the primary form only.
	FallbackNever FallbackPolicy = "never"
)

// Config configures the device client.
type Config struct {
	// Path of the adb executable.
	Path string `yaml:"path"`
	// Serial selects one device when several are attached.
	Serial string `yaml:"serial"`
	// Stream is the Android audio stream; 3 is STREAM_MUSIC.
	Stream int `yaml:"stream"`
	// CommandTimeout bounds volume commands and the handshake.
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// QueryTimeout bounds the max volume query.
	QueryTimeout time.Duration `yaml:"query_timeout"`
	// HeartbeatTimeout bounds the liveness probe.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	// Fallback is the policy for trying alternate command forms.
	Fallback FallbackPolicy `yaml:"fallback"`
	// IncompatiblePatterns match command output meaning "form not supported".
	IncompatiblePatterns []string `yaml:"incompatible_patterns"`
	// MaxPatterns extract the stream maximum from `dumpsys audio`.
	MaxPatterns []string `yaml:"max_patterns"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Path:             "adb",
		Stream:           3,
		CommandTimeout:   3 * time.Second,
		QueryTimeout:     10 * time.Second,
		HeartbeatTimeout: 2 * time.Second,
		Fallback:         FallbackIncompatible,
		IncompatiblePatterns: []string{
			`(?i)unknown (command|option|stream)`,
			`(?i)can't find service`,
			`(?i)inaccessible or not found`,
			`(?i)not supported`,
			`(?im)^usage:`,
			`(?i)service \S+ does not exist`,
			`java\.lang\.\w*Exception`,
		},
		MaxPatterns: []string{
			`(?is)STREAM_MUSIC.*?indexMax:\s*(\d+)`,
			`(?is)STREAM_MUSIC.*?Max:\s*(\d+)`,
			`(?is)- STREAM_MUSIC.*?(\d+)`,
		},
	}
}

// Validate checks the configuration for impossible values.
func (c Config) Validate() error {
	var errs []error

	if c.Path == "" {
		errs = append(errs, errors.New("adb path must not be empty"))
	}

	if c.Stream < 0 || c.Stream > 11 {
		errs = append(errs, fmt.Errorf("stream %d out of range [0..11]", c.Stream))
	}

	for name, d := range map[string]time.Duration{
		"command_timeout":   c.CommandTimeout,
		"query_timeout":     c.QueryTimeout,
		"heartbeat_timeout": c.HeartbeatTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s %s must be positive", name, d))
		}
	}

	switch c.Fallback {
	case FallbackIncompatible, FallbackAny, FallbackNever:
	default:
		errs = append(errs, fmt.Errorf("unknown fallback policy %q", c.Fallback))
	}

	if _, err := compilePatterns(c.IncompatiblePatterns); err != nil {
		errs = append(errs, fmt.Errorf("incompatible_patterns: %w", err))
	}

	maxPatterns, err := compilePatterns(c.MaxPatterns)
	if err != nil {
		errs = append(errs, fmt.Errorf("max_patterns: %w", err))
	}

	for _, re := range maxPatterns {
		if re.NumSubexp() < 1 {
			errs = append(errs, fmt.Errorf("max pattern %q has no capture group", re))
		}
	}

	return errors.Join(errs...)
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}

		out = append(out, re)
	}

	return out, nil
}
