// Package config loads parser limits from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dhamidi/reparse/parser"
	"github.com/mstoykov/envconfig"
)

// ErrInvalid is returned for settings out of range.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the settings shared by the CLI and the language server.
type Config struct {
	// OperationLimit stops a parse after this many parser operations. Zero
	// means no limit.
	OperationLimit int `envconfig:"REPARSE_OPERATION_LIMIT"`
	// CheckInterval is how many operations run between cancellation checks.
	CheckInterval int `envconfig:"REPARSE_CHECK_INTERVAL"`
	// RecoveryHorizon is how many tokens error recovery looks ahead.
	RecoveryHorizon int `envconfig:"REPARSE_RECOVERY_HORIZON"`
	// Timeout bounds a single parse. Zero means no deadline.
	Timeout time.Duration `envconfig:"REPARSE_TIMEOUT"`
	// LogVerbosity is passed to commonlog; 0 logs errors only.
	LogVerbosity int `envconfig:"REPARSE_LOG_VERBOSITY"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		CheckInterval:   parser.DefaultCheckInterval,
		RecoveryHorizon: parser.DefaultRecoveryHorizon,
	}
}

// Load overlays the variables in env on the defaults.
func Load(env map[string]string) (Config, error) {
	return load(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
}

// FromEnvironment overlays the process environment on the defaults.
func FromEnvironment() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if err := envconfig.Process("", &cfg, lookup); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every setting is in range.
func (c Config) Validate() error {
	var errs []error
	if c.OperationLimit < 0 {
		errs = append(errs, fmt.Errorf("%w: operation limit %d is negative", ErrInvalid, c.OperationLimit))
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: check interval must be positive, got %d", ErrInvalid, c.CheckInterval))
	}
	if c.RecoveryHorizon <= 0 {
		errs = append(errs, fmt.Errorf("%w: recovery horizon must be positive, got %d", ErrInvalid, c.RecoveryHorizon))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: timeout %s is negative", ErrInvalid, c.Timeout))
	}
	return errors.Join(errs...)
}

// ParserOptions returns the parser options for c.
func (c Config) ParserOptions() []parser.Option {
	return []parser.Option{
		parser.WithOperationLimit(c.OperationLimit),
		parser.WithCheckInterval(c.CheckInterval),
		parser.WithRecoveryHorizon(c.RecoveryHorizon),
	}
}

// WithTimeout derives a context bounded by the configured timeout.
func (c Config) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}
