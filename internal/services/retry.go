package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/safeocr/internal/models"
)

// DeskewMode selects which attempts run with deskew when deskew is enabled.
type DeskewMode string

const (
	DeskewOnRetry DeskewMode = "retry"
	DeskewAlways  DeskewMode = "always"
)

func ParseDeskewMode(s string) (DeskewMode, error) {
	switch DeskewMode(s) {
	case DeskewOnRetry, DeskewAlways:
		return DeskewMode(s), nil
	}
	return "", fmt.Errorf("unknown deskew mode %q (want retry or always)", s)
}

// RetryConfig describes how the second attempt is relaxed.
type RetryConfig struct {
	Deskew             bool
	DeskewMode         DeskewMode
	RetryOptimizeLevel int
}

// RetryPolicy runs the OCR tool at most twice for a job: once with the
// primary configuration and, on failure, once with the relaxed one.
type RetryPolicy struct {
	runner ToolRunner
	config RetryConfig
}

func NewRetryPolicy(runner ToolRunner, config RetryConfig) *RetryPolicy {
	return &RetryPolicy{runner: runner, config: config}
}

// PrimaryConfig is the configuration of the first attempt.
func (p *RetryPolicy) PrimaryConfig(base InvokerConfig) InvokerConfig {
	cfg := base
	cfg.Deskew = p.config.Deskew && p.config.DeskewMode == DeskewAlways
	return cfg
}

// RelaxedConfig is the configuration of the retry attempt.
func (p *RetryPolicy) RelaxedConfig(base InvokerConfig) InvokerConfig {
	cfg := base
	if p.config.RetryOptimizeLevel < cfg.OptimizeLevel {
		cfg.OptimizeLevel = p.config.RetryOptimizeLevel
	}
	cfg.Deskew = p.config.Deskew
	return cfg
}

// RunResult reports the last attempt made for a job.
type RunResult struct {
	Last Invocation
}

// Run drives job through Invoking and, if needed, Retrying. On success the
// verified output sits at output. On failure no output file is left behind
// and the error wraps ErrRetryExhausted or ErrInterrupted. Terminal states
// are left to the caller.
func (p *RetryPolicy) Run(ctx context.Context, job *models.Job, base InvokerConfig, input, output string) (RunResult, error) {
	logCtx := slog.With("path", input)

	if err := job.Advance(models.StateInvoking); err != nil {
		return RunResult{}, err
	}
	res, err := p.attempt(ctx, job, p.PrimaryConfig(base), input, output)
	if err == nil {
		return RunResult{Last: res}, nil
	}
	if errors.Is(err, ErrInterrupted) || errors.Is(err, ErrToolMissing) {
		return RunResult{Last: res}, err
	}
	logCtx.Warn("OCR attempt failed, retrying with relaxed settings.", "attempt", job.Attempts, "error", err)

	if err := job.Advance(models.StateRetrying); err != nil {
		return RunResult{Last: res}, err
	}
	res, err = p.attempt(ctx, job, p.RelaxedConfig(base), input, output)
	if err == nil {
		return RunResult{Last: res}, nil
	}
	if errors.Is(err, ErrInterrupted) {
		return RunResult{Last: res}, err
	}
	return RunResult{Last: res}, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, job.Attempts, err)
}

func (p *RetryPolicy) attempt(ctx context.Context, job *models.Job, cfg InvokerConfig, input, output string) (Invocation, error) {
	// A leftover file from an earlier attempt must not be mistaken for this one.
	if err := removeIfExists(output); err != nil {
		return Invocation{}, fmt.Errorf("%w: failed to clear stale output: %v", ErrInvocation, err)
	}
	job.Attempts++
	res, err := p.runner.Invoke(ctx, cfg, input, output)
	if err != nil {
		if rmErr := removeIfExists(output); rmErr != nil {
			slog.Error("Failed to remove temporary output after failed attempt.", "path", output, "error", rmErr)
		}
		return res, err
	}
	return res, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
