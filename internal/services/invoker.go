package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Renderer is the OCR tool's PDF rendering mode.
type Renderer string

const (
	RendererSandwich Renderer = "sandwich"
	RendererHOCR     Renderer = "hocr"
)

// ParseRenderer validates a renderer name.
func ParseRenderer(s string) (Renderer, error) {
	switch Renderer(s) {
	case RendererSandwich, RendererHOCR:
		return Renderer(s), nil
	}
	return "", fmt.Errorf("unknown renderer %q (want sandwich or hocr)", s)
}

// InvokerConfig is every option the OCR tool is called with. Argument
// construction is a pure function of this value.
type InvokerConfig struct {
	Binary        string
	Languages     []string
	Renderer      Renderer
	JobsPerFile   int
	OptimizeLevel int
	Deskew        bool
	SkipText      bool
	ExtraArgs     []string
}

// ParseLanguages accepts "eng+deu", "eng,deu" or "eng deu".
func ParseLanguages(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '+' || r == ',' || r == ' '
	})
	if len(fields) == 0 {
		return []string{"eng"}
	}
	return fields
}

// Args builds the ocrmypdf argument list for one attempt.
func (c InvokerConfig) Args(input, output string) []string {
	args := make([]string, 0, 16+len(c.ExtraArgs))
	if c.SkipText {
		args = append(args, "--skip-text")
	}
	args = append(args,
		"--output-type", "pdf",
		"--pdf-renderer", string(c.Renderer),
		"--jobs", strconv.Itoa(c.JobsPerFile),
		"-l", strings.Join(c.Languages, "+"),
		"--continue-on-soft-render-error",
		"--optimize", strconv.Itoa(c.OptimizeLevel),
	)
	if c.Deskew {
		args = append(args, "--deskew")
	}
	args = append(args, c.ExtraArgs...)
	return append(args, input, output)
}

// Invocation is the observable outcome of one run of the OCR tool.
type Invocation struct {
	ExitCode   int
	Stderr     string
	OutputPath string
	Duration   time.Duration
}

// ToolRunner runs the OCR tool once.
type ToolRunner interface {
	Invoke(ctx context.Context, cfg InvokerConfig, input, output string) (Invocation, error)
}

// Invoker runs the OCR tool as a subprocess.
type Invoker struct {
	// WaitDelay bounds how long a cancelled tool may take to exit after
	// being killed before its pipes are closed.
	WaitDelay time.Duration
}

func NewInvoker() *Invoker {
	return &Invoker{WaitDelay: 10 * time.Second}
}

// LookupTool resolves the tool binary on PATH.
func LookupTool(binary string) (string, error) {
	p, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolMissing, binary, err)
	}
	return p, nil
}

// Invoke writes the tool output to output, never touching input. It returns
// an error wrapping ErrInvocation unless the tool exited 0 and left a
// non-empty file behind; a cancelled context yields ErrInterrupted.
func (i *Invoker) Invoke(ctx context.Context, cfg InvokerConfig, input, output string) (Invocation, error) {
	if input == output {
		return Invocation{}, fmt.Errorf("%w: output path equals input path %s", ErrInvocation, input)
	}
	args := cfg.Args(input, output)
	cmd := exec.CommandContext(ctx, cfg.Binary, args...)
	cmd.WaitDelay = i.WaitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Debug("Running OCR tool.", "binary", cfg.Binary, "args", args)
	start := time.Now()
	runErr := cmd.Run()
	res := Invocation{
		ExitCode:   -1,
		Stderr:     stderr.String(),
		OutputPath: output,
		Duration:   time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil {
		return res, fmt.Errorf("%w: ocr tool stopped: %v", ErrInterrupted, ctx.Err())
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return res, fmt.Errorf("%w: exit code %d: %s", ErrInvocation, res.ExitCode, stderrSummary(res.Stderr))
		}
		if errors.Is(runErr, exec.ErrNotFound) {
			return res, fmt.Errorf("%w: %v", ErrToolMissing, runErr)
		}
		return res, fmt.Errorf("%w: failed to start %s: %v", ErrInvocation, cfg.Binary, runErr)
	}

	info, err := os.Stat(output)
	if err != nil {
		return res, fmt.Errorf("%w: exit code 0 but no output file: %v", ErrInvocation, err)
	}
	if info.Size() == 0 {
		return res, fmt.Errorf("%w: exit code 0 but output file is empty", ErrInvocation)
	}
	return res, nil
}

func stderrSummary(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "ocr tool failed"
	}
	return truncateMessage(s)
}
