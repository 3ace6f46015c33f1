package console

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Run executes a console program to completion and captures its output
// lines and exit code. Cancelling ctx, or exceeding cfg.Timeout,
// terminates the program.
func Run(ctx context.Context, cfg Config) (Output, error) {
	var out Output
	start := time.Now()
	code, err := RunFunc(ctx, cfg, func(line string) {
		out.Lines = append(out.Lines, line)
	})
	out.ExitCode = code
	out.Text = strings.Join(out.Lines, "\n")
	out.Duration = time.Since(start)
	return out, err
}

// RunFunc executes a console program to completion, calling fn for each
// output line as it arrives, and returns the exit code.
func RunFunc(ctx context.Context, cfg Config, fn func(line string)) (int, error) {
	// Apply timeout if configured.
	runCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := runCtx.Err(); err != nil {
		return ExitCodeUnknown, err
	}

	p, err := Start(cfg)
	if err != nil {
		return ExitCodeUnknown, err
	}
	defer p.Close()

	// Cancellation kills the child, which closes its output and ends ReadLine.
	stop := context.AfterFunc(runCtx, func() {
		if err := p.TerminateNow(1); err != nil {
			p.log.WithError(err).Debug("terminate on cancel failed")
		}
	})
	defer stop()

	for {
		line, ok, err := p.ReadLine()
		if err != nil {
			return ExitCodeUnknown, fmt.Errorf("command %q: %w", cfg.Command, err)
		}
		if !ok {
			break
		}
		fn(line)
	}

	code := p.ExitCode()
	if err := runCtx.Err(); err != nil {
		return code, fmt.Errorf("command %q: %w", cfg.Command, err)
	}
	return code, nil
}
