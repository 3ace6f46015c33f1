package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/sibikrish3000/conrelay/pkg/console"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// promptColor marks text the program printed without a newline.
var promptColor = color.New(color.FgCyan, color.Bold)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run a console program interactively",
		Long: `Run relays the program's output to stdout and stdin lines to the
program. Prompts are highlighted as soon as the program waits for input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(args)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			code, err := relay(ctx, cfg, os.Stdin, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return exitStatus(code)
		},
	}
}

// relay runs cfg with in pumped to the program and its output copied to
// out, until the program's output ends or ctx is done.
func relay(ctx context.Context, cfg console.Config, in io.Reader, out io.Writer) (int, error) {
	p, err := console.Start(cfg)
	if err != nil {
		return console.ExitCodeUnknown, err
	}
	defer p.Close()

	// A read from a terminal cannot be interrupted, so the input pump is
	// not waited for.
	go pumpInput(p, in)

	// An output error cancels gctx, which kills the program and so ends
	// the wait for its exit code.
	g, gctx := errgroup.WithContext(ctx)
	defer killOnDone(gctx, p)()
	var code int
	g.Go(func() error { return pumpOutput(p, out) })
	g.Go(func() error {
		code = p.ExitCode()
		return nil
	})
	if err := g.Wait(); err != nil {
		return console.ExitCodeUnknown, err
	}
	if err := ctx.Err(); err != nil {
		return code, fmt.Errorf("command %q: %w", cfg.Command, err)
	}
	return code, nil
}

func pumpInput(p *console.Process, in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := p.Write(sc.Text()); err != nil {
			return
		}
	}
}

// relayWait is how long a printed partial record stays open for merging.
// After that the program is waiting for input and its next output starts a
// fresh record.
var relayWait = time.Second

// pumpOutput prints records as they arrive. A partial record is printed at
// once; if more text follows soon, the merged record repeats it and only
// the new suffix is printed.
func pumpOutput(p *console.Process, out io.Writer) error {
	printed := 0
	for {
		text, ok, err := p.Read()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if printed > len(text) {
			printed = 0
		}
		if p.IsLine() {
			fmt.Fprintln(out, text[printed:])
			printed = 0
			continue
		}
		promptColor.Fprint(out, text[printed:])
		more, err := p.Wait(relayWait)
		if err != nil {
			return err
		}
		printed = 0
		if more {
			printed = len(text)
		}
	}
}
