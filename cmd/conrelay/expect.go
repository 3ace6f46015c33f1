package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sibikrish3000/conrelay/pkg/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// step is one prompt of an expect script and the text sent in reply.
type step struct {
	pattern string
	send    string
}

// askUser is the reply that is read from the user instead of the script.
const askUser = "-"

func newExpectCmd(opts *options) *cobra.Command {
	var expects, sends []string

	cmd := &cobra.Command{
		Use:   "expect --expect PATTERN --send TEXT ... -- <command> [args...]",
		Short: "Answer a console program's prompts from a script",
		Long: `Expect waits for each --expect prompt in turn and replies with the
matching --send text. Patterns are wildcards over the whole prompt: '*'
matches any text, '?' one character, '[...]' a class; '/' and '\' are
literal. A --send of '-' asks for the reply on the terminal without echo.
Once the script is done the remaining output is printed until the program
exits.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := buildScript(expects, sends)
			if err != nil {
				return err
			}
			cfg, err := opts.config(args)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			code, err := runScript(ctx, cfg, script, cmd.OutOrStdout(), readSecret)
			if err != nil {
				return err
			}
			return exitStatus(code)
		},
	}
	cmd.Flags().StringArrayVar(&expects, "expect", nil, "Prompt pattern to wait for (repeatable)")
	cmd.Flags().StringArrayVar(&sends, "send", nil, "Reply to the matching --expect; '-' reads it from the terminal (repeatable)")
	return cmd
}

func buildScript(expects, sends []string) ([]step, error) {
	if len(expects) == 0 {
		return nil, errors.New("at least one --expect is required")
	}
	if len(sends) > len(expects) {
		return nil, fmt.Errorf("%d --send values for %d --expect patterns", len(sends), len(expects))
	}
	script := make([]step, len(expects))
	for i, pattern := range expects {
		if _, err := console.Glob(pattern); err != nil {
			return nil, err
		}
		script[i].pattern = pattern
		if i < len(sends) {
			script[i].send = sends[i]
		}
	}
	return script, nil
}

// runScript plays script against cfg's program, echoing its output to out.
// A step without a reply only waits for its prompt.
func runScript(ctx context.Context, cfg console.Config, script []step, out io.Writer, ask func(prompt string) (string, error)) (int, error) {
	p, err := console.Start(cfg)
	if err != nil {
		return console.ExitCodeUnknown, err
	}
	defer p.Close()
	defer killOnDone(ctx, p)()

	for _, s := range script {
		seen, err := p.ExpectGlob(s.pattern)
		echoRecords(out, seen, p.IsLine())
		if err != nil {
			if ctx.Err() != nil {
				return console.ExitCodeUnknown, ctx.Err()
			}
			return console.ExitCodeUnknown, err
		}
		if s.send == "" {
			if !p.IsLine() {
				fmt.Fprintln(out)
			}
			continue
		}

		reply, echo := s.send, s.send
		if s.send == askUser {
			if reply, err = ask(seen[len(seen)-1]); err != nil {
				return console.ExitCodeUnknown, err
			}
			echo = ""
		}
		if err := p.Write(reply); err != nil {
			return console.ExitCodeUnknown, err
		}
		fmt.Fprintln(out, echo)
	}

	for {
		line, ok, err := p.ReadLine()
		if err != nil {
			return console.ExitCodeUnknown, err
		}
		if !ok {
			break
		}
		fmt.Fprintln(out, line)
	}
	code := p.ExitCode()
	if err := ctx.Err(); err != nil {
		return code, fmt.Errorf("command %q: %w", cfg.Command, err)
	}
	return code, nil
}

// echoRecords prints what ExpectGlob consumed. A partial last record is
// the prompt and stays on the line for the reply.
func echoRecords(out io.Writer, seen []string, lastIsLine bool) {
	for i, r := range seen {
		if i == len(seen)-1 && !lastIsLine {
			promptColor.Fprint(out, r)
			continue
		}
		fmt.Fprintln(out, r)
	}
}

var stdin = bufio.NewReader(os.Stdin)

// readSecret reads a reply from the terminal without echo, or a line from
// stdin when it is not a terminal.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return "", fmt.Errorf("read reply for %q: %w", strings.TrimSpace(prompt), err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	b, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("read reply for %q: %w", strings.TrimSpace(prompt), err)
	}
	return string(b), nil
}
