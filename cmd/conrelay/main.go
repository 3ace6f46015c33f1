// conrelay drives console programs through the console relay: it runs
// them hidden with merged output, relays their lines and prompts, answers
// scripted prompts and runs batches of commands concurrently.
//
// Usage:
//
//	conrelay [flags] run -- <command> [args...]
//	conrelay [flags] expect --expect PATTERN --send TEXT ... -- <command> [args...]
//	conrelay [flags] batch [--concurrency N] FILE...
//
// Examples:
//
//	conrelay run -- cmd.exe
//	conrelay --encoding cp866 expect --expect 'Name*:' --send anonymous \
//	    --expect 'Password:' --send - --expect 'ftp>' --send bye -- ftp example.com
//	conrelay --timeout 30s batch --concurrency 4 commands.txt
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/sibikrish3000/conrelay/internal/wsl"
	"github.com/sibikrish3000/conrelay/pkg/console"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Build-time variables, injected via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	encoding      string
	inputEncoding string
	promptDelay   time.Duration
	timeout       time.Duration
	env           []string
	tunnelEnv     bool
	convertPaths  bool
	verbose       bool

	log *logrus.Logger
}

// exitError carries a child's nonzero exit code out of a subcommand.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

func main() {
	os.Exit(run())
}

func run() int {
	// Also runs while a panic unwinds, so no child outlives us.
	defer console.TerminateAll()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handleSignals(cancel)

	root := newRootCmd()
	err := root.ExecuteContext(ctx)
	var ee exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.code
	default:
		fmt.Fprintf(os.Stderr, "[conrelay] Error: %v\n", err)
		return 1
	}
}

// handleSignals cancels the run and kills every child on SIGINT/SIGTERM.
// A second signal, or children that do not go away within 5 seconds,
// force exit.
func handleSignals(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\n[conrelay] Received %s, terminating child processes...\n", sig)
		cancel()
		console.TerminateAll()

		select {
		case sig2 := <-sigCh:
			fmt.Fprintf(os.Stderr, "[conrelay] Received %s again, force exiting.\n", sig2)
		case <-time.After(5 * time.Second):
			fmt.Fprintln(os.Stderr, "[conrelay] Grace period expired, force exiting.")
		}
		console.TerminateAll()
		os.Exit(130)
	}()
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	var showVersion bool

	root := &cobra.Command{
		Use:   "conrelay",
		Short: "Relay text to and from hidden console programs",
		Long: `conrelay runs console programs with a hidden window and merged
stdout/stderr, decodes their output, and relays it line by line. Text the
program prints without a newline, such as a prompt, is shown once the
program goes quiet.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.log = newLogger(opts.verbose)
			if v := wsl.DetectWSLVersion(); v != wsl.WSLVersionNone {
				opts.log.Debugf("WSL%d environment detected", v)
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				fmt.Printf("conrelay %s\n  commit: %s\n  built:  %s\n  go:     %s\n", version, commit, date, runtime.Version())
				return nil
			}
			return cmd.Help()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.encoding, "encoding", "", "Output encoding: utf8, cp1252, cp437, cp850, cp866, utf16le, utf16be, auto")
	f.StringVar(&opts.inputEncoding, "input-encoding", "", "Input encoding (default: same as --encoding)")
	f.DurationVar(&opts.promptDelay, "prompt-delay", console.DefaultPromptDelay, "Quiet time after which unterminated output counts as a prompt")
	f.DurationVar(&opts.timeout, "timeout", 0, "Max execution time (e.g., 30s, 5m)")
	f.StringArrayVar(&opts.env, "env", nil, "Set environment variable as KEY=VAL (repeatable)")
	f.BoolVar(&opts.tunnelEnv, "tunnel-env", false, "Enable WSLENV tunneling for --env vars")
	f.BoolVar(&opts.convertPaths, "convert-paths", false, "Convert file path arguments to Windows format under WSL")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log process lifecycle to stderr")
	root.Flags().BoolVar(&showVersion, "version", false, "Print version information and exit")

	root.AddCommand(newRunCmd(opts), newExpectCmd(opts), newBatchCmd(opts))
	return root
}

func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		TimestampFormat:  "15:04:05.000",
		PadLevelText:     true,
		QuoteEmptyFields: true,
	})
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// parseEnv turns KEY=VAL flags into a map.
func parseEnv(vars []string) (map[string]string, error) {
	env := make(map[string]string, len(vars))
	for _, e := range vars {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid env format %q, expected KEY=VAL", e)
		}
		env[k] = v
	}
	return env, nil
}

// config builds the console configuration for command and its arguments.
func (o *options) config(args []string) (console.Config, error) {
	if len(args) == 0 {
		return console.Config{}, errors.New("no command specified; use '--' to separate flags from the command")
	}
	env, err := parseEnv(o.env)
	if err != nil {
		return console.Config{}, err
	}
	return console.Config{
		Command:       args[0],
		Args:          args[1:],
		Env:           env,
		EnvTunneling:  o.tunnelEnv,
		ConvertPaths:  o.convertPaths,
		Encoding:      o.encoding,
		InputEncoding: o.inputEncoding,
		PromptDelay:   o.promptDelay,
		Timeout:       o.timeout,
		Logger:        o.log,
	}, nil
}

// withTimeout applies --timeout to interactive subcommands. Run applies
// cfg.Timeout itself.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// killOnDone terminates p when ctx ends before p does.
func killOnDone(ctx context.Context, p *console.Process) func() bool {
	return context.AfterFunc(ctx, func() {
		if !p.Exited() {
			p.TerminateNow(130)
		}
	})
}

func exitStatus(code int) error {
	switch code {
	case 0:
		return nil
	case console.ExitCodeUnknown:
		return exitError{1}
	default:
		return exitError{code}
	}
}
