package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"github.com/sibikrish3000/conrelay/pkg/console"
	"github.com/sibikrish3000/conrelay/pkg/workerpool"
	"github.com/spf13/cobra"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
)

func newBatchCmd(opts *options) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "batch [--concurrency N] FILE...",
		Short: "Run the commands listed in files concurrently",
		Long: `Batch reads one command per line from each FILE ('-' for stdin). A FILE
may be a pattern such as 'jobs/**/*.txt'; matches are read in sorted order.
Blank lines and lines starting with '#' are skipped; arguments are split on
whitespace. Each command's output is printed once it finishes, in file
order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := batchFiles(args)
			if err != nil {
				return err
			}
			var lines [][]string
			for _, name := range files {
				l, err := readBatch(name)
				if err != nil {
					return err
				}
				lines = append(lines, l...)
			}

			cfgs := make([]console.Config, len(lines))
			for i, l := range lines {
				if cfgs[i], err = opts.config(l); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			executor := func(_ context.Context, cfg console.Config) (console.Output, error) {
				return console.Run(ctx, cfg)
			}
			return exitStatus(runBatch(cfgs, concurrency, executor, cmd.OutOrStdout(), cmd.ErrOrStderr()))
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", runtime.NumCPU(), "Max concurrent executions")
	return cmd
}

// batchFiles expands the FILE arguments. Each argument must name or match
// at least one file.
func batchFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		if arg == "-" {
			files = append(files, arg)
			continue
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("batch file pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no batch file matches %q", arg)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}

func readBatch(name string) ([][]string, error) {
	if name == "-" {
		return parseBatch(os.Stdin)
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBatch(f)
}

// parseBatch splits a batch file into command lines.
func parseBatch(r io.Reader) ([][]string, error) {
	var out [][]string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.Fields(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return out, nil
}

// runBatch runs cfgs through a worker pool and prints the results in
// submission order. It returns the first nonzero exit code, or 1 if a
// command failed to run.
func runBatch(cfgs []console.Config, concurrency int, executor workerpool.ExecutorFunc, stdout, stderr io.Writer) int {
	pool := workerpool.NewPool(concurrency, executor)
	go func() {
		for _, cfg := range cfgs {
			pool.Submit(cfg)
		}
		pool.Shutdown()
	}()

	results := make([]workerpool.Result, 0, len(cfgs))
	for r := range pool.Results() {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	exitCode := 0
	for _, r := range results {
		for _, line := range r.Output.Lines {
			fmt.Fprintf(stdout, "[%d] %s\n", r.Index+1, line)
		}
		if r.Err != nil {
			failColor.Fprintf(stderr, "[conrelay] Error: %v\n", r.Err)
			if exitCode == 0 {
				exitCode = 1
			}
			continue
		}

		c := okColor
		if r.Output.ExitCode != 0 {
			c = failColor
			if exitCode == 0 {
				exitCode = r.Output.ExitCode
			}
		}
		c.Fprintf(stderr, "[conrelay] Command %q completed in %s (exit code: %d)\n",
			r.Config.Command, r.Output.Duration.Round(time.Millisecond), r.Output.ExitCode)
	}
	return exitCode
}
