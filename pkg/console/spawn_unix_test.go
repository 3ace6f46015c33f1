//go:build unix

package console

import (
	"context"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	if testing.Short() {
		t.Skip("skipping process test in short mode")
	}
}

func shell(script string) Config {
	cfg := testConfig()
	cfg.Command = "sh"
	cfg.Args = []string{"-c", script}
	cfg.PromptDelay = 50 * time.Millisecond
	cfg.PromptTimeout = 2 * time.Second
	cfg.CloseGrace = 500 * time.Millisecond
	return cfg
}

func TestSpawnRunMergesStderr(t *testing.T) {
	requireShell(t)

	out, err := Run(context.Background(), shell(`echo out; echo err >&2; exit 4`))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"out", "err"}, out.Lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if out.ExitCode != 4 {
		t.Errorf("ExitCode = %d, want 4", out.ExitCode)
	}
}

func TestSpawnEnv(t *testing.T) {
	requireShell(t)

	cfg := shell(`echo "$CONRELAY_TEST"`)
	cfg.Env = map[string]string{"CONRELAY_TEST": "tunnelled"}
	out, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "tunnelled" {
		t.Errorf("Text = %q, want %q", out.Text, "tunnelled")
	}
}

func TestSpawnPromptDialog(t *testing.T) {
	requireShell(t)

	p, err := Start(shell(`printf 'Name: '; read name; echo "hello $name"; sleep 1; printf 'slow'; sleep 1; echo ' line'`))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if _, err := p.ExpectGlob("Name:", "alice"); err != nil {
		t.Fatal(err)
	}
	text, ok, err := p.ReadLine()
	if err != nil || !ok || text != "hello alice" {
		t.Fatalf("ReadLine() = %q, %v, %v", text, ok, err)
	}

	text, _, err = p.Read()
	if err != nil || text != "slow" || p.IsLine() {
		t.Fatalf("Read() = %q, %v, IsLine %v; want partial slow", text, err, p.IsLine())
	}
	more, err := p.Wait(5 * time.Second)
	if err != nil || !more {
		t.Fatalf("Wait() = %v, %v", more, err)
	}
	text, _, err = p.Read()
	if err != nil || text != "slow line" || !p.IsLine() {
		t.Errorf("Read() = %q, %v, IsLine %v; want line %q", text, err, p.IsLine(), "slow line")
	}
	if _, ok, _ := p.Read(); ok {
		t.Error("Read() after exit returned data")
	}
	if code := p.ExitCode(); code != 0 {
		t.Errorf("ExitCode() = %d, want 0", code)
	}
}

func TestSpawnCloseKillsChild(t *testing.T) {
	requireShell(t)

	p, err := Start(shell(`trap '' HUP; while :; do sleep 1; done`))
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Errorf("Close() took %v", d)
	}
	if code := p.ExitCode(); code != 128+9 {
		t.Errorf("ExitCode() = %d, want SIGKILL status %d", code, 128+9)
	}
}

func TestSpawnMissingCommand(t *testing.T) {
	if _, err := Start(Config{Command: "conrelay-no-such-program"}); err == nil {
		t.Error("Start succeeded for a missing program")
	}
}

func TestSpawnExitedIsStable(t *testing.T) {
	requireShell(t)

	h, err := spawnChild(shell(`exit 3`))
	if err != nil {
		t.Fatal(err)
	}
	defer closeHandles(h)
	if exited, err := h.Child.Wait(5 * time.Second); err != nil || !exited {
		t.Fatalf("Wait() = %v, %v", exited, err)
	}
	for i := 0; i < 200; i++ {
		if exited, _ := h.Child.Wait(0); !exited {
			t.Fatalf("Wait(0) = false on attempt %d", i)
		}
	}
	if code, err := h.Child.ExitCode(); err != nil || code != 3 {
		t.Errorf("ExitCode() = %d, %v, want 3", code, err)
	}
}

func TestSpawnAvailable(t *testing.T) {
	requireShell(t)

	h, err := spawnChild(shell(`printf abc; read x`))
	if err != nil {
		t.Fatal(err)
	}
	defer closeHandles(h)

	deadline := time.Now().Add(5 * time.Second)
	n := 0
	for n == 0 && time.Now().Before(deadline) {
		if n, err = h.Stdout.Available(); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n == 0 {
		t.Fatal("Available() never reported the pending output")
	}

	h.Stdin.Close()
	buf := make([]byte, 16)
	if _, err := h.Stdout.Read(buf); err != nil {
		t.Fatal(err)
	}
	for time.Now().Before(deadline) {
		if _, err = h.Stdout.Available(); err != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err != io.EOF {
		t.Errorf("Available() after exit = %v, want io.EOF", err)
	}
}
