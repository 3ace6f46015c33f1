package console

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sibikrish3000/conrelay/internal/wsl"
)

// isWSL and toWindowsPath are replaced in tests.
var (
	isWSL         = wsl.IsWSL
	toWindowsPath = wsl.ToWindowsPath
)

// resolveCommand prefers the .exe variant of command under WSL, where
// Windows console tools are reachable through interop.
func resolveCommand(command string) string {
	if !isWSL() || strings.HasSuffix(strings.ToLower(command), ".exe") {
		return command
	}

	withExe := command + ".exe"
	if _, err := exec.LookPath(withExe); err == nil {
		return withExe
	}

	// Fall back to the original command; let the launcher report the error.
	return command
}

// launchArgs returns cfg.Args, with file-like arguments translated to
// Windows paths when ConvertPaths is set and we run under WSL.
func launchArgs(cfg Config) ([]string, error) {
	if !cfg.ConvertPaths || !isWSL() {
		return cfg.Args, nil
	}
	converted := make([]string, len(cfg.Args))
	for i, arg := range cfg.Args {
		if !looksLikePath(arg) {
			converted[i] = arg
			continue
		}
		winPath, err := toWindowsPath(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to convert argument %q: %w", arg, err)
		}
		converted[i] = winPath
	}
	return converted, nil
}

// looksLikePath returns true if the string might be a Linux file path.
// A single-segment "/x" is a Windows switch such as "/c" unless it exists.
func looksLikePath(s string) bool {
	switch {
	case strings.HasPrefix(s, "./"), strings.HasPrefix(s, "../"):
		return true
	case strings.HasPrefix(s, "/"):
		if strings.Count(s, "/") > 1 {
			return true
		}
		_, err := os.Stat(s)
		return err == nil
	}
	return false
}
