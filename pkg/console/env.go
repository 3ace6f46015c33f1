package console

import (
	"maps"
	"os"
	"runtime"
	"slices"
	"strings"
)

// WSLENV translation flags, see
// https://devblogs.microsoft.com/commandline/share-environment-vars-between-wsl-and-windows/
const (
	wslenvPath     = "/p" // translate a single path
	wslenvPathList = "/l" // translate a colon-delimited path list
	wslenvUnixOnly = "/u" // pass when invoking Win32 from WSL
)

// pathKeys hold paths even when their value is empty or relative.
var pathKeys = map[string]bool{
	"HOME":   true,
	"GOPATH": true,
	"TMPDIR": true,
	"TEMP":   true,
	"TMP":    true,
}

// foldEnvKeys is set where variable names are case-insensitive.
var foldEnvKeys = runtime.GOOS == "windows"

func isLinuxPath(v string) bool {
	return strings.HasPrefix(v, "/") || strings.HasPrefix(v, "./") || strings.HasPrefix(v, "../")
}

// wslenvFlag picks how WSL translates one variable for a Windows child. A
// value is a path list only if every segment is a path, so "host:port"
// and URLs pass through untouched.
func wslenvFlag(key, value string) string {
	if segs := strings.Split(value, ":"); len(segs) > 1 {
		list := true
		for _, s := range segs {
			list = list && isLinuxPath(s)
		}
		if list {
			return wslenvPathList
		}
	}
	if isLinuxPath(value) || pathKeys[strings.ToUpper(key)] {
		return wslenvPath
	}
	return wslenvUnixOnly
}

// mergeWSLENV adds vars to an inherited WSLENV value. Inherited entries for
// the same names are replaced, so nested relays do not repeat them.
func mergeWSLENV(inherited string, vars map[string]string) string {
	var entries []string
	for _, e := range strings.Split(inherited, ":") {
		name, _, _ := strings.Cut(e, "/")
		if _, ours := vars[name]; e != "" && !ours {
			entries = append(entries, e)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		entries = append(entries, k+wslenvFlag(k, vars[k]))
	}
	return strings.Join(entries, ":")
}

// environ builds the child environment: the inherited one with cfg.Env
// applied over it. It returns nil, meaning inherit, when cfg adds nothing.
func environ(cfg Config) []string {
	if len(cfg.Env) == 0 {
		return nil
	}
	env := os.Environ()
	for _, k := range slices.Sorted(maps.Keys(cfg.Env)) {
		env = append(env, k+"="+cfg.Env[k])
	}
	if cfg.EnvTunneling {
		env = append(env, "WSLENV="+mergeWSLENV(os.Getenv("WSLENV"), cfg.Env))
	}
	return dedupEnv(env, foldEnvKeys)
}

// dedupEnv keeps one entry per name: the last value, at the position of
// the first occurrence. With fold, names differing only in case are the
// same variable, as on Windows where CreateProcess would otherwise let
// the first "Path=" shadow a later "PATH=".
func dedupEnv(env []string, fold bool) []string {
	out := make([]string, 0, len(env))
	at := make(map[string]int, len(env))
	for _, kv := range env {
		k := envName(kv)
		if fold {
			k = strings.ToUpper(k)
		}
		if i, ok := at[k]; ok {
			out[i] = kv
			continue
		}
		at[k] = len(out)
		out = append(out, kv)
	}
	return out
}

// envName returns the name part of "NAME=value". Windows keeps per-drive
// directories in names that start with "=", such as "=C:=C:\dir".
func envName(kv string) string {
	if kv == "" {
		return ""
	}
	if i := strings.IndexByte(kv[1:], '='); i >= 0 {
		return kv[:i+1]
	}
	return kv
}
