// Package wsl detects the Windows Subsystem for Linux and translates Linux
// paths for Windows console programs started through WSL interop.
package wsl

import (
	"os"
	"strings"
	"sync"
)

// WSL versions reported by DetectWSLVersion.
const (
	WSLVersionNone = 0
	WSLVersion1    = 1
	WSLVersion2    = 2
)

var (
	detectOnce sync.Once
	version    int
)

// procVersionReader and getenv are replaced in tests.
var (
	procVersionReader = defaultProcVersionReader
	getenv            = defaultGetenv
)

func defaultGetenv(key string) string { return os.Getenv(key) }

func defaultProcVersionReader() (string, error) {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// versionOf classifies a /proc/version string. A WSL2 kernel reports
// "microsoft-standard"; WSL1 only carries the "Microsoft" build tag.
func versionOf(procVersion string) int {
	lower := strings.ToLower(procVersion)
	switch {
	case strings.Contains(lower, "microsoft-standard"), strings.Contains(lower, "wsl2"):
		return WSLVersion2
	case strings.Contains(lower, "microsoft"):
		return WSLVersion1
	}
	return WSLVersionNone
}

func detect() {
	content, err := procVersionReader()
	if err == nil {
		version = versionOf(content)
	}
	// Custom kernels drop the Microsoft tag, but interop still sets these.
	if version == WSLVersionNone && getenv("WSL_DISTRO_NAME") != "" && getenv("WSL_INTEROP") != "" {
		version = WSLVersion2
	}
}

// IsWSL reports whether we run inside WSL. The result is computed once.
func IsWSL() bool {
	return DetectWSLVersion() != WSLVersionNone
}

// DetectWSLVersion returns 1 or 2 inside WSL, WSLVersionNone elsewhere.
func DetectWSLVersion() int {
	detectOnce.Do(detect)
	return version
}

func resetDetection() {
	detectOnce = sync.Once{}
	version = WSLVersionNone
}
