package wsl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// mount is a Windows drive mounted into the Linux tree via drvfs.
type mount struct {
	DriveLetter string
	MountPoint  string
}

var (
	mountOnce  sync.Once
	mountTable []mount
	pathCache  sync.Map
)

// mountTableReader and commandRunner are replaced in tests.
var (
	mountTableReader = defaultMountTableReader
	commandRunner    = defaultCommandRunner
)

func defaultMountTableReader() (string, error) {
	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func defaultCommandRunner(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// parseMountTable extracts drive mounts from /proc/mounts content, longest
// mount point first.
func parseMountTable(content string) []mount {
	var out []mount
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		src, point, fstype, opts := fields[0], fields[1], fields[2], fields[3]
		if fstype != "drvfs" && !strings.Contains(opts, "aname=drvfs") {
			continue
		}
		if len(src) < 2 || src[1] != ':' {
			continue
		}
		out = append(out, mount{
			DriveLetter: strings.ToUpper(src[:1]),
			MountPoint:  point,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].MountPoint) > len(out[j].MountPoint)
	})
	return out
}

func mounts() []mount {
	mountOnce.Do(func() {
		content, err := mountTableReader()
		if err != nil {
			return
		}
		mountTable = parseMountTable(content)
	})
	return mountTable
}

func resetMountTable() {
	mountOnce = sync.Once{}
	mountTable = nil
}

// ToWindowsPath translates a Linux path to the form a Windows program
// sees: drive mounts map to drive letters, the rest of the tree to the
// distribution's \\wsl.localhost share. Without a distribution name it
// asks wslpath. Results are cached.
func ToWindowsPath(linuxPath string) (string, error) {
	if linuxPath == "" {
		return "", errors.New("empty path provided")
	}
	if cached, ok := pathCache.Load(linuxPath); ok {
		return cached.(string), nil
	}

	abs := linuxPath
	if !path.IsAbs(abs) {
		var err error
		if abs, err = filepath.Abs(linuxPath); err != nil {
			return "", fmt.Errorf("failed to resolve %q: %w", linuxPath, err)
		}
	}
	abs = path.Clean(abs)

	result, err := translate(abs)
	if err != nil {
		return "", fmt.Errorf("failed to convert path %q to Windows format: %w", linuxPath, err)
	}
	pathCache.Store(linuxPath, result)
	return result, nil
}

func translate(abs string) (string, error) {
	for _, m := range mounts() {
		if abs == m.MountPoint {
			return m.DriveLetter + `:\`, nil
		}
		if rest, ok := strings.CutPrefix(abs, m.MountPoint+"/"); ok {
			return m.DriveLetter + `:\` + strings.ReplaceAll(rest, "/", `\`), nil
		}
	}
	if distro := getenv("WSL_DISTRO_NAME"); distro != "" {
		return `\\wsl.localhost\` + distro + strings.ReplaceAll(abs, "/", `\`), nil
	}
	return commandRunner("wslpath", "-w", abs)
}

// ClearPathCache forgets cached translations.
func ClearPathCache() {
	pathCache.Range(func(k, _ any) bool {
		pathCache.Delete(k)
		return true
	})
}
