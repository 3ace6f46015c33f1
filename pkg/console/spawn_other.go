//go:build !unix && !windows

package console

import (
	"errors"
	"runtime"
)

func spawnChild(cfg Config) (Handles, error) {
	return Handles{}, errors.New("console processes are not supported on " + runtime.GOOS)
}
