//go:build !windows

package bootscript

import (
	"os"
	"os/user"

	"golang.org/x/sys/unix"
)

// ElevationSupported reports whether privileged scripts can be elevated on this platform.
const ElevationSupported = true

// IsElevated reports whether the launcher already runs with administrator rights.
func IsElevated() bool {
	if unix.Geteuid() == 0 {
		return true
	}
	u, err := user.Current()
	return err == nil && u.Username == "root"
}

// ensureExecutable sets the execute bits when the script lacks them.
func ensureExecutable(path string) error {
	if unix.Access(path, unix.X_OK) == nil {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.Chmod(path, info.Mode().Perm()|0o111)
}
