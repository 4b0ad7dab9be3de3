//go:build windows

package bootscript

// ElevationSupported reports whether privileged scripts can be elevated on this platform.
// Windows scripts are always invoked directly.
const ElevationSupported = false

// IsElevated reports whether the launcher already runs with administrator rights.
func IsElevated() bool {
	return false
}

func ensureExecutable(string) error {
	return nil
}
