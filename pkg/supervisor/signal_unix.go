//go:build !windows

package supervisor

import (
	"os"

	"golang.org/x/sys/unix"
)

// interrupt asks the child to stop the way a terminal would.
func interrupt(p *os.Process) error {
	return p.Signal(unix.SIGTERM)
}
