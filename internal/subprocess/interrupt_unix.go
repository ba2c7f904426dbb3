//go:build !windows

package subprocess

import (
	"os"
	"syscall"
)

func interrupt(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Signal(syscall.SIGINT)
}
