//go:build windows

package subprocess

import "os"

// Windows has no SIGINT for child processes.
func interrupt(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Kill()
}
