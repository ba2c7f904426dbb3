// Package subprocess runs speech backend executables with timeouts,
// graceful interruption and a way to abort every running command at once.
package subprocess
