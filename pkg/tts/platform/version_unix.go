//go:build linux || darwin || freebsd || netbsd || openbsd

package platform

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

func hostVersion() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("uname: %w", err)
	}
	return osLabel(runtime.GOOS) + " " + unix.ByteSliceToString(uts.Release[:]), nil
}
