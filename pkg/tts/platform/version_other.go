//go:build !(linux || darwin || freebsd || netbsd || openbsd || windows)

package platform

import "runtime"

func hostVersion() (string, error) {
	return osLabel(runtime.GOOS), nil
}
