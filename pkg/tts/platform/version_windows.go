//go:build windows

package platform

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/windows"
)

func hostVersion() (string, error) {
	maj, min, build := windows.RtlGetNtVersionNumbers()
	return fmt.Sprintf("%s %d.%d.%d", osLabel(runtime.GOOS), maj, min, build), nil
}
