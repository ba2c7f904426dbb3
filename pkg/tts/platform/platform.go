// Package platform identifies the host platform and exposes the capability
// channel used to probe for speech backends.
package platform

import "runtime"

// Platform identifies the class of host the service runs on.
type Platform string

const (
	DesktopLinux   Platform = "desktop-linux"
	DesktopMacOS   Platform = "desktop-macos"
	DesktopWindows Platform = "desktop-windows"
	MobileAndroid  Platform = "mobile-android"
	MobileIOS      Platform = "mobile-ios"
	Web            Platform = "web"
)

// All lists every known platform.
var All = []Platform{
	DesktopLinux,
	DesktopMacOS,
	DesktopWindows,
	MobileAndroid,
	MobileIOS,
	Web,
}

// FromGOOS maps a GOOS value to a Platform. Unknown unix-likes are treated as
// desktop Linux since they share its process tooling.
func FromGOOS(goos string) Platform {
	switch goos {
	case "darwin":
		return DesktopMacOS
	case "windows":
		return DesktopWindows
	case "android":
		return MobileAndroid
	case "ios":
		return MobileIOS
	case "js", "wasip1":
		return Web
	default:
		return DesktopLinux
	}
}

// Host returns the platform of the running binary.
func Host() Platform {
	return FromGOOS(runtime.GOOS)
}

// IsDesktop reports whether p is a desktop platform.
func (p Platform) IsDesktop() bool {
	switch p {
	case DesktopLinux, DesktopMacOS, DesktopWindows:
		return true
	}
	return false
}

// IsMobile reports whether p is a mobile platform.
func (p Platform) IsMobile() bool {
	return p == MobileAndroid || p == MobileIOS
}

// IsWeb reports whether p is a browser host.
func (p Platform) IsWeb() bool {
	return p == Web
}

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	for _, known := range All {
		if p == known {
			return true
		}
	}
	return false
}

func (p Platform) String() string {
	return string(p)
}
