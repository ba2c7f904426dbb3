package platform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Capability channel method names.
const (
	MethodIsProcessEngineAvailable = "isProcessEngineAvailable"
	MethodGetAvailableTTSEngines   = "getAvailableTTSEngines"
	MethodGetPlatformVersion       = "getPlatformVersion"
)

// ProcessEngineBinary is the executable backing the process engine.
const ProcessEngineBinary = "edge-tts"

// ErrNotImplemented is returned by a Channel for methods it does not know.
var ErrNotImplemented = errors.New("method not implemented")

// Channel answers capability queries from the host. Desktop builds use
// HostChannel; mobile and web embedders provide their own implementation.
type Channel interface {
	// Invoke runs the named method. Results are bool for
	// isProcessEngineAvailable, []string for getAvailableTTSEngines and
	// string for getPlatformVersion.
	Invoke(ctx context.Context, method string) (any, error)
}

// LookPathFunc resolves an executable name to a path.
type LookPathFunc func(file string) (string, error)

// HostChannel answers capability queries by inspecting the local machine.
type HostChannel struct {
	lookPath LookPathFunc

	// processBinary is the executable probed for the process engine.
	processBinary string

	// nativeBinaries are reported by getAvailableTTSEngines when found.
	nativeBinaries []string
}

// HostChannelOption configures a HostChannel.
type HostChannelOption func(*HostChannel)

// WithLookPath replaces the PATH lookup, mostly for tests.
func WithLookPath(fn LookPathFunc) HostChannelOption {
	return func(h *HostChannel) {
		h.lookPath = fn
	}
}

// WithProcessBinary overrides the process engine executable name.
func WithProcessBinary(name string) HostChannelOption {
	return func(h *HostChannel) {
		if name != "" {
			h.processBinary = name
		}
	}
}

// WithNativeBinaries overrides the native backend executables reported.
func WithNativeBinaries(names ...string) HostChannelOption {
	return func(h *HostChannel) {
		h.nativeBinaries = names
	}
}

// NewHostChannel creates a channel backed by PATH lookups and uname.
func NewHostChannel(opts ...HostChannelOption) *HostChannel {
	h := &HostChannel{
		lookPath:       exec.LookPath,
		processBinary:  ProcessEngineBinary,
		nativeBinaries: defaultNativeBinaries(runtime.GOOS),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func defaultNativeBinaries(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"say"}
	case "windows":
		return []string{"powershell"}
	default:
		return []string{"espeak-ng", "espeak"}
	}
}

// Invoke implements Channel.
func (h *HostChannel) Invoke(ctx context.Context, method string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch method {
	case MethodIsProcessEngineAvailable:
		return h.has(h.processBinary), nil
	case MethodGetAvailableTTSEngines:
		var engines []string
		if h.has(h.processBinary) {
			engines = append(engines, h.processBinary)
		}
		for _, bin := range h.nativeBinaries {
			if h.has(bin) {
				engines = append(engines, bin)
			}
		}
		return engines, nil
	case MethodGetPlatformVersion:
		return hostVersion()
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, method)
	}
}

func (h *HostChannel) has(bin string) bool {
	_, err := h.lookPath(bin)
	return err == nil
}

// osLabel renders the kernel name the way uname -s does.
func osLabel(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "Darwin"
	case "windows":
		return "Windows"
	}
	if goos == "" {
		return "Unknown"
	}
	return strings.ToUpper(goos[:1]) + goos[1:]
}
