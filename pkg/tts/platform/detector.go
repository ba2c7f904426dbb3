package platform

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultProbeTimeout bounds every capability channel call.
const DefaultProbeTimeout = 2 * time.Second

// Detector reports the current platform and probes engine availability.
// Probes never fail: any channel error degrades to false or empty.
type Detector struct {
	channel      Channel
	probeTimeout time.Duration

	once     sync.Once
	platform Platform
	resolve  func() Platform
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithChannel sets the capability channel.
func WithChannel(ch Channel) DetectorOption {
	return func(d *Detector) {
		d.channel = ch
	}
}

// WithPlatform pins the platform instead of deriving it from GOOS.
func WithPlatform(p Platform) DetectorOption {
	return func(d *Detector) {
		d.resolve = func() Platform { return p }
	}
}

// WithProbeTimeout sets the per-probe timeout.
func WithProbeTimeout(timeout time.Duration) DetectorOption {
	return func(d *Detector) {
		if timeout > 0 {
			d.probeTimeout = timeout
		}
	}
}

// NewDetector creates a detector. Without options it inspects the host
// through a HostChannel.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		probeTimeout: DefaultProbeTimeout,
		resolve:      Host,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.channel == nil {
		d.channel = NewHostChannel()
	}
	return d
}

// Current returns the platform. It is computed once and cached.
func (d *Detector) Current() Platform {
	d.once.Do(func() {
		d.platform = d.resolve()
		log.Debug("Platform detected", "platform", d.platform)
	})
	return d.platform
}

// IsDesktop reports whether the current platform is a desktop.
func (d *Detector) IsDesktop() bool { return d.Current().IsDesktop() }

// IsMobile reports whether the current platform is mobile.
func (d *Detector) IsMobile() bool { return d.Current().IsMobile() }

// IsWeb reports whether the current platform is a browser.
func (d *Detector) IsWeb() bool { return d.Current().IsWeb() }

// IsProcessEngineAvailable probes for the process engine executable. It is
// always false off desktop platforms.
func (d *Detector) IsProcessEngineAvailable(ctx context.Context) bool {
	if !d.IsDesktop() {
		return false
	}
	res, err := d.invoke(ctx, MethodIsProcessEngineAvailable)
	if err != nil {
		return false
	}
	ok, _ := res.(bool)
	return ok
}

// HostEngines returns the backend executables the host reports, or nil.
func (d *Detector) HostEngines(ctx context.Context) []string {
	res, err := d.invoke(ctx, MethodGetAvailableTTSEngines)
	if err != nil {
		return nil
	}
	switch v := res.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// PlatformVersion returns the host OS version string, or "" when unknown.
func (d *Detector) PlatformVersion(ctx context.Context) string {
	res, err := d.invoke(ctx, MethodGetPlatformVersion)
	if err != nil {
		return ""
	}
	s, _ := res.(string)
	return s
}

// invoke calls the channel bounded by the probe timeout. It returns when
// the timeout fires even if the channel ignores its context.
func (d *Detector) invoke(ctx context.Context, method string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	type result struct {
		res any
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := d.channel.Invoke(ctx, method)
		done <- result{res, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	if r.err != nil {
		log.Debug("Capability probe failed", "method", method, "error", r.err)
		return nil, r.err
	}
	return r.res, nil
}
