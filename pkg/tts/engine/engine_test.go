package engine_test

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/alouette/tts/pkg/tts/engine"
	"github.com/alouette/tts/pkg/tts/engine/enginetest"
	"github.com/alouette/tts/pkg/tts/platform"
)

type channel struct {
	processAvailable bool
}

func (c channel) Invoke(ctx context.Context, method string) (any, error) {
	switch method {
	case platform.MethodIsProcessEngineAvailable:
		return c.processAvailable, nil
	case platform.MethodGetAvailableTTSEngines:
		if c.processAvailable {
			return []string{"edge-tts"}, nil
		}
		return []string{}, nil
	case platform.MethodGetPlatformVersion:
		return "Linux 6.1.0", nil
	}
	return nil, platform.ErrNotImplemented
}

func newMatrix(p platform.Platform, processAvailable bool) *engine.Matrix {
	d := platform.NewDetector(platform.WithPlatform(p), platform.WithChannel(channel{processAvailable: processAvailable}))
	return engine.NewMatrix(d)
}

func TestParseID(t *testing.T) {
	tests := []struct {
		input    string
		expected engine.ID
		wantErr  bool
	}{
		{"process", engine.ProcessEngine, false},
		{"edge-tts", engine.ProcessEngine, false},
		{" Edge ", engine.ProcessEngine, false},
		{"native", engine.NativeEngine, false},
		{"system", engine.NativeEngine, false},
		{"piper", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := engine.ParseID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseID(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRangeClamp(t *testing.T) {
	r := engine.Range{Min: 0.5, Max: 2.0}
	tests := []struct {
		in, expected float64
	}{
		{0.1, 0.5},
		{0.5, 0.5},
		{1.3, 1.3},
		{2.0, 2.0},
		{9, 2.0},
		{math.Inf(1), 2.0},
		{math.NaN(), 1.0},
	}
	for _, tt := range tests {
		if got := r.Clamp(tt.in); got != tt.expected {
			t.Errorf("Clamp(%v) = %v, expected %v", tt.in, got, tt.expected)
		}
	}

	volume := engine.Range{Min: 0, Max: 0.5}
	if got := volume.Clamp(math.NaN()); got != 0.5 {
		t.Errorf("Clamp(NaN) = %v, expected 0.5 when 1 is out of range", got)
	}
}

func TestDefaultOrder(t *testing.T) {
	for _, p := range platform.All {
		order := engine.DefaultOrder(p)
		if p.IsDesktop() {
			if !slices.Equal(order, []engine.ID{engine.ProcessEngine, engine.NativeEngine}) {
				t.Errorf("DefaultOrder(%s) = %v, expected [process native]", p, order)
			}
			continue
		}
		if !slices.Equal(order, []engine.ID{engine.NativeEngine}) {
			t.Errorf("DefaultOrder(%s) = %v, expected [native]", p, order)
		}
	}
}

func TestDefaultTableRanges(t *testing.T) {
	for p, row := range engine.DefaultTable() {
		for id, caps := range row {
			if caps.RateRange.Min < engine.GlobalRateRange.Min || caps.RateRange.Max > engine.GlobalRateRange.Max {
				t.Errorf("%s/%s rate range %v exceeds global bounds", p, id, caps.RateRange)
			}
			if caps.PitchRange.Min < engine.GlobalPitchRange.Min || caps.PitchRange.Max > engine.GlobalPitchRange.Max {
				t.Errorf("%s/%s pitch range %v exceeds global bounds", p, id, caps.PitchRange)
			}
			if caps.MaxTextLength <= 0 {
				t.Errorf("%s/%s has no text limit", p, id)
			}
			if caps.DefaultFormat() == "" {
				t.Errorf("%s/%s has no audio format", p, id)
			}
		}
		if _, ok := row[engine.ProcessEngine]; ok != p.IsDesktop() {
			t.Errorf("%s process engine present = %v, expected %v", p, ok, p.IsDesktop())
		}
	}
}

func TestMatrixRecommended(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		platform platform.Platform
		process  bool
		expected engine.ID
	}{
		{"linux with edge-tts", platform.DesktopLinux, true, engine.ProcessEngine},
		{"linux without edge-tts", platform.DesktopLinux, false, engine.NativeEngine},
		{"macos with edge-tts", platform.DesktopMacOS, true, engine.ProcessEngine},
		{"android", platform.MobileAndroid, true, engine.NativeEngine},
		{"ios", platform.MobileIOS, false, engine.NativeEngine},
		{"web", platform.Web, true, engine.NativeEngine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMatrix(tt.platform, tt.process)
			got := m.Recommended(ctx)
			if got != tt.expected {
				t.Errorf("Recommended() = %v, expected %v", got, tt.expected)
			}
			if !slices.Contains(m.AvailableEngines(ctx), got) {
				t.Errorf("Recommended() = %v is not in AvailableEngines() = %v", got, m.AvailableEngines(ctx))
			}
		})
	}
}

func TestMatrixDowngrade(t *testing.T) {
	ctx := context.Background()
	m := newMatrix(platform.DesktopLinux, false)

	m.AvailableEngines(ctx)
	caps, ok := m.Capabilities(engine.ProcessEngine)
	if !ok {
		t.Fatal("process engine missing from desktop capabilities")
	}
	if caps.Available {
		t.Error("process engine should be downgraded after failed probe")
	}

	m.MarkUnavailable(engine.NativeEngine)
	available := m.AvailableEngines(ctx)
	if !slices.Equal(available, []engine.ID{engine.NativeEngine}) {
		t.Errorf("AvailableEngines() = %v, expected last-resort [native]", available)
	}

	m.MarkAvailable(engine.NativeEngine)
	caps, _ = m.Capabilities(engine.NativeEngine)
	if !caps.Available {
		t.Error("native engine should be restored by MarkAvailable")
	}
}

func TestMatrixPlatformCapabilities(t *testing.T) {
	m := newMatrix(platform.MobileAndroid, true)
	caps := m.PlatformCapabilities()
	if len(caps) != 1 {
		t.Fatalf("PlatformCapabilities() has %d entries, expected 1", len(caps))
	}
	if caps[engine.NativeEngine].MaxTextLength != 4000 {
		t.Errorf("android native MaxTextLength = %d, expected 4000", caps[engine.NativeEngine].MaxTextLength)
	}

	// Mutating the returned value must not leak into the matrix.
	c := caps[engine.NativeEngine]
	c.AudioFormats[0] = "ogg"
	again, _ := m.Capabilities(engine.NativeEngine)
	if again.AudioFormats[0] != engine.FormatWAV {
		t.Errorf("matrix capabilities mutated through returned copy: %v", again.AudioFormats)
	}
}

func TestMatrixIsFeatureSupported(t *testing.T) {
	ctx := context.Background()

	// edge-tts has no SSML; espeak-ng does.
	m := newMatrix(platform.DesktopLinux, true)
	if m.IsFeatureSupported(ctx, engine.FeatureSSML) {
		t.Error("SSML should not be supported when process engine is recommended")
	}
	m = newMatrix(platform.DesktopLinux, false)
	if !m.IsFeatureSupported(ctx, engine.FeatureSSML) {
		t.Error("SSML should be supported when native engine is recommended on linux")
	}
}

func newFactory(m *engine.Matrix, fakes ...*enginetest.Fake) *engine.Factory {
	r := engine.NewRegistry()
	for _, f := range fakes {
		r.Register(f.ID, enginetest.Constructor(f, false))
	}
	return engine.NewFactory(m, r)
}

func TestFactoryCreatePreferred(t *testing.T) {
	ctx := context.Background()

	t.Run("process first on desktop", func(t *testing.T) {
		process, native := enginetest.New(engine.ProcessEngine), enginetest.New(engine.NativeEngine)
		f := newFactory(newMatrix(platform.DesktopLinux, true), process, native)

		a, err := f.CreatePreferred(ctx)
		if err != nil {
			t.Fatalf("CreatePreferred() error = %v", err)
		}
		if a.Info().ID != engine.ProcessEngine {
			t.Errorf("CreatePreferred() = %v, expected process", a.Info().ID)
		}
		if !a.IsInitialized() {
			t.Error("adapter should be initialized")
		}
		if native.Counts().Initialize != 0 {
			t.Error("native engine should not be touched when process succeeds")
		}
	})

	t.Run("falls back to native when probe fails", func(t *testing.T) {
		process, native := enginetest.New(engine.ProcessEngine), enginetest.New(engine.NativeEngine)
		f := newFactory(newMatrix(platform.DesktopLinux, false), process, native)

		a, err := f.CreatePreferred(ctx)
		if err != nil {
			t.Fatalf("CreatePreferred() error = %v", err)
		}
		if a.Info().ID != engine.NativeEngine {
			t.Errorf("CreatePreferred() = %v, expected native", a.Info().ID)
		}
		if process.Counts().Initialize != 0 {
			t.Error("process engine should not be initialized when probe fails")
		}
	})

	t.Run("falls back when initialize fails", func(t *testing.T) {
		process, native := enginetest.New(engine.ProcessEngine), enginetest.New(engine.NativeEngine)
		process.InitErr = errors.New("no network")
		m := newMatrix(platform.DesktopLinux, true)
		f := newFactory(m, process, native)

		a, err := f.CreatePreferred(ctx)
		if err != nil {
			t.Fatalf("CreatePreferred() error = %v", err)
		}
		if a.Info().ID != engine.NativeEngine {
			t.Errorf("CreatePreferred() = %v, expected native", a.Info().ID)
		}
		if !process.Disposed() {
			t.Error("failed process adapter should be disposed")
		}
		if caps, _ := m.Capabilities(engine.ProcessEngine); caps.Available {
			t.Error("process engine should be downgraded after failed initialize")
		}
	})

	t.Run("all candidates fail", func(t *testing.T) {
		process, native := enginetest.New(engine.ProcessEngine), enginetest.New(engine.NativeEngine)
		process.Unavailable = true
		native.InitErr = errors.New("no speech dispatcher")
		f := newFactory(newMatrix(platform.DesktopLinux, true), process, native)

		_, err := f.CreatePreferred(ctx)
		if !errors.Is(err, engine.ErrEngineUnavailable) {
			t.Errorf("CreatePreferred() error = %v, expected ErrEngineUnavailable", err)
		}
	})

	t.Run("mobile only tries native", func(t *testing.T) {
		process, native := enginetest.New(engine.ProcessEngine), enginetest.New(engine.NativeEngine)
		native.InitErr = errors.New("no host backend")
		f := newFactory(newMatrix(platform.MobileIOS, true), process, native)

		_, err := f.CreatePreferred(ctx)
		if !errors.Is(err, engine.ErrEngineUnavailable) {
			t.Errorf("CreatePreferred() error = %v, expected ErrEngineUnavailable", err)
		}
		if process.Counts().Initialize != 0 {
			t.Error("process engine must never be tried on mobile")
		}
	})
}

func TestFactoryCreateNoFallback(t *testing.T) {
	ctx := context.Background()
	process, native := enginetest.New(engine.ProcessEngine), enginetest.New(engine.NativeEngine)
	process.InitErr = errors.New("boom")
	f := newFactory(newMatrix(platform.DesktopLinux, true), process, native)

	_, err := f.Create(ctx, engine.ProcessEngine)
	if !errors.Is(err, engine.ErrEngineUnavailable) {
		t.Fatalf("Create() error = %v, expected ErrEngineUnavailable", err)
	}
	if native.Counts().Initialize != 0 {
		t.Error("Create() must not fall back")
	}

	var engErr *engine.Error
	if !errors.As(err, &engErr) || engErr.Engine != engine.ProcessEngine {
		t.Errorf("Create() error = %#v, expected *engine.Error for process", err)
	}
}

func TestFactoryCreateWithFallback(t *testing.T) {
	ctx := context.Background()
	process, native := enginetest.New(engine.ProcessEngine), enginetest.New(engine.NativeEngine)
	native.InitErr = errors.New("espeak missing")
	f := newFactory(newMatrix(platform.DesktopLinux, true), process, native)

	a, err := f.CreateWithFallback(ctx, engine.NativeEngine)
	if err != nil {
		t.Fatalf("CreateWithFallback() error = %v", err)
	}
	if a.Info().ID != engine.ProcessEngine {
		t.Errorf("CreateWithFallback(native) = %v, expected process", a.Info().ID)
	}
	if native.Counts().Initialize != 1 {
		t.Errorf("native initialize calls = %d, expected 1", native.Counts().Initialize)
	}
}

func TestFactoryUnregisteredEngine(t *testing.T) {
	f := newFactory(newMatrix(platform.DesktopLinux, true))
	_, err := f.Create(context.Background(), engine.ProcessEngine)
	if !errors.Is(err, engine.ErrEngineUnavailable) {
		t.Errorf("Create() error = %v, expected ErrEngineUnavailable", err)
	}
}

func TestFactoryIsImplementationAvailable(t *testing.T) {
	ctx := context.Background()
	process, native := enginetest.New(engine.ProcessEngine), enginetest.New(engine.NativeEngine)
	native.Unavailable = true
	f := newFactory(newMatrix(platform.DesktopLinux, true), process, native)

	if !f.IsImplementationAvailable(ctx, engine.ProcessEngine) {
		t.Error("process engine should be available")
	}
	if f.IsImplementationAvailable(ctx, engine.NativeEngine) {
		t.Error("native engine should fail its liveness check")
	}
	if f.IsImplementationAvailable(ctx, engine.ID("cloud")) {
		t.Error("unknown engine should never be available")
	}
	if !process.Disposed() {
		t.Error("probe adapter should be disposed")
	}
}

func TestFactoryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	process, native := enginetest.New(engine.ProcessEngine), enginetest.New(engine.NativeEngine)
	f := newFactory(newMatrix(platform.DesktopLinux, true), process, native)

	if _, err := f.CreatePreferred(ctx); !errors.Is(err, engine.ErrEngineUnavailable) {
		t.Errorf("CreatePreferred() error = %v, expected ErrEngineUnavailable", err)
	}
	if process.Counts().Initialize+native.Counts().Initialize != 0 {
		t.Error("no engine should be initialized with a cancelled context")
	}
}
