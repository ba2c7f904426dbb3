package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/alouette/tts/internal/metrics"
	"github.com/alouette/tts/internal/subprocess"
	"github.com/alouette/tts/pkg/tts"
	"github.com/alouette/tts/pkg/tts/engine"
	"github.com/alouette/tts/pkg/tts/engine/enginetest"
	"github.com/alouette/tts/pkg/tts/platform"
)

type stubChannel struct{}

func (stubChannel) Invoke(_ context.Context, method string) (any, error) {
	switch method {
	case platform.MethodIsProcessEngineAvailable:
		return false, nil
	case platform.MethodGetAvailableTTSEngines:
		return []string{"espeak-ng"}, nil
	case platform.MethodGetPlatformVersion:
		return "Linux 6.1.0", nil
	}
	return nil, platform.ErrNotImplemented
}

// newTestApp returns a started app on desktop Linux where only the native
// engine is installed.
func newTestApp(t *testing.T) (*app, *enginetest.Fake) {
	t.Helper()
	native := enginetest.New(engine.NativeEngine)
	process := enginetest.New(engine.ProcessEngine)

	detector := platform.NewDetector(
		platform.WithPlatform(platform.DesktopLinux),
		platform.WithChannel(stubChannel{}),
	)
	matrix := engine.NewMatrix(detector)
	registry := engine.NewRegistry()
	registry.Register(engine.NativeEngine, enginetest.Constructor(native, false))
	registry.Register(engine.ProcessEngine, enginetest.Constructor(process, false))

	a := &app{
		matrix:  matrix,
		runner:  subprocess.NewRunner(subprocess.DefaultConfig()),
		metrics: metrics.NewRecorder(),
	}
	a.svc = tts.NewService(engine.NewFactory(matrix, registry), tts.WithRecorder(a.metrics))
	if err := a.start(context.Background(), tts.DefaultConfig()); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, native
}

func TestReadText(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		stdin       string
		interactive bool
		expected    string
		wantErr     bool
	}{
		{"args joined", []string{"hello", "there"}, "ignored", false, "hello there", false},
		{"dash reads stdin", []string{"-"}, "from pipe", true, "from pipe", false},
		{"no args reads pipe", nil, "piped", false, "piped", false},
		{"no args on terminal", nil, "", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readText(tt.args, strings.NewReader(tt.stdin), tt.interactive)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readText() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("readText() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestWithExtension(t *testing.T) {
	tests := []struct {
		path, format, expected string
	}{
		{"out", "mp3", "out.mp3"},
		{"out.wav", "mp3", "out.wav"},
		{"out", "", "out"},
		{"dir/clip", "wav", "dir/clip.wav"},
	}
	for _, tt := range tests {
		if got := withExtension(tt.path, tt.format); got != tt.expected {
			t.Errorf("withExtension(%q, %q) = %q, expected %q", tt.path, tt.format, got, tt.expected)
		}
	}
}

func TestParseBatch(t *testing.T) {
	items, err := parseBatch([]byte(`[
		{"name": "intro", "text": "Hello"},
		{"text": "Bonjour", "voice": "fr-FR-DeniseNeural", "rate": 0.9, "volume": 0.5},
		{"text": "<speak>Hi</speak>", "ssml": true, "name": "../escape"}
	]`))
	if err != nil {
		t.Fatalf("parseBatch() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("parseBatch() returned %d items, expected 3", len(items))
	}

	if got := items[0].fileName(0, "mp3"); got != "intro.mp3" {
		t.Errorf("fileName() = %q, expected intro.mp3", got)
	}
	if got := items[1].fileName(1, "wav"); got != "002.wav" {
		t.Errorf("fileName() = %q, expected 002.wav", got)
	}
	if got := items[2].fileName(2, "wav"); got != "escape.wav" {
		t.Errorf("fileName() = %q, expected escape.wav", got)
	}

	req := items[1].request()
	if req.Text != "Bonjour" || len(req.Options) != 3 {
		t.Errorf("request() = %+v, expected 3 options", req)
	}
	if !items[2].request().SSML {
		t.Error("request() lost the ssml flag")
	}
}

func TestParseBatchErrors(t *testing.T) {
	for _, input := range []string{``, `[]`, `{"text": "x"}`, `[{"text": 1}]`} {
		if _, err := parseBatch([]byte(input)); err == nil {
			t.Errorf("parseBatch(%q) succeeded, expected an error", input)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line, cmd, arg string
	}{
		{"", "", ""},
		{"   ", "", ""},
		{"Hello world", "say", "Hello world"},
		{"/pause", "pause", ""},
		{"/ENGINE  native ", "engine", "native"},
		{"/now Urgent news", "now", "Urgent news"},
		{"//not a command", "say", "/not a command"},
	}
	for _, tt := range tests {
		cmd, arg := parseLine(tt.line)
		if cmd != tt.cmd || arg != tt.arg {
			t.Errorf("parseLine(%q) = %q, %q, expected %q, %q", tt.line, cmd, arg, tt.cmd, tt.arg)
		}
	}
}

func TestRenderVoices(t *testing.T) {
	list := []engine.Voice{
		{ID: "en-US-AriaNeural", LanguageCode: "en-US", Gender: engine.GenderFemale, Quality: engine.QualityNeural, DisplayName: "Microsoft Aria Online (Natural) - English (United States)"},
		{ID: "fr", LanguageCode: "fr-FR", Gender: engine.GenderMale, Quality: engine.QualityStandard, DisplayName: "French"},
	}

	var b strings.Builder
	if err := renderVoices(&b, list, 70); err != nil {
		t.Fatalf("renderVoices() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("renderVoices() wrote %d lines, expected 3:\n%s", len(lines), b.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "LANGUAGE") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "…") {
		t.Errorf("long name not truncated: %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "French") {
		t.Errorf("short name changed: %q", lines[2])
	}
	// Columns line up.
	if strings.Index(lines[1], "en-US") != strings.Index(lines[2], "fr-FR") {
		t.Errorf("language column misaligned:\n%s", b.String())
	}
}

func TestSpeakerReadsLines(t *testing.T) {
	a, native := newTestApp(t)
	ctx := context.Background()

	s := newSpeaker(a, 8)
	go s.run(ctx)
	defer s.q.Close()

	input := "Hello there.\n\n/now First!\n/bogus\n"
	if err := s.read(ctx, strings.NewReader(input)); err != nil {
		t.Fatalf("read() error = %v", err)
	}

	var texts []string
	for _, r := range native.Requests() {
		texts = append(texts, r.Text)
	}
	slices.Sort(texts)
	if expected := []string{"First!", "Hello there."}; !slices.Equal(texts, expected) {
		t.Errorf("spoken = %q, expected %q", texts, expected)
	}
}

func TestSpeakerCommands(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	s := newSpeaker(a, 8)

	if err := s.handle(ctx, "/bogus"); err == nil {
		t.Error("handle(/bogus) succeeded, expected an error")
	}
	if err := s.handle(ctx, "/engine piper"); err == nil {
		t.Error("handle(/engine piper) succeeded, expected an error")
	}

	// The process engine is not installed, so the switch falls back.
	if err := s.handle(ctx, "/engine process"); err != nil {
		t.Fatalf("handle(/engine process) error = %v", err)
	}
	info, _ := a.svc.CurrentEngine()
	if info.ID != engine.NativeEngine {
		t.Errorf("engine = %s, expected native after fallback", info.ID)
	}

	_ = s.handle(ctx, "queued one")
	_ = s.handle(ctx, "queued two")
	if n := s.q.Len(); n != 2 {
		t.Fatalf("queue length = %d, expected 2", n)
	}
	if err := s.handle(ctx, "/stop"); err != nil {
		t.Errorf("handle(/stop) error = %v", err)
	}
	if n := s.q.Len(); n != 0 {
		t.Errorf("queue length after /stop = %d, expected 0", n)
	}

	done := make(chan struct{})
	go func() {
		s.drain(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drain() blocked after /stop cleared the queue")
	}
}

func TestBuildReport(t *testing.T) {
	a, _ := newTestApp(t)
	r := buildReport(context.Background(), a)

	if r.Platform != "desktop-linux" || r.Version != "Linux 6.1.0" {
		t.Errorf("platform = %q, version = %q", r.Platform, r.Version)
	}
	if r.Recommended != engine.NativeEngine {
		t.Errorf("Recommended = %s, expected native", r.Recommended)
	}
	if !slices.Equal(r.HostEngines, []string{"espeak-ng"}) {
		t.Errorf("HostEngines = %v", r.HostEngines)
	}

	available := map[engine.ID]bool{}
	for _, e := range r.Engines {
		available[e.ID] = e.Available
	}
	if available[engine.ProcessEngine] || !available[engine.NativeEngine] {
		t.Errorf("availability = %v, expected only native", available)
	}

	out := renderReport(r)
	for _, want := range []string{"desktop-linux", "native", "recommended", "espeak-ng"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderReport() missing %q:\n%s", want, out)
		}
	}
}

func TestMetricsMux(t *testing.T) {
	a, _ := newTestApp(t)
	srv := httptest.NewServer(metricsMux(a))
	defer srv.Close()

	get := func(path string) string {
		t.Helper()
		resp, err := http.Get(srv.URL + path) //nolint:noctx
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		defer resp.Body.Close() //nolint:errcheck
		b, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, resp.StatusCode)
		}
		return string(b)
	}

	if body := get("/healthz"); body != "ready\n" {
		t.Errorf("/healthz = %q, expected ready", body)
	}
	if body := get("/metrics"); !strings.Contains(body, `alouette_tts_operations_total{engine="native",op="initialize",outcome="ok"} 1`) {
		t.Errorf("/metrics missing initialize counter:\n%s", body)
	}
}
