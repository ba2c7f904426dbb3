package tts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alouette/tts/pkg/tts/engine"
	"github.com/alouette/tts/pkg/tts/engine/enginetest"
	"github.com/alouette/tts/pkg/tts/platform"
)

type stubChannel struct {
	processAvailable bool
}

func (c stubChannel) Invoke(ctx context.Context, method string) (any, error) {
	switch method {
	case platform.MethodIsProcessEngineAvailable:
		return c.processAvailable, nil
	case platform.MethodGetAvailableTTSEngines:
		return []string{}, nil
	case platform.MethodGetPlatformVersion:
		return "Linux 6.1.0", nil
	}
	return nil, platform.ErrNotImplemented
}

// fakePlayer records playback. With hold set, Play blocks until Stop or
// until the context is done. Like audio.Player, a Pause while idle makes
// the next clip start paused, and such a clip only ends on Stop.
type fakePlayer struct {
	mu      sync.Mutex
	hold    bool
	err     error
	played  [][]byte
	formats []string
	started chan struct{}
	stop    chan struct{}
	paused  bool
	pauses  int
	resumes int
	stops   int
	closes  int
}

func newFakePlayer(hold bool) *fakePlayer {
	return &fakePlayer{hold: hold, started: make(chan struct{}, 16), stop: make(chan struct{})}
}

func (p *fakePlayer) Play(ctx context.Context, audio []byte, format string) error {
	p.mu.Lock()
	p.played = append(p.played, audio)
	p.formats = append(p.formats, format)
	stop, hold, err := p.stop, p.hold || p.paused, p.err
	p.mu.Unlock()
	p.started <- struct{}{}

	if err != nil {
		return err
	}
	if !hold {
		return nil
	}
	select {
	case <-stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
	p.paused = true
	return nil
}

func (p *fakePlayer) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumes++
	p.paused = false
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	p.paused = false
	close(p.stop)
	p.stop = make(chan struct{})
	return nil
}

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePlayer) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-p.started:
	case <-time.After(2 * time.Second):
		t.Fatal("playback never started")
	}
}

type fixture struct {
	svc     *Service
	process *enginetest.Fake
	native  *enginetest.Fake
	player  *fakePlayer
	matrix  *engine.Matrix
}

type fixtureConfig struct {
	platform         platform.Platform
	processAvailable bool
	hold             bool
	opts             []ServiceOption
	setup            func(process, native *enginetest.Fake)
}

func newFixture(t *testing.T, fc fixtureConfig) *fixture {
	t.Helper()
	if fc.platform == "" {
		fc.platform = platform.DesktopLinux
	}
	detector := platform.NewDetector(
		platform.WithPlatform(fc.platform),
		platform.WithChannel(stubChannel{processAvailable: fc.processAvailable}),
	)
	matrix := engine.NewMatrix(detector)

	process := enginetest.New(engine.ProcessEngine)
	native := enginetest.New(engine.NativeEngine)
	if fc.setup != nil {
		fc.setup(process, native)
	}
	registry := engine.NewRegistry()
	registry.Register(engine.ProcessEngine, enginetest.Constructor(process, false))
	registry.Register(engine.NativeEngine, enginetest.Constructor(native, false))

	player := newFakePlayer(fc.hold)
	opts := append([]ServiceOption{WithPlayer(player)}, fc.opts...)
	svc := NewService(engine.NewFactory(matrix, registry), opts...)
	t.Cleanup(func() {
		if svc.CurrentState() != StateDisposed {
			_ = svc.Dispose()
		}
	})
	return &fixture{svc: svc, process: process, native: native, player: player, matrix: matrix}
}

// readyFixture returns an initialized service on desktop Linux with the
// process engine active.
func readyFixture(t *testing.T, fc fixtureConfig) *fixture {
	t.Helper()
	fc.processAvailable = true
	f := newFixture(t, fc)
	if err := f.svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *mapCache) Put(key string, audio []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = audio
	return nil
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	switches []string
	states   []State
}

func (r *recordingRecorder) ObserveOperation(op string, id engine.ID, outcome string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	r.outcomes[op+"/"+outcome]++
}

func (r *recordingRecorder) EngineSwitched(from, to engine.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.switches = append(r.switches, string(from)+"->"+string(to))
}

func (r *recordingRecorder) StateChanged(from, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recordingRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[key]
}
