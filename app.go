package main

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/alouette/tts/internal/audio"
	"github.com/alouette/tts/internal/cache"
	"github.com/alouette/tts/internal/config"
	"github.com/alouette/tts/internal/metrics"
	"github.com/alouette/tts/internal/subprocess"
	"github.com/alouette/tts/pkg/tts"
	"github.com/alouette/tts/pkg/tts/engine"
	"github.com/alouette/tts/pkg/tts/engine/edge"
	"github.com/alouette/tts/pkg/tts/engine/native"
	"github.com/alouette/tts/pkg/tts/platform"
)

// app wires the service to its engines, cache, metrics and audio output.
type app struct {
	svc     *tts.Service
	matrix  *engine.Matrix
	runner  *subprocess.Runner
	cache   *cache.Cache
	metrics *metrics.Recorder
	player  *audio.Player
}

// newApp builds the service stack for c. Playback is only set up when
// withPlayer is true; without an audio device Speak synthesizes and
// discards the audio.
func newApp(c config.Config, withPlayer bool) (*app, error) {
	runner := subprocess.NewRunner(subprocess.DefaultConfig())

	hostOpts := []platform.HostChannelOption{platform.WithProcessBinary(c.Edge.Binary)}
	if c.Native.Binary != "" {
		hostOpts = append(hostOpts, platform.WithNativeBinaries(c.Native.Binary))
	}
	detector := platform.NewDetector(platform.WithChannel(platform.NewHostChannel(hostOpts...)))
	matrix := engine.NewMatrix(detector)

	registry := engine.NewRegistry()
	registry.Register(engine.ProcessEngine, edge.NewConstructor(edge.Config{
		Binary:            c.Edge.Binary,
		DefaultVoice:      c.Edge.DefaultVoice,
		RequestsPerMinute: c.Edge.RequestsPerMinute,
	}, runner))
	registry.Register(engine.NativeEngine, native.NewConstructor(native.Config{
		Binary: c.Native.Binary,
	}, runner))

	a := &app{
		matrix:  matrix,
		runner:  runner,
		metrics: metrics.NewRecorder(),
	}
	opts := []tts.ServiceOption{
		tts.WithFallback(c.Fallback),
		tts.WithTimeout(c.Timeout),
		tts.WithRecorder(a.metrics),
	}
	if c.Engine != "" {
		id, err := engine.ParseID(c.Engine)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tts.WithEngine(id))
	}

	if c.Cache.Enabled {
		ch, err := cache.Open(c.Cache.Config)
		if err != nil {
			log.Warn("Synthesis cache disabled", "error", err)
		} else {
			a.cache = ch
			opts = append(opts, tts.WithCache(ch))
		}
	}

	if withPlayer {
		p, err := audio.NewPlayer()
		switch {
		case err == nil:
			a.player = p
			opts = append(opts, tts.WithPlayer(p))
		case errors.Is(err, audio.ErrNoAudioDevice):
			log.Warn("No audio device, speech will not be played", "error", err)
		default:
			a.closeCache()
			return nil, err
		}
	}

	a.svc = tts.NewService(engine.NewFactory(matrix, registry), opts...)
	return a, nil
}

// start initializes the service with the configured voice settings.
func (a *app) start(ctx context.Context, voice tts.Config) error {
	if err := a.svc.InitializeWithConfig(ctx, voice); err != nil {
		return err
	}
	if info, ok := a.svc.CurrentEngine(); ok {
		log.Debug("Engine ready", "engine", info.ID, "name", info.Name, "version", info.Version)
	}
	return nil
}

// Close disposes the service, kills leftover engine processes and flushes
// the cache.
func (a *app) Close() error {
	var errs []error
	if err := a.svc.Dispose(); err != nil && !errors.Is(err, tts.ErrDisposed) {
		errs = append(errs, err)
	}
	a.runner.StopAll()
	if err := a.closeCache(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *app) closeCache() error {
	if a.cache == nil {
		return nil
	}
	err := a.cache.Close()
	a.cache = nil
	return err
}
