package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
)

// Factory constructs initialized adapters, walking the platform candidate
// order when a preferred engine cannot be built. Candidates are always tried
// one after another, never concurrently.
type Factory struct {
	matrix   *Matrix
	registry *Registry
}

// NewFactory creates a factory over a capability matrix and registry.
func NewFactory(matrix *Matrix, registry *Registry) *Factory {
	return &Factory{matrix: matrix, registry: registry}
}

// Matrix returns the capability matrix used by the factory.
func (f *Factory) Matrix() *Matrix {
	return f.matrix
}

// Create builds the named engine without fallback.
func (f *Factory) Create(ctx context.Context, id ID) (Adapter, error) {
	start := time.Now()
	adapter, err := f.create(ctx, id)
	if err != nil {
		f.matrix.MarkUnavailable(id)
		log.Warn("Engine construction failed", "engine", id, "error", err)
		return nil, err
	}
	f.matrix.MarkAvailable(id)
	log.Info("Engine ready", "engine", id, "platform", f.matrix.Platform(), "took", time.Since(start))
	return adapter, nil
}

func (f *Factory) create(ctx context.Context, id ID) (Adapter, error) {
	caps, ok := f.matrix.Capabilities(id)
	if !ok {
		return nil, wrapUnavailable(id, "create", fmt.Errorf("not supported on %s", f.matrix.Platform()))
	}
	if !f.matrix.Probe(ctx, id) {
		return nil, wrapUnavailable(id, "probe", nil)
	}

	ctor, err := f.registry.Lookup(id)
	if err != nil {
		return nil, wrapUnavailable(id, "create", err)
	}
	caps.Available = true
	adapter, err := ctor(f.matrix.Platform(), caps)
	if err != nil {
		return nil, wrapUnavailable(id, "create", err)
	}

	if !adapter.IsAvailable(ctx) {
		disposeQuietly(adapter)
		return nil, wrapUnavailable(id, "liveness check", nil)
	}

	initCtx := ctx
	if caps.Timeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, caps.Timeout)
		defer cancel()
	}
	if err := adapter.Initialize(initCtx); err != nil {
		disposeQuietly(adapter)
		return nil, wrapUnavailable(id, "initialize", err)
	}
	return adapter, nil
}

// CreatePreferred builds the recommended engine, falling back through the
// remaining platform candidates in order.
func (f *Factory) CreatePreferred(ctx context.Context) (Adapter, error) {
	return f.createFrom(ctx, f.matrix.Candidates())
}

// CreateWithFallback tries id first, then the platform candidate order.
func (f *Factory) CreateWithFallback(ctx context.Context, id ID) (Adapter, error) {
	order := []ID{id}
	for _, candidate := range f.matrix.Candidates() {
		if candidate != id {
			order = append(order, candidate)
		}
	}
	return f.createFrom(ctx, order)
}

func (f *Factory) createFrom(ctx context.Context, order []ID) (Adapter, error) {
	if len(order) == 0 {
		return nil, wrapUnavailable("", "create", errors.New("no engine candidates for platform"))
	}

	var errs []error
	for i, id := range order {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		adapter, err := f.Create(ctx, id)
		if err == nil {
			if i > 0 {
				log.Info("Fell back to engine", "engine", id, "skipped", order[:i])
			}
			return adapter, nil
		}
		errs = append(errs, err)
	}
	return nil, &Error{
		Op:  fmt.Sprintf("create (tried %v)", order),
		Err: fmt.Errorf("%w: %w", ErrEngineUnavailable, errors.Join(errs...)),
	}
}

// IsImplementationAvailable reports whether id passes the platform probe and
// the adapter liveness check. The probe adapter is disposed afterwards.
func (f *Factory) IsImplementationAvailable(ctx context.Context, id ID) bool {
	if !slices.Contains(f.matrix.Candidates(), id) {
		return false
	}
	if !f.matrix.Probe(ctx, id) {
		return false
	}
	ctor, err := f.registry.Lookup(id)
	if err != nil {
		return false
	}
	caps, _ := f.matrix.Capabilities(id)
	adapter, err := ctor(f.matrix.Platform(), caps)
	if err != nil {
		return false
	}
	defer disposeQuietly(adapter)
	return adapter.IsAvailable(ctx)
}

func disposeQuietly(a Adapter) {
	if err := a.Dispose(); err != nil {
		log.Debug("Dispose after failed construction", "engine", a.Info().ID, "error", err)
	}
}
