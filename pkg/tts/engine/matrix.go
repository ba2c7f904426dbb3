package engine

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/alouette/tts/pkg/tts/platform"
)

// Matrix maps (platform, engine) pairs to capabilities and answers the
// engine-aware detection queries: which engines are available here, which
// one is recommended and whether a feature is supported.
//
// Entries are static; an engine is downgraded to unavailable when its probe
// or construction fails and restored when a later attempt succeeds.
type Matrix struct {
	detector *platform.Detector
	table    map[platform.Platform]map[ID]Capabilities
	order    func(platform.Platform) []ID

	mu         sync.RWMutex
	downgraded map[ID]bool
}

// MatrixOption configures a Matrix.
type MatrixOption func(*Matrix)

// WithTable replaces the static capability table.
func WithTable(table map[platform.Platform]map[ID]Capabilities) MatrixOption {
	return func(m *Matrix) {
		m.table = table
	}
}

// WithOrder replaces the per-platform candidate order.
func WithOrder(order func(platform.Platform) []ID) MatrixOption {
	return func(m *Matrix) {
		m.order = order
	}
}

// NewMatrix creates a capability matrix for the detector's platform.
func NewMatrix(detector *platform.Detector, opts ...MatrixOption) *Matrix {
	m := &Matrix{
		detector:   detector,
		table:      DefaultTable(),
		order:      DefaultOrder,
		downgraded: make(map[ID]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Detector returns the platform detector backing the matrix.
func (m *Matrix) Detector() *platform.Detector {
	return m.detector
}

// Platform returns the current platform.
func (m *Matrix) Platform() platform.Platform {
	return m.detector.Current()
}

// Candidates returns the engines this platform may use, in preference order.
func (m *Matrix) Candidates() []ID {
	row := m.table[m.Platform()]
	var ids []ID
	for _, id := range m.order(m.Platform()) {
		if _, ok := row[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Capabilities returns the capabilities of id on the current platform.
func (m *Matrix) Capabilities(id ID) (Capabilities, bool) {
	caps, ok := m.table[m.Platform()][id]
	if !ok {
		return Capabilities{}, false
	}
	caps = caps.clone()
	if m.isDowngraded(id) {
		caps.Available = false
	}
	return caps, true
}

// PlatformCapabilities returns the capability entry of every candidate
// engine. It performs no I/O.
func (m *Matrix) PlatformCapabilities() map[ID]Capabilities {
	out := make(map[ID]Capabilities)
	for _, id := range m.Candidates() {
		caps, _ := m.Capabilities(id)
		out[id] = caps
	}
	return out
}

// MarkUnavailable downgrades id after a failed probe or construction.
func (m *Matrix) MarkUnavailable(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.downgraded[id] {
		log.Debug("Engine downgraded", "engine", id, "platform", m.Platform())
	}
	m.downgraded[id] = true
}

// MarkAvailable restores id after a successful construction.
func (m *Matrix) MarkAvailable(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.downgraded, id)
}

// Probe checks platform-level availability of id. A passing process probe
// clears an earlier downgrade. The native engine is the platform baseline and
// always passes; only a failed construction rules it out.
func (m *Matrix) Probe(ctx context.Context, id ID) bool {
	if _, ok := m.table[m.Platform()][id]; !ok {
		return false
	}
	if id != ProcessEngine {
		return true
	}
	if !m.detector.IsProcessEngineAvailable(ctx) {
		m.MarkUnavailable(id)
		return false
	}
	m.MarkAvailable(id)
	return true
}

func (m *Matrix) isDowngraded(id ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.downgraded[id]
}

// AvailableEngines probes every candidate and returns those that passed and
// are not downgraded, in preference order. The result is never empty: when
// everything has been ruled out the last candidate is returned so callers
// always have a target.
func (m *Matrix) AvailableEngines(ctx context.Context) []ID {
	candidates := m.Candidates()
	var available []ID
	for _, id := range candidates {
		if m.Probe(ctx, id) && !m.isDowngraded(id) {
			available = append(available, id)
		}
	}
	if len(available) == 0 && len(candidates) > 0 {
		available = []ID{candidates[len(candidates)-1]}
	}
	log.Debug("Available engines", "platform", m.Platform(), "engines", available)
	return available
}

// Recommended returns the preferred available engine. It is always a member
// of AvailableEngines.
func (m *Matrix) Recommended(ctx context.Context) ID {
	available := m.AvailableEngines(ctx)
	if len(available) == 0 {
		return NativeEngine
	}
	return available[0]
}

// IsFeatureSupported reports whether the recommended engine supports f.
func (m *Matrix) IsFeatureSupported(ctx context.Context, f Feature) bool {
	caps, ok := m.Capabilities(m.Recommended(ctx))
	return ok && caps.Supports(f)
}

// Platforms lists the platforms present in the table, sorted.
func (m *Matrix) Platforms() []platform.Platform {
	return slices.Sorted(maps.Keys(m.table))
}
