// Package voices caches the voice list of the active engine.
package voices

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/alouette/tts/pkg/tts/engine"
)

// Lister is the part of an engine adapter the catalog needs.
type Lister interface {
	Voices(ctx context.Context) ([]engine.Voice, error)
}

// Catalog holds the voices of the current engine. Readers always see a
// complete list: refreshes build a new slice and swap it in atomically.
type Catalog struct {
	voices     atomic.Pointer[[]engine.Voice]
	generation atomic.Uint64
	group      singleflight.Group

	// mu orders stores against Invalidate.
	mu sync.Mutex
}

// New returns an empty catalog.
func New() *Catalog {
	c := &Catalog{}
	c.voices.Store(&[]engine.Voice{})
	return c
}

// Refresh reloads the list from l. Concurrent refreshes share one call. If
// the catalog is invalidated while the call is running its result is
// discarded.
func (c *Catalog) Refresh(ctx context.Context, l Lister) ([]engine.Voice, error) {
	gen := c.generation.Load()
	res, err, shared := c.group.Do(key(gen), func() (any, error) {
		list, err := l.Voices(ctx)
		if err != nil {
			return nil, err
		}
		list = clone(list)
		c.mu.Lock()
		if c.generation.Load() == gen {
			c.voices.Store(&list)
		}
		c.mu.Unlock()
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	list := res.([]engine.Voice)
	log.Debug("Voice catalog refreshed", "voices", len(list), "shared", shared)
	return clone(list), nil
}

func key(gen uint64) string {
	return "refresh-" + strconv.FormatUint(gen, 10)
}

// Invalidate empties the catalog. Call it whenever the engine changes.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	c.voices.Store(&[]engine.Voice{})
}

// Voices returns a copy of the cached list.
func (c *Catalog) Voices() []engine.Voice {
	return clone(*c.voices.Load())
}

// Len returns the number of cached voices.
func (c *Catalog) Len() int {
	return len(*c.voices.Load())
}

// Empty reports whether the catalog holds no voices.
func (c *Catalog) Empty() bool {
	return c.Len() == 0
}

// Lookup finds a voice by id, ignoring case.
func (c *Catalog) Lookup(id string) (engine.Voice, bool) {
	for _, v := range *c.voices.Load() {
		if strings.EqualFold(v.ID, id) {
			return v, true
		}
	}
	return engine.Voice{}, false
}

// FilterByLanguage returns the voices whose language tag equals code, or
// whose primary language subtag equals code. Matching ignores case and
// treats "_" like "-", so "en", "en-us" and "en_US" all match "en-US".
func (c *Catalog) FilterByLanguage(code string) []engine.Voice {
	return FilterByLanguage(*c.voices.Load(), code)
}

// FilterByLanguage applies the catalog's language rule to list.
func FilterByLanguage(list []engine.Voice, code string) []engine.Voice {
	want := normalize(code)
	if want == "" {
		return nil
	}
	var out []engine.Voice
	for _, v := range list {
		tag := normalize(v.LanguageCode)
		if tag == want || primary(tag) == want {
			out = append(out, v)
		}
	}
	return out
}

// normalize canonicalizes a tag for comparison. Tags that do not parse are
// compared as lowercased strings.
func normalize(code string) string {
	code = strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
	if code == "" {
		return ""
	}
	if tag, err := language.Parse(code); err == nil {
		return strings.ToLower(tag.String())
	}
	return strings.ToLower(code)
}

func primary(tag string) string {
	if t, err := language.Parse(tag); err == nil {
		base, _ := t.Base()
		return base.String()
	}
	p, _, _ := strings.Cut(tag, "-")
	return p
}

func clone(list []engine.Voice) []engine.Voice {
	out := make([]engine.Voice, len(list))
	copy(out, list)
	return out
}
