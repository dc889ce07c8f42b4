package presentation

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/paulmach/orb/geojson"
)

// Layer and source identifiers shared with the map client.
const (
	SourceBoundary          = "boundary-circle"
	SourceSearchRadius      = "search-radius"
	SourceSearchRadiusOuter = "search-radius-outer"

	LayerBoundaryFill  = "boundary-fill"
	LayerBoundaryLine  = "boundary-line"
	LayerBoundaryLabel = "boundary-label"

	PropFillOpacity = "fill-opacity"
	PropLineWidth   = "line-width"
	PropVisibility  = "visibility"
)

// BoundaryLayers lists the layers that make up the geofence overlay.
var BoundaryLayers = []string{LayerBoundaryFill, LayerBoundaryLine, LayerBoundaryLabel}

// ErrNoLayer is returned when mutating a layer that does not exist.
var ErrNoLayer = errors.New("layer not found")

// Layer is the paint and layout state of one map layer.
type Layer struct {
	ID      string         `json:"id"`
	Source  string         `json:"source"`
	Visible bool           `json:"visible"`
	Paint   map[string]any `json:"paint"`
}

// Change describes one mutation, for mirroring to map clients.
type Change struct {
	Kind     string           `json:"kind"` // "layout", "paint", "source", "remove"
	ID       string           `json:"id"`
	Property string           `json:"property,omitempty"`
	Value    any              `json:"value,omitempty"`
	Feature  *geojson.Feature `json:"feature,omitempty"`
}

// MapLayers is the authoritative store of overlay layers and GeoJSON sources.
// Only the presentation controller writes to it.
type MapLayers struct {
	mu        sync.RWMutex
	layers    map[string]*Layer
	sources   map[string]*geojson.Feature
	listeners []func(Change)
}

// NewMapLayers creates an empty store.
func NewMapLayers() *MapLayers {
	return &MapLayers{
		layers:  make(map[string]*Layer),
		sources: make(map[string]*geojson.Feature),
	}
}

// OnChange registers a mutation listener. Listeners run synchronously.
func (m *MapLayers) OnChange(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// AddLayer creates or replaces a layer.
func (m *MapLayers) AddLayer(id, source string, visible bool, paint map[string]any) {
	p := make(map[string]any, len(paint))
	for k, v := range paint {
		p[k] = v
	}
	m.mu.Lock()
	m.layers[id] = &Layer{ID: id, Source: source, Visible: visible, Paint: p}
	m.mu.Unlock()
	m.emit(Change{Kind: "layout", ID: id, Property: PropVisibility, Value: visibility(visible)})
}

// RemoveLayer deletes a layer. Removing a missing layer is a no-op.
func (m *MapLayers) RemoveLayer(id string) {
	m.mu.Lock()
	_, ok := m.layers[id]
	delete(m.layers, id)
	m.mu.Unlock()
	if ok {
		m.emit(Change{Kind: "remove", ID: id})
	}
}

// HasLayer reports whether the layer exists.
func (m *MapLayers) HasLayer(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.layers[id]
	return ok
}

// SetVisible sets the layer's visibility layout property.
func (m *MapLayers) SetVisible(id string, visible bool) error {
	m.mu.Lock()
	l, ok := m.layers[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoLayer, id)
	}
	changed := l.Visible != visible
	l.Visible = visible
	m.mu.Unlock()
	if changed {
		m.emit(Change{Kind: "layout", ID: id, Property: PropVisibility, Value: visibility(visible)})
	}
	return nil
}

// Visible reports the layer's visibility; missing layers are invisible.
func (m *MapLayers) Visible(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.layers[id]
	return ok && l.Visible
}

// SetPaint sets a paint property.
func (m *MapLayers) SetPaint(id, prop string, value any) error {
	m.mu.Lock()
	l, ok := m.layers[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoLayer, id)
	}
	l.Paint[prop] = value
	m.mu.Unlock()
	m.emit(Change{Kind: "paint", ID: id, Property: prop, Value: value})
	return nil
}

// PaintFloat reads a numeric paint property.
func (m *MapLayers) PaintFloat(id, prop string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.layers[id]
	if !ok {
		return 0, false
	}
	v, ok := l.Paint[prop].(float64)
	return v, ok
}

// SetSource replaces a GeoJSON source.
func (m *MapLayers) SetSource(id string, f *geojson.Feature) {
	m.mu.Lock()
	m.sources[id] = f
	m.mu.Unlock()
	m.emit(Change{Kind: "source", ID: id, Feature: f})
}

// Source returns a GeoJSON source.
func (m *MapLayers) Source(id string) (*geojson.Feature, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.sources[id]
	return f, ok
}

// Layers returns a copy of all layers sorted by ID.
func (m *MapLayers) Layers() []Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Layer, 0, len(m.layers))
	for _, l := range m.layers {
		cp := *l
		cp.Paint = make(map[string]any, len(l.Paint))
		for k, v := range l.Paint {
			cp.Paint[k] = v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MapLayers) emit(c Change) {
	m.mu.RLock()
	fns := slices.Clone(m.listeners)
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

func visibility(v bool) string {
	if v {
		return "visible"
	}
	return "none"
}
