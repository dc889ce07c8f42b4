// Package catalog holds the published point-of-interest features and answers
// "what is near the user" queries for distance markers.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/uber/h3-go/v4"

	"fencetrack/pkg/geo"
	"fencetrack/pkg/model"
)

// DefaultResolution is the H3 resolution of the spatial index (~76 m edges).
const DefaultResolution = 10

// average hexagon edge length in meters per H3 resolution
var edgeLengthM = [...]float64{
	1281256, 483057, 182513, 68979, 26072, 9854, 3725, 1406,
	531.4, 200.8, 75.86, 28.66, 10.83, 4.09, 1.55, 0.58,
}

// Catalog is a read-mostly feature set with an H3 cell index. A nil or empty
// catalog answers every query with no markers.
type Catalog struct {
	resolution int

	mu       sync.RWMutex
	features []model.Feature
	cells    map[h3.Cell][]int
}

// New creates an empty catalog indexed at resolution.
func New(resolution int) *Catalog {
	if resolution < 0 || resolution >= len(edgeLengthM) {
		resolution = DefaultResolution
	}
	return &Catalog{resolution: resolution, cells: make(map[h3.Cell][]int)}
}

// Load reads a GeoJSON FeatureCollection file and publishes its point features.
func (c *Catalog) Load(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	n, err := c.LoadBytes(data)
	if err != nil {
		return 0, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return n, nil
}

// LoadBytes parses a FeatureCollection and publishes its point features.
func (c *Catalog) LoadBytes(data []byte) (int, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return 0, err
	}

	features := make([]model.Feature, 0, len(fc.Features))
	skipped := 0
	for i, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			skipped++
			continue
		}
		mf := model.Feature{
			ID:          featureID(f, i),
			Coordinates: geo.Point{Lat: p.Lat(), Lon: p.Lon()},
			Properties:  make(map[string]string, len(f.Properties)),
		}
		for k, v := range f.Properties {
			if s := stringProp(v); s != "" {
				mf.Properties[k] = PlainText(s)
			}
		}
		features = append(features, mf)
	}
	if skipped > 0 {
		slog.Debug("Catalog: skipped non-point features", "count", skipped)
	}

	c.Publish(features)
	return len(features), nil
}

// Publish replaces the feature set.
func (c *Catalog) Publish(features []model.Feature) {
	cells := make(map[h3.Cell][]int, len(features))
	kept := make([]model.Feature, 0, len(features))
	for _, f := range features {
		if !f.Coordinates.Valid() {
			slog.Warn("Catalog: dropping feature with invalid coordinates", "id", f.ID)
			continue
		}
		cell, err := h3.LatLngToCell(h3.NewLatLng(f.Coordinates.Lat, f.Coordinates.Lon), c.resolution)
		if err != nil {
			slog.Warn("Catalog: failed to index feature", "id", f.ID, "error", err)
			continue
		}
		cells[cell] = append(cells[cell], len(kept))
		kept = append(kept, f)
	}

	c.mu.Lock()
	c.features = kept
	c.cells = cells
	c.mu.Unlock()
	slog.Info("Catalog: published features", "count", len(kept), "cells", len(cells))
}

// Len returns the number of published features.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.features)
}

// Features returns a copy of the published features.
func (c *Catalog) Features() []model.Feature {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Feature(nil), c.features...)
}

// Nearby returns a marker for every feature within radiusM of p (inclusive),
// distances rounded to whole meters, nearest first.
func (c *Catalog) Nearby(p geo.Point, radiusM float64) []model.DistanceMarker {
	if c == nil || radiusM < 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.features) == 0 {
		return nil
	}

	var markers []model.DistanceMarker
	add := func(i int) {
		f := c.features[i]
		d := geo.Distance(p, f.Coordinates)
		if d > radiusM {
			return
		}
		markers = append(markers, model.DistanceMarker{
			FeatureID: f.ID,
			Name:      f.Name(),
			Target:    f.Coordinates,
			DistanceM: math.Round(d),
		})
	}

	if candidates, ok := c.candidates(p, radiusM); ok {
		for _, i := range candidates {
			add(i)
		}
	} else {
		for i := range c.features {
			add(i)
		}
	}

	sort.SliceStable(markers, func(i, j int) bool {
		if markers[i].DistanceM == markers[j].DistanceM {
			return markers[i].FeatureID < markers[j].FeatureID
		}
		return markers[i].DistanceM < markers[j].DistanceM
	})
	return markers
}

// candidates returns feature indices from the grid disk covering radiusM.
// ok is false when the index cannot answer and a full scan is needed.
func (c *Catalog) candidates(p geo.Point, radiusM float64) ([]int, bool) {
	if !p.Valid() {
		return nil, false
	}
	origin, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lon), c.resolution)
	if err != nil {
		return nil, false
	}
	// Ring k centers lie at least 1.5*k*edge from the origin center. Two extra
	// rings cover query point and feature sitting at the far edges of their cells.
	k := int(math.Ceil(radiusM/(1.5*edgeLengthM[c.resolution]))) + 2
	if k > 50 {
		return nil, false
	}
	disk, err := h3.GridDisk(origin, k)
	if err != nil {
		return nil, false
	}
	var out []int
	for _, cell := range disk {
		out = append(out, c.cells[cell]...)
	}
	return out, true
}

func featureID(f *geojson.Feature, index int) string {
	for _, key := range []string{"id", "slug"} {
		if s := stringProp(f.Properties[key]); s != "" {
			return s
		}
	}
	if s := stringProp(f.ID); s != "" {
		return s
	}
	return "feature-" + strconv.Itoa(index)
}

func stringProp(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}
