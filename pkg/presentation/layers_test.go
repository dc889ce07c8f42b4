package presentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapLayers(t *testing.T) {
	m := NewMapLayers()
	var changes []Change
	m.OnChange(func(c Change) { changes = append(changes, c) })

	m.AddLayer("a", "src", false, map[string]any{PropFillOpacity: 0.03})
	require.True(t, m.HasLayer("a"))
	assert.False(t, m.Visible("a"))

	require.NoError(t, m.SetVisible("a", true))
	require.NoError(t, m.SetVisible("a", true))
	require.NoError(t, m.SetPaint("a", PropFillOpacity, 0.01))
	v, ok := m.PaintFloat("a", PropFillOpacity)
	require.True(t, ok)
	assert.Equal(t, 0.01, v)

	assert.ErrorIs(t, m.SetPaint("missing", PropFillOpacity, 1.0), ErrNoLayer)
	assert.ErrorIs(t, m.SetVisible("missing", true), ErrNoLayer)

	m.RemoveLayer("a")
	m.RemoveLayer("a")
	assert.False(t, m.HasLayer("a"))

	kinds := make([]string, 0, len(changes))
	for _, c := range changes {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []string{"layout", "layout", "paint", "remove"}, kinds, "redundant writes are not mirrored")
}

func TestMapLayers_LayersIsACopy(t *testing.T) {
	m := NewMapLayers()
	m.AddLayer("b", "src", true, map[string]any{"x": 1.0})
	m.AddLayer("a", "src", true, nil)

	ls := m.Layers()
	require.Len(t, ls, 2)
	assert.Equal(t, "a", ls[0].ID)
	ls[1].Paint["x"] = 2.0

	v, _ := m.PaintFloat("b", "x")
	assert.Equal(t, 1.0, v)
}
