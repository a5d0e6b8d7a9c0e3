package metagan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestSessionCacheEviction(t *testing.T) {
	g := gorgonia.NewGraph()
	cache := newSessionCache(g)
	cache.limit = 2
	defer cache.Close()

	builds := 0
	build := func(shape ...int) sessionBuilder {
		return func(suffix string) ([]*gorgonia.Node, *gorgonia.Node, error) {
			builds++
			x := gorgonia.NewTensor(g, tensor.Float64, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName("x"+suffix))
			doubled, err := gorgonia.Add(x, x)
			if err != nil {
				return nil, nil, err
			}
			return []*gorgonia.Node{x}, doubled, nil
		}
	}
	run := func(shape ...int) {
		t.Helper()
		backing := make([]float64, tensor.Shape(shape).TotalSize())
		for i := range backing {
			backing[i] = float64(i)
		}
		x := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
		out, err := cache.run(shapeKey(x), build(shape...), x)
		require.NoError(t, err)
		for i, v := range float64s(t, out) {
			assert.Equal(t, 2*float64(i), v)
		}
	}

	run(1, 3)
	run(2, 3)
	run(1, 3)
	assert.Equal(t, 2, builds)
	assert.Len(t, cache.sessions, 2)

	// 2x3 is the least recently used one
	run(3, 3)
	assert.Equal(t, 3, builds)
	assert.Len(t, cache.sessions, 2)
	assert.Contains(t, cache.sessions, "1x3")
	assert.Contains(t, cache.sessions, "3x3")
	assert.NotContains(t, cache.sessions, "2x3")

	// Evicted key is rebuilt on demand
	run(2, 3)
	assert.Equal(t, 4, builds)
	assert.Len(t, cache.sessions, 2)
	assert.Equal(t, []string{"3x3", "2x3"}, cache.recent)

	require.NoError(t, cache.Close())
	assert.Empty(t, cache.sessions)
	assert.Empty(t, cache.recent)
}
