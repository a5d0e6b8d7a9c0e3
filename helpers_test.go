package metagan

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// evaluate Runs whole graph and returns copy of node's value
func evaluate(t *testing.T, g *gorgonia.ExprGraph, n *gorgonia.Node) *tensor.Dense {
	t.Helper()
	var val gorgonia.Value
	gorgonia.Read(n, &val)
	tm := gorgonia.NewTapeMachine(g)
	defer tm.Close()
	require.NoError(t, tm.RunAll())
	switch v := val.(type) {
	case *tensor.Dense:
		return v.Clone().(*tensor.Dense)
	case gorgonia.Scalar:
		return tensor.New(tensor.FromScalar(v.Data()))
	default:
		t.Fatalf("unexpected value type %T", val)
		return nil
	}
}

func uniformImages(t *testing.T, rng *rand.Rand, batch, side int) *tensor.Dense {
	t.Helper()
	images, err := UniformRandDense(rng, tensor.Float64, batch, 1, side, side)
	require.NoError(t, err)
	data := images.Data().([]float64)
	for i := range data {
		data[i] = 2*data[i] - 1
	}
	return images
}

func float64s(t *testing.T, d *tensor.Dense) []float64 {
	t.Helper()
	data, ok := d.Data().([]float64)
	require.True(t, ok, "expected float64 backing, got %T", d.Data())
	return data
}
