package metagan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func vectorNode(g *gorgonia.ExprGraph, name string, values ...float64) *gorgonia.Node {
	return gorgonia.NewVector(g, tensor.Float64, gorgonia.WithShape(len(values)), gorgonia.WithName(name), gorgonia.WithValue(tensor.New(tensor.WithShape(len(values)), tensor.WithBacking(values))))
}

func scalarResult(t *testing.T, g *gorgonia.ExprGraph, n *gorgonia.Node) float64 {
	t.Helper()
	v, ok := evaluate(t, g, n).ScalarValue().(float64)
	require.True(t, ok)
	return v
}

func TestBinaryCrossEntropyLoss(t *testing.T) {
	tests := []struct {
		name      string
		a, b      []float64
		reduction LossReduction
		expected  float64
	}{
		{"coin mean", []float64{0.5, 0.5}, []float64{1, 0}, LossReductionMean, math.Ln2},
		{"coin sum", []float64{0.5, 0.5}, []float64{1, 0}, LossReductionSum, 2 * math.Ln2},
		{"confident", []float64{0.9, 0.1}, []float64{1, 0}, LossReductionMean, -math.Log(0.9)},
		{"soft target", []float64{0.25}, []float64{0.5}, LossReductionMean, -(0.5*math.Log(0.25) + 0.5*math.Log(0.75))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := gorgonia.NewGraph()
			loss, err := BinaryCrossEntropyLoss(vectorNode(g, "a", tt.a...), vectorNode(g, "b", tt.b...), tt.reduction)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, scalarResult(t, g, loss), 1e-6)
		})
	}
}

func TestBinaryCrossEntropyLossSaturated(t *testing.T) {
	g := gorgonia.NewGraph()
	loss, err := BinaryCrossEntropyLoss(vectorNode(g, "a", 0, 1), vectorNode(g, "b", 1, 0))
	require.NoError(t, err)
	v := scalarResult(t, g, loss)
	assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
	assert.InDelta(t, -math.Log(logEpsilon), v, 1e-3)
}

func TestMSELoss(t *testing.T) {
	g := gorgonia.NewGraph()
	a, b := vectorNode(g, "a", 1, 2, 3), vectorNode(g, "b", 1, 0, 0)
	mean, err := MSELoss(a, b)
	require.NoError(t, err)
	sum, err := MSELoss(a, b, LossReductionSum)
	require.NoError(t, err)
	assert.InDelta(t, 13.0/3.0, scalarResult(t, g, mean), 1e-9)
	assert.InDelta(t, 13.0, scalarResult(t, g, sum), 1e-9)

	_, err = MSELoss(a, b, LossReduction(42))
	assert.Error(t, err)
}
