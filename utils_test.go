package metagan

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestOneHotEncode(t *testing.T) {
	encoded, classes, err := OneHotEncode([]string{"square", "disc", "square", "cross"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cross", "disc", "square"}, classes)
	assert.Equal(t, [][]int{{0, 0, 1}, {0, 1, 0}, {0, 0, 1}, {1, 0, 0}}, encoded)

	dense, err := OneHotDense(encoded)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 3}, dense.Shape())
	assert.Equal(t, []float64{0, 0, 1, 0, 1, 0, 0, 0, 1, 1, 0, 0}, dense.Data())

	_, err = OneHotDense([][]int{{1, 0}, {1}})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = OneHotDense(nil)
	assert.Error(t, err)
}

func TestRandDense(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	z, err := LatentNoise(rng, tensor.Float64, 3, 100)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 100, 1, 1}, z.Shape())

	u, err := UniformRandDense(rng, tensor.Float32, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, u.Dtype())
	for _, v := range u.Data().([]float32) {
		assert.True(t, v >= 0 && v < 1)
	}

	_, err = NormRandDense(rng, tensor.Int, 2)
	assert.ErrorIs(t, err, ErrDtypeMismatch)
}

func TestGenerateFiguresSet(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	ts, err := GenerateFiguresSet(rng, 6, 64)
	require.NoError(t, err)
	assert.Equal(t, 6, ts.DataLength)
	assert.Equal(t, tensor.Shape{6, 1, 64, 64}, ts.Images.Shape())
	assert.Equal(t, 6, ts.Meta.Shape()[0])
	assert.Equal(t, len(ts.Classes), ts.Meta.Shape()[1])
	assert.Equal(t, tensor.Shape{6, 1}, ts.Lambda.Shape())
	for _, v := range float64s(t, ts.Images) {
		assert.True(t, v == -1 || v == 1)
	}
	for _, v := range float64s(t, ts.Lambda) {
		assert.True(t, v >= 0.2 && v <= 0.9)
	}

	images, meta, lambda, err := ts.Batch(2, 5)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 1, 64, 64}, images.Shape())
	assert.Equal(t, float64s(t, ts.Images)[2*64*64:5*64*64], float64s(t, images))
	assert.Equal(t, tensor.Shape{3, len(ts.Classes)}, meta.Shape())
	assert.Equal(t, float64s(t, ts.Lambda)[2:5], float64s(t, lambda))

	images, meta, lambda, err = ts.Batch(4, 5)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 64, 64}, images.Shape())
	assert.Equal(t, tensor.Shape{1, len(ts.Classes)}, meta.Shape())
	assert.Equal(t, tensor.Shape{1, 1}, lambda.Shape())

	_, _, _, err = ts.Batch(4, 7)
	assert.Error(t, err)

	_, err = GenerateFiguresSet(rng, 6, 50)
	assert.ErrorIs(t, err, ErrUnsupportedDataSize)
}

func TestPlots(t *testing.T) {
	dir := t.TempDir()
	lossesFile := filepath.Join(dir, "losses.png")
	require.NoError(t, PlotLosses(lossesFile,
		LossSeries{Name: "discriminator", Values: []float64{1.4, 1.2, 1.1}},
		LossSeries{Name: "generator", Values: []float64{0.7, 0.8, 0.9}},
	))
	info, err := os.Stat(lossesFile)
	require.NoError(t, err)
	assert.True(t, info.Size() > 0)

	ts, err := GenerateFiguresSet(rand.New(rand.NewSource(3)), 2, 64)
	require.NoError(t, err)
	heatmapFile := filepath.Join(dir, "figure.png")
	require.NoError(t, SaveImageHeatmap(ts.Images, 1, heatmapFile))
	_, err = os.Stat(heatmapFile)
	require.NoError(t, err)

	assert.Error(t, SaveImageHeatmap(ts.Images, 2, heatmapFile))
}
