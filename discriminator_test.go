package metagan

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func TestNewDiscriminatorAllSizes(t *testing.T) {
	for _, size := range SupportedDataSizes {
		t.Run(size.String(), func(t *testing.T) {
			d := int(size)
			dis, err := NewDiscriminator(d, 10, 5, WithDeferredInit())
			require.NoError(t, err)
			assert.Equal(t, 5, dis.LambdaLength())
			assert.Len(t, dis.Learnables(), 12)

			g := dis.Graph()
			image := gorgonia.NewTensor(g, tensor.Float64, 4, gorgonia.WithShape(2, 1, d, d), gorgonia.WithName("image"))
			meta := gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(2, 10), gorgonia.WithName("meta"))
			require.NoError(t, dis.Fwd(image, meta))
			assert.Equal(t, tensor.Shape{2, 6}, dis.Out().Shape())
		})
	}
}

func TestNewDiscriminatorUnsupportedSize(t *testing.T) {
	dis, err := NewDiscriminator(100, 10, 5)
	assert.Nil(t, dis)
	assert.ErrorIs(t, err, ErrUnsupportedDataSize)

	_, err = NewDiscriminator(64, -1, 5)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestDiscriminate(t *testing.T) {
	rng := rand.New(rand.NewSource(1337))
	dis, err := NewDiscriminator(64, 10, 5)
	require.NoError(t, err)
	defer dis.Close()

	image := uniformImages(t, rng, 1, 64)
	meta, err := UniformRandDense(rng, tensor.Float64, 1, 10)
	require.NoError(t, err)

	scores, err := dis.Discriminate(image, meta)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 6}, scores.Shape())
	for i, v := range float64s(t, scores) {
		assert.True(t, v >= 0 && v <= 1, "score #%d = %f is out of [0; 1]", i, v)
	}

	// Same inputs give bit-identical outputs
	again, err := dis.Discriminate(image, meta)
	require.NoError(t, err)
	assert.Equal(t, float64s(t, scores), float64s(t, again))

	// [batch, meta, 1, 1] layout of meta is the same as [batch, meta] one
	columnScores, err := dis.Discriminate(image, columnMeta(t, meta))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 6}, columnScores.Shape())
	assert.Equal(t, float64s(t, scores), float64s(t, columnScores))
}

func TestDiscriminateShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	dis, err := NewDiscriminator(64, 10, 5, WithDeferredInit())
	require.NoError(t, err)
	defer dis.Close()

	image := uniformImages(t, rng, 1, 64)
	meta := tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(1, 10))
	cases := map[string][2]*tensor.Dense{
		"meta length":  {image, tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(1, 7))},
		"meta spatial": {image, tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(1, 10, 2, 1))},
		"meta rank":    {image, tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(10))},
		"batch":        {image, tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(2, 10))},
		"image side":   {uniformImages(t, rng, 1, 32), meta},
		"channels":     {tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(1, 3, 64, 64)), meta},
	}
	for name, inputs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := dis.Discriminate(inputs[0], inputs[1])
			assert.ErrorIs(t, err, ErrShapeMismatch)
		})
	}
}

func TestDiscriminatorWithoutAuxiliaryOutputs(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	dis, err := NewDiscriminator(64, 2, 0)
	require.NoError(t, err)
	defer dis.Close()
	scores, err := dis.Discriminate(uniformImages(t, rng, 3, 64), tensor.New(tensor.WithShape(3, 2), tensor.WithBacking([]float64{1, 0, 0, 1, 1, 1})))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 1}, scores.Shape())
}

func TestDiscriminatorMirror(t *testing.T) {
	dis, err := NewDiscriminator(64, 2, 1, WithDeferredInit())
	require.NoError(t, err)
	g := gorgonia.NewGraph()
	mirror, err := dis.Mirror(g)
	require.NoError(t, err)
	assert.Equal(t, g, mirror.Graph())

	original, copied := dis.Learnables(), mirror.Learnables()
	require.Len(t, copied, len(original))
	for i := range original {
		assert.Equal(t, original[i].Shape(), copied[i].Shape())
		assert.NotEqual(t, original[i].Name(), copied[i].Name())
	}
	// Values are shared: in-place update of original is visible through mirror
	weights := original[0].Value().Data().([]float64)
	weights[0] = 42
	assert.Equal(t, 42.0, copied[0].Value().Data().([]float64)[0])
}
