package metagan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTables(t *testing.T) {
	cases := []struct {
		size                DataSize
		genThird, genFourth strideKernel
		disFirst, disSecond strideKernel
	}{
		{Size64, strideKernel{2, 4}, strideKernel{2, 4}, strideKernel{2, 4}, strideKernel{2, 4}},
		{Size128, strideKernel{2, 4}, strideKernel{4, 6}, strideKernel{4, 6}, strideKernel{2, 4}},
		{Size256, strideKernel{4, 6}, strideKernel{4, 6}, strideKernel{4, 6}, strideKernel{4, 6}},
	}
	for _, tc := range cases {
		t.Run(tc.size.String(), func(t *testing.T) {
			assert.True(t, tc.size.Supported())
			assert.Equal(t, tc.genThird, generatorThirdStage[tc.size])
			assert.Equal(t, tc.genFourth, generatorFourthStage[tc.size])
			assert.Equal(t, tc.disFirst, discriminatorFirstStage[tc.size])
			assert.Equal(t, tc.disSecond, discriminatorSecondStage[tc.size])
		})
	}
	assert.False(t, DataSize(100).Supported())
}

func TestGeneratorTopology(t *testing.T) {
	for _, size := range SupportedDataSizes {
		t.Run(size.String(), func(t *testing.T) {
			d := int(size)
			stages, err := GeneratorTopology(d, 10, 100)
			require.NoError(t, err)
			require.Len(t, stages, 6)

			assert.Equal(t, "fc_z", stages[0].Name)
			assert.Equal(t, 100, stages[0].InChannels)
			assert.Equal(t, 10, stages[1].InChannels)
			for _, st := range stages[:2] {
				assert.Equal(t, 1, st.InSide)
				assert.Equal(t, 4, st.OutSide)
				assert.Equal(t, 4*d, st.OutChannels)
			}
			// Fusion doubles channels, then every stage halves them
			assert.Equal(t, 8*d, stages[2].InChannels)
			for i := 2; i < len(stages); i++ {
				assert.Equal(t, StageTransposedConvolution, stages[i].Kind)
				assert.Equal(t, 1, stages[i].Padding)
				if i > 2 {
					assert.Equal(t, stages[i-1].OutChannels, stages[i].InChannels)
					assert.Equal(t, stages[i-1].OutSide, stages[i].InSide)
				}
			}
			assert.Equal(t, 4, stages[2].InSide)
			assert.Equal(t, 8, stages[2].OutSide)
			assert.Equal(t, 16, stages[3].OutSide)
			assert.Equal(t, 1, stages[5].OutChannels)
			assert.Equal(t, d, stages[5].OutSide)
		})
	}
}

func TestGeneratorTopologySides(t *testing.T) {
	stages, err := GeneratorTopology(64, 1, 1)
	require.NoError(t, err)
	sides := []int{}
	for _, st := range stages[2:] {
		sides = append(sides, st.OutSide)
	}
	assert.Equal(t, []int{8, 16, 32, 64}, sides)

	stages, err = GeneratorTopology(256, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 64, stages[4].OutSide)
	assert.Equal(t, 256, stages[5].OutSide)
}

func TestDiscriminatorTopology(t *testing.T) {
	expectedSides := map[DataSize][]int{
		Size64:  {32, 16, 8, 4, 1},
		Size128: {32, 16, 8, 4, 1},
		Size256: {64, 16, 8, 4, 1},
	}
	for _, size := range SupportedDataSizes {
		t.Run(size.String(), func(t *testing.T) {
			d := int(size)
			stages, err := DiscriminatorTopology(d, 10, 5)
			require.NoError(t, err)
			require.Len(t, stages, 6)
			sides := []int{}
			for _, st := range stages[:5] {
				assert.Equal(t, StageConvolution, st.Kind)
				sides = append(sides, st.OutSide)
			}
			assert.Equal(t, expectedSides[size], sides)
			assert.Equal(t, 16*d, stages[4].OutChannels)
			assert.Equal(t, 0, stages[4].Padding)
			assert.Equal(t, 1, stages[4].Stride)

			fc := stages[5]
			assert.Equal(t, StageLinear, fc.Kind)
			assert.Equal(t, 16*d+10, fc.InChannels)
			assert.Equal(t, 6, fc.OutChannels)
		})
	}
}

func TestTopologyErrors(t *testing.T) {
	_, err := GeneratorTopology(100, 10, 100)
	assert.True(t, errors.Is(err, ErrUnsupportedDataSize))
	_, err = DiscriminatorTopology(100, 10, 5)
	assert.True(t, errors.Is(err, ErrUnsupportedDataSize))

	_, err = GeneratorTopology(64, 0, 100)
	assert.True(t, errors.Is(err, ErrInvalidLength))
	_, err = GeneratorTopology(64, 10, -1)
	assert.True(t, errors.Is(err, ErrInvalidLength))
	_, err = DiscriminatorTopology(64, 10, -1)
	assert.True(t, errors.Is(err, ErrInvalidLength))
}

func TestSpatialArithmetic(t *testing.T) {
	assert.Equal(t, 4, transposedSide(1, 4, 1, 0))
	assert.Equal(t, 8, transposedSide(4, 4, 2, 1))
	assert.Equal(t, 128, transposedSide(32, 6, 4, 1))
	assert.Equal(t, 32, convolvedSide(64, 4, 2, 1))
	assert.Equal(t, 32, convolvedSide(128, 6, 4, 1))
	assert.Equal(t, 1, convolvedSide(4, 4, 1, 0))
}
