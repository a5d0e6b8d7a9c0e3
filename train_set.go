package metagan

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// TrainSet Labelled images for conditional training.
//
// Images - [DataLength, 1, side, side] with values in [-1; 1]
// Meta - [DataLength, metaLength] conditioning vectors
// Lambda - [DataLength, lambdaLength] auxiliary targets in [0; 1], nil if there are no auxiliary outputs
//
type TrainSet struct {
	Images     *tensor.Dense
	Meta       *tensor.Dense
	Lambda     *tensor.Dense
	Classes    []string
	DataLength int
}

// Batch Returns copies of samples in range [start; end)
func (ts *TrainSet) Batch(start, end int) (images, meta, lambda *tensor.Dense, err error) {
	if start < 0 || end > ts.DataLength || start >= end {
		return nil, nil, nil, fmt.Errorf("Batch [%d; %d) is out of range [0; %d)", start, end, ts.DataLength)
	}
	images, err = sliceRows(ts.Images, start, end)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "Can't slice images")
	}
	meta, err = sliceRows(ts.Meta, start, end)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "Can't slice meta")
	}
	if ts.Lambda != nil {
		lambda, err = sliceRows(ts.Lambda, start, end)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "Can't slice lambda")
		}
	}
	return images, meta, lambda, nil
}

func sliceRows(t *tensor.Dense, start, end int) (*tensor.Dense, error) {
	view, err := t.Slice(SlicerOneStep{StartIdx: start, EndIdx: end})
	if err != nil {
		return nil, err
	}
	materialized, ok := view.Materialize().(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("Materialized view is not *tensor.Dense")
	}
	// Single-row slices lose their leading axis
	shp := append(tensor.Shape{end - start}, t.Shape()[1:]...)
	if err := materialized.Reshape(shp...); err != nil {
		return nil, errors.Wrapf(err, "Can't reshape batch to %v", shp)
	}
	return materialized, nil
}

// Figure kinds drawn by GenerateFiguresSet
const (
	FigureDisc   = "disc"
	FigureSquare = "square"
	FigureCross  = "cross"
)

// GenerateFiguresSet Synthetic set of figures centered in [side, side] images.
// Meta is one-hot encoded figure kind, Lambda is single relative figure size in [0.2; 0.9].
func GenerateFiguresSet(rng *rand.Rand, numSamples, side int) (*TrainSet, error) {
	if numSamples <= 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "number of samples must be positive, got %d", numSamples)
	}
	if !DataSize(side).Supported() {
		return nil, errors.Wrapf(ErrUnsupportedDataSize, "can't draw %dx%d figures", side, side)
	}
	kinds := []string{FigureDisc, FigureSquare, FigureCross}
	labels := make([]string, numSamples)
	pixels := make([]float64, numSamples*side*side)
	lambda := make([]float64, numSamples)
	for i := 0; i < numSamples; i++ {
		labels[i] = kinds[rng.Intn(len(kinds))]
		lambda[i] = 0.2 + 0.7*rng.Float64()
		drawFigure(pixels[i*side*side:(i+1)*side*side], side, labels[i], lambda[i])
	}
	encoded, classes, err := OneHotEncode(labels)
	if err != nil {
		return nil, errors.Wrap(err, "Can't encode figure kinds")
	}
	meta, err := OneHotDense(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "Can't stack figure kinds")
	}
	return &TrainSet{
		Images:     tensor.New(tensor.WithShape(numSamples, 1, side, side), tensor.WithBacking(pixels)),
		Meta:       meta,
		Lambda:     tensor.New(tensor.WithShape(numSamples, 1), tensor.WithBacking(lambda)),
		Classes:    classes,
		DataLength: numSamples,
	}, nil
}

// drawFigure Fills img with -1 and draws figure with +1. Size is relative to half of side.
func drawFigure(img []float64, side int, kind string, size float64) {
	center := float64(side-1) / 2
	radius := size * float64(side) / 2
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			dx, dy := math.Abs(float64(x)-center), math.Abs(float64(y)-center)
			inside := false
			switch kind {
			case FigureDisc:
				inside = dx*dx+dy*dy <= radius*radius
			case FigureSquare:
				inside = dx <= radius && dy <= radius
			case FigureCross:
				inside = (dx <= radius/4 && dy <= radius) || (dy <= radius/4 && dx <= radius)
			}
			img[y*side+x] = -1
			if inside {
				img[y*side+x] = 1
			}
		}
	}
}
