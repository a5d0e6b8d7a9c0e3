package metagan

import (
	"fmt"
	"image/color"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gorgonia.org/tensor"
)

// NormRandDense Return reference to tensor.Dense of provided shape filled with normally distributed values
func NormRandDense(rng *rand.Rand, dt tensor.Dtype, shape ...int) (*tensor.Dense, error) {
	return randDense(rng.NormFloat64, dt, shape...)
}

// UniformRandDense Return reference to tensor.Dense of provided shape filled with pseudo-random values in range [0.0,1.0)
func UniformRandDense(rng *rand.Rand, dt tensor.Dtype, shape ...int) (*tensor.Dense, error) {
	return randDense(rng.Float64, dt, shape...)
}

func randDense(next func() float64, dt tensor.Dtype, shape ...int) (*tensor.Dense, error) {
	n := tensor.Shape(shape).TotalSize()
	switch dt {
	case tensor.Float64:
		data := make([]float64, n)
		for i := range data {
			data[i] = next()
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
	case tensor.Float32:
		data := make([]float32, n)
		for i := range data {
			data[i] = float32(next())
		}
		return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
	default:
		return nil, errors.Wrapf(ErrDtypeMismatch, "random tensor can't be %v", dt)
	}
}

// LatentNoise Returns latent codes [batchSize, zLength, 1, 1] sampled from standard normal distribution
func LatentNoise(rng *rand.Rand, dt tensor.Dtype, batchSize, zLength int) (*tensor.Dense, error) {
	return NormRandDense(rng, dt, batchSize, zLength, 1, 1)
}

// OneHotEncode Encodes every string as one-hot vector. Classes are sorted lexicographically.
func OneHotEncode(sl []string) ([][]int, []string, error) {
	unique := make(map[string]bool)
	for _, s := range sl {
		unique[s] = true
	}
	uniqueSlice := make([]string, 0, len(unique))
	for k := range unique {
		uniqueSlice = append(uniqueSlice, k)
	}
	sort.Strings(uniqueSlice)
	result := make([][]int, 0, len(sl))
	for i := range sl {
		oneHotEncodedResult := make([]int, len(uniqueSlice))
		oneHotIdx := sort.SearchStrings(uniqueSlice, sl[i])
		if oneHotIdx >= len(uniqueSlice) || uniqueSlice[oneHotIdx] != sl[i] {
			return nil, nil, fmt.Errorf("Can't find class '%s'. This should not happen at all", sl[i])
		}
		oneHotEncodedResult[oneHotIdx] = 1
		result = append(result, oneHotEncodedResult)
	}
	return result, uniqueSlice, nil
}

// OneHotDense Stacks one-hot vectors into [len(encoded), classes] float64 matrix
func OneHotDense(encoded [][]int) (*tensor.Dense, error) {
	if len(encoded) == 0 {
		return nil, fmt.Errorf("Nothing to stack")
	}
	classes := len(encoded[0])
	data := make([]float64, 0, len(encoded)*classes)
	for i, row := range encoded {
		if len(row) != classes {
			return nil, errors.Wrapf(ErrShapeMismatch, "row #%d has %d classes, but row #0 has %d", i, len(row), classes)
		}
		for _, v := range row {
			data = append(data, float64(v))
		}
	}
	return tensor.New(tensor.WithShape(len(encoded), classes), tensor.WithBacking(data)), nil
}

// SlicerOneStep Just iterator with step size = 1
type SlicerOneStep struct {
	StartIdx, EndIdx int
}

func (s SlicerOneStep) Start() int { return s.StartIdx }
func (s SlicerOneStep) End() int   { return s.EndIdx }
func (s SlicerOneStep) Step() int  { return 1 }

// LossSeries Named sequence of loss values (one per step)
type LossSeries struct {
	Name   string
	Values []float64
}

// PlotLosses Plot loss curves: X is step number, Y is loss value
func PlotLosses(fname string, series ...LossSeries) error {
	if len(series) == 0 {
		return fmt.Errorf("Nothing to plot")
	}
	p := plot.New()
	p.Title.Text = "Losses"
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Loss"
	p.Add(plotter.NewGrid())
	for i, s := range series {
		xys := make(plotter.XYs, len(s.Values))
		for j, v := range s.Values {
			xys[j].X = float64(j)
			xys[j].Y = v
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "Can't init line for '%s'", s.Name)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}
	// Save the plot to a PNG file.
	if err := p.Save(6*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}

// imageGrid Adapter of single [side, side] map of [batch, 1, side, side] tensor to plotter.GridXYZ
type imageGrid struct {
	data   []float64
	offset int
	side   int
}

func (g imageGrid) Dims() (c, r int) { return g.side, g.side }
func (g imageGrid) X(c int) float64  { return float64(c) }
func (g imageGrid) Y(r int) float64  { return float64(r) }
func (g imageGrid) Z(c, r int) float64 {
	// Row 0 of an image is its top, but plot's Y axis grows upwards
	return g.data[g.offset+(g.side-1-r)*g.side+c]
}

// SaveImageHeatmap Draws index-th image of [batch, 1, side, side] tensor as heatmap into file
func SaveImageHeatmap(images *tensor.Dense, index int, fname string) error {
	shp := images.Shape()
	if len(shp) != 4 || shp[1] != 1 || shp[2] != shp[3] {
		return errors.Wrapf(ErrShapeMismatch, "images must be of shape [batch, 1, side, side], but got %v", shp)
	}
	if index < 0 || index >= shp[0] {
		return fmt.Errorf("Image index %d is out of range [0; %d)", index, shp[0])
	}
	var data []float64
	switch backing := images.Data().(type) {
	case []float64:
		data = backing
	case []float32:
		data = make([]float64, len(backing))
		for i, v := range backing {
			data[i] = float64(v)
		}
	default:
		return errors.Wrapf(ErrDtypeMismatch, "can't draw %v images", images.Dtype())
	}
	side := shp[2]
	grid := imageGrid{data: data, offset: index * side * side, side: side}
	heatmap := plotter.NewHeatMap(grid, palette.Heat(64, 1))
	heatmap.Min, heatmap.Max = -1, 1
	heatmap.NaN = color.Black
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Sample #%d", index)
	p.HideAxes()
	p.Add(heatmap)
	if err := p.Save(4*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save heatmap")
	}
	return nil
}
