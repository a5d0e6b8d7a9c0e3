package metagan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// spreadMatrix Returns [n, (n-1)*stride+1] matrix which moves i-th element to (i*stride)-th position when multiplied from the right
func spreadMatrix(dt tensor.Dtype, n, stride int) (*tensor.Dense, error) {
	if n <= 0 || stride <= 0 {
		return nil, fmt.Errorf("Spread matrix needs positive size and stride, but got size = %d, stride = %d", n, stride)
	}
	m := (n-1)*stride + 1
	switch dt {
	case tensor.Float64:
		data := make([]float64, n*m)
		for i := 0; i < n; i++ {
			data[i*m+i*stride] = 1
		}
		return tensor.New(tensor.WithShape(n, m), tensor.WithBacking(data)), nil
	case tensor.Float32:
		data := make([]float32, n*m)
		for i := 0; i < n; i++ {
			data[i*m+i*stride] = 1
		}
		return tensor.New(tensor.WithShape(n, m), tensor.WithBacking(data)), nil
	default:
		return nil, errors.Wrapf(ErrDtypeMismatch, "spread matrix can't be %v", dt)
	}
}

// spreadZeros Inserts (stride-1) zeros between neighbouring pixels of [batch, channels, side, side] input.
// Both spatial axes are spread by the same matrix: columns first, then rows (via transposition).
func spreadZeros(x, spread *gorgonia.Node) (*gorgonia.Node, error) {
	shp := x.Shape()
	b, c, h, w := shp[0], shp[1], shp[2], shp[3]
	if spread.Shape()[0] != h || h != w {
		return nil, errors.Wrapf(ErrShapeMismatch, "spread matrix %v can't be applied to %dx%d maps", spread.Shape(), h, w)
	}
	side := spread.Shape()[1]

	rows, err := gorgonia.Reshape(x, tensor.Shape{b * c * h, w})
	if err != nil {
		return nil, errors.Wrap(err, "Can't flatten maps into rows")
	}
	cols, err := gorgonia.Mul(rows, spread)
	if err != nil {
		return nil, errors.Wrap(err, "Can't spread columns")
	}
	maps, err := gorgonia.Reshape(cols, tensor.Shape{b * c, h, side})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape column-spreaded maps")
	}
	maps, err = gorgonia.Transpose(maps, 0, 2, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't swap spatial axes")
	}
	rows, err = gorgonia.Reshape(maps, tensor.Shape{b * c * side, h})
	if err != nil {
		return nil, errors.Wrap(err, "Can't flatten transposed maps into rows")
	}
	cols, err = gorgonia.Mul(rows, spread)
	if err != nil {
		return nil, errors.Wrap(err, "Can't spread rows")
	}
	maps, err = gorgonia.Reshape(cols, tensor.Shape{b * c, side, side})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape row-spreaded maps")
	}
	maps, err = gorgonia.Transpose(maps, 0, 2, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't swap spatial axes back")
	}
	spreaded, err := gorgonia.Reshape(maps, tensor.Shape{b, c, side, side})
	if err != nil {
		return nil, errors.Wrap(err, "Can't restore [batch, channels, height, width] layout")
	}
	return spreaded, nil
}
