package metagan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer Just an alias to Weight+Bias+ActivationFunction combo
//
// Weights of LayerDeconvolutional are stored in convolution layout [out, in, kH, kW]: the layer
// spreads its input by stride, pads it by (kernel - 1 - padding) and convolves with stride 1.
//
type Layer struct {
	WeightNode *gorgonia.Node
	BiasNode   *gorgonia.Node
	Activation ActivationFunc
	Type       LayerType

	KernelHeight int
	KernelWidth  int
	Padding      []int
	Stride       []int
	Dilation     []int

	// InSide - expected spatial side of input (0 means "do not check")
	InSide int
	// spread - zero-insertion matrix [InSide, (InSide-1)*stride+1], nil for stride 1
	spread *gorgonia.Node
}

type LayerType uint16

const (
	LayerLinear = LayerType(iota)
	LayerConvolutional
	LayerDeconvolutional
)

func (t LayerType) String() string {
	switch t {
	case LayerLinear:
		return "linear"
	case LayerConvolutional:
		return "convolutional"
	case LayerDeconvolutional:
		return "deconvolutional"
	default:
		return fmt.Sprintf("LayerType(%d)", uint16(t))
	}
}

// NewStageLayer Creates layer (with uninitialized parameters) for provided stage geometry on graph g
func NewStageLayer(g *gorgonia.ExprGraph, dt tensor.Dtype, name string, st Stage, activation ActivationFunc) (*Layer, error) {
	if err := checkDtype(dt); err != nil {
		return nil, err
	}
	if activation == nil {
		activation = NoActivation
	}
	l := &Layer{
		Activation: activation,
		InSide:     st.InSide,
	}
	switch st.Kind {
	case StageLinear:
		l.Type = LayerLinear
		l.WeightNode = gorgonia.NewMatrix(g, dt, gorgonia.WithShape(st.OutChannels, st.InChannels), gorgonia.WithName(name+"_w"))
		l.BiasNode = gorgonia.NewMatrix(g, dt, gorgonia.WithShape(1, st.OutChannels), gorgonia.WithName(name+"_b"))
		return l, nil
	case StageConvolution:
		l.Type = LayerConvolutional
	case StageTransposedConvolution:
		l.Type = LayerDeconvolutional
		if st.Kernel-1-st.Padding < 0 {
			return nil, fmt.Errorf("Padding %d is too big for kernel %d of transposed convolution '%s'", st.Padding, st.Kernel, name)
		}
		if st.Stride > 1 {
			spread, err := spreadMatrix(dt, st.InSide, st.Stride)
			if err != nil {
				return nil, errors.Wrapf(err, "Can't prepare spread matrix for layer '%s'", name)
			}
			l.spread = gorgonia.NewMatrix(g, dt, gorgonia.WithShape(spread.Shape()...), gorgonia.WithName(name+"_spread"), gorgonia.WithValue(spread))
		}
	default:
		return nil, fmt.Errorf("Stage kind '%s' is not handled", st.Kind)
	}
	l.KernelHeight, l.KernelWidth = st.Kernel, st.Kernel
	l.Padding = []int{st.Padding, st.Padding}
	l.Stride = []int{st.Stride, st.Stride}
	l.Dilation = []int{1, 1}
	l.WeightNode = gorgonia.NewTensor(g, dt, 4, gorgonia.WithShape(st.OutChannels, st.InChannels, st.Kernel, st.Kernel), gorgonia.WithName(name+"_w"))
	l.BiasNode = gorgonia.NewTensor(g, dt, 4, gorgonia.WithShape(1, st.OutChannels, 1, 1), gorgonia.WithName(name+"_b"))
	return l, nil
}

// Learnables Returns learnables nodes of the layer
func (l *Layer) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2)
	if l.WeightNode != nil {
		learnables = append(learnables, l.WeightNode)
	}
	if l.BiasNode != nil {
		learnables = append(learnables, l.BiasNode)
	}
	return learnables
}

// InitParams Binds fresh values to weights (weightInit) and biases (zeroes)
func (l *Layer) InitParams(weightInit gorgonia.InitWFn) error {
	if l.WeightNode != nil {
		if err := letInit(l.WeightNode, weightInit); err != nil {
			return errors.Wrap(err, "Can't initialize weights")
		}
	}
	if l.BiasNode != nil {
		if err := letInit(l.BiasNode, gorgonia.Zeroes()); err != nil {
			return errors.Wrap(err, "Can't initialize bias")
		}
	}
	return nil
}

func letInit(n *gorgonia.Node, fn gorgonia.InitWFn) error {
	shp := n.Shape()
	val := tensor.New(tensor.WithShape(shp...), tensor.WithBacking(fn(n.Dtype(), shp...)))
	return gorgonia.Let(n, val)
}

// Fwd Feedforwards input through the layer (without activation)
func (l *Layer) Fwd(input *gorgonia.Node) (*gorgonia.Node, error) {
	if l.WeightNode == nil {
		return nil, fmt.Errorf("WeightNode of %s layer is nil", l.Type)
	}
	var nonBiased *gorgonia.Node
	var err error
	switch l.Type {
	case LayerLinear:
		if input.Dims() != 2 {
			return nil, errors.Wrapf(ErrShapeMismatch, "linear layer expects matrix input, but got shape %v", input.Shape())
		}
		if input.Shape()[1] != l.WeightNode.Shape()[1] {
			return nil, errors.Wrapf(ErrShapeMismatch, "linear layer expects %d features, but got %d", l.WeightNode.Shape()[1], input.Shape()[1])
		}
		tOp, err := gorgonia.Transpose(l.WeightNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't transpose weights")
		}
		nonBiased, err = gorgonia.Mul(input, tOp)
		if err != nil {
			return nil, errors.Wrap(err, "Can't multiply input and weights")
		}
	case LayerConvolutional:
		if err := l.checkImageInput(input); err != nil {
			return nil, err
		}
		nonBiased, err = gorgonia.Conv2d(input, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, l.Padding, l.Stride, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] input by kernel")
		}
	case LayerDeconvolutional:
		if err := l.checkImageInput(input); err != nil {
			return nil, err
		}
		spreaded := input
		if l.spread != nil {
			spreaded, err = spreadZeros(input, l.spread)
			if err != nil {
				return nil, errors.Wrap(err, "Can't spread input by stride")
			}
		}
		pad := []int{l.KernelHeight - 1 - l.Padding[0], l.KernelWidth - 1 - l.Padding[1]}
		nonBiased, err = gorgonia.Conv2d(spreaded, l.WeightNode, tensor.Shape{l.KernelHeight, l.KernelWidth}, pad, []int{1, 1}, l.Dilation)
		if err != nil {
			return nil, errors.Wrap(err, "Can't convolve[2D] spreaded input by kernel")
		}
	default:
		return nil, fmt.Errorf("Layer type '%d' (uint16) is not handled", l.Type)
	}
	return l.addBias(nonBiased)
}

func (l *Layer) checkImageInput(input *gorgonia.Node) error {
	if input.Dims() != 4 {
		return errors.Wrapf(ErrShapeMismatch, "%s layer expects [batch, channels, height, width] input, but got shape %v", l.Type, input.Shape())
	}
	shp := input.Shape()
	if shp[1] != l.WeightNode.Shape()[1] {
		return errors.Wrapf(ErrShapeMismatch, "%s layer expects %d input channels, but got %d", l.Type, l.WeightNode.Shape()[1], shp[1])
	}
	if l.InSide > 0 && (shp[2] != l.InSide || shp[3] != l.InSide) {
		return errors.Wrapf(ErrShapeMismatch, "%s layer expects %dx%d input, but got %dx%d", l.Type, l.InSide, l.InSide, shp[2], shp[3])
	}
	return nil
}

// addBias Adds bias broadcasting it along every axis where bias has size 1 and input has not
func (l *Layer) addBias(x *gorgonia.Node) (*gorgonia.Node, error) {
	if l.BiasNode == nil {
		return x, nil
	}
	xShape, bShape := x.Shape(), l.BiasNode.Shape()
	if len(xShape) != len(bShape) {
		return nil, fmt.Errorf("Can't add bias of shape %v to output of shape %v", bShape, xShape)
	}
	pattern := make([]byte, 0, len(xShape))
	for axis := range xShape {
		if bShape[axis] == 1 && xShape[axis] > 1 {
			pattern = append(pattern, byte(axis))
		}
	}
	if len(pattern) == 0 {
		biased, err := gorgonia.Add(x, l.BiasNode)
		if err != nil {
			return nil, errors.Wrap(err, "Can't add bias to non-activated output")
		}
		return biased, nil
	}
	biased, err := gorgonia.BroadcastAdd(x, l.BiasNode, nil, pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't add bias [in broadcast term with pattern %v] to non-activated output", pattern)
	}
	return biased, nil
}

func checkDtype(dt tensor.Dtype) error {
	switch dt {
	case tensor.Float64, tensor.Float32:
		return nil
	default:
		return errors.Wrapf(ErrDtypeMismatch, "only float64 and float32 parameters are handled, got %v", dt)
	}
}
