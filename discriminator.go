package metagan

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"
)

// DiscriminatorNet Abstraction for discriminator part of GAN with auxiliary outputs.
//
// convs - conv1..conv5, each followed by leaky rectifier
// head - fully-connected layer applied to [flattened conv5 output, meta]
// out - alias to output of the most recent Fwd
//
type DiscriminatorNet struct {
	dataSize     DataSize
	metaLength   int
	lambdaLength int
	opts         options
	stages       []Stage

	convs *Network
	head  *Layer

	out    *gorgonia.Node
	passes int

	mu          sync.Mutex
	initialized bool
	sessions    *sessionCache
}

// LeakySlope Negative slope of discriminator's leaky rectifiers
const LeakySlope = 0.2

// NewDiscriminator Constructor for DiscriminatorNet
//
// dataSize - side of input images: 64, 128 or 256
// metaLength - length of metadata vector
// lambdaLength - number of auxiliary outputs (scores have lambdaLength+1 columns)
//
func NewDiscriminator(dataSize, metaLength, lambdaLength int, opts ...Option) (*DiscriminatorNet, error) {
	stages, err := DiscriminatorTopology(dataSize, metaLength, lambdaLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	o := applyOptions("discriminator", opts...)
	if err := checkDtype(o.dtype); err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	net := &DiscriminatorNet{
		dataSize:     DataSize(dataSize),
		metaLength:   metaLength,
		lambdaLength: lambdaLength,
		opts:         o,
		stages:       stages,
		sessions:     newSessionCache(o.graph),
	}
	if err := net.defineLayers(); err != nil {
		return nil, err
	}
	if !o.deferInit {
		if err := net.InitParams(); err != nil {
			return nil, err
		}
	}
	klog.V(1).Infof("Discriminator '%s' for %s images: meta length = %d, lambda length = %d, %d parameters", o.name, net.dataSize, metaLength, lambdaLength, net.ParamCount())
	return net, nil
}

func (net *DiscriminatorNet) defineLayers() error {
	convStages := net.stages[:len(net.stages)-1]
	layers := make([]*Layer, len(convStages))
	names := make([]string, len(convStages))
	var err error
	for i, st := range convStages {
		layers[i], err = NewStageLayer(net.opts.graph, net.opts.dtype, fmt.Sprintf("%s_%s", net.opts.name, st.Name), st, LeakyRelu(LeakySlope))
		if err != nil {
			return errors.Wrapf(err, "[Discriminator] Can't prepare layer '%s'", st.Name)
		}
		names[i] = st.Name
	}
	headStage := net.stages[len(net.stages)-1]
	net.head, err = NewStageLayer(net.opts.graph, net.opts.dtype, fmt.Sprintf("%s_%s", net.opts.name, headStage.Name), headStage, Sigmoid)
	if err != nil {
		return errors.Wrapf(err, "[Discriminator] Can't prepare layer '%s'", headStage.Name)
	}
	net.convs = &Network{
		Name:   net.opts.name,
		Layers: layers,
		Names:  names,
	}
	return nil
}

// Out Returns reference to output node
func (net *DiscriminatorNet) Out() *gorgonia.Node {
	return net.out
}

// Graph Returns graph the discriminator is defined on
func (net *DiscriminatorNet) Graph() *gorgonia.ExprGraph {
	return net.opts.graph
}

// Dtype Returns dtype of parameters
func (net *DiscriminatorNet) Dtype() tensor.Dtype {
	return net.opts.dtype
}

// DataSize Returns side of input images
func (net *DiscriminatorNet) DataSize() int { return int(net.dataSize) }

// MetaLength Returns length of metadata vector
func (net *DiscriminatorNet) MetaLength() int { return net.metaLength }

// LambdaLength Returns number of auxiliary outputs
func (net *DiscriminatorNet) LambdaLength() int { return net.lambdaLength }

// Stages Returns geometry of every stage
func (net *DiscriminatorNet) Stages() []Stage {
	return append([]Stage(nil), net.stages...)
}

// Learnables Returns learnables nodes
func (net *DiscriminatorNet) Learnables() gorgonia.Nodes {
	return append(net.convs.Learnables(), net.head.Learnables()...)
}

// ParamCount Returns total number of scalar parameters
func (net *DiscriminatorNet) ParamCount() int {
	return paramCount(net.Learnables())
}

// InitParams Binds initial values to every parameter (weights via configured initializer, biases are zeroed)
func (net *DiscriminatorNet) InitParams() error {
	net.mu.Lock()
	defer net.mu.Unlock()
	return net.initParams()
}

func (net *DiscriminatorNet) initParams() error {
	for i, l := range append(append([]*Layer{}, net.convs.Layers...), net.head) {
		if err := l.InitParams(net.opts.weightInit); err != nil {
			return errors.Wrapf(err, "[Discriminator] layer '%s'", net.stages[i].Name)
		}
	}
	net.initialized = true
	return nil
}

func (net *DiscriminatorNet) ensureInitialized() error {
	net.mu.Lock()
	defer net.mu.Unlock()
	if net.initialized {
		return nil
	}
	return net.initParams()
}

// Mirror Defines copy of the discriminator on another graph. Parameters of the copy are bound to the very same
// values, so updates of the original (e.g. by solver) are visible through the copy. Learnables of the copy
// should not be trained.
func (net *DiscriminatorNet) Mirror(g *gorgonia.ExprGraph) (*DiscriminatorNet, error) {
	if err := net.ensureInitialized(); err != nil {
		return nil, err
	}
	o := net.opts
	o.graph = g
	o.name = net.opts.name + "_mirror"
	o.deferInit = true
	mirror := &DiscriminatorNet{
		dataSize:     net.dataSize,
		metaLength:   net.metaLength,
		lambdaLength: net.lambdaLength,
		opts:         o,
		stages:       net.stages,
		sessions:     newSessionCache(g),
	}
	if err := mirror.defineLayers(); err != nil {
		return nil, errors.Wrap(err, "Can't define mirror")
	}
	original, copied := net.Learnables(), mirror.Learnables()
	if len(original) != len(copied) {
		return nil, fmt.Errorf("Mirror has %d learnables, but original has %d", len(copied), len(original))
	}
	for i := range original {
		if original[i].Value() == nil {
			return nil, errors.Wrapf(ErrNotInitialized, "Can't mirror '%s'", original[i].Name())
		}
		if err := gorgonia.Let(copied[i], original[i].Value()); err != nil {
			return nil, errors.Wrapf(err, "Can't bind value of '%s' to '%s'", original[i].Name(), copied[i].Name())
		}
	}
	mirror.initialized = true
	return mirror, nil
}

// Fwd Initializates feedforward for provided inputs
//
// image - node of shape [batch, 1, dataSize, dataSize]
// meta - node of shape [batch, metaLength] or [batch, metaLength, 1, 1]
//
func (net *DiscriminatorNet) Fwd(image, meta *gorgonia.Node) error {
	out, err := net.forward(image, meta)
	if err != nil {
		return err
	}
	net.out = out
	return nil
}

func (net *DiscriminatorNet) forward(image, meta *gorgonia.Node) (*gorgonia.Node, error) {
	if image == nil || meta == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "[Discriminator] inputs must not be nil")
	}
	if err := net.checkInputShapes(image.Shape(), meta.Shape()); err != nil {
		return nil, err
	}
	net.passes++
	batchSize := image.Shape()[0]
	convOut, err := net.convs.Fwd(image)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	// conv5 collapses maps to 1x1, so flattening just drops spatial axes
	flat, err := gorgonia.Reshape(convOut, tensor.Shape{batchSize, convOut.Shape().TotalSize() / batchSize})
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator] Can't flatten convolutional output")
	}
	metaFlat := meta
	if meta.Dims() != 2 {
		metaFlat, err = gorgonia.Reshape(meta, tensor.Shape{batchSize, net.metaLength})
		if err != nil {
			return nil, errors.Wrap(err, "[Discriminator] Can't flatten meta")
		}
	}
	concat, err := gorgonia.Concat(1, flat, metaFlat)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator] Can't concatenate convolutional output and meta")
	}
	gorgonia.WithName(fmt.Sprintf("%s_p%d_concat", net.opts.name, net.passes))(concat)
	nonActivated, err := net.head.Fwd(concat)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator, Layer 'fc'] Can't feedforward input before activation")
	}
	scores, err := net.head.Activation(nonActivated)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator, Layer 'fc'] Can't apply activation function")
	}
	gorgonia.WithName(fmt.Sprintf("%s_p%d_scores", net.opts.name, net.passes))(scores)
	return scores, nil
}

func (net *DiscriminatorNet) checkInputShapes(imageShape, metaShape tensor.Shape) error {
	d := int(net.dataSize)
	if len(imageShape) != 4 || imageShape[0] <= 0 || imageShape[1] != 1 || imageShape[2] != d || imageShape[3] != d {
		return errors.Wrapf(ErrShapeMismatch, "[Discriminator] image must be of shape [batch, 1, %d, %d], but got %v", d, d, imageShape)
	}
	switch len(metaShape) {
	case 2:
	case 4:
		if metaShape[2] != 1 || metaShape[3] != 1 {
			return errors.Wrapf(ErrShapeMismatch, "[Discriminator] meta must be of shape [batch, %d] or [batch, %d, 1, 1], but got %v", net.metaLength, net.metaLength, metaShape)
		}
	default:
		return errors.Wrapf(ErrShapeMismatch, "[Discriminator] meta must be of shape [batch, %d] or [batch, %d, 1, 1], but got %v", net.metaLength, net.metaLength, metaShape)
	}
	if metaShape[1] != net.metaLength {
		return errors.Wrapf(ErrShapeMismatch, "[Discriminator] meta must have length %d, but got %d", net.metaLength, metaShape[1])
	}
	if metaShape[0] != imageShape[0] {
		return errors.Wrapf(ErrShapeMismatch, "[Discriminator] batch size of image (%d) and meta (%d) differ", imageShape[0], metaShape[0])
	}
	return nil
}

// Discriminate Evaluates discriminator for provided images [batch, 1, dataSize, dataSize] and metadata
// [batch, metaLength] (or [batch, metaLength, 1, 1]).
// Returns scores of shape [batch, lambdaLength+1]: column 0 is real/fake probability, others are auxiliary outputs.
//
// Same caching as GeneratorNet.Generate: one feedforward per distinct pair of input shapes is added to the graph.
func (net *DiscriminatorNet) Discriminate(image, meta *tensor.Dense) (*tensor.Dense, error) {
	if image == nil || meta == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "[Discriminator] inputs must not be nil")
	}
	if err := checkInputDtype(net.opts.dtype, image, meta); err != nil {
		return nil, errors.Wrap(err, "[Discriminator]")
	}
	if err := net.checkInputShapes(image.Shape(), meta.Shape()); err != nil {
		return nil, err
	}
	if err := net.ensureInitialized(); err != nil {
		return nil, err
	}
	build := func(suffix string) ([]*gorgonia.Node, *gorgonia.Node, error) {
		imageNode := gorgonia.NewTensor(net.opts.graph, net.opts.dtype, 4, gorgonia.WithShape(image.Shape()...), gorgonia.WithName(net.opts.name+"_image"+suffix))
		metaNode := gorgonia.NewTensor(net.opts.graph, net.opts.dtype, meta.Dims(), gorgonia.WithShape(meta.Shape()...), gorgonia.WithName(net.opts.name+"_meta"+suffix))
		out, err := net.forward(imageNode, metaNode)
		if err != nil {
			return nil, nil, err
		}
		return []*gorgonia.Node{imageNode, metaNode}, out, nil
	}
	scores, err := net.sessions.run(shapeKey(image, meta), build, image, meta)
	if err != nil {
		return nil, errors.Wrap(err, "[Discriminator] Can't discriminate")
	}
	return scores, nil
}

// Close Releases tape machines used by Discriminate
func (net *DiscriminatorNet) Close() error {
	return net.sessions.Close()
}
