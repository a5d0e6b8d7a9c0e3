package metagan

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"
)

// GeneratorNet Abstraction for generator part of GAN conditioned on metadata.
//
// fcZ, fcMeta - conditioning branches projecting latent code and metadata to 4x4 maps
// trunk - deconv1..deconv4 applied to channel-wise concatenation of both branches
// out - alias to output of the most recent Fwd
//
type GeneratorNet struct {
	dataSize   DataSize
	metaLength int
	zLength    int
	opts       options
	stages     []Stage

	fcZ    *Layer
	fcMeta *Layer
	trunk  *Network

	out    *gorgonia.Node
	passes int

	mu          sync.Mutex
	initialized bool
	sessions    *sessionCache
}

// NewGenerator Constructor for GeneratorNet
//
// dataSize - side of generated images: 64, 128 or 256
// metaLength - length of metadata vector
// zLength - length of latent code
//
func NewGenerator(dataSize, metaLength, zLength int, opts ...Option) (*GeneratorNet, error) {
	stages, err := GeneratorTopology(dataSize, metaLength, zLength)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	o := applyOptions("generator", opts...)
	if err := checkDtype(o.dtype); err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	// ReLU everywhere except the last stage which is squashed into [-1; 1]
	layers := make([]*Layer, len(stages))
	names := make([]string, len(stages))
	for i, st := range stages {
		activation := Rectify
		if i == len(stages)-1 {
			activation = Tanh
		}
		layers[i], err = NewStageLayer(o.graph, o.dtype, fmt.Sprintf("%s_%s", o.name, st.Name), st, activation)
		if err != nil {
			return nil, errors.Wrapf(err, "[Generator] Can't prepare layer '%s'", st.Name)
		}
		names[i] = st.Name
	}
	net := &GeneratorNet{
		dataSize:   DataSize(dataSize),
		metaLength: metaLength,
		zLength:    zLength,
		opts:       o,
		stages:     stages,
		fcZ:        layers[0],
		fcMeta:     layers[1],
		trunk: &Network{
			Name:   o.name,
			Layers: layers[2:],
			Names:  names[2:],
		},
		sessions: newSessionCache(o.graph),
	}
	if !o.deferInit {
		if err := net.InitParams(); err != nil {
			return nil, err
		}
	}
	klog.V(1).Infof("Generator '%s' for %s images: meta length = %d, z length = %d, %d parameters", o.name, net.dataSize, metaLength, zLength, net.ParamCount())
	return net, nil
}

// Out Returns reference to output node
func (net *GeneratorNet) Out() *gorgonia.Node {
	return net.out
}

// Graph Returns graph the generator is defined on
func (net *GeneratorNet) Graph() *gorgonia.ExprGraph {
	return net.opts.graph
}

// Dtype Returns dtype of parameters
func (net *GeneratorNet) Dtype() tensor.Dtype {
	return net.opts.dtype
}

// DataSize Returns side of generated images
func (net *GeneratorNet) DataSize() int { return int(net.dataSize) }

// MetaLength Returns length of metadata vector
func (net *GeneratorNet) MetaLength() int { return net.metaLength }

// ZLength Returns length of latent code
func (net *GeneratorNet) ZLength() int { return net.zLength }

// Stages Returns geometry of every stage
func (net *GeneratorNet) Stages() []Stage {
	return append([]Stage(nil), net.stages...)
}

// Learnables Returns learnables nodes
func (net *GeneratorNet) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2*len(net.stages))
	learnables = append(learnables, net.fcZ.Learnables()...)
	learnables = append(learnables, net.fcMeta.Learnables()...)
	return append(learnables, net.trunk.Learnables()...)
}

// ParamCount Returns total number of scalar parameters
func (net *GeneratorNet) ParamCount() int {
	return paramCount(net.Learnables())
}

// InitParams Binds initial values to every parameter (weights via configured initializer, biases are zeroed)
func (net *GeneratorNet) InitParams() error {
	net.mu.Lock()
	defer net.mu.Unlock()
	return net.initParams()
}

func (net *GeneratorNet) initParams() error {
	for i, l := range append([]*Layer{net.fcZ, net.fcMeta}, net.trunk.Layers...) {
		if err := l.InitParams(net.opts.weightInit); err != nil {
			return errors.Wrapf(err, "[Generator] layer '%s'", net.stages[i].Name)
		}
	}
	net.initialized = true
	return nil
}

// Fwd Initializates feedforward for provided inputs
//
// z - latent code node of shape [batch, zLength, 1, 1]
// meta - metadata node of shape [batch, metaLength, 1, 1]
//
func (net *GeneratorNet) Fwd(z, meta *gorgonia.Node) error {
	out, err := net.forward(z, meta)
	if err != nil {
		return err
	}
	net.out = out
	return nil
}

func (net *GeneratorNet) forward(z, meta *gorgonia.Node) (*gorgonia.Node, error) {
	if z == nil || meta == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "[Generator] inputs must not be nil")
	}
	if err := net.checkInputShapes(z.Shape(), meta.Shape()); err != nil {
		return nil, err
	}
	net.passes++
	fcZ, err := net.branch(net.fcZ, z, "fc_z")
	if err != nil {
		return nil, err
	}
	fcMeta, err := net.branch(net.fcMeta, meta, "fc_meta")
	if err != nil {
		return nil, err
	}
	// The only point where metadata meets latent code
	fused, err := gorgonia.Concat(1, fcZ, fcMeta)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator] Can't concatenate conditioning branches")
	}
	gorgonia.WithName(fmt.Sprintf("%s_p%d_fused", net.opts.name, net.passes))(fused)
	out, err := net.trunk.Fwd(fused)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	return out, nil
}

func (net *GeneratorNet) branch(l *Layer, input *gorgonia.Node, name string) (*gorgonia.Node, error) {
	nonActivated, err := l.Fwd(input)
	if err != nil {
		return nil, errors.Wrapf(err, "[Generator, Layer '%s'] Can't feedforward input before activation", name)
	}
	activated, err := l.Activation(nonActivated)
	if err != nil {
		return nil, errors.Wrapf(err, "[Generator, Layer '%s'] Can't apply activation function", name)
	}
	gorgonia.WithName(fmt.Sprintf("%s_p%d_activated_%s", net.opts.name, net.passes, name))(activated)
	return activated, nil
}

func (net *GeneratorNet) checkInputShapes(zShape, metaShape tensor.Shape) error {
	if err := checkColumnInput(zShape, net.zLength, "z"); err != nil {
		return errors.Wrap(err, "[Generator]")
	}
	if err := checkColumnInput(metaShape, net.metaLength, "meta"); err != nil {
		return errors.Wrap(err, "[Generator]")
	}
	if zShape[0] != metaShape[0] {
		return errors.Wrapf(ErrShapeMismatch, "[Generator] batch size of z (%d) and meta (%d) differ", zShape[0], metaShape[0])
	}
	return nil
}

// checkColumnInput Checks [batch, length, 1, 1] shape
func checkColumnInput(shp tensor.Shape, length int, name string) error {
	if len(shp) != 4 || shp[2] != 1 || shp[3] != 1 {
		return errors.Wrapf(ErrShapeMismatch, "%s must be of shape [batch, %d, 1, 1], but got %v", name, length, shp)
	}
	if shp[0] <= 0 {
		return errors.Wrapf(ErrShapeMismatch, "%s has empty batch", name)
	}
	if shp[1] != length {
		return errors.Wrapf(ErrShapeMismatch, "%s must have length %d, but got %d", name, length, shp[1])
	}
	return nil
}

// Generate Evaluates generator for provided latent code [batch, zLength, 1, 1] and metadata [batch, metaLength, 1, 1].
// Returns images of shape [batch, 1, dataSize, dataSize] with values in [-1; 1].
//
// Every new batch size compiles one more feedforward into the generator's graph. Only a few compiled machines
// are kept alive (least recently used one is closed), but the graph itself keeps every pass, so prefer a small
// set of fixed batch sizes.
func (net *GeneratorNet) Generate(z, meta *tensor.Dense) (*tensor.Dense, error) {
	if z == nil || meta == nil {
		return nil, errors.Wrap(ErrShapeMismatch, "[Generator] inputs must not be nil")
	}
	if err := checkInputDtype(net.opts.dtype, z, meta); err != nil {
		return nil, errors.Wrap(err, "[Generator]")
	}
	if err := net.checkInputShapes(z.Shape(), meta.Shape()); err != nil {
		return nil, err
	}
	if err := net.ensureInitialized(); err != nil {
		return nil, err
	}
	build := func(suffix string) ([]*gorgonia.Node, *gorgonia.Node, error) {
		zNode := gorgonia.NewTensor(net.opts.graph, net.opts.dtype, 4, gorgonia.WithShape(z.Shape()...), gorgonia.WithName(net.opts.name+"_z"+suffix))
		metaNode := gorgonia.NewTensor(net.opts.graph, net.opts.dtype, 4, gorgonia.WithShape(meta.Shape()...), gorgonia.WithName(net.opts.name+"_meta"+suffix))
		out, err := net.forward(zNode, metaNode)
		if err != nil {
			return nil, nil, err
		}
		return []*gorgonia.Node{zNode, metaNode}, out, nil
	}
	images, err := net.sessions.run(shapeKey(z, meta), build, z, meta)
	if err != nil {
		return nil, errors.Wrap(err, "[Generator] Can't generate")
	}
	return images, nil
}

func (net *GeneratorNet) ensureInitialized() error {
	net.mu.Lock()
	defer net.mu.Unlock()
	if net.initialized {
		return nil
	}
	return net.initParams()
}

// Close Releases tape machines used by Generate
func (net *GeneratorNet) Close() error {
	return net.sessions.Close()
}

func paramCount(nodes gorgonia.Nodes) int {
	total := 0
	for _, n := range nodes {
		total += n.Shape().TotalSize()
	}
	return total
}

func checkInputDtype(dt tensor.Dtype, values ...*tensor.Dense) error {
	for _, v := range values {
		if v.Dtype() != dt {
			return errors.Wrapf(ErrDtypeMismatch, "expected %v input, but got %v", dt, v.Dtype())
		}
	}
	return nil
}
