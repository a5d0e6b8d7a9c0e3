package metagan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"
)

// GAN Adversarial training harness for conditional Generator and auxiliary Discriminator.
//
// Discriminator is trained on its own graph: it sees real and generated samples (both with the same meta),
// cost = BCE(real, 1) + BCE(fake, 0) + auxWeight * BCE(real auxiliary outputs, lambda).
//
// Generator is trained on its own graph through mirror of Discriminator (parameters are shared by value,
// but only Generator's learnables get gradients): cost = BCE(D(G(z, meta), meta), 1).
//
type GAN struct {
	generator     *GeneratorNet
	discriminator *DiscriminatorNet
	mirror        *DiscriminatorNet
	batchSize     int

	// Discriminator's training graph
	realImages   *gorgonia.Node
	fakeImages   *gorgonia.Node
	metaD        *gorgonia.Node
	lambdaTarget *gorgonia.Node
	costDValue   gorgonia.Value
	vmD          gorgonia.VM
	solverD      gorgonia.Solver

	// Generator's training graph
	z          *gorgonia.Node
	metaG      *gorgonia.Node
	costGValue gorgonia.Value
	fakeValue  gorgonia.Value
	vmG        gorgonia.VM
	solverG    gorgonia.Solver
}

// StepResult Losses evaluated during single training step (before parameters update)
type StepResult struct {
	DiscriminatorLoss float64
	GeneratorLoss     float64
}

// GANOption Tunes NewGAN
type GANOption func(*ganOptions)

type ganOptions struct {
	learnRate float64
	beta1     float64
	auxWeight float64
}

// WithLearnRate Sets learning rate of both Adam solvers (default 0.0002)
func WithLearnRate(lr float64) GANOption {
	return func(o *ganOptions) {
		o.learnRate = lr
	}
}

// WithBeta1 Sets beta1 of both Adam solvers (default 0.5)
func WithBeta1(beta1 float64) GANOption {
	return func(o *ganOptions) {
		o.beta1 = beta1
	}
}

// WithAuxWeight Sets weight of auxiliary part of Discriminator's cost (default 1.0)
func WithAuxWeight(w float64) GANOption {
	return func(o *ganOptions) {
		o.auxWeight = w
	}
}

// NewGAN Prepares training graphs for provided networks. Networks must live on different graphs.
func NewGAN(gen *GeneratorNet, dis *DiscriminatorNet, batchSize int, opts ...GANOption) (*GAN, error) {
	o := ganOptions{
		learnRate: 0.0002,
		beta1:     0.5,
		auxWeight: 1.0,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if gen == nil || dis == nil {
		return nil, fmt.Errorf("GAN needs both Generator and Discriminator")
	}
	if batchSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "batch size must be positive, got %d", batchSize)
	}
	if gen.DataSize() != dis.DataSize() {
		return nil, errors.Wrapf(ErrShapeMismatch, "Generator produces %dx%d images, but Discriminator expects %dx%d", gen.DataSize(), gen.DataSize(), dis.DataSize(), dis.DataSize())
	}
	if gen.MetaLength() != dis.MetaLength() {
		return nil, errors.Wrapf(ErrShapeMismatch, "Generator's meta length %d differs from Discriminator's one %d", gen.MetaLength(), dis.MetaLength())
	}
	if gen.Dtype() != dis.Dtype() {
		return nil, errors.Wrapf(ErrDtypeMismatch, "Generator is %v, but Discriminator is %v", gen.Dtype(), dis.Dtype())
	}
	if gen.Graph() == dis.Graph() {
		return nil, fmt.Errorf("Generator and Discriminator must be defined on different graphs")
	}
	if err := gen.ensureInitialized(); err != nil {
		return nil, err
	}
	if err := dis.ensureInitialized(); err != nil {
		return nil, err
	}
	net := &GAN{
		generator:     gen,
		discriminator: dis,
		batchSize:     batchSize,
	}
	if err := net.defineDiscriminatorTraining(o); err != nil {
		return nil, errors.Wrap(err, "[GAN] Can't define Discriminator's training graph")
	}
	if err := net.defineGeneratorTraining(o); err != nil {
		return nil, errors.Wrap(err, "[GAN] Can't define Generator's training graph")
	}
	klog.V(1).Infof("GAN for %dx%d images: batch size = %d, learn rate = %g, aux weight = %g", gen.DataSize(), gen.DataSize(), batchSize, o.learnRate, o.auxWeight)
	return net, nil
}

func (net *GAN) defineDiscriminatorTraining(o ganOptions) error {
	dis := net.discriminator
	g, dt, d, b := dis.Graph(), dis.Dtype(), dis.DataSize(), net.batchSize
	name := dis.opts.name + "_gan"

	net.realImages = gorgonia.NewTensor(g, dt, 4, gorgonia.WithShape(b, 1, d, d), gorgonia.WithName(name+"_real"))
	net.fakeImages = gorgonia.NewTensor(g, dt, 4, gorgonia.WithShape(b, 1, d, d), gorgonia.WithName(name+"_fake"))
	net.metaD = gorgonia.NewMatrix(g, dt, gorgonia.WithShape(b, dis.MetaLength()), gorgonia.WithName(name+"_meta"))

	realScores, err := dis.forward(net.realImages, net.metaD)
	if err != nil {
		return errors.Wrap(err, "Can't feedforward real samples")
	}
	fakeScores, err := dis.forward(net.fakeImages, net.metaD)
	if err != nil {
		return errors.Wrap(err, "Can't feedforward generated samples")
	}
	realProb, err := gorgonia.Slice(realScores, nil, gorgonia.S(0))
	if err != nil {
		return errors.Wrap(err, "Can't select real/fake column of real samples")
	}
	fakeProb, err := gorgonia.Slice(fakeScores, nil, gorgonia.S(0))
	if err != nil {
		return errors.Wrap(err, "Can't select real/fake column of generated samples")
	}
	ones := constantTarget(g, dt, realProb.Shape(), 1.0, name+"_ones")
	zeros := constantTarget(g, dt, fakeProb.Shape(), 0.0, name+"_zeros")
	lossReal, err := BinaryCrossEntropyLoss(realProb, ones)
	if err != nil {
		return errors.Wrap(err, "Can't define loss of real samples")
	}
	lossFake, err := BinaryCrossEntropyLoss(fakeProb, zeros)
	if err != nil {
		return errors.Wrap(err, "Can't define loss of generated samples")
	}
	cost, err := gorgonia.Add(lossReal, lossFake)
	if err != nil {
		return errors.Wrap(err, "Can't sum adversarial losses")
	}
	if dis.LambdaLength() > 0 {
		auxReal, err := gorgonia.Slice(realScores, nil, gorgonia.S(1, dis.LambdaLength()+1))
		if err != nil {
			return errors.Wrap(err, "Can't select auxiliary columns")
		}
		net.lambdaTarget = gorgonia.NewTensor(g, dt, auxReal.Dims(), gorgonia.WithShape(auxReal.Shape()...), gorgonia.WithName(name+"_lambda"))
		lossAux, err := BinaryCrossEntropyLoss(auxReal, net.lambdaTarget)
		if err != nil {
			return errors.Wrap(err, "Can't define auxiliary loss")
		}
		weight, err := scalarLike(lossAux, o.auxWeight)
		if err != nil {
			return err
		}
		lossAux, err = gorgonia.Mul(lossAux, weight)
		if err != nil {
			return errors.Wrap(err, "Can't weight auxiliary loss")
		}
		cost, err = gorgonia.Add(cost, lossAux)
		if err != nil {
			return errors.Wrap(err, "Can't add auxiliary loss")
		}
	}
	gorgonia.WithName(name + "_loss")(cost)

	grads, err := gorgonia.Grad(cost, dis.Learnables()...)
	if err != nil {
		return errors.Wrap(err, "Can't define gradients")
	}
	readCost := gorgonia.Read(cost, &net.costDValue)
	roots := append(gorgonia.Nodes{readCost}, grads...)
	net.vmD = gorgonia.NewTapeMachine(g.SubgraphRoots(roots...), gorgonia.BindDualValues(dis.Learnables()...))
	net.solverD = gorgonia.NewAdamSolver(gorgonia.WithBatchSize(float64(b)), gorgonia.WithLearnRate(o.learnRate), gorgonia.WithBeta1(o.beta1))
	return nil
}

func (net *GAN) defineGeneratorTraining(o ganOptions) error {
	gen := net.generator
	g, dt, b := gen.Graph(), gen.Dtype(), net.batchSize
	name := gen.opts.name + "_gan"

	net.z = gorgonia.NewTensor(g, dt, 4, gorgonia.WithShape(b, gen.ZLength(), 1, 1), gorgonia.WithName(name+"_z"))
	net.metaG = gorgonia.NewTensor(g, dt, 4, gorgonia.WithShape(b, gen.MetaLength(), 1, 1), gorgonia.WithName(name+"_meta"))
	fake, err := gen.forward(net.z, net.metaG)
	if err != nil {
		return errors.Wrap(err, "Can't feedforward latent codes")
	}
	mirror, err := net.discriminator.Mirror(g)
	if err != nil {
		return errors.Wrap(err, "Can't mirror Discriminator")
	}
	net.mirror = mirror
	scores, err := mirror.forward(fake, net.metaG)
	if err != nil {
		return errors.Wrap(err, "Can't feedforward generated samples through Discriminator's mirror")
	}
	prob, err := gorgonia.Slice(scores, nil, gorgonia.S(0))
	if err != nil {
		return errors.Wrap(err, "Can't select real/fake column")
	}
	ones := constantTarget(g, dt, prob.Shape(), 1.0, name+"_ones")
	cost, err := BinaryCrossEntropyLoss(prob, ones)
	if err != nil {
		return errors.Wrap(err, "Can't define loss")
	}
	gorgonia.WithName(name + "_loss")(cost)

	grads, err := gorgonia.Grad(cost, gen.Learnables()...)
	if err != nil {
		return errors.Wrap(err, "Can't define gradients")
	}
	readFake := gorgonia.Read(fake, &net.fakeValue)
	readCost := gorgonia.Read(cost, &net.costGValue)
	roots := append(gorgonia.Nodes{readFake, readCost}, grads...)
	net.vmG = gorgonia.NewTapeMachine(g.SubgraphRoots(roots...), gorgonia.BindDualValues(gen.Learnables()...))
	net.solverG = gorgonia.NewAdamSolver(gorgonia.WithBatchSize(float64(b)), gorgonia.WithLearnRate(o.learnRate), gorgonia.WithBeta1(o.beta1))
	return nil
}

// constantTarget Input node with fixed value filled by v
func constantTarget(g *gorgonia.ExprGraph, dt tensor.Dtype, shp tensor.Shape, v float64, name string) *gorgonia.Node {
	val := tensor.New(tensor.Of(dt), tensor.WithShape(shp...))
	if v != 0 {
		val.Memset(castScalar(dt, v))
	}
	return gorgonia.NewTensor(g, dt, shp.Dims(), gorgonia.WithShape(shp...), gorgonia.WithName(name), gorgonia.WithValue(val))
}

func castScalar(dt tensor.Dtype, v float64) interface{} {
	if dt == tensor.Float32 {
		return float32(v)
	}
	return v
}

// BatchSize Returns batch size training graphs are defined for
func (net *GAN) BatchSize() int {
	return net.batchSize
}

// Step Does single adversarial training step
//
// images - real images [batchSize, 1, dataSize, dataSize]
// meta - metadata of real images [batchSize, metaLength]; generated samples are conditioned on it too
// lambda - auxiliary targets of real images [batchSize, lambdaLength] (ignored when lambdaLength = 0)
// z - latent codes [batchSize, zLength, 1, 1]
//
func (net *GAN) Step(images, meta, lambda, z *tensor.Dense) (StepResult, error) {
	result := StepResult{}
	if err := net.checkStepInputs(images, meta, lambda, z); err != nil {
		return result, errors.Wrap(err, "[GAN]")
	}
	metaColumns := meta.Clone().(*tensor.Dense)
	if err := metaColumns.Reshape(net.batchSize, net.generator.MetaLength(), 1, 1); err != nil {
		return result, errors.Wrap(err, "[GAN] Can't reshape meta for Generator")
	}

	/* Generator's graph: samples + Generator's gradients */
	if err := gorgonia.Let(net.z, z); err != nil {
		return result, errors.Wrap(err, "[GAN] Can't init latent codes")
	}
	if err := gorgonia.Let(net.metaG, metaColumns); err != nil {
		return result, errors.Wrap(err, "[GAN] Can't init Generator's meta")
	}
	defer net.vmG.Reset()
	if err := net.vmG.RunAll(); err != nil {
		return result, errors.Wrap(err, "[GAN] Can't run Generator's VM")
	}
	fake, ok := net.fakeValue.(*tensor.Dense)
	if !ok {
		return result, errors.Errorf("[GAN] Generated samples have unexpected type %T", net.fakeValue)
	}
	fake = fake.Clone().(*tensor.Dense)

	/* Discriminator's graph: real vs generated + Discriminator's gradients */
	if err := gorgonia.Let(net.realImages, images); err != nil {
		return result, errors.Wrap(err, "[GAN] Can't init real samples")
	}
	if err := gorgonia.Let(net.fakeImages, fake); err != nil {
		return result, errors.Wrap(err, "[GAN] Can't init generated samples")
	}
	if err := gorgonia.Let(net.metaD, meta); err != nil {
		return result, errors.Wrap(err, "[GAN] Can't init Discriminator's meta")
	}
	if net.lambdaTarget != nil {
		lambdaTarget := lambda.Clone().(*tensor.Dense)
		if err := lambdaTarget.Reshape(net.lambdaTarget.Shape()...); err != nil {
			return result, errors.Wrap(err, "[GAN] Can't reshape lambda")
		}
		if err := gorgonia.Let(net.lambdaTarget, lambdaTarget); err != nil {
			return result, errors.Wrap(err, "[GAN] Can't init lambda")
		}
	}
	defer net.vmD.Reset()
	if err := net.vmD.RunAll(); err != nil {
		return result, errors.Wrap(err, "[GAN] Can't run Discriminator's VM")
	}

	/* Both solvers use gradients evaluated before any update */
	if err := net.solverD.Step(gorgonia.NodesToValueGrads(net.discriminator.Learnables())); err != nil {
		return result, errors.Wrap(err, "[GAN] Can't update Discriminator")
	}
	if err := net.solverG.Step(gorgonia.NodesToValueGrads(net.generator.Learnables())); err != nil {
		return result, errors.Wrap(err, "[GAN] Can't update Generator")
	}
	var err error
	result.DiscriminatorLoss, err = scalarValue(net.costDValue)
	if err != nil {
		return result, errors.Wrap(err, "[GAN] Discriminator's loss")
	}
	result.GeneratorLoss, err = scalarValue(net.costGValue)
	if err != nil {
		return result, errors.Wrap(err, "[GAN] Generator's loss")
	}
	klog.V(2).Infof("GAN step: discriminator loss = %.6f, generator loss = %.6f", result.DiscriminatorLoss, result.GeneratorLoss)
	return result, nil
}

func (net *GAN) checkStepInputs(images, meta, lambda, z *tensor.Dense) error {
	if images == nil || meta == nil || z == nil {
		return errors.Wrap(ErrShapeMismatch, "real samples, meta and latent codes must not be nil")
	}
	dt := net.generator.Dtype()
	if err := checkInputDtype(dt, images, meta, z); err != nil {
		return err
	}
	b, d := net.batchSize, net.generator.DataSize()
	if !images.Shape().Eq(tensor.Shape{b, 1, d, d}) {
		return errors.Wrapf(ErrShapeMismatch, "real samples must be of shape [%d, 1, %d, %d], but got %v", b, d, d, images.Shape())
	}
	if !meta.Shape().Eq(tensor.Shape{b, net.generator.MetaLength()}) {
		return errors.Wrapf(ErrShapeMismatch, "meta must be of shape [%d, %d], but got %v", b, net.generator.MetaLength(), meta.Shape())
	}
	if !z.Shape().Eq(tensor.Shape{b, net.generator.ZLength(), 1, 1}) {
		return errors.Wrapf(ErrShapeMismatch, "latent codes must be of shape [%d, %d, 1, 1], but got %v", b, net.generator.ZLength(), z.Shape())
	}
	if net.lambdaTarget != nil {
		if lambda == nil {
			return errors.Wrap(ErrShapeMismatch, "lambda must not be nil")
		}
		if err := checkInputDtype(dt, lambda); err != nil {
			return err
		}
		if !lambda.Shape().Eq(tensor.Shape{b, net.discriminator.LambdaLength()}) {
			return errors.Wrapf(ErrShapeMismatch, "lambda must be of shape [%d, %d], but got %v", b, net.discriminator.LambdaLength(), lambda.Shape())
		}
	}
	return nil
}

// Generator Returns trained Generator
func (net *GAN) Generator() *GeneratorNet {
	return net.generator
}

// Discriminator Returns trained Discriminator
func (net *GAN) Discriminator() *DiscriminatorNet {
	return net.discriminator
}

// Close Releases tape machines of both training graphs
func (net *GAN) Close() error {
	errG := net.vmG.Close()
	errD := net.vmD.Close()
	if errG != nil {
		return errors.Wrap(errG, "Can't close Generator's VM")
	}
	if errD != nil {
		return errors.Wrap(errD, "Can't close Discriminator's VM")
	}
	return nil
}

func scalarValue(v gorgonia.Value) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("value has not been evaluated")
	}
	switch data := v.Data().(type) {
	case float64:
		return data, nil
	case float32:
		return float64(data), nil
	default:
		return 0, fmt.Errorf("value is not a scalar: %T", data)
	}
}
