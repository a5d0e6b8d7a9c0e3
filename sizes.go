package metagan

import (
	"fmt"

	"github.com/pkg/errors"
)

// DataSize Side of the square single-channel image the networks are built for
type DataSize int

const (
	Size64  = DataSize(64)
	Size128 = DataSize(128)
	Size256 = DataSize(256)
)

// SupportedDataSizes Every resolution the kernel/stride tables know about
var SupportedDataSizes = []DataSize{Size64, Size128, Size256}

// Supported Checks if there are kernel/stride table entries for the size
func (size DataSize) Supported() bool {
	_, ok := generatorThirdStage[size]
	return ok
}

func (size DataSize) String() string {
	return fmt.Sprintf("%dx%d", int(size), int(size))
}

type strideKernel struct {
	stride int
	kernel int
}

// Size-dependent stages. Every one of them uses padding = 1.
var (
	generatorThirdStage = map[DataSize]strideKernel{
		Size64:  {stride: 2, kernel: 4},
		Size128: {stride: 2, kernel: 4},
		Size256: {stride: 4, kernel: 6},
	}
	generatorFourthStage = map[DataSize]strideKernel{
		Size64:  {stride: 2, kernel: 4},
		Size128: {stride: 4, kernel: 6},
		Size256: {stride: 4, kernel: 6},
	}
	discriminatorFirstStage = map[DataSize]strideKernel{
		Size64:  {stride: 2, kernel: 4},
		Size128: {stride: 4, kernel: 6},
		Size256: {stride: 4, kernel: 6},
	}
	discriminatorSecondStage = map[DataSize]strideKernel{
		Size64:  {stride: 2, kernel: 4},
		Size128: {stride: 2, kernel: 4},
		Size256: {stride: 4, kernel: 6},
	}
)

func lookupStage(table map[DataSize]strideKernel, size DataSize, stage string) (strideKernel, error) {
	sk, ok := table[size]
	if !ok {
		return strideKernel{}, errors.Wrapf(ErrUnsupportedDataSize, "no %s entry for data size %d (allowed: 64, 128, 256)", stage, int(size))
	}
	return sk, nil
}

// StageKind Kind of computation done by a stage
type StageKind uint16

const (
	StageConvolution = StageKind(iota)
	StageTransposedConvolution
	StageLinear
)

func (kind StageKind) String() string {
	switch kind {
	case StageConvolution:
		return "conv"
	case StageTransposedConvolution:
		return "deconv"
	case StageLinear:
		return "linear"
	default:
		return fmt.Sprintf("StageKind(%d)", uint16(kind))
	}
}

// Stage Geometry of a single stage of a network.
//
// InSide, OutSide - spatial side of square input/output activations (1 for linear stages)
//
type Stage struct {
	Name        string
	Kind        StageKind
	InChannels  int
	OutChannels int
	Kernel      int
	Stride      int
	Padding     int
	InSide      int
	OutSide     int
}

func (st Stage) String() string {
	if st.Kind == StageLinear {
		return fmt.Sprintf("%-8s %-6s %5d -> %5d", st.Name, st.Kind, st.InChannels, st.OutChannels)
	}
	return fmt.Sprintf("%-8s %-6s %5dx%3dx%3d -> %5dx%3dx%3d k=%d s=%d p=%d", st.Name, st.Kind, st.InChannels, st.InSide, st.InSide, st.OutChannels, st.OutSide, st.OutSide, st.Kernel, st.Stride, st.Padding)
}

// transposedSide See ref. https://pytorch.org/docs/stable/generated/torch.nn.ConvTranspose2d.html (dilation = 1, output_padding = 0)
func transposedSide(in, kernel, stride, padding int) int {
	return (in-1)*stride - 2*padding + kernel
}

// convolvedSide See ref. https://pytorch.org/docs/stable/generated/torch.nn.Conv2d.html (dilation = 1)
func convolvedSide(in, kernel, stride, padding int) int {
	return (in+2*padding-kernel)/stride + 1
}

func validateLengths(names []string, values ...int) error {
	for i, v := range values {
		if v <= 0 {
			return errors.Wrapf(ErrInvalidLength, "%s must be positive, got %d", names[i], v)
		}
	}
	return nil
}

// GeneratorTopology Returns geometry of every Generator stage: fc_z, fc_meta, deconv1..deconv4
func GeneratorTopology(dataSize, metaLength, zLength int) ([]Stage, error) {
	size := DataSize(dataSize)
	third, err := lookupStage(generatorThirdStage, size, "generator third stage")
	if err != nil {
		return nil, err
	}
	fourth, err := lookupStage(generatorFourthStage, size, "generator fourth stage")
	if err != nil {
		return nil, err
	}
	if err := validateLengths([]string{"meta length", "z length"}, metaLength, zLength); err != nil {
		return nil, err
	}
	d := dataSize
	stages := []Stage{
		{Name: "fc_z", Kind: StageTransposedConvolution, InChannels: zLength, OutChannels: 4 * d, Kernel: 4, Stride: 1, Padding: 0, InSide: 1},
		{Name: "fc_meta", Kind: StageTransposedConvolution, InChannels: metaLength, OutChannels: 4 * d, Kernel: 4, Stride: 1, Padding: 0, InSide: 1},
		{Name: "deconv1", Kind: StageTransposedConvolution, InChannels: 8 * d, OutChannels: 4 * d, Kernel: 4, Stride: 2, Padding: 1},
		{Name: "deconv2", Kind: StageTransposedConvolution, InChannels: 4 * d, OutChannels: 2 * d, Kernel: 4, Stride: 2, Padding: 1},
		{Name: "deconv3", Kind: StageTransposedConvolution, InChannels: 2 * d, OutChannels: d, Kernel: third.kernel, Stride: third.stride, Padding: 1},
		{Name: "deconv4", Kind: StageTransposedConvolution, InChannels: d, OutChannels: 1, Kernel: fourth.kernel, Stride: fourth.stride, Padding: 1},
	}
	for i := range stages {
		if i >= 2 {
			stages[i].InSide = stages[i-1].OutSide
		}
		stages[i].OutSide = transposedSide(stages[i].InSide, stages[i].Kernel, stages[i].Stride, stages[i].Padding)
	}
	if stages[0].OutSide != 4 || stages[1].OutSide != 4 {
		return nil, fmt.Errorf("Generator's conditioning branches must produce 4x4 maps, but got %dx%d and %dx%d", stages[0].OutSide, stages[0].OutSide, stages[1].OutSide, stages[1].OutSide)
	}
	if last := stages[len(stages)-1]; last.OutSide != d {
		return nil, fmt.Errorf("Generator's output side must be %d, but got %d", d, last.OutSide)
	}
	return stages, nil
}

// DiscriminatorTopology Returns geometry of every Discriminator stage: conv1..conv5, fc
func DiscriminatorTopology(dataSize, metaLength, lambdaLength int) ([]Stage, error) {
	size := DataSize(dataSize)
	first, err := lookupStage(discriminatorFirstStage, size, "discriminator first stage")
	if err != nil {
		return nil, err
	}
	second, err := lookupStage(discriminatorSecondStage, size, "discriminator second stage")
	if err != nil {
		return nil, err
	}
	if err := validateLengths([]string{"meta length"}, metaLength); err != nil {
		return nil, err
	}
	if lambdaLength < 0 {
		return nil, errors.Wrapf(ErrInvalidLength, "lambda length must not be negative, got %d", lambdaLength)
	}
	d := dataSize
	stages := []Stage{
		{Name: "conv1", Kind: StageConvolution, InChannels: 1, OutChannels: d, Kernel: first.kernel, Stride: first.stride, Padding: 1, InSide: d},
		{Name: "conv2", Kind: StageConvolution, InChannels: d, OutChannels: 2 * d, Kernel: second.kernel, Stride: second.stride, Padding: 1},
		{Name: "conv3", Kind: StageConvolution, InChannels: 2 * d, OutChannels: 4 * d, Kernel: 4, Stride: 2, Padding: 1},
		{Name: "conv4", Kind: StageConvolution, InChannels: 4 * d, OutChannels: 8 * d, Kernel: 4, Stride: 2, Padding: 1},
		{Name: "conv5", Kind: StageConvolution, InChannels: 8 * d, OutChannels: 16 * d, Kernel: 4, Stride: 1, Padding: 0},
	}
	for i := range stages {
		if i >= 1 {
			stages[i].InSide = stages[i-1].OutSide
		}
		stages[i].OutSide = convolvedSide(stages[i].InSide, stages[i].Kernel, stages[i].Stride, stages[i].Padding)
	}
	if last := stages[len(stages)-1]; last.OutSide != 1 {
		return nil, fmt.Errorf("Discriminator's convolutional output must be 1x1, but got %dx%d", last.OutSide, last.OutSide)
	}
	stages = append(stages, Stage{
		Name:        "fc",
		Kind:        StageLinear,
		InChannels:  16*d + metaLength,
		OutChannels: lambdaLength + 1,
		InSide:      1,
		OutSide:     1,
	})
	return stages, nil
}
