package metagan

import (
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Option Tunes construction of Generator and Discriminator
type Option func(*options)

type options struct {
	graph      *gorgonia.ExprGraph
	dtype      tensor.Dtype
	deferInit  bool
	weightInit gorgonia.InitWFn
	name       string
}

func defaultOptions(name string) options {
	return options{
		dtype:      tensor.Float64,
		weightInit: gorgonia.GlorotN(1.0),
		name:       name,
	}
}

func applyOptions(name string, opts ...Option) options {
	o := defaultOptions(name)
	for _, opt := range opts {
		opt(&o)
	}
	if o.graph == nil {
		o.graph = gorgonia.NewGraph()
	}
	return o
}

// WithGraph Defines network on provided graph instead of a fresh one.
// Networks sharing a graph must have different names (see WithName).
func WithGraph(g *gorgonia.ExprGraph) Option {
	return func(o *options) {
		o.graph = g
	}
}

// WithDtype Sets dtype of parameters. Only tensor.Float64 (default) and tensor.Float32 are handled.
func WithDtype(dt tensor.Dtype) Option {
	return func(o *options) {
		o.dtype = dt
	}
}

// WithDeferredInit Creates parameter nodes without values. Call InitParams() to fill them (eager forward does it on demand)
func WithDeferredInit() Option {
	return func(o *options) {
		o.deferInit = true
	}
}

// WithWeightInit Overrides weights initializer (gorgonia.GlorotN(1.0) by default). Biases are always zeroed.
func WithWeightInit(fn gorgonia.InitWFn) Option {
	return func(o *options) {
		o.weightInit = fn
	}
}

// WithName Sets prefix for every node of the network
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}
