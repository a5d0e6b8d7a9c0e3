package metagan

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// Network Abstraction for sequential stack of layers.
//
// Layers - simple sequence of layers
// Names - optional per-layer names used for naming graph nodes
// out - alias to activated output of last layer of the most recent feedforward
//
type Network struct {
	Name   string
	Layers []*Layer
	Names  []string
	out    *gorgonia.Node
	passes int
}

// Out Returns reference to output node of the most recent feedforward
func (net *Network) Out() *gorgonia.Node {
	return net.out
}

// Learnables Returns learnables nodes
func (net *Network) Learnables() gorgonia.Nodes {
	learnables := make(gorgonia.Nodes, 0, 2*len(net.Layers))
	for _, l := range net.Layers {
		if l != nil {
			learnables = append(learnables, l.Learnables()...)
		}
	}
	return learnables
}

func (net *Network) layerName(i int) string {
	if i < len(net.Names) && net.Names[i] != "" {
		return net.Names[i]
	}
	return fmt.Sprintf("%d", i)
}

// Fwd Initializates feedforward for provided input and returns activated output of last layer.
// Network could be feedforwarded several times on the same graph (e.g. real and generated samples): every pass gets its own node names.
func (net *Network) Fwd(input *gorgonia.Node) (*gorgonia.Node, error) {
	networkName := "network"
	if net.Name != "" {
		networkName = net.Name
	}
	if len(net.Layers) == 0 {
		return nil, fmt.Errorf("Network must have one layer atleast")
	}
	net.passes++
	lastActivatedLayer := input
	for i, l := range net.Layers {
		if l == nil {
			return nil, fmt.Errorf("Network's layer #%d is nil", i)
		}
		layerName := net.layerName(i)
		// Feedforward input through i-th layer
		layerNonActivated, err := l.Fwd(lastActivatedLayer)
		if err != nil {
			return nil, errors.Wrapf(err, "[%s, Layer '%s'] Can't feedforward input before activation", networkName, layerName)
		}
		gorgonia.WithName(fmt.Sprintf("%s_p%d_%s", networkName, net.passes, layerName))(layerNonActivated)
		// Activate i-th layer's output
		layerActivated, err := l.Activation(layerNonActivated)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't apply activation function to non-activated output of %s's layer '%s'", networkName, layerName)
		}
		gorgonia.WithName(fmt.Sprintf("%s_p%d_activated_%s", networkName, net.passes, layerName))(layerActivated)
		lastActivatedLayer = layerActivated
	}
	net.out = lastActivatedLayer
	return net.out, nil
}
