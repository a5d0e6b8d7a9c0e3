package metagan

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// forwardSession Compiled feedforward for fixed input shapes
type forwardSession struct {
	inputs []*gorgonia.Node
	value  gorgonia.Value
	vm     gorgonia.VM
}

// sessionBuilder Creates input nodes (named with given suffix) and returns output node of feedforward
type sessionBuilder func(suffix string) (inputs []*gorgonia.Node, out *gorgonia.Node, err error)

// defaultSessionLimit Number of compiled feedforwards kept per network
const defaultSessionLimit = 4

// sessionCache Tape machines keyed by input shapes, at most limit of them.
// The least recently used machine is closed when a new key does not fit. Graph of the network still grows by
// one feedforward per newly built key (including keys rebuilt after eviction), since gorgonia graphs are append-only.
type sessionCache struct {
	mu       sync.Mutex
	g        *gorgonia.ExprGraph
	limit    int
	sessions map[string]*forwardSession
	// recent Keys from least to most recently used
	recent []string
}

func newSessionCache(g *gorgonia.ExprGraph) *sessionCache {
	return &sessionCache{
		g:        g,
		limit:    defaultSessionLimit,
		sessions: make(map[string]*forwardSession),
	}
}

// touch Marks key as the most recently used one
func (c *sessionCache) touch(key string) {
	for i, k := range c.recent {
		if k == key {
			c.recent = append(c.recent[:i], c.recent[i+1:]...)
			break
		}
	}
	c.recent = append(c.recent, key)
}

// evict Closes least recently used machines until there is room for one more
func (c *sessionCache) evict() error {
	for len(c.sessions) >= c.limit && len(c.recent) > 0 {
		key := c.recent[0]
		c.recent = c.recent[1:]
		s, ok := c.sessions[key]
		if !ok {
			continue
		}
		delete(c.sessions, key)
		if err := s.vm.Close(); err != nil {
			return errors.Wrapf(err, "Can't close VM of session '%s'", key)
		}
	}
	return nil
}

// run Binds values to inputs of session (built on demand) and evaluates its output.
// Returned tensor is a copy and is not touched by further calls.
func (c *sessionCache) run(key string, build sessionBuilder, values ...*tensor.Dense) (*tensor.Dense, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[key]
	if !ok {
		if err := c.evict(); err != nil {
			return nil, err
		}
		inputs, out, err := build("_" + key)
		if err != nil {
			return nil, err
		}
		s = &forwardSession{inputs: inputs}
		readNode := gorgonia.Read(out, &s.value)
		s.vm = gorgonia.NewTapeMachine(c.g.SubgraphRoots(readNode))
		c.sessions[key] = s
	}
	c.touch(key)
	if len(values) != len(s.inputs) {
		return nil, errors.Wrapf(ErrShapeMismatch, "expected %d inputs, but got %d", len(s.inputs), len(values))
	}
	for i := range values {
		if err := gorgonia.Let(s.inputs[i], values[i]); err != nil {
			return nil, errors.Wrapf(err, "Can't bind value to input '%s'", s.inputs[i].Name())
		}
	}
	defer s.vm.Reset()
	if err := s.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "Can't run VM")
	}
	dense, ok := s.value.(*tensor.Dense)
	if !ok {
		return nil, errors.Errorf("Output value has unexpected type %T", s.value)
	}
	return dense.Clone().(*tensor.Dense), nil
}

// Close Releases every cached tape machine
func (c *sessionCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for key, s := range c.sessions {
		if err := s.vm.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "Can't close VM of session '%s'", key)
		}
		delete(c.sessions, key)
	}
	c.recent = nil
	return firstErr
}

// shapeKey Returns key like "2x10x1x1_2x10" for provided inputs
func shapeKey(values ...*tensor.Dense) string {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteByte('_')
		}
		for j, d := range v.Shape() {
			if j > 0 {
				sb.WriteByte('x')
			}
			sb.WriteString(strconv.Itoa(d))
		}
	}
	return sb.String()
}
