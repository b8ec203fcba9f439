package effectchain

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/onstage-dsp/dsp/core"
	"github.com/cwbudde/onstage-dsp/dsp/effect"
	"github.com/cwbudde/onstage-dsp/internal/logging"
)

// ErrUnknownEffect is returned when a node references an unregistered effect type.
var ErrUnknownEffect = errors.New("unknown effect type")

// ErrDuplicateNode is returned when a node ID is already in use.
var ErrDuplicateNode = errors.New("duplicate node id")

// Node is one processor in a chain.
type Node struct {
	ID        string
	Type      string
	Processor effect.Processor
}

// Chain runs an ordered list of processors over each block. Processors
// mutate the block in place, each seeing the previous one's output.
//
// Editing the chain (Append, Remove, LoadPreset) must not race with
// Process; hosts rebuild while the stream is stopped.
type Chain struct {
	registry *Registry
	spec     core.ProcessSpec
	log      logrus.FieldLogger

	nodes []Node
}

// New creates an empty chain. A nil logger discards output.
func New(registry *Registry, spec core.ProcessSpec, log logrus.FieldLogger) *Chain {
	return &Chain{
		registry: registry,
		spec:     spec.Normalized(),
		log:      logging.OrDiscard(log),
	}
}

// Spec returns the spec nodes are prepared with.
func (c *Chain) Spec() core.ProcessSpec {
	return c.spec
}

// Append creates a processor of effectType and adds it at the end. An
// empty id is replaced by the type name plus a counter.
func (c *Chain) Append(id, effectType string) (effect.Processor, error) {
	factory := c.registry.Lookup(effectType)
	if factory == nil {
		return nil, fmt.Errorf("effectchain: %w: %q", ErrUnknownEffect, effectType)
	}

	if id == "" {
		id = c.nextID(effectType)
	}

	if c.Node(id) != nil {
		return nil, fmt.Errorf("effectchain: %w: %q", ErrDuplicateNode, id)
	}

	proc, err := factory(c.spec)
	if err != nil {
		return nil, fmt.Errorf("effectchain: create %s: %w", effectType, err)
	}

	c.nodes = append(c.nodes, Node{ID: id, Type: effectType, Processor: proc})

	return proc, nil
}

// Remove drops the node with id, closing it when it holds resources.
// It reports whether a node was removed.
func (c *Chain) Remove(id string) bool {
	for i, n := range c.nodes {
		if n.ID != id {
			continue
		}

		c.nodes = append(c.nodes[:i], c.nodes[i+1:]...)
		c.closeNode(n)

		return true
	}

	return false
}

// Node returns the processor with id, or nil.
func (c *Chain) Node(id string) effect.Processor {
	for _, n := range c.nodes {
		if n.ID == id {
			return n.Processor
		}
	}

	return nil
}

// Nodes returns a copy of the node list in processing order.
func (c *Chain) Nodes() []Node {
	return append([]Node(nil), c.nodes...)
}

// Len returns the number of nodes.
func (c *Chain) Len() int {
	return len(c.nodes)
}

// Prepare re-prepares every node for spec.
func (c *Chain) Prepare(spec core.ProcessSpec) {
	c.spec = spec.Normalized()

	for _, n := range c.nodes {
		n.Processor.Prepare(spec)
	}
}

// Reset clears the processing state of every node.
func (c *Chain) Reset() {
	for _, n := range c.nodes {
		n.Processor.Reset()
	}
}

// Process runs every node over buf in order.
func (c *Chain) Process(buf [][]float64) {
	for _, n := range c.nodes {
		n.Processor.Process(buf)
	}
}

// Close removes every node, closing those that hold resources.
func (c *Chain) Close() error {
	var errs []error

	for _, n := range c.nodes {
		if err := c.closeNode(n); err != nil {
			errs = append(errs, err)
		}
	}

	c.nodes = nil

	return errors.Join(errs...)
}

func (c *Chain) closeNode(n Node) error {
	closer, ok := n.Processor.(io.Closer)
	if !ok {
		return nil
	}

	err := closer.Close()
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"function": "closeNode",
			"node":     n.ID,
			"type":     n.Type,
			"error":    err.Error(),
		}).Warn("Failed to close node")
	}

	return err
}

func (c *Chain) nextID(effectType string) string {
	for i := 1; ; i++ {
		id := effectType + "-" + strconv.Itoa(i)
		if c.Node(id) == nil {
			return id
		}
	}
}
