package effectchain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/onstage-dsp/dsp/effect"
)

// Preset is the persisted form of a chain.
type Preset struct {
	Nodes []PresetNode `json:"nodes"`
}

// PresetNode is one persisted node. State holds the processor's keyed
// settings when it is stateful.
type PresetNode struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Bypassed bool         `json:"bypassed"`
	State    effect.State `json:"state,omitempty"`
}

// Snapshot captures the chain as a preset.
func (c *Chain) Snapshot() Preset {
	p := Preset{Nodes: make([]PresetNode, 0, len(c.nodes))}

	for _, n := range c.nodes {
		pn := PresetNode{ID: n.ID, Type: n.Type, Bypassed: n.Processor.Bypassed()}
		if s, ok := n.Processor.(effect.Stateful); ok {
			pn.State = s.SaveState()
		}

		p.Nodes = append(p.Nodes, pn)
	}

	return p
}

// Apply replaces the chain's nodes with those of p. Nodes of unknown type
// and duplicate IDs are skipped with a warning. The previous nodes are
// closed once the new list is built.
func (c *Chain) Apply(p Preset) error {
	old := c.nodes
	c.nodes = nil

	for _, pn := range p.Nodes {
		proc, err := c.Append(pn.ID, pn.Type)
		if errors.Is(err, ErrUnknownEffect) || errors.Is(err, ErrDuplicateNode) {
			c.log.WithFields(logrus.Fields{
				"function": "Apply",
				"node":     pn.ID,
				"type":     pn.Type,
			}).Warn(skipReason(err))

			continue
		}

		if err != nil {
			c.closeAll()
			c.nodes = old

			return err
		}

		if s, ok := proc.(effect.Stateful); ok && pn.State != nil {
			s.LoadState(pn.State)
		}

		proc.SetBypassed(pn.Bypassed)
	}

	for _, n := range old {
		c.closeNode(n)
	}

	return nil
}

func skipReason(err error) string {
	if errors.Is(err, ErrUnknownEffect) {
		return "Skipping node of unknown type"
	}

	return "Skipping node with duplicate id"
}

func (c *Chain) closeAll() {
	for _, n := range c.nodes {
		c.closeNode(n)
	}

	c.nodes = nil
}

// LoadPreset decodes a JSON preset from r and applies it.
func (c *Chain) LoadPreset(r io.Reader) error {
	var p Preset
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return fmt.Errorf("effectchain: decode preset: %w", err)
	}

	return c.Apply(p)
}

// SavePreset writes the chain as indented JSON to w.
func (c *Chain) SavePreset(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(c.Snapshot()); err != nil {
		return fmt.Errorf("effectchain: encode preset: %w", err)
	}

	return nil
}

// LoadPresetFile applies the preset stored at path.
func (c *Chain) LoadPresetFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("effectchain: %w", err)
	}
	defer f.Close()

	c.log.WithFields(logrus.Fields{
		"function": "LoadPresetFile",
		"path":     path,
	}).Debug("Loading preset")

	return c.LoadPreset(f)
}

// SavePresetFile writes the chain to path.
func (c *Chain) SavePresetFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("effectchain: %w", err)
	}

	if err := c.SavePreset(f); err != nil {
		f.Close()

		return err
	}

	return f.Close()
}
