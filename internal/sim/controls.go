package sim

import (
	"sync/atomic"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// controls are latched button states written by input goroutines and read
// once per tick. Last write wins.
type controls struct {
	forward, backward, left, right atomic.Bool
}

func (c *controls) set(d core.Direction, pressed bool) {
	switch d {
	case core.DirForward:
		c.forward.Store(pressed)
	case core.DirBackward:
		c.backward.Store(pressed)
	case core.DirLeft:
		c.left.Store(pressed)
	case core.DirRight:
		c.right.Store(pressed)
	}
}

func (c *controls) store(s core.ControlState) {
	c.forward.Store(s.Forward)
	c.backward.Store(s.Backward)
	c.left.Store(s.Left)
	c.right.Store(s.Right)
}

func (c *controls) snapshot() core.ControlState {
	return core.ControlState{
		Forward:  c.forward.Load(),
		Backward: c.backward.Load(),
		Left:     c.left.Load(),
		Right:    c.right.Load(),
	}
}

func (c *controls) release() {
	c.store(core.ControlState{})
}
