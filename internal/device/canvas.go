package device

import "github.com/opd-ai/go-cutsim/internal/raster"

// canvasState tags the canvas slot.
type canvasState int

const (
	canvasUnallocated canvasState = iota
	canvasAllocated
)

func (s canvasState) String() string {
	switch s {
	case canvasAllocated:
		return "allocated"
	default:
		return "unallocated"
	}
}

// canvasSlot holds the device canvas. surface is non-nil exactly when the
// state is canvasAllocated.
type canvasSlot struct {
	state   canvasState
	surface raster.Surface
}

func (c *canvasSlot) allocated() bool {
	return c.state == canvasAllocated
}

func (c *canvasSlot) allocate(s raster.Surface) {
	c.state = canvasAllocated
	c.surface = s
}

// release empties the slot and returns the previous surface, or nil.
func (c *canvasSlot) release() raster.Surface {
	s := c.surface
	c.state = canvasUnallocated
	c.surface = nil
	return s
}
