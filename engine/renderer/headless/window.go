package headless

import (
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// Window stands in for a platform window. Extents queued with QueueExtents are
// applied one per WaitEvents call, which is how a minimized window comes back.
type Window struct {
	extent  gpu.Extent2D
	resized bool
	pending []gpu.Extent2D
	waits   int
	polls   int
}

func NewWindow(width, height uint32) *Window {
	return &Window{extent: gpu.Extent2D{Width: width, Height: height}}
}

func (w *Window) Extent() gpu.Extent2D {
	w.polls++
	return w.extent
}

func (w *Window) WasResized() bool {
	return w.resized
}

func (w *Window) ResetResizedFlag() {
	w.resized = false
}

// WaitEvents delivers the next queued extent, if any.
func (w *Window) WaitEvents() {
	w.waits++
	if len(w.pending) == 0 {
		return
	}
	w.setExtent(w.pending[0])
	w.pending = w.pending[1:]
}

// Resize changes the extent immediately and raises the resized flag.
func (w *Window) Resize(width, height uint32) {
	w.setExtent(gpu.Extent2D{Width: width, Height: height})
}

// QueueExtents schedules extents delivered by successive WaitEvents calls.
func (w *Window) QueueExtents(extents ...gpu.Extent2D) {
	w.pending = append(w.pending, extents...)
}

// EventWaits is the number of WaitEvents calls so far.
func (w *Window) EventWaits() int {
	return w.waits
}

// ExtentPolls is the number of Extent calls so far.
func (w *Window) ExtentPolls() int {
	return w.polls
}

func (w *Window) setExtent(e gpu.Extent2D) {
	if e != w.extent {
		w.resized = true
	}
	w.extent = e
}
