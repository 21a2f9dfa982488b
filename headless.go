package main

import (
	"github.com/ironsmile/spinning-triangle-go/gpu/soft"
	"github.com/ironsmile/spinning-triangle-go/window/events"
)

// headless is the display of the soft backend. Frames land in an offscreen
// surface and no events are produced on their own.
type headless struct {
	events.EventQueue

	surface *soft.Surface

	// onWait stands in for the platform delivering an event while the loop
	// is blocked in Wait.
	onWait func(*headless)
}

func newHeadless(desc events.Desc) *headless {
	return &headless{surface: soft.NewSurface(desc.Width, desc.Height)}
}

func (h *headless) Update() {}

func (h *headless) Wait() {
	if h.onWait != nil {
		h.onWait(h)
	}
}

func (h *headless) Desc() events.Desc {
	w, ht := h.surface.Size()
	return events.Desc{Width: w, Height: ht}
}

func (h *headless) SurfaceHandle() any {
	return h.surface
}

func (h *headless) Destroy() {}
