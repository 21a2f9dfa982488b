// Package window creates the native window the renderer presents to and
// turns its callbacks into a queue of events.
package window

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/ironsmile/spinning-triangle-go/window/events"
)

// Window is a glfw window without a client API. It must be used from the
// main thread only.
type Window struct {
	events.EventQueue

	handle *glfw.Window
	desc   events.Desc
}

// New initializes glfw and opens a resizable window.
func New(title string, desc events.Desc) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw.Init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	var monitor *glfw.Monitor
	if desc.Fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}

	handle, err := glfw.CreateWindow(desc.Width, desc.Height, title, monitor, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("creating window: %w", err)
	}

	w := &Window{handle: handle, desc: desc}
	w.desc.Width, w.desc.Height = handle.GetFramebufferSize()
	handle.SetFramebufferSizeCallback(w.frameBufferResizeCallback)
	handle.SetCloseCallback(w.closeCallback)
	return w, nil
}

func (w *Window) frameBufferResizeCallback(
	_ *glfw.Window,
	width int,
	height int,
) {
	w.desc.Width, w.desc.Height = width, height
	w.Push(events.Event{
		Type:   events.Resize,
		Resize: events.ResizeData{Width: width, Height: height},
	})
}

func (w *Window) closeCallback(_ *glfw.Window) {
	w.Push(events.Event{Type: events.Close})
}

// Update pumps the platform event loop, queueing new events.
func (w *Window) Update() {
	glfw.PollEvents()
}

// Wait blocks until the platform reports an event, queueing it. The main
// loop parks here while the window is minimized.
func (w *Window) Wait() {
	glfw.WaitEvents()
}

// Desc returns the current framebuffer size.
func (w *Window) Desc() events.Desc {
	return w.desc
}

// SurfaceHandle returns the window as the surface source of the Vulkan
// backend.
func (w *Window) SurfaceHandle() any {
	return w
}

// VulkanProcAddr returns the vkGetInstanceProcAddr glfw loaded.
func (w *Window) VulkanProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// RequiredInstanceExtensions lists the instance extensions glfw needs for
// presenting.
func (w *Window) RequiredInstanceExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

// CreateWindowSurface creates a VkSurfaceKHR for instance.
func (w *Window) CreateWindowSurface(instance any) (uintptr, error) {
	return w.handle.CreateWindowSurface(instance, nil)
}

// FramebufferSize returns the drawable size in pixels.
func (w *Window) FramebufferSize() (int, int) {
	return w.handle.GetFramebufferSize()
}

// Destroy closes the window and terminates glfw.
func (w *Window) Destroy() {
	w.handle.Destroy()
	glfw.Terminate()
}
