package renderer

import (
	"fmt"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// FrameTargets owns the swapchain, its images and one render target view per
// image. It also tracks the viewport and scissor derived from the back buffer
// size.
type FrameTargets struct {
	factory gpu.Factory
	device  gpu.Device
	queue   gpu.Queue
	sync    *FrameSync

	chain  gpu.Swapchain
	heap   gpu.DescriptorHeap
	images []gpu.Image

	width    int
	height   int
	index    uint32
	viewport gpu.Viewport
	scissor  gpu.Rect
}

// NewFrameTargets returns frame targets without a swapchain. Setup creates it.
func NewFrameTargets(dc *DeviceContext, sync *FrameSync) *FrameTargets {
	return &FrameTargets{
		factory: dc.Factory,
		device:  dc.Device,
		queue:   dc.Queue,
		sync:    sync,
	}
}

// clampDimension limits a back buffer dimension to [1, MaxDimension].
func clampDimension(v int) int {
	return min(max(v, 1), MaxDimension)
}

// Setup creates the swapchain of the given size or resizes the existing one,
// then creates a render target view for each of its images. The views must
// have been torn down before.
func (ft *FrameTargets) Setup(width, height int) error {
	if ft.heap != nil {
		return newError(PresentError, "setting up frame targets", fmt.Errorf("views were not torn down"))
	}

	width, height = clampDimension(width), clampDimension(height)

	if ft.chain == nil {
		chain, err := ft.factory.CreateSwapchain(ft.queue, gpu.SwapchainDesc{
			BufferCount: BufferCount,
			Width:       width,
			Height:      height,
			Format:      BackBufferFormat,
			SwapEffect:  gpu.SwapEffectFlipDiscard,
			SampleCount: 1,
		})
		if err != nil {
			return newError(PresentError, "creating swapchain", err)
		}
		ft.chain = chain
	} else {
		err := ft.chain.ResizeBuffers(BufferCount, width, height, BackBufferFormat)
		if err != nil {
			return newError(PresentError, "resizing swapchain", err)
		}
	}

	if err := ft.createViews(); err != nil {
		ft.Teardown()
		return newError(PresentError, "creating render target views", err)
	}

	// The surface has the last word on the size.
	width, height = ft.images[0].Width(), ft.images[0].Height()
	ft.width, ft.height = width, height
	ft.viewport = gpu.Viewport{
		Width:    float32(width),
		Height:   float32(height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	ft.scissor = gpu.Rect{Right: width, Bottom: height}
	ft.index = ft.chain.CurrentBackBufferIndex()

	gpu.Logger().Debug("frame targets ready",
		"width", width,
		"height", height,
		"buffers", len(ft.images),
	)
	return nil
}

func (ft *FrameTargets) createViews() error {
	count := ft.chain.BufferCount()
	if count > BufferCount {
		gpu.Logger().Info("swapchain has more images than requested",
			"requested", BufferCount,
			"images", count,
		)
	}
	heap, err := ft.device.CreateDescriptorHeap(gpu.DescriptorHeapDesc{
		Type:           gpu.HeapTypeRTV,
		NumDescriptors: count,
		Name:           "back buffer views",
	})
	if err != nil {
		return fmt.Errorf("creating view heap: %w", err)
	}
	ft.heap = heap

	for i := 0; i < count; i++ {
		img, err := ft.chain.Buffer(i)
		if err != nil {
			return fmt.Errorf("getting back buffer %d: %w", i, err)
		}
		ft.images = append(ft.images, img)

		if err := ft.device.CreateRenderTargetView(img, ft.heap, i); err != nil {
			return fmt.Errorf("creating view of back buffer %d: %w", i, err)
		}
	}
	return nil
}

// Teardown releases the image references and the view heap. The swapchain
// itself survives so it can be resized.
func (ft *FrameTargets) Teardown() {
	for _, img := range ft.images {
		img.Release()
	}
	ft.images = nil

	if ft.heap != nil {
		ft.heap.Release()
		ft.heap = nil
	}
}

// Resize waits for the GPU to become idle and rebuilds the views for the new
// size.
func (ft *FrameTargets) Resize(width, height int) error {
	if err := ft.sync.Flush(); err != nil {
		return newError(PresentError, "waiting before resize", err)
	}

	ft.Teardown()
	return ft.Setup(width, height)
}

// Advance re-reads the back buffer the next frame renders to.
func (ft *FrameTargets) Advance() {
	ft.index = ft.chain.CurrentBackBufferIndex()
}

// CurrentImageIndex is the back buffer the next frame renders to.
func (ft *FrameTargets) CurrentImageIndex() uint32 {
	return ft.index
}

// Current returns the back buffer image and its render target view.
func (ft *FrameTargets) Current() (gpu.Image, gpu.RenderTargetView) {
	i := int(ft.index)
	return ft.images[i], gpu.RenderTargetView{Heap: ft.heap, Slot: i}
}

// Size returns the back buffer size.
func (ft *FrameTargets) Size() (int, int) {
	return ft.width, ft.height
}

// Aspect is the back buffer width divided by its height.
func (ft *FrameTargets) Aspect() float32 {
	return float32(ft.width) / float32(ft.height)
}

func (ft *FrameTargets) Viewport() gpu.Viewport {
	return ft.viewport
}

func (ft *FrameTargets) Scissor() gpu.Rect {
	return ft.scissor
}

// Present presents the current back buffer, paced to the display refresh.
func (ft *FrameTargets) Present() error {
	if err := ft.chain.Present(1); err != nil {
		return newError(PresentError, "presenting", err)
	}
	return nil
}

// Release tears the views down, leaves fullscreen and destroys the swapchain.
func (ft *FrameTargets) Release() error {
	ft.Teardown()
	if ft.chain == nil {
		return nil
	}

	err := ft.chain.SetFullscreen(false)
	ft.chain.Release()
	ft.chain = nil
	if err != nil {
		return newError(PresentError, "leaving fullscreen", err)
	}
	return nil
}
