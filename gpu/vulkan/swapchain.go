package vulkan

import (
	"errors"
	"fmt"
	"math"

	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// swapchain acquires its next image right after creation and after every
// present, waiting on the CPU, so the current index is always valid.
type swapchain struct {
	id    uint64
	dev   *device
	queue *commandQueue
	desc  gpu.SwapchainDesc

	handle  vk.Swapchain
	images  []*imageState
	acquire vk.Fence
	current uint32
	refs    int

	// stale is set when the surface no longer matches the chain. Presents
	// are dropped until the chain is resized.
	stale      bool
	fullscreen bool
}

var _ gpu.Swapchain = (*swapchain)(nil)

func newSwapchain(q *commandQueue, desc gpu.SwapchainDesc) (*swapchain, error) {
	switch {
	case desc.BufferCount < 2:
		return nil, fmt.Errorf("vulkan: flip model swapchains need at least 2 buffers, got %d", desc.BufferCount)
	case desc.Format != gpu.FormatR8G8B8A8Unorm:
		return nil, fmt.Errorf("vulkan: unsupported swapchain format %s", desc.Format)
	case desc.SampleCount != 1:
		return nil, fmt.Errorf("vulkan: swapchain sample count must be 1, got %d", desc.SampleCount)
	case desc.SwapEffect != gpu.SwapEffectFlipDiscard:
		return nil, fmt.Errorf("vulkan: unsupported swap effect %d", desc.SwapEffect)
	}

	sc := &swapchain{dev: q.dev, queue: q, desc: desc}

	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	var acquire vk.Fence
	if err := vk.Error(
		vk.CreateFence(sc.dev.handle, &fenceInfo, nil, &acquire),
	); err != nil {
		return nil, fmt.Errorf("failed to create acquire fence: %w", err)
	}
	sc.acquire = acquire

	if err := sc.create(); err != nil {
		sc.destroy()
		return nil, err
	}

	sc.id = sc.dev.tracker().Track("Swapchain", "")
	return sc, nil
}

// create builds a new chain for sc.desc, retiring the current one.
func (sc *swapchain) create() error {
	a := sc.dev.adapter
	swapChainSupport, err := querySwapChainSupport(a.handle, a.factory.surface)
	if err != nil {
		return err
	}
	capabilities := swapChainSupport.capabilities

	extend := chooseSwapExtend(capabilities, sc.desc.Width, sc.desc.Height, a.factory.source.FramebufferSize)
	if extend.Width == 0 || extend.Height == 0 {
		if sc.handle == vk.NullSwapchain {
			return errors.New("vulkan: cannot create a swapchain for a surface with zero area")
		}

		// A minimized window. The old images stay valid and presents are
		// dropped until the surface has an area again.
		old := sc.images[0].extent
		sc.desc.Width, sc.desc.Height = int(old.Width), int(old.Height)
		sc.stale = true
		gpu.Logger().Debug("surface has zero area, keeping the old swapchain")
		return nil
	}

	imageCount := max(uint32(sc.desc.BufferCount), capabilities.MinImageCount)
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}
	if imageCount > uint32(sc.desc.BufferCount) {
		gpu.Logger().Info("surface needs more swapchain images than requested",
			"requested", sc.desc.BufferCount,
			"min", capabilities.MinImageCount,
		)
	}

	surfaceFormat := sc.dev.surfaceFormat
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          a.factory.surface,
		MinImageCount:    imageCount,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageFormat:      surfaceFormat.Format,
		ImageExtent:      extend,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		OldSwapchain:     sc.handle,
	}

	indices := sc.dev.indices
	if indices.Graphics.Get() != indices.Present.Get() {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			indices.Graphics.Get(),
			indices.Present.Get(),
		}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapChain vk.Swapchain
	res := vk.CreateSwapchain(sc.dev.handle, &createInfo, nil, &swapChain)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to create swap chain: %w", err)
	}
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(sc.dev.handle, sc.handle, nil)
	}
	sc.handle = swapChain

	var imagesCount uint32
	vk.GetSwapchainImages(sc.dev.handle, sc.handle, &imagesCount, nil)

	images := make([]vk.Image, imagesCount)
	vk.GetSwapchainImages(sc.dev.handle, sc.handle, &imagesCount, images)

	sc.images = sc.images[:0]
	for _, img := range images {
		sc.images = append(sc.images, &imageState{
			handle: img,
			format: surfaceFormat.Format,
			extent: extend,
		})
	}
	sc.desc.Width, sc.desc.Height = int(extend.Width), int(extend.Height)
	sc.stale = false

	gpu.Logger().Debug("swapchain created",
		"width", extend.Width,
		"height", extend.Height,
		"images", len(sc.images),
	)
	return sc.acquireNext()
}

func (sc *swapchain) acquireNext() error {
	var imageIndex uint32
	res := vk.AcquireNextImage(
		sc.dev.handle,
		sc.handle,
		math.MaxUint64,
		vk.NullSemaphore,
		sc.acquire,
		&imageIndex,
	)
	switch res {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		sc.stale = true
		gpu.Logger().Debug("swapchain out of date on acquire")
		return nil
	default:
		return fmt.Errorf("failed to acquire swapchain image: %w", vk.Error(res))
	}

	fences := []vk.Fence{sc.acquire}
	res = vk.WaitForFences(sc.dev.handle, 1, fences, vk.True, math.MaxUint64)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("waiting for swapchain image: %w", err)
	}
	vk.ResetFences(sc.dev.handle, 1, fences)

	sc.current = imageIndex
	return nil
}

func (sc *swapchain) Buffer(i int) (gpu.Image, error) {
	if i < 0 || i >= len(sc.images) {
		return nil, fmt.Errorf("vulkan: swapchain buffer %d out of range [0, %d)", i, len(sc.images))
	}

	sc.refs++
	return &image{
		id:    sc.dev.tracker().Track("Resource", fmt.Sprintf("swapchain buffer %d", i)),
		chain: sc,
		state: sc.images[i],
	}, nil
}

func (sc *swapchain) BufferCount() int {
	return len(sc.images)
}

func (sc *swapchain) CurrentBackBufferIndex() uint32 {
	return sc.current
}

func (sc *swapchain) ResizeBuffers(count, width, height int, format gpu.Format) error {
	if sc.refs > 0 {
		return fmt.Errorf("vulkan: %d swapchain buffer references are still held", sc.refs)
	}
	if format != gpu.FormatUnknown && format != gpu.FormatR8G8B8A8Unorm {
		return fmt.Errorf("vulkan: unsupported swapchain format %s", format)
	}
	if count > 0 {
		sc.desc.BufferCount = count
	}
	sc.desc.Width, sc.desc.Height = width, height

	// The retired chain may still be read by the presentation engine.
	vk.QueueWaitIdle(sc.dev.presentQueue)
	return sc.create()
}

func (sc *swapchain) Present(syncInterval int) error {
	if syncInterval < 0 || syncInterval > 4 {
		return fmt.Errorf("vulkan: invalid sync interval %d", syncInterval)
	}
	wait := sc.queue.takeWait()
	if sc.stale {
		return sc.queue.consume(wait)
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{sc.current},
	}

	res := vk.QueuePresent(sc.dev.presentQueue, &presentInfo)
	switch res {
	case vk.Success:
	case vk.Suboptimal:
		gpu.Logger().Debug("swapchain is suboptimal for the surface")
	case vk.ErrorOutOfDate:
		sc.stale = true
		gpu.Logger().Debug("swapchain no longer matches the surface")
		return nil
	default:
		return fmt.Errorf("failed to present swapchain image: %w", vk.Error(res))
	}

	return sc.acquireNext()
}

// SetFullscreen records the requested mode. Exclusive fullscreen is not
// available through core Vulkan surfaces.
func (sc *swapchain) SetFullscreen(fullscreen bool) error {
	sc.fullscreen = fullscreen
	return nil
}

func (sc *swapchain) destroy() {
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(sc.dev.handle, sc.handle, nil)
		sc.handle = vk.NullSwapchain
	}
	if sc.acquire != vk.NullFence {
		vk.DestroyFence(sc.dev.handle, sc.acquire, nil)
		sc.acquire = vk.NullFence
	}
	sc.images = nil
}

func (sc *swapchain) Release() {
	if sc.fullscreen {
		sc.dev.tracker().Violate("Swapchain#%d released in fullscreen mode", sc.id)
	}
	vk.QueueWaitIdle(sc.dev.presentQueue)
	sc.destroy()
	sc.dev.tracker().Untrack(sc.id)
}
