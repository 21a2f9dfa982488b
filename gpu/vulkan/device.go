package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/spinning-triangle-go/gpu"
	"github.com/ironsmile/spinning-triangle-go/queues"
)

// constantBufferAlignment is the alignment constant buffer views are sized
// to, unless the device demands a larger one.
const constantBufferAlignment = 256

type device struct {
	id      uint64
	adapter *adapter
	handle  vk.Device

	indices       queues.FamilyIndices
	graphicsQueue vk.Queue
	presentQueue  vk.Queue

	// surfaceFormat is what gpu.FormatR8G8B8A8Unorm render targets map to.
	surfaceFormat vk.SurfaceFormat
	memProperties vk.PhysicalDeviceMemoryProperties
	renderPasses  map[vk.Format]vk.RenderPass
}

var _ gpu.Device = (*device)(nil)

func newDevice(a *adapter) (*device, error) {
	d := &device{
		adapter:      a,
		indices:      a.findQueueFamilies(),
		renderPasses: make(map[vk.Format]vk.RenderPass),
	}
	if !d.indices.IsComplete() {
		return nil, fmt.Errorf("createLogicalDevice called for physical device which does " +
			"have all the queues required by the program")
	}

	details, err := querySwapChainSupport(a.handle, a.factory.surface)
	if err != nil {
		return nil, err
	}
	d.surfaceFormat = chooseSwapSurfaceFormat(details.formats)

	vk.GetPhysicalDeviceMemoryProperties(a.handle, &d.memProperties)
	d.memProperties.Deref()

	if err := d.createLogicalDevice(); err != nil {
		return nil, fmt.Errorf("createLogicalDevice: %w", err)
	}

	d.id = d.tracker().Track("Device", "")
	return d, nil
}

func (d *device) tracker() *gpu.Tracker {
	return d.adapter.factory.tracker
}

func (d *device) createLogicalDevice() error {
	queueFamilies := make(map[uint32]struct{})
	queueFamilies[d.indices.Graphics.Get()] = struct{}{}
	queueFamilies[d.indices.Present.Get()] = struct{}{}

	queueCreateInfos := []vk.DeviceQueueCreateInfo{}

	for familyIndex := range queueFamilies {
		queueCreateInfos = append(
			queueCreateInfos,
			vk.DeviceQueueCreateInfo{
				SType:            vk.StructureTypeDeviceQueueCreateInfo,
				QueueFamilyIndex: familyIndex,
				QueueCount:       1,
				PQueuePriorities: []float32{1.0},
			},
		)
	}

	createInfo := vk.DeviceCreateInfo{
		SType:            vk.StructureTypeDeviceCreateInfo,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{}},

		PQueueCreateInfos:    queueCreateInfos,
		QueueCreateInfoCount: uint32(len(queueCreateInfos)),

		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
	}

	if d.adapter.factory.debug {
		createInfo.PpEnabledLayerNames = validationLayers
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
	}

	var handle vk.Device
	err := vk.Error(vk.CreateDevice(d.adapter.handle, &createInfo, nil, &handle))
	if err != nil {
		return fmt.Errorf("failed to create logical device: %w", err)
	}
	d.handle = handle

	var graphicsQueue vk.Queue
	vk.GetDeviceQueue(d.handle, d.indices.Graphics.Get(), 0, &graphicsQueue)
	d.graphicsQueue = graphicsQueue

	var presentQueue vk.Queue
	vk.GetDeviceQueue(d.handle, d.indices.Present.Get(), 0, &presentQueue)
	d.presentQueue = presentQueue

	return nil
}

func (d *device) SetName(name string) {
	d.tracker().Rename(d.id, name)
	gpu.Logger().Debug("device named", "name", name, "adapter", d.adapter.name())
}

func (d *device) ConstantBufferAlignment() int {
	limit := int(d.adapter.properties.Limits.MinUniformBufferOffsetAlignment)
	return max(constantBufferAlignment, limit)
}

// vkFormat maps a gpu format. Color render targets use the surface format
// the swapchain was created with.
func (d *device) vkFormat(f gpu.Format) (vk.Format, error) {
	switch f {
	case gpu.FormatR8G8B8A8Unorm:
		return d.surfaceFormat.Format, nil
	case gpu.FormatR32G32B32Float:
		return vk.FormatR32g32b32Sfloat, nil
	case gpu.FormatR32Uint:
		return vk.FormatR32Uint, nil
	case gpu.FormatR16Uint:
		return vk.FormatR16Uint, nil
	}
	return vk.FormatUndefined, fmt.Errorf("vulkan: unsupported format %s", f)
}

// renderPass returns the render pass used with color targets of format. Its
// attachment is loaded and stored in the color attachment layout; clears are
// recorded with vkCmdClearAttachments.
func (d *device) renderPass(format vk.Format) (vk.RenderPass, error) {
	if rp, ok := d.renderPasses[format]; ok {
		return rp, nil
	}

	colorAttachment := vk.AttachmentDescription{
		Format:         format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpLoad,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}

	colorAttachmentRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorAttachmentRef},
	}

	renderPassInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var rp vk.RenderPass
	res := vk.CreateRenderPass(d.handle, &renderPassInfo, nil, &rp)
	if err := vk.Error(res); err != nil {
		return rp, fmt.Errorf("failed to create render pass: %w", err)
	}
	d.renderPasses[format] = rp
	return rp, nil
}

func (d *device) findMemoryType(
	typeFilter uint32,
	properties vk.MemoryPropertyFlags,
) (uint32, error) {
	for i := uint32(0); i < d.memProperties.MemoryTypeCount; i++ {
		memType := d.memProperties.MemoryTypes[i]
		memType.Deref()

		if typeFilter&(1<<i) == 0 {
			continue
		}

		if memType.PropertyFlags&properties != properties {
			continue
		}

		return i, nil
	}

	return 0, fmt.Errorf("failed to find suitable memory type")
}

func (d *device) CreateCommandQueue(t gpu.CommandListType) (gpu.Queue, error) {
	if t != gpu.CommandListDirect {
		return nil, fmt.Errorf("vulkan: unsupported command list type %d", t)
	}
	return newCommandQueue(d)
}

func (d *device) CreateCommandPool(t gpu.CommandListType) (gpu.CommandPool, error) {
	if t != gpu.CommandListDirect {
		return nil, fmt.Errorf("vulkan: unsupported command list type %d", t)
	}

	poolInfo := vk.CommandPoolCreateInfo{
		SType: vk.StructureTypeCommandPoolCreateInfo,
		Flags: vk.CommandPoolCreateFlags(
			vk.CommandPoolCreateResetCommandBufferBit,
		),
		QueueFamilyIndex: d.indices.Graphics.Get(),
	}

	var pool vk.CommandPool
	res := vk.CreateCommandPool(d.handle, &poolInfo, nil, &pool)
	if err := vk.Error(res); err != nil {
		return nil, fmt.Errorf("failed to create command pool: %w", err)
	}

	return &commandPool{
		id:     d.tracker().Track("CommandAllocator", ""),
		dev:    d,
		handle: pool,
	}, nil
}

func (d *device) CreateFence(initial uint64) (gpu.Fence, error) {
	return &fence{
		id:        d.tracker().Track("Fence", ""),
		dev:       d,
		completed: initial,
		scheduled: initial,
	}, nil
}

func (d *device) CheckLayoutVersion(highest gpu.LayoutVersion) (gpu.LayoutVersion, error) {
	if d.adapter.properties.ApiVersion < vk.MakeVersion(1, 1, 0) {
		return gpu.LayoutVersion1_0, fmt.Errorf("vulkan: device API version predates versioned layouts")
	}
	return min(highest, gpu.LayoutVersion1_1), nil
}

func (d *device) Release() {
	vk.DeviceWaitIdle(d.handle)

	for format, rp := range d.renderPasses {
		vk.DestroyRenderPass(d.handle, rp, nil)
		delete(d.renderPasses, format)
	}

	vk.DestroyDevice(d.handle, nil)
	d.tracker().Untrack(d.id)
}

func chooseSwapSurfaceFormat(
	availableFormats []vk.SurfaceFormat,
) vk.SurfaceFormat {
	for _, want := range []vk.Format{vk.FormatR8g8b8a8Unorm, vk.FormatB8g8r8a8Unorm} {
		for _, format := range availableFormats {
			if format.Format == want &&
				format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
				return format
			}
		}
	}

	return availableFormats[0]
}
