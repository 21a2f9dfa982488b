package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

type buffer struct {
	id     uint64
	dev    *device
	desc   gpu.BufferDesc
	handle vk.Buffer
	memory vk.DeviceMemory
	mapped unsafe.Pointer
}

func bufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlags
	if u&gpu.UsageVertex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if u&gpu.UsageIndex != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&gpu.UsageConstant != 0 {
		flags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	return flags
}

func (d *device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("vulkan: invalid buffer size %d", desc.Size)
	}
	if desc.Heap != gpu.HeapUpload {
		return nil, fmt.Errorf("vulkan: unsupported heap type %d", desc.Heap)
	}

	b := &buffer{dev: d, desc: desc}
	err := d.createBuffer(
		vk.DeviceSize(desc.Size),
		bufferUsage(desc.Usage),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)|
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit),
		&b.handle,
		&b.memory,
	)
	if err != nil {
		return nil, err
	}

	b.id = d.tracker().Track("Buffer", desc.Name)
	return b, nil
}

func (d *device) createBuffer(
	size vk.DeviceSize,
	usage vk.BufferUsageFlags,
	properties vk.MemoryPropertyFlags,
	buffer *vk.Buffer,
	bufferMemory *vk.DeviceMemory,
) error {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	res := vk.CreateBuffer(d.handle, &bufferInfo, nil, buffer)
	if res != vk.Success {
		return fmt.Errorf("failed to create buffer: %w", vk.Error(res))
	}

	var memRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, *buffer, &memRequirements)
	memRequirements.Deref()

	memTypeIndex, err := d.findMemoryType(memRequirements.MemoryTypeBits, properties)
	if err != nil {
		vk.DestroyBuffer(d.handle, *buffer, nil)
		return err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memTypeIndex,
	}

	res = vk.AllocateMemory(d.handle, &allocInfo, nil, bufferMemory)
	if res != vk.Success {
		vk.DestroyBuffer(d.handle, *buffer, nil)
		return fmt.Errorf("failed to allocate buffer memory: %w", vk.Error(res))
	}

	res = vk.BindBufferMemory(d.handle, *buffer, *bufferMemory, 0)
	if res != vk.Success {
		vk.DestroyBuffer(d.handle, *buffer, nil)
		vk.FreeMemory(d.handle, *bufferMemory, nil)
		return fmt.Errorf("failed to bind buffer memory: %w", vk.Error(res))
	}

	return nil
}

func (b *buffer) Size() int {
	return b.desc.Size
}

// Map maps the whole allocation. Memory is host coherent so neither range
// needs flushing or invalidation.
func (b *buffer) Map(read gpu.Range) ([]byte, error) {
	if b.mapped == nil {
		var pData unsafe.Pointer
		res := vk.MapMemory(b.dev.handle, b.memory, 0, vk.DeviceSize(b.desc.Size), 0, &pData)
		if err := vk.Error(res); err != nil {
			return nil, fmt.Errorf("failed to map buffer memory: %w", err)
		}
		b.mapped = pData
	}
	return unsafe.Slice((*byte)(b.mapped), b.desc.Size), nil
}

func (b *buffer) Unmap(written gpu.Range) {
	if b.mapped == nil {
		return
	}
	vk.UnmapMemory(b.dev.handle, b.memory)
	b.mapped = nil
}

func (b *buffer) Release() {
	if b.mapped != nil {
		vk.UnmapMemory(b.dev.handle, b.memory)
		b.mapped = nil
	}
	vk.DestroyBuffer(b.dev.handle, b.handle, nil)
	vk.FreeMemory(b.dev.handle, b.memory, nil)
	b.dev.tracker().Untrack(b.id)
}

// rtvSlot is a render target view: the image view and the framebuffer
// wrapping it.
type rtvSlot struct {
	img         *image
	view        vk.ImageView
	framebuffer vk.Framebuffer
	renderPass  vk.RenderPass
}

type cbvSlot struct {
	buf  *buffer
	size int
}

// setKey identifies a descriptor set allocated for one table binding. Sets
// with equal signatures are compatible across pipeline layouts.
type setKey struct {
	slot int
	sig  setSignature
}

type descriptorHeap struct {
	id   uint64
	dev  *device
	desc gpu.DescriptorHeapDesc

	rtvs []rtvSlot
	cbvs []cbvSlot

	pool vk.DescriptorPool
	sets map[setKey]vk.DescriptorSet
}

func (d *device) CreateDescriptorHeap(desc gpu.DescriptorHeapDesc) (gpu.DescriptorHeap, error) {
	if desc.NumDescriptors <= 0 {
		return nil, fmt.Errorf("vulkan: descriptor heap needs at least one descriptor")
	}

	h := &descriptorHeap{dev: d, desc: desc}
	switch desc.Type {
	case gpu.HeapTypeRTV:
		h.rtvs = make([]rtvSlot, desc.NumDescriptors)
	case gpu.HeapTypeCBVSRVUAV:
		h.cbvs = make([]cbvSlot, desc.NumDescriptors)
		h.sets = make(map[setKey]vk.DescriptorSet)
		if err := h.createDescriptorPool(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("vulkan: unsupported descriptor heap type %d", desc.Type)
	}

	h.id = d.tracker().Track("DescriptorHeap", desc.Name)
	return h, nil
}

// maxSetsPerSlot bounds how many differently declared tables may point at
// one heap slot.
const maxSetsPerSlot = 3

func (h *descriptorHeap) createDescriptorPool() error {
	count := uint32(h.desc.NumDescriptors * maxSetsPerSlot)
	poolSizes := []vk.DescriptorPoolSize{
		{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: count * uint32(h.desc.NumDescriptors),
		},
	}

	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       count,
	}

	var descriptorPool vk.DescriptorPool
	res := vk.CreateDescriptorPool(h.dev.handle, &poolInfo, nil, &descriptorPool)
	if res != vk.Success {
		return fmt.Errorf("failed to create descriptor pool: %w", vk.Error(res))
	}
	h.pool = descriptorPool
	return nil
}

func (h *descriptorHeap) Desc() gpu.DescriptorHeapDesc {
	return h.desc
}

// descriptorSet returns the set for a table starting at slot, allocating and
// writing it on first use.
func (h *descriptorHeap) descriptorSet(slot int, layout vk.DescriptorSetLayout, sig setSignature) (vk.DescriptorSet, error) {
	key := setKey{slot: slot, sig: sig}
	if set, ok := h.sets[key]; ok {
		return set, nil
	}
	if slot < 0 || slot+int(sig.count) > len(h.cbvs) {
		return nil, fmt.Errorf("vulkan: descriptor table [%d, %d) outside heap", slot, slot+int(sig.count))
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     h.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}

	var set vk.DescriptorSet
	res := vk.AllocateDescriptorSets(h.dev.handle, &allocInfo, &set)
	if res != vk.Success {
		return nil, fmt.Errorf("failed to allocate descriptor set: %w", vk.Error(res))
	}
	h.sets[key] = set

	if err := h.writeSet(set, slot, sig); err != nil {
		return nil, err
	}
	return set, nil
}

func (h *descriptorHeap) writeSet(set vk.DescriptorSet, slot int, sig setSignature) error {
	infos := make([]vk.DescriptorBufferInfo, 0, sig.count)
	for i := slot; i < slot+int(sig.count); i++ {
		cbv := h.cbvs[i]
		if cbv.buf == nil {
			return fmt.Errorf("vulkan: descriptor slot %d is empty", i)
		}
		infos = append(infos, vk.DescriptorBufferInfo{
			Buffer: cbv.buf.handle,
			Offset: 0,
			Range:  vk.DeviceSize(cbv.size),
		})
	}

	descriptorWrites := []vk.WriteDescriptorSet{
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      sig.binding,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: sig.count,
			PBufferInfo:     infos,
		},
	}

	vk.UpdateDescriptorSets(
		h.dev.handle,
		uint32(len(descriptorWrites)),
		descriptorWrites,
		0,
		nil,
	)
	return nil
}

func (h *descriptorHeap) destroyRTV(slot int) {
	s := h.rtvs[slot]
	if s.framebuffer != vk.Framebuffer(vk.NullHandle) {
		vk.DestroyFramebuffer(h.dev.handle, s.framebuffer, nil)
	}
	if s.view != vk.ImageView(vk.NullHandle) {
		vk.DestroyImageView(h.dev.handle, s.view, nil)
	}
	h.rtvs[slot] = rtvSlot{}
}

func (h *descriptorHeap) Release() {
	for i := range h.rtvs {
		h.destroyRTV(i)
	}
	if h.pool != vk.DescriptorPool(vk.NullHandle) {
		vk.DestroyDescriptorPool(h.dev.handle, h.pool, nil)
	}
	h.dev.tracker().Untrack(h.id)
}

func (d *device) CreateRenderTargetView(img gpu.Image, heap gpu.DescriptorHeap, slot int) error {
	im, ok := img.(*image)
	if !ok {
		return fmt.Errorf("vulkan: foreign image %T", img)
	}
	h, ok := heap.(*descriptorHeap)
	if !ok || h.desc.Type != gpu.HeapTypeRTV {
		return fmt.Errorf("vulkan: render target views need an RTV heap")
	}
	if slot < 0 || slot >= len(h.rtvs) {
		return fmt.Errorf("vulkan: descriptor slot %d out of range [0, %d)", slot, len(h.rtvs))
	}
	h.destroyRTV(slot)

	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    im.state.handle,
		ViewType: vk.ImageViewType2d,
		Format:   im.state.format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var imageView vk.ImageView
	res := vk.CreateImageView(d.handle, &createInfo, nil, &imageView)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to create image view %d: %w", slot, err)
	}

	renderPass, err := d.renderPass(im.state.format)
	if err != nil {
		vk.DestroyImageView(d.handle, imageView, nil)
		return err
	}

	frameBufferInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: 1,
		PAttachments:    []vk.ImageView{imageView},
		Width:           im.state.extent.Width,
		Height:          im.state.extent.Height,
		Layers:          1,
	}

	var frameBuffer vk.Framebuffer
	res = vk.CreateFramebuffer(d.handle, &frameBufferInfo, nil, &frameBuffer)
	if err := vk.Error(res); err != nil {
		vk.DestroyImageView(d.handle, imageView, nil)
		return fmt.Errorf("failed to create frame buffer %d: %w", slot, err)
	}

	h.rtvs[slot] = rtvSlot{
		img:         im,
		view:        imageView,
		framebuffer: frameBuffer,
		renderPass:  renderPass,
	}
	return nil
}

func (d *device) CreateConstantBufferView(desc gpu.ConstantBufferViewDesc, heap gpu.DescriptorHeap, slot int) error {
	b, ok := desc.Buffer.(*buffer)
	if !ok {
		return fmt.Errorf("vulkan: foreign buffer %T", desc.Buffer)
	}
	align := d.ConstantBufferAlignment()
	if desc.Size <= 0 || desc.Size%align != 0 || desc.Size > b.desc.Size {
		return fmt.Errorf("vulkan: invalid constant buffer view size %d (alignment %d, buffer %d)",
			desc.Size, align, b.desc.Size)
	}
	h, ok := heap.(*descriptorHeap)
	if !ok || h.desc.Type != gpu.HeapTypeCBVSRVUAV {
		return fmt.Errorf("vulkan: constant buffer views need a CBV/SRV/UAV heap")
	}
	if slot < 0 || slot >= len(h.cbvs) {
		return fmt.Errorf("vulkan: descriptor slot %d out of range [0, %d)", slot, len(h.cbvs))
	}

	h.cbvs[slot] = cbvSlot{buf: b, size: desc.Size}

	for key, set := range h.sets {
		if slot >= key.slot && slot < key.slot+int(key.sig.count) {
			if err := h.writeSet(set, key.slot, key.sig); err != nil {
				return err
			}
		}
	}
	return nil
}

// imageState is shared by every reference to one swapchain image.
type imageState struct {
	handle  vk.Image
	format  vk.Format
	extent  vk.Extent2D
	defined bool
}

type image struct {
	id       uint64
	chain    *swapchain
	state    *imageState
	released bool
}

func (im *image) Width() int {
	return int(im.state.extent.Width)
}

func (im *image) Height() int {
	return int(im.state.extent.Height)
}

func (im *image) Format() gpu.Format {
	return gpu.FormatR8G8B8A8Unorm
}

func (im *image) Release() {
	if !im.released {
		im.released = true
		im.chain.refs--
	}
	im.chain.dev.tracker().Untrack(im.id)
}
