package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

type commandPool struct {
	id     uint64
	dev    *device
	handle vk.CommandPool
}

func (p *commandPool) Reset() error {
	res := vk.ResetCommandPool(p.dev.handle, p.handle, 0)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to reset command pool: %w", err)
	}
	return nil
}

func (p *commandPool) Release() {
	vk.DestroyCommandPool(p.dev.handle, p.handle, nil)
	p.dev.tracker().Untrack(p.id)
}

// commandList wraps a primary command buffer. Render passes are opened
// lazily by the first clear or draw on a render target and closed before
// barriers, target changes and Close.
type commandList struct {
	id        uint64
	dev       *device
	pool      *commandPool
	handle    vk.CommandBuffer
	recording bool

	// err is the first recording error. It is returned by Close.
	err error

	pso    *pipelineState
	layout *pipelineLayout
	heaps  []*descriptorHeap
	target *rtvSlot
	pass   *rtvSlot
}

var _ gpu.CommandList = (*commandList)(nil)

func (d *device) CreateCommandList(pool gpu.CommandPool, pso gpu.PipelineState) (gpu.CommandList, error) {
	l := &commandList{dev: d}
	if err := l.allocate(pool); err != nil {
		return nil, err
	}
	if err := l.begin(pso); err != nil {
		l.free()
		return nil, err
	}

	l.id = d.tracker().Track("CommandList", "")
	return l, nil
}

func (l *commandList) allocate(pool gpu.CommandPool) error {
	p, ok := pool.(*commandPool)
	if !ok {
		return fmt.Errorf("vulkan: foreign command pool %T", pool)
	}
	if l.pool == p {
		return nil
	}
	l.free()

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	res := vk.AllocateCommandBuffers(l.dev.handle, &allocInfo, commandBuffers)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("failed to allocate command buffer: %w", err)
	}
	l.pool = p
	l.handle = commandBuffers[0]
	return nil
}

func (l *commandList) free() {
	if l.pool == nil {
		return
	}
	vk.FreeCommandBuffers(l.dev.handle, l.pool.handle, 1, []vk.CommandBuffer{l.handle})
	l.pool = nil
}

func (l *commandList) begin(pso gpu.PipelineState) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}

	res := vk.BeginCommandBuffer(l.handle, &beginInfo)
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("cannot add begin command to the buffer: %w", err)
	}

	l.recording = true
	l.err = nil
	l.reset(pso)
	return nil
}

// reset forgets every binding and binds pso when it is not nil.
func (l *commandList) reset(pso gpu.PipelineState) {
	l.pso, l.layout, l.heaps, l.target = nil, nil, nil, nil
	if pso == nil {
		return
	}
	p, ok := pso.(*pipelineState)
	if !ok {
		l.fail(fmt.Errorf("vulkan: foreign pipeline state %T", pso))
		return
	}
	l.pso = p
	vk.CmdBindPipeline(l.handle, vk.PipelineBindPointGraphics, p.handle)
}

func (l *commandList) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

// usable reports whether commands may be recorded.
func (l *commandList) usable(op string) bool {
	if !l.recording {
		l.dev.tracker().Violate("CommandList#%d: %s recorded on a closed list", l.id, op)
		return false
	}
	return true
}

func (l *commandList) Reset(pool gpu.CommandPool, pso gpu.PipelineState) error {
	if l.recording {
		return errors.New("vulkan: command list reset while recording")
	}
	if err := l.allocate(pool); err != nil {
		return err
	}
	return l.begin(pso)
}

func (l *commandList) Close() error {
	if !l.recording {
		return errors.New("vulkan: command list closed twice")
	}
	l.endPass()
	l.recording = false

	if err := vk.Error(vk.EndCommandBuffer(l.handle)); err != nil {
		return fmt.Errorf("recording commands to buffer failed: %w", err)
	}
	return l.err
}

func (l *commandList) ClearState(pso gpu.PipelineState) {
	if !l.usable("ClearState") {
		return
	}
	l.endPass()
	l.reset(pso)
}

func (l *commandList) SetPipelineLayout(layout gpu.PipelineLayout) {
	if !l.usable("SetPipelineLayout") {
		return
	}
	pl, ok := layout.(*pipelineLayout)
	if !ok {
		l.fail(fmt.Errorf("vulkan: foreign pipeline layout %T", layout))
		return
	}
	l.layout = pl
}

func (l *commandList) SetViewports(viewports ...gpu.Viewport) {
	if !l.usable("SetViewports") || len(viewports) == 0 {
		return
	}

	// Flipped so that +y in normalized device coordinates points up.
	vkViewports := make([]vk.Viewport, 0, len(viewports))
	for _, v := range viewports {
		vkViewports = append(vkViewports, vk.Viewport{
			X:        v.X,
			Y:        v.Y + v.Height,
			Width:    v.Width,
			Height:   -v.Height,
			MinDepth: v.MinDepth,
			MaxDepth: v.MaxDepth,
		})
	}
	vk.CmdSetViewport(l.handle, 0, uint32(len(vkViewports)), vkViewports)
}

func (l *commandList) SetScissorRects(rects ...gpu.Rect) {
	if !l.usable("SetScissorRects") || len(rects) == 0 {
		return
	}

	scissors := make([]vk.Rect2D, 0, len(rects))
	for _, r := range rects {
		scissors = append(scissors, vk.Rect2D{
			Offset: vk.Offset2D{X: int32(r.Left), Y: int32(r.Top)},
			Extent: vk.Extent2D{
				Width:  uint32(max(r.Right-r.Left, 0)),
				Height: uint32(max(r.Bottom-r.Top, 0)),
			},
		})
	}
	vk.CmdSetScissor(l.handle, 0, uint32(len(scissors)), scissors)
}

func (l *commandList) SetDescriptorHeaps(heaps ...gpu.DescriptorHeap) {
	if !l.usable("SetDescriptorHeaps") {
		return
	}
	l.heaps = l.heaps[:0]
	for _, h := range heaps {
		dh, ok := h.(*descriptorHeap)
		if !ok || !dh.desc.ShaderVisible {
			l.fail(fmt.Errorf("vulkan: descriptor heap %T is not shader visible", h))
			return
		}
		l.heaps = append(l.heaps, dh)
	}
}

func (l *commandList) SetDescriptorTable(param int, heap gpu.DescriptorHeap, slot int) {
	if !l.usable("SetDescriptorTable") {
		return
	}
	if l.layout == nil {
		l.fail(errors.New("vulkan: descriptor table set without a pipeline layout"))
		return
	}
	if param < 0 || param >= len(l.layout.setLayouts) {
		l.fail(fmt.Errorf("vulkan: layout parameter %d out of range", param))
		return
	}

	h, ok := heap.(*descriptorHeap)
	if !ok {
		l.fail(fmt.Errorf("vulkan: foreign descriptor heap %T", heap))
		return
	}
	bound := false
	for _, dh := range l.heaps {
		bound = bound || dh == h
	}
	if !bound {
		l.dev.tracker().Violate("CommandList#%d: descriptor table from heap #%d which is not set", l.id, h.id)
	}

	set, err := h.descriptorSet(slot, l.layout.setLayouts[param], l.layout.signatures[param])
	if err != nil {
		l.fail(err)
		return
	}

	vk.CmdBindDescriptorSets(
		l.handle,
		vk.PipelineBindPointGraphics,
		l.layout.handle,
		uint32(param),
		1,
		[]vk.DescriptorSet{set},
		0,
		nil,
	)
}

func imageLayout(s gpu.ResourceState) (vk.ImageLayout, vk.AccessFlags) {
	switch s {
	case gpu.StateRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal, vk.AccessFlags(
			vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit,
		)
	case gpu.StateGenericRead:
		return vk.ImageLayoutShaderReadOnlyOptimal, vk.AccessFlags(vk.AccessShaderReadBit)
	}
	return vk.ImageLayoutPresentSrc, 0
}

func (l *commandList) ResourceBarrier(barriers ...gpu.Barrier) {
	if !l.usable("ResourceBarrier") || len(barriers) == 0 {
		return
	}
	l.endPass()

	imageBarriers := make([]vk.ImageMemoryBarrier, 0, len(barriers))
	for _, b := range barriers {
		im, ok := b.Image.(*image)
		if !ok {
			l.fail(fmt.Errorf("vulkan: foreign image %T", b.Image))
			return
		}

		oldLayout, srcAccess := imageLayout(b.Before)
		newLayout, dstAccess := imageLayout(b.After)
		if !im.state.defined {
			oldLayout = vk.ImageLayoutUndefined
			im.state.defined = true
		}

		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       srcAccess,
			DstAccessMask:       dstAccess,
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               im.state.handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		})
	}

	vk.CmdPipelineBarrier(
		l.handle,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0,
		0, nil,
		0, nil,
		uint32(len(imageBarriers)), imageBarriers,
	)
}

func (l *commandList) rtv(rtv gpu.RenderTargetView) *rtvSlot {
	h, ok := rtv.Heap.(*descriptorHeap)
	if !ok || h.desc.Type != gpu.HeapTypeRTV {
		l.fail(fmt.Errorf("vulkan: render target view needs an RTV heap, got %T", rtv.Heap))
		return nil
	}
	if rtv.Slot < 0 || rtv.Slot >= len(h.rtvs) || h.rtvs[rtv.Slot].img == nil {
		l.fail(fmt.Errorf("vulkan: empty render target view slot %d", rtv.Slot))
		return nil
	}
	return &h.rtvs[rtv.Slot]
}

func (l *commandList) SetRenderTarget(rtv gpu.RenderTargetView) {
	if !l.usable("SetRenderTarget") {
		return
	}
	l.target = l.rtv(rtv)
}

func (l *commandList) beginPass(target *rtvSlot) {
	if l.pass == target {
		return
	}
	l.endPass()

	renderPassInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  target.renderPass,
		Framebuffer: target.framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: target.img.state.extent,
		},
	}

	vk.CmdBeginRenderPass(l.handle, &renderPassInfo, vk.SubpassContentsInline)
	l.pass = target
}

func (l *commandList) endPass() {
	if l.pass == nil {
		return
	}
	vk.CmdEndRenderPass(l.handle)
	l.pass = nil
}

func (l *commandList) ClearRenderTargetView(rtv gpu.RenderTargetView, color [4]float32) {
	if !l.usable("ClearRenderTargetView") {
		return
	}
	target := l.rtv(rtv)
	if target == nil {
		return
	}
	l.beginPass(target)

	attachments := []vk.ClearAttachment{
		{
			AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
			ColorAttachment: 0,
			ClearValue:      vk.NewClearValue(color[:]),
		},
	}
	rects := []vk.ClearRect{
		{
			Rect: vk.Rect2D{
				Offset: vk.Offset2D{X: 0, Y: 0},
				Extent: target.img.state.extent,
			},
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdClearAttachments(l.handle, uint32(len(attachments)), attachments, uint32(len(rects)), rects)
}

func (l *commandList) SetPrimitiveTopology(t gpu.Topology) {
	if !l.usable("SetPrimitiveTopology") {
		return
	}
	if t != gpu.TopologyTriangleList {
		l.fail(fmt.Errorf("vulkan: unsupported topology %d", t))
	}
}

func (l *commandList) SetVertexBuffers(startSlot int, views ...gpu.VertexBufferView) {
	if !l.usable("SetVertexBuffers") || len(views) == 0 {
		return
	}

	buffers := make([]vk.Buffer, 0, len(views))
	offsets := make([]vk.DeviceSize, 0, len(views))
	for i, v := range views {
		b, ok := v.Buffer.(*buffer)
		if !ok {
			l.fail(fmt.Errorf("vulkan: foreign vertex buffer %T", v.Buffer))
			return
		}
		if l.pso != nil {
			if stride, ok := l.pso.strides[startSlot+i]; ok && stride != v.Stride {
				l.fail(fmt.Errorf("vulkan: vertex buffer stride %d does not match the pipeline stride %d",
					v.Stride, stride))
				return
			}
		}
		buffers = append(buffers, b.handle)
		offsets = append(offsets, 0)
	}

	vk.CmdBindVertexBuffers(l.handle, uint32(startSlot), uint32(len(buffers)), buffers, offsets)
}

func (l *commandList) SetIndexBuffer(view gpu.IndexBufferView) {
	if !l.usable("SetIndexBuffer") {
		return
	}
	b, ok := view.Buffer.(*buffer)
	if !ok {
		l.fail(fmt.Errorf("vulkan: foreign index buffer %T", view.Buffer))
		return
	}

	var indexType vk.IndexType
	switch view.Format {
	case gpu.FormatR16Uint:
		indexType = vk.IndexTypeUint16
	case gpu.FormatR32Uint:
		indexType = vk.IndexTypeUint32
	default:
		l.fail(fmt.Errorf("vulkan: unsupported index format %s", view.Format))
		return
	}

	vk.CmdBindIndexBuffer(l.handle, b.handle, 0, indexType)
}

func (l *commandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex, baseVertex, startInstance int) {
	if !l.usable("DrawIndexedInstanced") {
		return
	}
	if l.target == nil {
		l.fail(errors.New("vulkan: draw without a render target"))
		return
	}
	if l.pso == nil {
		l.fail(errors.New("vulkan: draw without a pipeline state"))
		return
	}
	l.beginPass(l.target)

	vk.CmdDrawIndexed(
		l.handle,
		uint32(indexCount),
		uint32(instanceCount),
		uint32(startIndex),
		int32(baseVertex),
		uint32(startInstance),
	)
}

func (l *commandList) Release() {
	l.free()
	l.dev.tracker().Untrack(l.id)
}
