package soft

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

const constantBufferAlignment = 256

type device struct {
	object
}

var _ gpu.Device = (*device)(nil)

func (d *device) SetName(name string) {
	d.tracker().Rename(d.id, name)
}

func (d *device) Release() {
	d.release()
}

func (d *device) ConstantBufferAlignment() int {
	return constantBufferAlignment
}

func (d *device) CreateCommandQueue(t gpu.CommandListType) (gpu.Queue, error) {
	if err := d.factory.fault("CreateCommandQueue"); err != nil {
		return nil, err
	}
	if t != gpu.CommandListDirect {
		return nil, fmt.Errorf("soft: unsupported command list type %d", t)
	}
	return newCommandQueue(d.factory), nil
}

func (d *device) CreateCommandPool(t gpu.CommandListType) (gpu.CommandPool, error) {
	if err := d.factory.fault("CreateCommandPool"); err != nil {
		return nil, err
	}
	if t != gpu.CommandListDirect {
		return nil, fmt.Errorf("soft: unsupported command list type %d", t)
	}
	p := &commandPool{}
	p.init(d.factory, "CommandAllocator", "")
	return p, nil
}

func (d *device) CreateCommandList(pool gpu.CommandPool, pso gpu.PipelineState) (gpu.CommandList, error) {
	if err := d.factory.fault("CreateCommandList"); err != nil {
		return nil, err
	}
	p, ok := pool.(*commandPool)
	if !ok {
		return nil, fmt.Errorf("soft: foreign command pool %T", pool)
	}

	l := &commandList{}
	l.init(d.factory, "GraphicsCommandList", "")
	if err := l.begin(p, pso); err != nil {
		l.release()
		return nil, err
	}
	return l, nil
}

func (d *device) CreateFence(initial uint64) (gpu.Fence, error) {
	if err := d.factory.fault("CreateFence"); err != nil {
		return nil, err
	}
	return newFence(d.factory, initial), nil
}

func (d *device) CreateDescriptorHeap(desc gpu.DescriptorHeapDesc) (gpu.DescriptorHeap, error) {
	if err := d.factory.fault("CreateDescriptorHeap"); err != nil {
		return nil, err
	}
	if desc.NumDescriptors <= 0 {
		return nil, fmt.Errorf("soft: descriptor heap needs at least one descriptor")
	}
	if desc.Type == gpu.HeapTypeRTV && desc.ShaderVisible {
		return nil, fmt.Errorf("soft: RTV heaps cannot be shader visible")
	}

	h := &descriptorHeap{
		desc:  desc,
		slots: make([]descriptor, desc.NumDescriptors),
	}
	h.init(d.factory, "DescriptorHeap", desc.Name)
	return h, nil
}

func (d *device) CreateRenderTargetView(img gpu.Image, heap gpu.DescriptorHeap, slot int) error {
	ref, ok := img.(*imageRef)
	if !ok {
		return fmt.Errorf("soft: foreign image %T", img)
	}
	h, err := d.heapSlot(heap, gpu.HeapTypeRTV, slot)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.slots[slot] = descriptor{tex: ref.tex}
	h.mu.Unlock()
	return nil
}

func (d *device) CreateConstantBufferView(desc gpu.ConstantBufferViewDesc, heap gpu.DescriptorHeap, slot int) error {
	b, ok := desc.Buffer.(*buffer)
	if !ok {
		return fmt.Errorf("soft: foreign buffer %T", desc.Buffer)
	}
	if desc.Size <= 0 || desc.Size%constantBufferAlignment != 0 {
		return fmt.Errorf("soft: constant buffer view size %d is not a multiple of %d",
			desc.Size, constantBufferAlignment)
	}
	if desc.Size > len(b.data) {
		return fmt.Errorf("soft: constant buffer view size %d exceeds buffer size %d", desc.Size, len(b.data))
	}
	h, err := d.heapSlot(heap, gpu.HeapTypeCBVSRVUAV, slot)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.slots[slot] = descriptor{buf: b, size: desc.Size}
	h.mu.Unlock()
	return nil
}

func (d *device) heapSlot(heap gpu.DescriptorHeap, t gpu.DescriptorHeapType, slot int) (*descriptorHeap, error) {
	h, ok := heap.(*descriptorHeap)
	if !ok {
		return nil, fmt.Errorf("soft: foreign descriptor heap %T", heap)
	}
	if h.desc.Type != t {
		return nil, fmt.Errorf("soft: descriptor heap %q has the wrong type", h.desc.Name)
	}
	if slot < 0 || slot >= len(h.slots) {
		return nil, fmt.Errorf("soft: descriptor slot %d out of range [0, %d)", slot, len(h.slots))
	}
	if n := h.busy.Load(); n > 0 {
		d.tracker().Violate("DescriptorHeap#%d written while referenced by %d pending GPU submissions", h.id, n)
	}
	return h, nil
}

func (d *device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if err := d.factory.fault("CreateBuffer"); err != nil {
		return nil, err
	}
	if desc.Size <= 0 {
		return nil, fmt.Errorf("soft: invalid buffer size %d", desc.Size)
	}
	if desc.Heap != gpu.HeapUpload {
		return nil, fmt.Errorf("soft: unsupported heap type %d", desc.Heap)
	}

	b := &buffer{desc: desc, data: make([]byte, desc.Size)}
	b.init(d.factory, "Buffer", desc.Name)
	return b, nil
}

func (d *device) CheckLayoutVersion(highest gpu.LayoutVersion) (gpu.LayoutVersion, error) {
	if d.factory.cfg.NoLayoutQuery {
		return gpu.LayoutVersion1_0, fmt.Errorf("soft: pipeline layout version query not supported")
	}
	return min(highest, d.factory.cfg.MaxLayoutVersion), nil
}

func (d *device) CreatePipelineLayout(desc gpu.PipelineLayoutDesc) (gpu.PipelineLayout, error) {
	if err := d.factory.fault("CreatePipelineLayout"); err != nil {
		return nil, err
	}
	if desc.Version > d.factory.cfg.MaxLayoutVersion {
		return nil, fmt.Errorf("soft: pipeline layout version %s not supported", desc.Version)
	}
	for i, p := range desc.Parameters {
		if len(p.Ranges) == 0 {
			return nil, fmt.Errorf("soft: layout parameter %d has no descriptor ranges", i)
		}
		for _, r := range p.Ranges {
			if r.Type != gpu.RangeCBV || r.NumDescriptors <= 0 {
				return nil, fmt.Errorf("soft: layout parameter %d has an unsupported range", i)
			}
		}
	}

	l := &pipelineLayout{desc: desc}
	l.init(d.factory, "RootSignature", desc.Name)
	return l, nil
}

func (d *device) CreatePipelineState(desc gpu.PipelineStateDesc) (gpu.PipelineState, error) {
	if err := d.factory.fault("CreatePipelineState"); err != nil {
		return nil, err
	}

	layout, ok := desc.Layout.(*pipelineLayout)
	if !ok || layout == nil {
		return nil, fmt.Errorf("soft: pipeline state needs a pipeline layout")
	}
	if err := checkBytecode("vertex", desc.VS); err != nil {
		return nil, err
	}
	if err := checkBytecode("pixel", desc.PS); err != nil {
		return nil, err
	}
	if len(desc.InputLayout) > 0 && !layout.desc.AllowInputLayout {
		return nil, fmt.Errorf("soft: pipeline layout does not allow an input layout")
	}
	if len(desc.RTVFormats) != 1 || desc.RTVFormats[0] != gpu.FormatR8G8B8A8Unorm {
		return nil, fmt.Errorf("soft: pipeline state needs exactly one %s render target", gpu.FormatR8G8B8A8Unorm)
	}
	if desc.SampleCount != 1 {
		return nil, fmt.Errorf("soft: unsupported sample count %d", desc.SampleCount)
	}
	if desc.TopologyType != gpu.TopologyTypeTriangle {
		return nil, fmt.Errorf("soft: unsupported topology type %d", desc.TopologyType)
	}

	p := &pipelineState{desc: desc, layout: layout}
	for _, e := range desc.InputLayout {
		if e.Format != gpu.FormatR32G32B32Float {
			return nil, fmt.Errorf("soft: input element %s has unsupported format %s", e.Semantic, e.Format)
		}
		switch e.Semantic {
		case "POSITION":
			p.position = e
			p.hasPosition = true
		case "COLOR":
			p.color = e
			p.hasColor = true
		default:
			return nil, fmt.Errorf("soft: unknown input semantic %q", e.Semantic)
		}
	}
	if !p.hasPosition {
		return nil, fmt.Errorf("soft: input layout has no POSITION element")
	}

	p.init(d.factory, "PipelineState", desc.Name)
	return p, nil
}

func checkBytecode(stage string, b gpu.ShaderBytecode) error {
	if len(b.Code) < 20 || len(b.Code)%4 != 0 {
		return fmt.Errorf("soft: %s shader bytecode is truncated (%d bytes)", stage, len(b.Code))
	}
	if binary.LittleEndian.Uint32(b.Code) != spirvMagic {
		return fmt.Errorf("soft: %s shader bytecode is not SPIR-V", stage)
	}
	if b.EntryPoint == "" {
		return fmt.Errorf("soft: %s shader has no entry point", stage)
	}
	return nil
}

type descriptor struct {
	tex  *texture
	buf  *buffer
	size int
}

type descriptorHeap struct {
	object
	desc gpu.DescriptorHeapDesc

	mu    sync.Mutex
	slots []descriptor
}

func (h *descriptorHeap) Desc() gpu.DescriptorHeapDesc {
	return h.desc
}

func (h *descriptorHeap) Release() {
	h.release()
}

func (h *descriptorHeap) slot(i int) (descriptor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if i < 0 || i >= len(h.slots) {
		return descriptor{}, false
	}
	return h.slots[i], true
}

type buffer struct {
	object
	desc gpu.BufferDesc
	data []byte

	mu     sync.Mutex
	mapped bool
}

func (b *buffer) Size() int {
	return len(b.data)
}

func (b *buffer) Map(read gpu.Range) ([]byte, error) {
	if err := b.factory.fault("Map"); err != nil {
		return nil, err
	}
	if !b.alive() {
		return nil, fmt.Errorf("soft: map of released buffer")
	}
	if !read.Empty() && (read.Begin < 0 || read.End > len(b.data)) {
		return nil, fmt.Errorf("soft: read range [%d, %d) outside buffer", read.Begin, read.End)
	}
	if n := b.busy.Load(); n > 0 {
		b.tracker().Violate("Buffer#%d mapped while referenced by %d pending GPU submissions", b.id, n)
	}

	b.mu.Lock()
	b.mapped = true
	b.mu.Unlock()
	return b.data, nil
}

func (b *buffer) Unmap(written gpu.Range) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.mapped {
		b.tracker().Violate("Buffer#%d unmapped without being mapped", b.id)
	}
	b.mapped = false
}

func (b *buffer) Release() {
	b.release()
}

type pipelineLayout struct {
	object
	desc gpu.PipelineLayoutDesc
}

func (l *pipelineLayout) Version() gpu.LayoutVersion {
	return l.desc.Version
}

func (l *pipelineLayout) Release() {
	l.release()
}

type pipelineState struct {
	object
	desc   gpu.PipelineStateDesc
	layout *pipelineLayout

	position    gpu.InputElement
	hasPosition bool
	color       gpu.InputElement
	hasColor    bool
}

func (p *pipelineState) Release() {
	p.release()
}

type commandPool struct {
	object
}

func (p *commandPool) Reset() error {
	if n := p.busy.Load(); n > 0 {
		p.tracker().Violate("CommandAllocator#%d reset while referenced by %d pending GPU submissions", p.id, n)
		return fmt.Errorf("soft: command allocator is still in use by the GPU")
	}
	return nil
}

func (p *commandPool) Release() {
	p.release()
}
