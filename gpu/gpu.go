// Package gpu describes an explicit graphics API: adapters, devices, command
// queues, command pools and lists, fences, swapchains, upload buffers,
// descriptor heaps, pipeline layouts and pipeline state objects.
//
// The interfaces are implemented by backends which register themselves with
// Register. The Vulkan backend lives in gpu/vulkan and a CPU reference
// implementation in gpu/soft.
package gpu

// Releaser is implemented by every object created through this package.
// Release must be called exactly once, after all GPU work referencing the
// object has completed.
type Releaser interface {
	Release()
}

// SurfaceHandle is an opaque, non-owning reference to the native presentation
// surface. Each backend documents the concrete types it accepts.
type SurfaceHandle any

// Options configure a Factory.
type Options struct {
	// Debug attaches the backend's validation instrumentation and enables
	// live object reporting.
	Debug bool

	// Surface is the presentation target swapchains are created for.
	Surface SurfaceHandle

	// AppName is reported to the driver where the API supports it.
	AppName string
}

// Factory enumerates adapters and creates swapchains for the surface it was
// opened with.
type Factory interface {
	Releaser

	// Adapters returns every adapter available to the process in the order
	// the platform reports them. The caller owns the returned adapters.
	Adapters() ([]Adapter, error)

	// CreateSwapchain creates a swapchain presenting through queue.
	CreateSwapchain(queue Queue, desc SwapchainDesc) (Swapchain, error)

	// Tracker returns the live object tracker shared by everything created
	// from this factory.
	Tracker() *Tracker
}

// AdapterDesc describes one physical or virtual GPU.
type AdapterDesc struct {
	Name     string
	Software bool
	Discrete bool
}

// Adapter is a handle to one GPU available to the process.
type Adapter interface {
	Releaser

	Desc() AdapterDesc

	// Supports reports whether a device with at least the given feature
	// level can be created on this adapter, without creating one.
	Supports(level FeatureLevel) bool

	// CreateDevice creates the logical device.
	CreateDevice(level FeatureLevel) (Device, error)
}

// Device creates every device-bound object.
type Device interface {
	Releaser

	// SetName attaches a debug name to the device.
	SetName(name string)

	CreateCommandQueue(t CommandListType) (Queue, error)
	CreateCommandPool(t CommandListType) (CommandPool, error)

	// CreateCommandList creates a command list in the recording state,
	// with pso as its initial pipeline state. pso may be nil.
	CreateCommandList(pool CommandPool, pso PipelineState) (CommandList, error)

	CreateFence(initial uint64) (Fence, error)

	CreateDescriptorHeap(desc DescriptorHeapDesc) (DescriptorHeap, error)

	// CreateRenderTargetView writes a render target view for image into
	// slot of an RTV heap.
	CreateRenderTargetView(image Image, heap DescriptorHeap, slot int) error

	// CreateConstantBufferView writes a constant buffer view into slot of
	// a CBV/SRV/UAV heap.
	CreateConstantBufferView(desc ConstantBufferViewDesc, heap DescriptorHeap, slot int) error

	CreateBuffer(desc BufferDesc) (Buffer, error)

	// CheckLayoutVersion returns the highest supported pipeline layout
	// version not above highest. It fails when the device cannot answer
	// the query.
	CheckLayoutVersion(highest LayoutVersion) (LayoutVersion, error)

	CreatePipelineLayout(desc PipelineLayoutDesc) (PipelineLayout, error)
	CreatePipelineState(desc PipelineStateDesc) (PipelineState, error)

	// ConstantBufferAlignment is the required size alignment of constant
	// buffer views in bytes.
	ConstantBufferAlignment() int
}

// Queue is an ordered submission channel to the GPU.
type Queue interface {
	Releaser

	// ExecuteCommandLists submits closed command lists for execution.
	ExecuteCommandLists(lists ...CommandList) error

	// Signal sets fence to value once all previously submitted work
	// completes.
	Signal(fence Fence, value uint64) error
}

// Fence is a monotonic CPU/GPU synchronization counter.
type Fence interface {
	Releaser

	// CompletedValue returns the last value the GPU has reached.
	CompletedValue() uint64

	// Wait blocks until the fence reaches value. There is no timeout.
	Wait(value uint64) error
}

// CommandPool owns the memory of recorded commands. It may only be reset once
// the GPU finished all work recorded from it.
type CommandPool interface {
	Releaser
	Reset() error
}

// CommandList records GPU commands. A list is either recording or closed;
// only closed lists can be executed and only recording lists accept commands.
type CommandList interface {
	Releaser

	Reset(pool CommandPool, pso PipelineState) error
	Close() error
	ClearState(pso PipelineState)

	SetPipelineLayout(layout PipelineLayout)
	SetViewports(viewports ...Viewport)
	SetScissorRects(rects ...Rect)
	SetDescriptorHeaps(heaps ...DescriptorHeap)
	SetDescriptorTable(param int, heap DescriptorHeap, slot int)
	ResourceBarrier(barriers ...Barrier)
	SetRenderTarget(rtv RenderTargetView)
	ClearRenderTargetView(rtv RenderTargetView, color [4]float32)
	SetPrimitiveTopology(t Topology)
	SetVertexBuffers(startSlot int, views ...VertexBufferView)
	SetIndexBuffer(view IndexBufferView)
	DrawIndexedInstanced(indexCount, instanceCount, startIndex, baseVertex, startInstance int)
}

// Swapchain is the ring of presentable images.
type Swapchain interface {
	Releaser

	// Buffer returns image i of the chain. The returned image holds a
	// reference which must be released before ResizeBuffers.
	Buffer(i int) (Image, error)

	// BufferCount is the number of images in the chain. It may exceed the
	// requested count when the platform demands more.
	BufferCount() int

	// CurrentBackBufferIndex is the only valid target for the next frame.
	CurrentBackBufferIndex() uint32

	// ResizeBuffers resizes the chain in place. All images obtained from
	// Buffer must have been released.
	ResizeBuffers(count, width, height int, format Format) error

	// Present queues the current image for display. syncInterval 1 paces
	// presentation to the display refresh.
	Present(syncInterval int) error

	SetFullscreen(fullscreen bool) error
}

// Image is a GPU texture. Swapchain images are the only images in this API.
type Image interface {
	Releaser
	Width() int
	Height() int
	Format() Format
}

// Buffer is a linear GPU allocation.
type Buffer interface {
	Releaser

	Size() int

	// Map returns a CPU view of the allocation. read describes the range the
	// CPU intends to read; an empty range means no read-back.
	Map(read Range) ([]byte, error)

	// Unmap ends CPU access. written describes the range the CPU modified.
	Unmap(written Range)
}

// DescriptorHeap is a table of resource descriptors.
type DescriptorHeap interface {
	Releaser
	Desc() DescriptorHeapDesc
}

// PipelineLayout declares the binding slots a pipeline's shaders expect.
type PipelineLayout interface {
	Releaser
	Version() LayoutVersion
}

// PipelineState is an immutable compiled bundle of shaders and fixed-function
// state.
type PipelineState interface {
	Releaser
}
