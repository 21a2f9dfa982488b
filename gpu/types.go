package gpu

import "fmt"

// FeatureLevel is the capability tier a device is created with.
type FeatureLevel int

const (
	FeatureLevel11_0 FeatureLevel = iota
	FeatureLevel12_0
	FeatureLevel12_1
)

func (l FeatureLevel) String() string {
	switch l {
	case FeatureLevel11_0:
		return "11_0"
	case FeatureLevel12_0:
		return "12_0"
	case FeatureLevel12_1:
		return "12_1"
	}
	return fmt.Sprintf("FeatureLevel(%d)", int(l))
}

// Format is a texel or vertex element format.
type Format int

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatR32G32B32Float
	FormatR32Uint
	FormatR16Uint
)

// Size returns the size of one element in bytes.
func (f Format) Size() int {
	switch f {
	case FormatR8G8B8A8Unorm, FormatR32Uint:
		return 4
	case FormatR32G32B32Float:
		return 12
	case FormatR16Uint:
		return 2
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case FormatUnknown:
		return "UNKNOWN"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatR32G32B32Float:
		return "R32G32B32_FLOAT"
	case FormatR32Uint:
		return "R32_UINT"
	case FormatR16Uint:
		return "R16_UINT"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// CommandListType selects the engine a queue, pool or list targets.
type CommandListType int

const (
	// CommandListDirect lists may contain any graphics command.
	CommandListDirect CommandListType = iota
)

// ResourceState is the usage state of an image between barriers.
type ResourceState int

const (
	StatePresent ResourceState = iota
	StateRenderTarget
	StateGenericRead
)

func (s ResourceState) String() string {
	switch s {
	case StatePresent:
		return "PRESENT"
	case StateRenderTarget:
		return "RENDER_TARGET"
	case StateGenericRead:
		return "GENERIC_READ"
	}
	return fmt.Sprintf("ResourceState(%d)", int(s))
}

// Barrier transitions an image between two states.
type Barrier struct {
	Image  Image
	Before ResourceState
	After  ResourceState
}

// HeapType selects the memory pool of a buffer.
type HeapType int

const (
	// HeapUpload memory is CPU-writable and GPU-readable.
	HeapUpload HeapType = iota
)

// BufferUsage hints how a buffer will be bound.
type BufferUsage int

const (
	UsageVertex BufferUsage = 1 << iota
	UsageIndex
	UsageConstant
)

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	Size  int
	Heap  HeapType
	Usage BufferUsage
	Name  string
}

// Range is a byte range [Begin, End). A range with End <= Begin is empty.
type Range struct {
	Begin int
	End   int
}

// Empty reports whether r covers no bytes.
func (r Range) Empty() bool {
	return r.End <= r.Begin
}

// DescriptorHeapType is the kind of descriptors a heap holds.
type DescriptorHeapType int

const (
	HeapTypeRTV DescriptorHeapType = iota
	HeapTypeCBVSRVUAV
)

// DescriptorHeapDesc describes a descriptor heap.
type DescriptorHeapDesc struct {
	Type           DescriptorHeapType
	NumDescriptors int
	ShaderVisible  bool
	Name           string
}

// ConstantBufferViewDesc points a descriptor at a constant buffer.
type ConstantBufferViewDesc struct {
	Buffer Buffer
	Size   int
}

// RenderTargetView addresses one render target descriptor.
type RenderTargetView struct {
	Heap DescriptorHeap
	Slot int
}

// VertexBufferView binds a buffer as vertex input.
type VertexBufferView struct {
	Buffer Buffer
	Size   int
	Stride int
}

// IndexBufferView binds a buffer as index input.
type IndexBufferView struct {
	Buffer Buffer
	Size   int
	Format Format
}

// Viewport maps normalized device coordinates onto the render target.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Rect is a pixel rectangle with exclusive Right and Bottom edges.
type Rect struct {
	Left, Top     int
	Right, Bottom int
}

// Topology is the primitive topology of draw calls.
type Topology int

const (
	TopologyTriangleList Topology = iota
)

// SwapEffect is the presentation model of a swapchain.
type SwapEffect int

const (
	SwapEffectFlipDiscard SwapEffect = iota
)

// SwapchainDesc describes a swapchain.
type SwapchainDesc struct {
	BufferCount int
	Width       int
	Height      int
	Format      Format
	SwapEffect  SwapEffect
	SampleCount int
}

// LayoutVersion is the serialization version of a pipeline layout.
type LayoutVersion int

const (
	LayoutVersion1_0 LayoutVersion = iota
	LayoutVersion1_1
)

func (v LayoutVersion) String() string {
	switch v {
	case LayoutVersion1_0:
		return "1.0"
	case LayoutVersion1_1:
		return "1.1"
	}
	return fmt.Sprintf("LayoutVersion(%d)", int(v))
}

// ShaderVisibility restricts a layout parameter to shader stages.
type ShaderVisibility int

const (
	VisibilityAll ShaderVisibility = iota
	VisibilityVertex
	VisibilityPixel
)

// DescriptorRangeType is the kind of descriptors in a range.
type DescriptorRangeType int

const (
	RangeCBV DescriptorRangeType = iota
)

// DescriptorRange is a run of descriptors inside a descriptor table.
type DescriptorRange struct {
	Type               DescriptorRangeType
	NumDescriptors     int
	BaseShaderRegister int
	RegisterSpace      int
}

// LayoutParameter is one descriptor table parameter of a pipeline layout.
type LayoutParameter struct {
	Ranges     []DescriptorRange
	Visibility ShaderVisibility
}

// PipelineLayoutDesc describes a pipeline layout.
type PipelineLayoutDesc struct {
	Version    LayoutVersion
	Parameters []LayoutParameter

	// AllowInputLayout must be set for pipelines with vertex input.
	AllowInputLayout bool
	Name             string
}

// ShaderBytecode is compiled shader code together with its entry point.
type ShaderBytecode struct {
	Code       []byte
	EntryPoint string
}

// InputClassification selects per-vertex or per-instance stepping.
type InputClassification int

const (
	PerVertexData InputClassification = iota
)

// InputElement describes one vertex attribute.
type InputElement struct {
	Semantic string
	Format   Format
	Slot     int
	Offset   int
	Class    InputClassification
}

// FillMode is the rasterizer fill mode.
type FillMode int

const (
	FillSolid FillMode = iota
	FillWireframe
)

// CullMode selects which triangle faces are discarded.
type CullMode int

const (
	CullNone CullMode = iota
	CullFront
	CullBack
)

// RasterizerDesc is the fixed-function rasterizer state.
type RasterizerDesc struct {
	Fill                  FillMode
	Cull                  CullMode
	FrontCounterClockwise bool
	DepthClip             bool
}

// Blend is a blend factor.
type Blend int

const (
	BlendZero Blend = iota
	BlendOne
)

// BlendOp combines source and destination.
type BlendOp int

const (
	BlendOpAdd BlendOp = iota
)

// ColorWriteAll enables writes to every channel.
const ColorWriteAll = 0xf

// RenderTargetBlend is the blend state of one render target.
type RenderTargetBlend struct {
	BlendEnable   bool
	LogicOpEnable bool
	Src, Dst      Blend
	Op            BlendOp
	SrcAlpha      Blend
	DstAlpha      Blend
	OpAlpha       BlendOp
	WriteMask     uint8
}

// DefaultRenderTargetBlend is opaque output writing all channels.
var DefaultRenderTargetBlend = RenderTargetBlend{
	Src:       BlendOne,
	Dst:       BlendZero,
	Op:        BlendOpAdd,
	SrcAlpha:  BlendOne,
	DstAlpha:  BlendZero,
	OpAlpha:   BlendOpAdd,
	WriteMask: ColorWriteAll,
}

// BlendDesc is the output merger blend state.
type BlendDesc struct {
	AlphaToCoverage bool
	Independent     bool
	RenderTarget    RenderTargetBlend
}

// DepthStencilDesc is the depth and stencil test state.
type DepthStencilDesc struct {
	DepthEnable   bool
	StencilEnable bool
}

// TopologyType is the primitive class a pipeline rasterizes.
type TopologyType int

const (
	TopologyTypeTriangle TopologyType = iota
)

// PipelineStateDesc describes a graphics pipeline state object.
type PipelineStateDesc struct {
	Layout       PipelineLayout
	VS           ShaderBytecode
	PS           ShaderBytecode
	InputLayout  []InputElement
	Rasterizer   RasterizerDesc
	Blend        BlendDesc
	DepthStencil DepthStencilDesc
	SampleMask   uint32
	TopologyType TopologyType
	RTVFormats   []Format
	SampleCount  int
	Name         string
}
