package renderer

import (
	"fmt"
	"unsafe"

	"github.com/xlab/linmath"

	"github.com/ironsmile/spinning-triangle-go/gpu"
	"github.com/ironsmile/spinning-triangle-go/mesh"
	"github.com/ironsmile/spinning-triangle-go/unsafer"
)

// Uniforms is the constant buffer read by the vertex shader. The field order
// matches the shader's uniform block.
type Uniforms struct {
	Projection linmath.Mat4x4
	Model      linmath.Mat4x4
	View       linmath.Mat4x4
}

// UniformsSize is the unpadded size of Uniforms in bytes.
const UniformsSize = int(unsafe.Sizeof(Uniforms{}))

// AlignUp rounds n up to the next multiple of align, which must be a power of
// two.
func AlignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// VertexBuffer is an uploaded vertex buffer with its binding.
type VertexBuffer struct {
	Buffer gpu.Buffer
	View   gpu.VertexBufferView
}

// IndexBuffer is an uploaded index buffer with its binding.
type IndexBuffer struct {
	Buffer gpu.Buffer
	View   gpu.IndexBufferView
	Count  int
}

// UniformBuffer is the constant buffer and the heap holding its view.
type UniformBuffer struct {
	Buffer gpu.Buffer
	Heap   gpu.DescriptorHeap
	Size   int
}

// Write copies u into the buffer. The GPU must not be reading it.
func (ub *UniformBuffer) Write(u *Uniforms) error {
	return writeBuffer(ub.Buffer, unsafer.StructToBytes(u))
}

// ResourceSet owns the static mesh buffers and the uniform buffer. All of them
// live in upload memory.
type ResourceSet struct {
	device gpu.Device

	Vertices VertexBuffer
	Indices  IndexBuffer
	Uniforms UniformBuffer
}

// NewResourceSet uploads m and creates the uniform buffer initialized with
// initial.
func NewResourceSet(device gpu.Device, m *mesh.Mesh, initial *Uniforms) (_ *ResourceSet, err error) {
	rs := &ResourceSet{device: device}
	defer func() {
		if err != nil {
			rs.Release()
		}
	}()

	if rs.Vertices, err = rs.CreateVertexBuffer(m.Vertices); err != nil {
		return nil, err
	}
	if rs.Indices, err = rs.CreateIndexBuffer(m.Indices); err != nil {
		return nil, err
	}
	if rs.Uniforms, err = rs.CreateUniformBuffer(initial); err != nil {
		return nil, err
	}
	return rs, nil
}

// CreateVertexBuffer uploads vertices.
func (rs *ResourceSet) CreateVertexBuffer(vertices []mesh.Vertex) (VertexBuffer, error) {
	data := unsafer.SliceToBytes(vertices)
	buf, err := rs.upload("vertex buffer", data, len(data), gpu.UsageVertex)
	if err != nil {
		return VertexBuffer{}, err
	}
	return VertexBuffer{
		Buffer: buf,
		View:   gpu.VertexBufferView{Buffer: buf, Size: len(data), Stride: mesh.Stride},
	}, nil
}

// CreateIndexBuffer uploads 32 bit indices.
func (rs *ResourceSet) CreateIndexBuffer(indices []uint32) (IndexBuffer, error) {
	data := unsafer.SliceToBytes(indices)
	buf, err := rs.upload("index buffer", data, len(data), gpu.UsageIndex)
	if err != nil {
		return IndexBuffer{}, err
	}
	return IndexBuffer{
		Buffer: buf,
		View:   gpu.IndexBufferView{Buffer: buf, Size: len(data), Format: mesh.IndexFormat},
		Count:  len(indices),
	}, nil
}

// CreateUniformBuffer creates the constant buffer, padded to the constant
// buffer alignment, and a shader-visible heap with a single view of it.
func (rs *ResourceSet) CreateUniformBuffer(initial *Uniforms) (_ UniformBuffer, err error) {
	size := AlignUp(UniformsSize, ConstantBufferAlignment)
	if align := rs.device.ConstantBufferAlignment(); align > ConstantBufferAlignment {
		size = AlignUp(UniformsSize, align)
	}

	ub := UniformBuffer{Size: size}
	ub.Buffer, err = rs.upload("uniform buffer", unsafer.StructToBytes(initial), size, gpu.UsageConstant)
	if err != nil {
		return UniformBuffer{}, err
	}
	defer func() {
		if err != nil {
			ub.Buffer.Release()
		}
	}()

	ub.Heap, err = rs.device.CreateDescriptorHeap(gpu.DescriptorHeapDesc{
		Type:           gpu.HeapTypeCBVSRVUAV,
		NumDescriptors: 1,
		ShaderVisible:  true,
		Name:           "uniform heap",
	})
	if err != nil {
		return UniformBuffer{}, newError(ResourceCreateError, "creating uniform heap", err)
	}

	view := gpu.ConstantBufferViewDesc{Buffer: ub.Buffer, Size: size}
	if err := rs.device.CreateConstantBufferView(view, ub.Heap, 0); err != nil {
		ub.Heap.Release()
		return UniformBuffer{}, newError(ResourceCreateError, "creating uniform view", err)
	}
	return ub, nil
}

// upload creates an upload buffer of size bytes and writes data into it.
func (rs *ResourceSet) upload(name string, data []byte, size int, usage gpu.BufferUsage) (gpu.Buffer, error) {
	buf, err := rs.device.CreateBuffer(gpu.BufferDesc{
		Size:  size,
		Heap:  gpu.HeapUpload,
		Usage: usage,
		Name:  name,
	})
	if err != nil {
		return nil, newError(ResourceCreateError, "creating "+name, err)
	}
	gpu.Logger().Debug("created buffer", "name", name, "size", size)

	if err := writeBuffer(buf, data); err != nil {
		buf.Release()
		return nil, newError(ResourceCreateError, "uploading "+name, err)
	}
	return buf, nil
}

// writeBuffer maps buf without read-back, copies data to its start and
// unmaps it.
func writeBuffer(buf gpu.Buffer, data []byte) error {
	if len(data) > buf.Size() {
		return fmt.Errorf("writing %d bytes into a buffer of %d", len(data), buf.Size())
	}

	mem, err := buf.Map(gpu.Range{})
	if err != nil {
		return fmt.Errorf("mapping buffer: %w", err)
	}
	copy(mem, data)
	buf.Unmap(gpu.Range{End: len(data)})
	return nil
}

// Release frees the buffers and the uniform heap.
func (rs *ResourceSet) Release() {
	for _, r := range []gpu.Releaser{rs.Uniforms.Heap, rs.Uniforms.Buffer, rs.Indices.Buffer, rs.Vertices.Buffer} {
		if r != nil {
			r.Release()
		}
	}
	rs.Vertices, rs.Indices, rs.Uniforms = VertexBuffer{}, IndexBuffer{}, UniformBuffer{}
}
