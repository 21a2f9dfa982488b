package soft

import (
	"encoding/binary"
	"errors"
	"image/color"
	"testing"

	"github.com/onsi/gomega"
	"github.com/xlab/linmath"

	"github.com/ironsmile/spinning-triangle-go/gpu"
	"github.com/ironsmile/spinning-triangle-go/unsafer"
)

// spirvHeader is the smallest byte string the backend accepts as a module.
func spirvHeader() []byte {
	b := make([]byte, 20)
	binary.LittleEndian.PutUint32(b, spirvMagic)
	binary.LittleEndian.PutUint32(b[4:], 0x00010000)
	return b
}

type vertex struct {
	pos   linmath.Vec3
	color linmath.Vec3
}

type uniforms struct {
	projection linmath.Mat4x4
	model      linmath.Mat4x4
	view       linmath.Mat4x4
}

// scene is a device with everything needed to draw one triangle.
type scene struct {
	factory *Factory
	device  gpu.Device
	queue   gpu.Queue
	pool    gpu.CommandPool
	fence   gpu.Fence
	chain   gpu.Swapchain
	images  []gpu.Image
	rtvs    gpu.DescriptorHeap
	cbvs    gpu.DescriptorHeap
	vb      gpu.Buffer
	ib      gpu.Buffer
	ub      gpu.Buffer
	layout  gpu.PipelineLayout
	pso     gpu.PipelineState
	list    gpu.CommandList
	value   uint64
}

func upload(g *gomega.WithT, dev gpu.Device, data []byte, size int, usage gpu.BufferUsage) gpu.Buffer {
	b, err := dev.CreateBuffer(gpu.BufferDesc{Size: size, Heap: gpu.HeapUpload, Usage: usage})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	mem, err := b.Map(gpu.Range{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	copy(mem, data)
	b.Unmap(gpu.Range{End: len(data)})
	return b
}

func newScene(g *gomega.WithT, surface *Surface) *scene {
	s := &scene{factory: NewFactory(Config{Surface: surface})}

	adapters, err := s.factory.Adapters()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		for _, a := range adapters {
			a.Release()
		}
	}()

	s.device, err = adapters[1].CreateDevice(gpu.FeatureLevel12_0)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	s.queue, err = s.device.CreateCommandQueue(gpu.CommandListDirect)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	s.pool, err = s.device.CreateCommandPool(gpu.CommandListDirect)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	s.fence, err = s.device.CreateFence(0)
	g.Expect(err).NotTo(gomega.HaveOccurred())

	w, h := surface.Size()
	s.chain, err = s.factory.CreateSwapchain(s.queue, gpu.SwapchainDesc{
		BufferCount: 2,
		Width:       w,
		Height:      h,
		Format:      gpu.FormatR8G8B8A8Unorm,
		SampleCount: 1,
	})
	g.Expect(err).NotTo(gomega.HaveOccurred())

	s.rtvs, err = s.device.CreateDescriptorHeap(gpu.DescriptorHeapDesc{Type: gpu.HeapTypeRTV, NumDescriptors: 2})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	for i := 0; i < 2; i++ {
		img, err := s.chain.Buffer(i)
		g.Expect(err).NotTo(gomega.HaveOccurred())
		g.Expect(s.device.CreateRenderTargetView(img, s.rtvs, i)).To(gomega.Succeed())
		s.images = append(s.images, img)
	}

	verts := []vertex{
		{pos: linmath.Vec3{1, -1, 0}, color: linmath.Vec3{1, 0, 0}},
		{pos: linmath.Vec3{-1, -1, 0}, color: linmath.Vec3{0, 1, 0}},
		{pos: linmath.Vec3{0, 1, 0}, color: linmath.Vec3{0, 0, 1}},
	}
	vbytes := unsafer.SliceToBytes(verts)
	s.vb = upload(g, s.device, vbytes, len(vbytes), gpu.UsageVertex)
	ibytes := unsafer.SliceToBytes([]uint32{0, 1, 2})
	s.ib = upload(g, s.device, ibytes, len(ibytes), gpu.UsageIndex)

	var u uniforms
	u.projection.Identity()
	u.model.Identity()
	u.view.Identity()
	s.ub = upload(g, s.device, unsafer.StructToBytes(&u), 256, gpu.UsageConstant)

	s.cbvs, err = s.device.CreateDescriptorHeap(gpu.DescriptorHeapDesc{
		Type:           gpu.HeapTypeCBVSRVUAV,
		NumDescriptors: 1,
		ShaderVisible:  true,
	})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(s.device.CreateConstantBufferView(gpu.ConstantBufferViewDesc{Buffer: s.ub, Size: 256}, s.cbvs, 0)).
		To(gomega.Succeed())

	s.layout, err = s.device.CreatePipelineLayout(gpu.PipelineLayoutDesc{
		Version: gpu.LayoutVersion1_1,
		Parameters: []gpu.LayoutParameter{{
			Ranges:     []gpu.DescriptorRange{{Type: gpu.RangeCBV, NumDescriptors: 1}},
			Visibility: gpu.VisibilityVertex,
		}},
		AllowInputLayout: true,
	})
	g.Expect(err).NotTo(gomega.HaveOccurred())

	s.pso, err = s.device.CreatePipelineState(gpu.PipelineStateDesc{
		Layout: s.layout,
		VS:     gpu.ShaderBytecode{Code: spirvHeader(), EntryPoint: "main"},
		PS:     gpu.ShaderBytecode{Code: spirvHeader(), EntryPoint: "main"},
		InputLayout: []gpu.InputElement{
			{Semantic: "POSITION", Format: gpu.FormatR32G32B32Float},
			{Semantic: "COLOR", Format: gpu.FormatR32G32B32Float, Offset: 12},
		},
		SampleMask:   0xffffffff,
		TopologyType: gpu.TopologyTypeTriangle,
		RTVFormats:   []gpu.Format{gpu.FormatR8G8B8A8Unorm},
		SampleCount:  1,
	})
	g.Expect(err).NotTo(gomega.HaveOccurred())

	s.list, err = s.device.CreateCommandList(s.pool, s.pso)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(s.list.Close()).To(gomega.Succeed())
	return s
}

func (s *scene) frame(g *gomega.WithT) {
	w, h := s.images[0].Width(), s.images[0].Height()
	idx := int(s.chain.CurrentBackBufferIndex())
	rtv := gpu.RenderTargetView{Heap: s.rtvs, Slot: idx}
	l := s.list

	g.Expect(s.pool.Reset()).To(gomega.Succeed())
	g.Expect(l.Reset(s.pool, s.pso)).To(gomega.Succeed())
	l.SetPipelineLayout(s.layout)
	l.SetViewports(gpu.Viewport{Width: float32(w), Height: float32(h), MaxDepth: 1})
	l.SetScissorRects(gpu.Rect{Right: w, Bottom: h})
	l.SetDescriptorHeaps(s.cbvs)
	l.SetDescriptorTable(0, s.cbvs, 0)
	l.ResourceBarrier(gpu.Barrier{Image: s.images[idx], Before: gpu.StatePresent, After: gpu.StateRenderTarget})
	l.SetRenderTarget(rtv)
	l.ClearRenderTargetView(rtv, [4]float32{0.2, 0.2, 0.2, 1})
	l.SetPrimitiveTopology(gpu.TopologyTriangleList)
	l.SetVertexBuffers(0, gpu.VertexBufferView{Buffer: s.vb, Size: s.vb.Size(), Stride: 24})
	l.SetIndexBuffer(gpu.IndexBufferView{Buffer: s.ib, Size: s.ib.Size(), Format: gpu.FormatR32Uint})
	l.DrawIndexedInstanced(3, 1, 0, 0, 0)
	l.ResourceBarrier(gpu.Barrier{Image: s.images[idx], Before: gpu.StateRenderTarget, After: gpu.StatePresent})
	g.Expect(l.Close()).To(gomega.Succeed())

	g.Expect(s.queue.ExecuteCommandLists(l)).To(gomega.Succeed())
	g.Expect(s.chain.Present(1)).To(gomega.Succeed())
	s.value++
	g.Expect(s.queue.Signal(s.fence, s.value)).To(gomega.Succeed())
	g.Expect(s.fence.Wait(s.value)).To(gomega.Succeed())
}

func (s *scene) release() {
	for _, r := range []gpu.Releaser{s.list, s.pso, s.layout, s.cbvs, s.ub, s.ib, s.vb} {
		r.Release()
	}
	for _, img := range s.images {
		img.Release()
	}
	for _, r := range []gpu.Releaser{s.rtvs, s.chain, s.fence, s.pool, s.queue, s.device, s.factory} {
		r.Release()
	}
}

func TestDrawTriangle(t *testing.T) {
	g := gomega.NewWithT(t)

	surface := NewSurface(64, 64)
	s := newScene(g, surface)
	s.frame(g)

	img := surface.Frontbuffer()
	g.Expect(img).NotTo(gomega.BeNil())
	g.Expect(img.Bounds().Dx()).To(gomega.Equal(64))
	g.Expect(surface.Presents()).To(gomega.Equal(1))

	bg := color.RGBA{R: 51, G: 51, B: 51, A: 255}
	g.Expect(img.RGBAAt(1, 1)).To(gomega.Equal(bg))
	g.Expect(img.RGBAAt(62, 1)).To(gomega.Equal(bg))

	// The apex is blue and at the top of the image.
	top := img.RGBAAt(32, 2)
	g.Expect(top.B).To(gomega.BeNumerically(">", 200))
	g.Expect(top.A).To(gomega.Equal(uint8(255)))

	left := img.RGBAAt(2, 62)
	g.Expect(left.G).To(gomega.BeNumerically(">", 200))
	right := img.RGBAAt(61, 62)
	g.Expect(right.R).To(gomega.BeNumerically(">", 200))

	g.Expect(s.chain.CurrentBackBufferIndex()).To(gomega.Equal(uint32(1)))
	s.frame(g)
	g.Expect(s.chain.CurrentBackBufferIndex()).To(gomega.Equal(uint32(0)))
	g.Expect(surface.Presents()).To(gomega.Equal(2))

	s.release()
	g.Expect(s.factory.Tracker().Violations()).To(gomega.BeEmpty())
	g.Expect(s.factory.Tracker().Live()).To(gomega.BeEmpty())
}

func TestCullBackDiscardsCounterClockwise(t *testing.T) {
	g := gomega.NewWithT(t)

	st := &execState{
		tracker: gpu.NewTracker(),
		pso: &pipelineState{desc: gpu.PipelineStateDesc{
			Rasterizer: gpu.RasterizerDesc{Cull: gpu.CullBack},
		}},
		viewport: &gpu.Viewport{Width: 8, Height: 8},
		scissor:  &gpu.Rect{Right: 8, Bottom: 8},
		target:   newTexture(8, 8, gpu.FormatR8G8B8A8Unorm),
	}
	white := linmath.Vec3{1, 1, 1}

	// Counter-clockwise on screen is the back face.
	st.rasterize([3]clipVertex{
		{pos: linmath.Vec4{-1, -1, 0, 1}, color: white},
		{pos: linmath.Vec4{1, -1, 0, 1}, color: white},
		{pos: linmath.Vec4{0, 1, 0, 1}, color: white},
	})
	g.Expect(st.target.pix).To(gomega.HaveEach(uint8(0)))

	st.rasterize([3]clipVertex{
		{pos: linmath.Vec4{1, -1, 0, 1}, color: white},
		{pos: linmath.Vec4{-1, -1, 0, 1}, color: white},
		{pos: linmath.Vec4{0, 1, 0, 1}, color: white},
	})
	g.Expect(st.target.pix).To(gomega.ContainElement(uint8(255)))
}

func TestFence(t *testing.T) {
	g := gomega.NewWithT(t)

	f := NewFactory(Config{})
	dev := &device{}
	dev.init(f, "Device", "")
	q, err := dev.CreateCommandQueue(gpu.CommandListDirect)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	fence, err := dev.CreateFence(0)
	g.Expect(err).NotTo(gomega.HaveOccurred())

	g.Expect(fence.CompletedValue()).To(gomega.Equal(uint64(0)))
	g.Expect(fence.Wait(0)).To(gomega.Succeed())
	g.Expect(fence.Wait(1)).To(gomega.MatchError(gomega.ContainSubstring("never signaled")))

	for v := uint64(1); v <= 3; v++ {
		g.Expect(q.Signal(fence, v)).To(gomega.Succeed())
	}
	g.Expect(fence.Wait(3)).To(gomega.Succeed())
	g.Expect(fence.CompletedValue()).To(gomega.Equal(uint64(3)))
	g.Expect(f.Tracker().Violations()).To(gomega.BeEmpty())

	g.Expect(q.Signal(fence, 3)).To(gomega.Succeed())
	g.Expect(fence.Wait(3)).To(gomega.Succeed())
	g.Expect(f.Tracker().Violations()).To(gomega.ConsistOf(gomega.ContainSubstring("does not exceed")))

	fence.Release()
	q.Release()
	dev.Release()
	f.Release()
}

func TestBusyObjects(t *testing.T) {
	g := gomega.NewWithT(t)

	f := NewFactory(Config{})
	dev := &device{}
	dev.init(f, "Device", "")
	qi, err := dev.CreateCommandQueue(gpu.CommandListDirect)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	q := qi.(*commandQueue)
	pool, err := dev.CreateCommandPool(gpu.CommandListDirect)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	buf, err := dev.CreateBuffer(gpu.BufferDesc{Size: 16, Heap: gpu.HeapUpload})
	g.Expect(err).NotTo(gomega.HaveOccurred())

	gate := make(chan struct{})
	g.Expect(q.submit(work{
		run:  func() { <-gate },
		refs: []*object{&pool.(*commandPool).object, &buf.(*buffer).object},
	})).To(gomega.Succeed())

	g.Expect(pool.Reset()).To(gomega.MatchError(gomega.ContainSubstring("still in use")))
	_, err = buf.Map(gpu.Range{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	buf.Unmap(gpu.Range{})

	close(gate)
	fence, err := dev.CreateFence(0)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(q.Signal(fence, 1)).To(gomega.Succeed())
	g.Expect(fence.Wait(1)).To(gomega.Succeed())

	g.Expect(pool.Reset()).To(gomega.Succeed())
	g.Expect(f.Tracker().Violations()).To(gomega.ConsistOf(
		gomega.ContainSubstring("CommandAllocator"),
		gomega.ContainSubstring("mapped while referenced"),
	))

	for _, r := range []gpu.Releaser{fence, buf, pool, q, dev, f} {
		r.Release()
	}
	buf.Release()
	g.Expect(f.Tracker().Violations()).To(gomega.ContainElement(gomega.ContainSubstring("released twice")))
	g.Expect(f.Tracker().Live()).To(gomega.BeEmpty())
}

func TestSwapchainResize(t *testing.T) {
	g := gomega.NewWithT(t)

	surface := NewSurface(32, 16)
	s := newScene(g, surface)

	err := s.chain.ResizeBuffers(2, 64, 64, gpu.FormatR8G8B8A8Unorm)
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("references are still held")))

	for _, img := range s.images {
		img.Release()
	}
	s.images = nil
	g.Expect(s.chain.ResizeBuffers(2, 1, 1, gpu.FormatR8G8B8A8Unorm)).To(gomega.Succeed())
	g.Expect(s.chain.CurrentBackBufferIndex()).To(gomega.Equal(uint32(0)))

	img, err := s.chain.Buffer(1)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(img.Width()).To(gomega.Equal(1))
	g.Expect(img.Height()).To(gomega.Equal(1))
	g.Expect(s.device.CreateRenderTargetView(img, s.rtvs, 1)).To(gomega.Succeed())
	s.images = []gpu.Image{img}

	_, err = s.chain.Buffer(2)
	g.Expect(err).To(gomega.HaveOccurred())
	g.Expect(s.chain.ResizeBuffers(1, 8, 8, gpu.FormatUnknown)).NotTo(gomega.Succeed())

	s.release()
	g.Expect(s.factory.Tracker().Violations()).To(gomega.BeEmpty())
}

func TestDeviceValidation(t *testing.T) {
	g := gomega.NewWithT(t)

	boom := errors.New("boom")
	f := NewFactory(Config{Faults: map[string]error{"CreateFence": boom}})
	adapters, err := f.Adapters()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(adapters).To(gomega.HaveLen(2))
	g.Expect(adapters[0].Desc().Software).To(gomega.BeTrue())
	g.Expect(adapters[1].Supports(gpu.FeatureLevel12_0)).To(gomega.BeTrue())

	dev, err := adapters[1].CreateDevice(gpu.FeatureLevel12_0)
	g.Expect(err).NotTo(gomega.HaveOccurred())

	_, err = dev.CreateFence(0)
	g.Expect(err).To(gomega.MatchError(boom))

	buf, err := dev.CreateBuffer(gpu.BufferDesc{Size: 300, Heap: gpu.HeapUpload})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	heap, err := dev.CreateDescriptorHeap(gpu.DescriptorHeapDesc{Type: gpu.HeapTypeCBVSRVUAV, NumDescriptors: 1})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	err = dev.CreateConstantBufferView(gpu.ConstantBufferViewDesc{Buffer: buf, Size: 192}, heap, 0)
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("multiple of 256")))
	g.Expect(dev.CreateConstantBufferView(gpu.ConstantBufferViewDesc{Buffer: buf, Size: 256}, heap, 0)).
		To(gomega.Succeed())
	g.Expect(dev.CreateConstantBufferView(gpu.ConstantBufferViewDesc{Buffer: buf, Size: 256}, heap, 1)).
		NotTo(gomega.Succeed())

	version, err := dev.CheckLayoutVersion(gpu.LayoutVersion1_1)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(version).To(gomega.Equal(gpu.LayoutVersion1_1))

	layout, err := dev.CreatePipelineLayout(gpu.PipelineLayoutDesc{Version: version, AllowInputLayout: true})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	_, err = dev.CreatePipelineState(gpu.PipelineStateDesc{
		Layout:       layout,
		VS:           gpu.ShaderBytecode{Code: []byte("DXBC not spirv at all!"), EntryPoint: "main"},
		PS:           gpu.ShaderBytecode{Code: spirvHeader(), EntryPoint: "main"},
		TopologyType: gpu.TopologyTypeTriangle,
		RTVFormats:   []gpu.Format{gpu.FormatR8G8B8A8Unorm},
		SampleCount:  1,
	})
	g.Expect(err).To(gomega.HaveOccurred())

	old := NewFactory(Config{NoLayoutQuery: true})
	oldDev := &device{}
	oldDev.init(old, "Device", "")
	_, err = oldDev.CheckLayoutVersion(gpu.LayoutVersion1_1)
	g.Expect(err).To(gomega.HaveOccurred())
	_, err = oldDev.CreatePipelineLayout(gpu.PipelineLayoutDesc{Version: gpu.LayoutVersion1_1})
	g.Expect(err).To(gomega.HaveOccurred())

	for _, r := range []gpu.Releaser{layout, heap, buf, dev, adapters[0], adapters[1], f} {
		r.Release()
	}
	g.Expect(f.Tracker().Live()).To(gomega.BeEmpty())
}

func TestSwapchainNeedsSurface(t *testing.T) {
	g := gomega.NewWithT(t)

	factory, err := gpu.Open(Name, gpu.Options{})
	g.Expect(err).NotTo(gomega.HaveOccurred())
	defer factory.Release()

	_, err = factory.CreateSwapchain(nil, gpu.SwapchainDesc{BufferCount: 2})
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("no surface")))

	_, err = gpu.Open(Name, gpu.Options{Surface: "not a surface"})
	g.Expect(err).To(gomega.HaveOccurred())
}

func newSurfaceChain(g *gomega.WithT, cfg Config) (gpu.Swapchain, func()) {
	f := NewFactory(cfg)
	adapters, err := f.Adapters()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	dev, err := adapters[1].CreateDevice(gpu.FeatureLevel12_0)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	queue, err := dev.CreateCommandQueue(gpu.CommandListDirect)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	fence, err := dev.CreateFence(0)
	g.Expect(err).NotTo(gomega.HaveOccurred())

	chain, err := f.CreateSwapchain(queue, gpu.SwapchainDesc{
		BufferCount: 2,
		Width:       640,
		Height:      480,
		Format:      gpu.FormatR8G8B8A8Unorm,
		SampleCount: 1,
	})
	g.Expect(err).NotTo(gomega.HaveOccurred())

	return chain, func() {
		g.Expect(queue.Signal(fence, 1)).To(gomega.Succeed())
		g.Expect(fence.Wait(1)).To(gomega.Succeed())
		for _, r := range []gpu.Releaser{chain, fence, queue, dev, adapters[0], adapters[1], f} {
			r.Release()
		}
		g.Expect(f.Tracker().Live()).To(gomega.BeEmpty())
		g.Expect(f.Tracker().Violations()).To(gomega.BeEmpty())
	}
}

func TestSwapchainFollowsSurfaceExtent(t *testing.T) {
	g := gomega.NewWithT(t)

	surface := NewSurface(200, 100)
	chain, release := newSurfaceChain(g, Config{Surface: surface, SurfaceExtent: true})
	defer release()

	img, err := chain.Buffer(0)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(img.Width()).To(gomega.Equal(200))
	g.Expect(img.Height()).To(gomega.Equal(100))
	img.Release()

	// Minimized: the old images survive and presents are dropped.
	surface.Resize(0, 0)
	g.Expect(chain.ResizeBuffers(2, 1, 1, gpu.FormatUnknown)).To(gomega.Succeed())
	img, err = chain.Buffer(0)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(img.Width()).To(gomega.Equal(200))
	img.Release()
	g.Expect(chain.Present(1)).To(gomega.Succeed())
	g.Expect(surface.Presents()).To(gomega.BeZero())

	surface.Resize(300, 150)
	g.Expect(chain.ResizeBuffers(2, 1, 1, gpu.FormatUnknown)).To(gomega.Succeed())
	img, err = chain.Buffer(1)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(img.Width()).To(gomega.Equal(300))
	g.Expect(img.Height()).To(gomega.Equal(150))
	img.Release()
}

func TestSwapchainNeedsSurfaceArea(t *testing.T) {
	g := gomega.NewWithT(t)

	f := NewFactory(Config{Surface: NewSurface(0, 0), SurfaceExtent: true})
	defer f.Release()
	adapters, err := f.Adapters()
	g.Expect(err).NotTo(gomega.HaveOccurred())
	dev, err := adapters[1].CreateDevice(gpu.FeatureLevel12_0)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	queue, err := dev.CreateCommandQueue(gpu.CommandListDirect)
	g.Expect(err).NotTo(gomega.HaveOccurred())

	_, err = f.CreateSwapchain(queue, gpu.SwapchainDesc{
		BufferCount: 2,
		Format:      gpu.FormatR8G8B8A8Unorm,
		SampleCount: 1,
	})
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("zero area")))

	for _, r := range []gpu.Releaser{queue, dev, adapters[0], adapters[1]} {
		r.Release()
	}
}

func TestSwapchainMinImageCount(t *testing.T) {
	g := gomega.NewWithT(t)

	chain, release := newSurfaceChain(g, Config{Surface: NewSurface(8, 8), MinImageCount: 3})
	defer release()

	g.Expect(chain.BufferCount()).To(gomega.Equal(3))
	for i := 0; i < 3; i++ {
		g.Expect(chain.CurrentBackBufferIndex()).To(gomega.Equal(uint32(i)))
		g.Expect(chain.Present(1)).To(gomega.Succeed())
	}
	g.Expect(chain.CurrentBackBufferIndex()).To(gomega.Equal(uint32(0)))
}
