package soft

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// Surface is an offscreen presentation target. It keeps a copy of the most
// recently presented image.
type Surface struct {
	mu       sync.Mutex
	width    int
	height   int
	front    *image.RGBA
	presents int
}

// NewSurface returns a surface of the given client size.
func NewSurface(width, height int) *Surface {
	return &Surface{width: width, height: height}
}

// Resize changes the client size reported to swapchains created later or
// resized with zero dimensions.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
}

// Size returns the client size.
func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Frontbuffer returns a copy of the last presented image, or nil when
// nothing was presented yet.
func (s *Surface) Frontbuffer() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.front == nil {
		return nil
	}
	img := image.NewRGBA(s.front.Rect)
	copy(img.Pix, s.front.Pix)
	return img
}

// Presents returns the number of images presented so far.
func (s *Surface) Presents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}

func (s *Surface) present(tex *texture) {
	img := image.NewRGBA(image.Rect(0, 0, tex.width, tex.height))
	copy(img.Pix, tex.pix)

	s.mu.Lock()
	s.front = img
	s.presents++
	s.mu.Unlock()
}

// texture is the storage of one swapchain image. state is only touched on
// the queue goroutine or while the queue is idle.
type texture struct {
	width  int
	height int
	format gpu.Format
	pix    []byte
	state  gpu.ResourceState
}

func newTexture(width, height int, format gpu.Format) *texture {
	return &texture{
		width:  width,
		height: height,
		format: format,
		pix:    make([]byte, width*height*4),
		state:  gpu.StatePresent,
	}
}

func (t *texture) set(x, y int, c [4]float32) {
	i := (y*t.width + x) * 4
	t.pix[i+0] = unorm8(c[0])
	t.pix[i+1] = unorm8(c[1])
	t.pix[i+2] = unorm8(c[2])
	t.pix[i+3] = unorm8(c[3])
}

func (t *texture) fill(c [4]float32) {
	px := color.RGBA{R: unorm8(c[0]), G: unorm8(c[1]), B: unorm8(c[2]), A: unorm8(c[3])}
	for i := 0; i < len(t.pix); i += 4 {
		t.pix[i+0] = px.R
		t.pix[i+1] = px.G
		t.pix[i+2] = px.B
		t.pix[i+3] = px.A
	}
}

type swapchain struct {
	object
	queue   *commandQueue
	surface *Surface
	desc    gpu.SwapchainDesc

	textures   []*texture
	refs       int
	current    uint32
	fullscreen bool

	extent   bool
	minCount int
	stale    bool
}

var _ gpu.Swapchain = (*swapchain)(nil)

func validateSwapchainDesc(desc gpu.SwapchainDesc) error {
	switch {
	case desc.BufferCount < 2:
		return fmt.Errorf("soft: flip model swapchains need at least 2 buffers, got %d", desc.BufferCount)
	case desc.Format != gpu.FormatR8G8B8A8Unorm:
		return fmt.Errorf("soft: unsupported swapchain format %s", desc.Format)
	case desc.Width < 0 || desc.Height < 0:
		return fmt.Errorf("soft: invalid swapchain size %dx%d", desc.Width, desc.Height)
	}
	return nil
}

func newSwapchain(f *Factory, q *commandQueue, desc gpu.SwapchainDesc) (*swapchain, error) {
	if desc.SampleCount != 1 {
		return nil, fmt.Errorf("soft: swapchain sample count must be 1, got %d", desc.SampleCount)
	}
	if desc.SwapEffect != gpu.SwapEffectFlipDiscard {
		return nil, fmt.Errorf("soft: unsupported swap effect %d", desc.SwapEffect)
	}
	if err := validateSwapchainDesc(desc); err != nil {
		return nil, err
	}

	sc := &swapchain{
		queue:    q,
		surface:  f.cfg.Surface,
		extent:   f.cfg.SurfaceExtent,
		minCount: f.cfg.MinImageCount,
	}
	if sc.extent {
		if w, h := sc.surface.Size(); w <= 0 || h <= 0 {
			return nil, fmt.Errorf("soft: cannot create a swapchain for a surface with zero area")
		}
	}
	sc.allocate(desc)
	sc.init(f, "Swapchain", "")
	return sc, nil
}

// allocate replaces the images. Zero dimensions take the surface size, as do
// all dimensions of a chain following the surface extent.
func (sc *swapchain) allocate(desc gpu.SwapchainDesc) {
	w, h := sc.surface.Size()
	if desc.Width == 0 || sc.extent {
		desc.Width = max(w, 1)
	}
	if desc.Height == 0 || sc.extent {
		desc.Height = max(h, 1)
	}

	count := max(desc.BufferCount, sc.minCount)
	if count > desc.BufferCount {
		gpu.Logger().Info("surface needs more swapchain images than requested",
			"requested", desc.BufferCount,
			"min", sc.minCount,
		)
	}

	sc.desc = desc
	sc.textures = make([]*texture, count)
	for i := range sc.textures {
		sc.textures[i] = newTexture(desc.Width, desc.Height, desc.Format)
	}
	sc.current = 0
	sc.stale = false
}

func (sc *swapchain) Buffer(i int) (gpu.Image, error) {
	if i < 0 || i >= len(sc.textures) {
		return nil, fmt.Errorf("soft: swapchain buffer %d out of range [0, %d)", i, len(sc.textures))
	}

	ref := &imageRef{chain: sc, tex: sc.textures[i]}
	ref.init(sc.factory, "Resource", fmt.Sprintf("swapchain buffer %d", i))
	sc.refs++
	return ref, nil
}

func (sc *swapchain) BufferCount() int {
	return len(sc.textures)
}

func (sc *swapchain) CurrentBackBufferIndex() uint32 {
	return sc.current
}

func (sc *swapchain) ResizeBuffers(count, width, height int, format gpu.Format) error {
	if err := sc.factory.fault("ResizeBuffers"); err != nil {
		return err
	}
	if sc.refs > 0 {
		return fmt.Errorf("soft: %d swapchain buffer references are still held", sc.refs)
	}
	if n := sc.busy.Load(); n > 0 {
		sc.tracker().Violate("Swapchain#%d resized while referenced by %d pending GPU submissions", sc.id, n)
	}

	desc := sc.desc
	if count > 0 {
		desc.BufferCount = count
	}
	if format != gpu.FormatUnknown {
		desc.Format = format
	}
	desc.Width, desc.Height = width, height
	if err := validateSwapchainDesc(desc); err != nil {
		return err
	}

	if w, h := sc.surface.Size(); sc.extent && (w <= 0 || h <= 0) {
		sc.stale = true
		gpu.Logger().Debug("surface has zero area, keeping the old swapchain")
		return nil
	}
	sc.allocate(desc)
	return nil
}

func (sc *swapchain) Present(syncInterval int) error {
	if err := sc.factory.fault("Present"); err != nil {
		return err
	}
	if syncInterval < 0 || syncInterval > 4 {
		return fmt.Errorf("soft: invalid sync interval %d", syncInterval)
	}
	if sc.stale {
		return nil
	}

	tex := sc.textures[sc.current]
	surface := sc.surface
	tracker := sc.tracker()
	id := sc.id
	err := sc.queue.submit(work{
		run: func() {
			if tex.state != gpu.StatePresent {
				tracker.Violate("Swapchain#%d presented an image in state %s", id, tex.state)
			}
			surface.present(tex)
		},
		refs: []*object{&sc.object},
	})
	if err != nil {
		return err
	}

	sc.current = (sc.current + 1) % uint32(len(sc.textures))
	return nil
}

func (sc *swapchain) SetFullscreen(fullscreen bool) error {
	if err := sc.factory.fault("SetFullscreen"); err != nil {
		return err
	}
	sc.fullscreen = fullscreen
	return nil
}

func (sc *swapchain) Release() {
	if sc.fullscreen {
		sc.tracker().Violate("Swapchain#%d released in fullscreen mode", sc.id)
	}
	sc.release()
}

// imageRef is a reference to a swapchain image returned by Buffer.
type imageRef struct {
	object
	chain *swapchain
	tex   *texture
}

func (r *imageRef) Width() int {
	return r.tex.width
}

func (r *imageRef) Height() int {
	return r.tex.height
}

func (r *imageRef) Format() gpu.Format {
	return r.tex.format
}

func (r *imageRef) Release() {
	if r.release() {
		r.chain.refs--
	}
}
