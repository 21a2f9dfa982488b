// Package soft is a CPU implementation of the gpu interfaces.
//
// Command lists are executed by a queue goroutine which plays the role of the
// GPU timeline, so fences and the CPU/GPU ordering rules behave as on real
// hardware. Pipeline states execute the triangle shader pair natively:
// positions are transformed by projection · view · model read from the
// constant buffer bound to the first descriptor table, and the per-vertex
// color is interpolated perspective-correctly. Presented images are copied to
// a Surface which tests read back.
//
// Every object is registered with the factory's gpu.Tracker. Misuse which a
// validation layer would report (double release, release or map while the
// GPU still uses an object, wrong barrier states, resetting a busy command
// pool) is recorded as a violation.
package soft

import (
	"fmt"
	"sync/atomic"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// Name is the name the backend registers with gpu.Register.
const Name = "soft"

func init() {
	gpu.Register(Name, func(opts gpu.Options) (gpu.Factory, error) {
		cfg := Config{Debug: opts.Debug}
		if opts.Surface != nil {
			surface, ok := opts.Surface.(*Surface)
			if !ok {
				return nil, fmt.Errorf("soft: unsupported surface handle %T", opts.Surface)
			}
			cfg.Surface = surface
		}
		return NewFactory(cfg), nil
	})
}

// AdapterConfig describes one emulated adapter.
type AdapterConfig struct {
	Name     string
	Software bool
	Level    gpu.FeatureLevel
}

// DefaultAdapters is the adapter list used when Config.Adapters is empty: a
// software fallback adapter followed by the reference rasterizer.
var DefaultAdapters = []AdapterConfig{
	{Name: "Soft Basic Render Driver", Software: true, Level: gpu.FeatureLevel12_1},
	{Name: "Soft Reference Rasterizer", Level: gpu.FeatureLevel12_1},
}

// Config configures a soft Factory.
type Config struct {
	// Surface receives presented images. Swapchains cannot be created
	// without one.
	Surface *Surface

	Adapters []AdapterConfig

	// MaxLayoutVersion is the highest pipeline layout version devices
	// support.
	MaxLayoutVersion gpu.LayoutVersion

	// NoLayoutQuery makes Device.CheckLayoutVersion fail, as drivers
	// which predate versioned layouts do.
	NoLayoutQuery bool

	// Faults makes the named operation fail with the given error. Keys are
	// method names such as "CreateFence", "CreateBuffer", "Map",
	// "CreatePipelineState", "Present" or "ResizeBuffers".
	Faults map[string]error

	// SurfaceExtent makes swapchains always take the surface size, as
	// window system surfaces with a fixed current extent do. Resizing while
	// the surface has zero area keeps the old images and drops presents
	// until the next resize.
	SurfaceExtent bool

	// MinImageCount is the lowest number of images a swapchain gets,
	// whatever buffer count was asked for.
	MinImageCount int

	Debug bool
}

// NewFactory returns a factory for cfg.
func NewFactory(cfg Config) *Factory {
	if len(cfg.Adapters) == 0 {
		cfg.Adapters = DefaultAdapters
	}
	if cfg.MaxLayoutVersion == gpu.LayoutVersion1_0 && !cfg.NoLayoutQuery {
		cfg.MaxLayoutVersion = gpu.LayoutVersion1_1
	}

	f := &Factory{cfg: cfg, tracker: gpu.NewTracker()}
	f.init(f, "Factory", "")
	return f
}

// Factory implements gpu.Factory.
type Factory struct {
	object
	cfg     Config
	tracker *gpu.Tracker
}

var _ gpu.Factory = (*Factory)(nil)

func (f *Factory) fault(op string) error {
	if err, ok := f.cfg.Faults[op]; ok {
		return fmt.Errorf("soft: %s: %w", op, err)
	}
	return nil
}

// Tracker implements gpu.Factory.
func (f *Factory) Tracker() *gpu.Tracker {
	return f.tracker
}

// Adapters implements gpu.Factory.
func (f *Factory) Adapters() ([]gpu.Adapter, error) {
	if err := f.fault("Adapters"); err != nil {
		return nil, err
	}

	adapters := make([]gpu.Adapter, 0, len(f.cfg.Adapters))
	for _, c := range f.cfg.Adapters {
		a := &adapter{cfg: c}
		a.init(f, "Adapter", c.Name)
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// CreateSwapchain implements gpu.Factory.
func (f *Factory) CreateSwapchain(queue gpu.Queue, desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	if err := f.fault("CreateSwapchain"); err != nil {
		return nil, err
	}
	if f.cfg.Surface == nil {
		return nil, fmt.Errorf("soft: factory has no surface to present to")
	}
	q, ok := queue.(*commandQueue)
	if !ok {
		return nil, fmt.Errorf("soft: foreign queue %T", queue)
	}
	return newSwapchain(f, q, desc)
}

// Release implements gpu.Releaser.
func (f *Factory) Release() {
	f.release()
}

type adapter struct {
	object
	cfg AdapterConfig
}

func (a *adapter) Desc() gpu.AdapterDesc {
	return gpu.AdapterDesc{Name: a.cfg.Name, Software: a.cfg.Software}
}

func (a *adapter) Supports(level gpu.FeatureLevel) bool {
	return level <= a.cfg.Level
}

func (a *adapter) CreateDevice(level gpu.FeatureLevel) (gpu.Device, error) {
	if err := a.factory.fault("CreateDevice"); err != nil {
		return nil, err
	}
	if !a.Supports(level) {
		return nil, fmt.Errorf("soft: adapter %q does not support feature level %s", a.cfg.Name, level)
	}

	d := &device{}
	d.init(a.factory, "Device", "")
	return d, nil
}

func (a *adapter) Release() {
	a.release()
}

// object is embedded by every soft type. busy counts queued GPU work which
// references the object.
type object struct {
	factory  *Factory
	id       uint64
	kind     string
	busy     atomic.Int32
	released atomic.Bool
}

func (o *object) init(f *Factory, kind, name string) {
	o.factory = f
	o.kind = kind
	o.id = f.tracker.Track(kind, name)
}

func (o *object) tracker() *gpu.Tracker {
	return o.factory.tracker
}

// release untracks the object and reports whether this was the first release.
func (o *object) release() bool {
	if n := o.busy.Load(); n > 0 {
		o.tracker().Violate("%s#%d released while referenced by %d pending GPU submissions", o.kind, o.id, n)
	}
	first := o.released.CompareAndSwap(false, true)
	o.tracker().Untrack(o.id)
	return first
}

func (o *object) alive() bool {
	return !o.released.Load()
}
