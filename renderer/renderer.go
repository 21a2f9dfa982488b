// Package renderer draws a rotating triangle through the gpu interfaces.
//
// A Renderer owns every GPU object it uses: the device context, the frame
// targets, the mesh and uniform buffers, the pipeline and the command list.
// It is not safe for concurrent use; all methods must be called from the
// thread which owns the window. The CPU waits for the GPU at the end of every
// frame, so there is never more than one frame in flight.
package renderer

import (
	"errors"
	"fmt"

	"github.com/ironsmile/spinning-triangle-go/gpu"
	"github.com/ironsmile/spinning-triangle-go/mesh"
	"github.com/ironsmile/spinning-triangle-go/window/events"
)

// Window is the part of the window the renderer needs: its client size.
type Window interface {
	Desc() events.Desc
}

// ShaderSource provides the SPIR-V of the vertex and pixel shaders.
type ShaderSource interface {
	LoadPipeline() (vs []byte, ps []byte, err error)
}

// Options configure a Renderer.
type Options struct {
	// Debug emits the live object report on Close.
	Debug bool

	// Name is the debug name of the device.
	Name string

	// Mesh is the static mesh. The built-in triangle is drawn when nil.
	Mesh *mesh.Mesh

	// Clock drives the frame rate cap. The system clock is used when nil.
	Clock Clock
}

// Renderer renders the mesh once per accepted frame.
type Renderer struct {
	opts    Options
	tracker *gpu.Tracker

	dc        *DeviceContext
	sync      *FrameSync
	resources *ResourceSet
	pipeline  *Pipeline
	targets   *FrameTargets
	recorder  *FrameRecorder
	frame     *FrameState

	frames int
	closed bool
}

// New creates a renderer presenting to the surface factory was opened for.
// The renderer owns factory from then on, also when New fails.
func New(factory gpu.Factory, win Window, shaders ShaderSource, opts Options) (_ *Renderer, err error) {
	if opts.Mesh == nil {
		opts.Mesh = mesh.Triangle()
	}

	r := &Renderer{opts: opts, tracker: factory.Tracker()}
	defer func() {
		if err != nil {
			r.release()
		}
	}()

	r.dc, err = NewDeviceContext(factory, opts.Name)
	if err != nil {
		return nil, err
	}
	r.sync = NewFrameSync(r.dc.Queue, r.dc.Fence)

	desc := win.Desc()
	width, height := clampDimension(desc.Width), clampDimension(desc.Height)
	r.frame = NewFrameState(opts.Clock, float32(width)/float32(height))

	r.resources, err = NewResourceSet(r.dc.Device, opts.Mesh, &r.frame.Uniforms)
	if err != nil {
		return nil, err
	}
	if err := r.sync.Flush(); err != nil {
		return nil, newError(ResourceCreateError, "waiting for upload", err)
	}

	vs, ps, err := shaders.LoadPipeline()
	if err != nil {
		return nil, newError(PipelineCreateError, "loading shaders", err)
	}
	r.pipeline, err = BuildPipeline(r.dc.Device, vs, ps, mesh.InputLayout)
	if err != nil {
		return nil, err
	}

	r.targets = NewFrameTargets(r.dc, r.sync)
	if err := r.targets.Setup(width, height); err != nil {
		return nil, err
	}
	width, height = r.targets.Size()
	r.frame.SetAspect(r.targets.Aspect())

	r.recorder, err = NewFrameRecorder(r.dc.Device, r.dc.Pool, r.pipeline.State)
	if err != nil {
		return nil, err
	}

	gpu.Logger().Info("renderer ready",
		"width", width,
		"height", height,
		"vertices", len(opts.Mesh.Vertices),
		"indices", len(opts.Mesh.Indices),
	)
	return r, nil
}

// Render draws and presents one frame unless the frame rate cap says it is
// too early. It returns once the GPU finished the frame.
func (r *Renderer) Render() error {
	if r.closed {
		return ErrClosed
	}

	dt, ok := r.frame.Tick()
	if !ok {
		return nil
	}
	r.frame.Advance(dt)

	if err := r.resources.Uniforms.Write(&r.frame.Uniforms); err != nil {
		return newError(PresentError, "updating uniforms", err)
	}

	if err := r.recorder.Record(r.pipeline, r.targets, r.resources); err != nil {
		return r.abort(err)
	}
	if err := r.recorder.Submit(r.dc.Queue); err != nil {
		return r.abort(err)
	}
	if err := r.recorder.Present(r.targets); err != nil {
		return r.abort(err)
	}
	if err := r.recorder.Complete(r.sync); err != nil {
		return r.abort(err)
	}

	r.targets.Advance()
	r.frames++
	return nil
}

// abort waits for whatever part of the frame reached the GPU and returns the
// recorder to Idle.
func (r *Renderer) abort(err error) error {
	if ferr := r.sync.Flush(); ferr != nil {
		gpu.Logger().Warn("waiting after failed frame", "err", ferr)
	}
	r.recorder.Abort()
	return err
}

// Resize recreates the frame targets for a new client size. Dimensions are
// clamped to [1, MaxDimension].
func (r *Renderer) Resize(width, height int) error {
	if r.closed {
		return ErrClosed
	}
	if err := r.targets.Resize(width, height); err != nil {
		return err
	}
	r.frame.SetAspect(r.targets.Aspect())

	w, h := r.targets.Size()
	gpu.Logger().Debug("resized", "width", w, "height", h)
	return nil
}

// ReloadShaders replaces the pipeline with one built from new shader code.
// The old pipeline stays in use when building fails.
func (r *Renderer) ReloadShaders(vs, ps []byte) error {
	if r.closed {
		return ErrClosed
	}

	p, err := BuildPipeline(r.dc.Device, vs, ps, mesh.InputLayout)
	if err != nil {
		return err
	}
	if err := r.sync.Flush(); err != nil {
		p.Release()
		return newError(PipelineCreateError, "waiting before pipeline swap", err)
	}

	r.pipeline.Release()
	r.pipeline = p
	gpu.Logger().Info("shaders reloaded")
	return nil
}

// CurrentImageIndex is the back buffer the next frame renders to.
func (r *Renderer) CurrentImageIndex() uint32 {
	if r.targets == nil {
		return 0
	}
	return r.targets.CurrentImageIndex()
}

// Frames is the number of frames rendered so far.
func (r *Renderer) Frames() int {
	return r.frames
}

// Tracker returns the live object tracker of the renderer's factory. It stays
// usable after Close.
func (r *Renderer) Tracker() *gpu.Tracker {
	return r.tracker
}

// Close waits for the GPU, then releases everything in reverse creation
// order. Calling Close more than once is a no-op.
func (r *Renderer) Close() error {
	if r.closed {
		return nil
	}

	var errs []error
	if err := r.sync.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("waiting for the GPU: %w", err))
	}
	if err := r.recorder.Drain(r.dc.Queue, r.sync); err != nil {
		errs = append(errs, fmt.Errorf("draining command list: %w", err))
	}
	errs = append(errs, r.release())

	return errors.Join(errs...)
}

// release destroys whatever was created. It does not wait for the GPU.
func (r *Renderer) release() error {
	r.closed = true

	var err error
	if r.targets != nil {
		err = r.targets.Release()
		r.targets = nil
	}
	if r.pipeline != nil {
		r.pipeline.Release()
		r.pipeline = nil
	}
	if r.resources != nil {
		r.resources.Release()
		r.resources = nil
	}
	if r.recorder != nil {
		r.recorder.Release()
		r.recorder = nil
	}
	if r.dc != nil {
		if r.opts.Debug {
			r.tracker.Report()
		}
		r.dc.Release()
		r.dc = nil
	}
	return err
}
