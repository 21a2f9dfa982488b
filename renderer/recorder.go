package renderer

import (
	"fmt"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// FrameStage is the position of a frame in its lifecycle.
type FrameStage int

const (
	Idle FrameStage = iota
	Recording
	Submitted
	Presented
)

func (s FrameStage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Submitted:
		return "submitted"
	case Presented:
		return "presented"
	}
	return fmt.Sprintf("FrameStage(%d)", int(s))
}

// FrameRecorder records the single command list of a frame and moves it
// through Idle, Recording, Submitted and Presented back to Idle.
type FrameRecorder struct {
	pool  gpu.CommandPool
	list  gpu.CommandList
	stage FrameStage
	open  bool
}

// NewFrameRecorder creates the command list. It is closed right away so the
// first frame can reset it.
func NewFrameRecorder(device gpu.Device, pool gpu.CommandPool, pso gpu.PipelineState) (*FrameRecorder, error) {
	list, err := device.CreateCommandList(pool, pso)
	if err != nil {
		return nil, newError(ResourceCreateError, "creating command list", err)
	}
	if err := list.Close(); err != nil {
		list.Release()
		return nil, newError(ResourceCreateError, "closing command list", err)
	}
	return &FrameRecorder{pool: pool, list: list}, nil
}

// Stage returns the current stage.
func (r *FrameRecorder) Stage() FrameStage {
	return r.stage
}

func (r *FrameRecorder) transition(from, to FrameStage) error {
	if r.stage != from {
		return fmt.Errorf("%w: %s to %s while %s", ErrInvalidState, from, to, r.stage)
	}
	r.stage = to
	return nil
}

// Record resets the pool and the list and records the whole frame: clear the
// current back buffer and draw the mesh into it.
func (r *FrameRecorder) Record(p *Pipeline, ft *FrameTargets, rs *ResourceSet) error {
	if err := r.transition(Idle, Recording); err != nil {
		return err
	}

	if err := r.pool.Reset(); err != nil {
		return newError(PresentError, "resetting command pool", err)
	}
	if err := r.list.Reset(r.pool, p.State); err != nil {
		return newError(PresentError, "resetting command list", err)
	}
	r.open = true

	img, rtv := ft.Current()
	l := r.list

	l.SetPipelineLayout(p.Layout)
	l.SetViewports(ft.Viewport())
	l.SetScissorRects(ft.Scissor())
	l.SetDescriptorHeaps(rs.Uniforms.Heap)
	l.SetDescriptorTable(0, rs.Uniforms.Heap, 0)

	l.ResourceBarrier(gpu.Barrier{Image: img, Before: gpu.StatePresent, After: gpu.StateRenderTarget})
	l.SetRenderTarget(rtv)
	l.ClearRenderTargetView(rtv, ClearColor)
	l.SetPrimitiveTopology(gpu.TopologyTriangleList)
	l.SetVertexBuffers(0, rs.Vertices.View)
	l.SetIndexBuffer(rs.Indices.View)
	l.DrawIndexedInstanced(rs.Indices.Count, 1, 0, 0, 0)
	l.ResourceBarrier(gpu.Barrier{Image: img, Before: gpu.StateRenderTarget, After: gpu.StatePresent})

	r.open = false
	if err := l.Close(); err != nil {
		return newError(PresentError, "closing command list", err)
	}
	return nil
}

// Submit executes the recorded list on queue.
func (r *FrameRecorder) Submit(queue gpu.Queue) error {
	if err := r.transition(Recording, Submitted); err != nil {
		return err
	}
	if err := queue.ExecuteCommandLists(r.list); err != nil {
		return newError(PresentError, "executing command list", err)
	}
	return nil
}

// Present presents the frame's back buffer.
func (r *FrameRecorder) Present(ft *FrameTargets) error {
	if err := r.transition(Submitted, Presented); err != nil {
		return err
	}
	return ft.Present()
}

// Complete waits for the GPU to finish the frame.
func (r *FrameRecorder) Complete(sync *FrameSync) error {
	if err := r.transition(Presented, Idle); err != nil {
		return err
	}
	if err := sync.Flush(); err != nil {
		return newError(PresentError, "waiting for frame", err)
	}
	return nil
}

// Abort returns the recorder to Idle after a failed step, closing the list
// when recording stopped half way. The GPU must be idle.
func (r *FrameRecorder) Abort() {
	if r.open {
		if err := r.list.Close(); err != nil {
			gpu.Logger().Debug("closing aborted command list", "err", err)
		}
		r.open = false
	}
	r.stage = Idle
}

// Drain leaves the list empty and closed: it is reset, its state cleared, and
// it is executed and waited for once more.
func (r *FrameRecorder) Drain(queue gpu.Queue, sync *FrameSync) error {
	if r.stage != Idle {
		return fmt.Errorf("%w: draining while %s", ErrInvalidState, r.stage)
	}
	if err := r.pool.Reset(); err != nil {
		return fmt.Errorf("resetting command pool: %w", err)
	}
	if err := r.list.Reset(r.pool, nil); err != nil {
		return fmt.Errorf("resetting command list: %w", err)
	}
	r.list.ClearState(nil)
	if err := r.list.Close(); err != nil {
		return fmt.Errorf("closing command list: %w", err)
	}
	if err := queue.ExecuteCommandLists(r.list); err != nil {
		return fmt.Errorf("executing command list: %w", err)
	}
	return sync.Flush()
}

// Release destroys the command list.
func (r *FrameRecorder) Release() {
	if r.list != nil {
		r.list.Release()
		r.list = nil
	}
}
