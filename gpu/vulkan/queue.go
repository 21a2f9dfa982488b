package vulkan

import (
	"fmt"
	"math"

	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// commandQueue submits to the graphics queue. Consecutive submissions are
// chained through two semaphores so that a later present waits for all of
// them.
type commandQueue struct {
	id     uint64
	dev    *device
	handle vk.Queue

	sems    [2]vk.Semaphore
	current int
	pending bool
}

func newCommandQueue(d *device) (*commandQueue, error) {
	q := &commandQueue{dev: d, handle: d.graphicsQueue}

	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	for i := range q.sems {
		var sem vk.Semaphore
		if err := vk.Error(
			vk.CreateSemaphore(d.handle, &semaphoreInfo, nil, &sem),
		); err != nil {
			q.destroySemaphores()
			return nil, fmt.Errorf("failed to create queue semaphore: %w", err)
		}
		q.sems[i] = sem
	}

	q.id = d.tracker().Track("CommandQueue", "")
	return q, nil
}

// takeWait returns the semaphore signaled by the last submission, if it was
// not waited on yet.
func (q *commandQueue) takeWait() []vk.Semaphore {
	if !q.pending {
		return nil
	}
	q.pending = false
	return []vk.Semaphore{q.sems[q.current]}
}

// consume submits an empty batch waiting on wait, leaving the semaphores
// unsignaled for reuse.
func (q *commandQueue) consume(wait []vk.Semaphore) error {
	if len(wait) == 0 {
		return nil
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
		},
	}
	res := vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submitInfo}, vk.Fence(vk.NullHandle))
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("queue submit error: %w", err)
	}
	return nil
}

func (q *commandQueue) ExecuteCommandLists(lists ...gpu.CommandList) error {
	buffers := make([]vk.CommandBuffer, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			return fmt.Errorf("vulkan: foreign command list %T", l)
		}
		if cl.recording {
			return fmt.Errorf("vulkan: command list executed while still recording")
		}
		buffers = append(buffers, cl.handle)
	}

	wait := q.takeWait()
	next := q.current ^ 1
	signal := []vk.Semaphore{q.sems[next]}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		CommandBufferCount:   uint32(len(buffers)),
		PCommandBuffers:      buffers,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    signal,
	}
	if len(wait) > 0 {
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		}
	}

	res := vk.QueueSubmit(q.handle, 1, []vk.SubmitInfo{submitInfo}, vk.Fence(vk.NullHandle))
	if err := vk.Error(res); err != nil {
		return fmt.Errorf("queue submit error: %w", err)
	}

	q.current = next
	q.pending = true
	return nil
}

func (q *commandQueue) Signal(f gpu.Fence, value uint64) error {
	fe, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("vulkan: foreign fence %T", f)
	}
	if value <= fe.scheduled {
		fe.dev.tracker().Violate("Fence#%d signaled with %d which does not exceed %d", fe.id, value, fe.scheduled)
	}

	handle, err := fe.acquire()
	if err != nil {
		return err
	}

	res := vk.QueueSubmit(q.handle, 0, nil, handle)
	if err := vk.Error(res); err != nil {
		fe.free = append(fe.free, handle)
		return fmt.Errorf("queue signal error: %w", err)
	}

	fe.pending = append(fe.pending, pendingValue{handle: handle, value: value})
	fe.scheduled = max(fe.scheduled, value)
	return nil
}

func (q *commandQueue) destroySemaphores() {
	for i, sem := range q.sems {
		if sem != vk.Semaphore(vk.NullHandle) {
			vk.DestroySemaphore(q.dev.handle, sem, nil)
			q.sems[i] = vk.Semaphore(vk.NullHandle)
		}
	}
}

func (q *commandQueue) Release() {
	vk.QueueWaitIdle(q.handle)
	q.destroySemaphores()
	q.dev.tracker().Untrack(q.id)
}

type pendingValue struct {
	handle vk.Fence
	value  uint64
}

// fence emulates a monotonic counter. Every Signal submits a binary fence
// tagged with the value it stands for.
type fence struct {
	id  uint64
	dev *device

	completed uint64
	scheduled uint64
	pending   []pendingValue
	free      []vk.Fence
}

func (f *fence) acquire() (vk.Fence, error) {
	if n := len(f.free); n > 0 {
		handle := f.free[n-1]
		f.free = f.free[:n-1]
		vk.ResetFences(f.dev.handle, 1, []vk.Fence{handle})
		return handle, nil
	}

	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}

	var handle vk.Fence
	if err := vk.Error(
		vk.CreateFence(f.dev.handle, &fenceInfo, nil, &handle),
	); err != nil {
		return handle, fmt.Errorf("failed to create fence: %w", err)
	}
	return handle, nil
}

// poll retires every pending value whose fence is signaled, in submission
// order.
func (f *fence) poll() {
	for len(f.pending) > 0 {
		p := f.pending[0]
		if vk.GetFenceStatus(f.dev.handle, p.handle) != vk.Success {
			return
		}
		f.retire()
	}
}

func (f *fence) retire() {
	p := f.pending[0]
	f.pending = f.pending[1:]
	f.completed = p.value
	f.free = append(f.free, p.handle)
}

func (f *fence) CompletedValue() uint64 {
	f.poll()
	return f.completed
}

func (f *fence) Wait(value uint64) error {
	f.poll()
	if f.completed >= value {
		return nil
	}
	if f.scheduled < value {
		return fmt.Errorf("vulkan: fence value %d was never signaled (last scheduled %d)", value, f.scheduled)
	}

	for f.completed < value && len(f.pending) > 0 {
		handle := f.pending[0].handle
		res := vk.WaitForFences(f.dev.handle, 1, []vk.Fence{handle}, vk.True, math.MaxUint64)
		if err := vk.Error(res); err != nil {
			return fmt.Errorf("waiting for fence value %d: %w", value, err)
		}
		f.retire()
	}
	return nil
}

func (f *fence) Release() {
	if len(f.pending) > 0 {
		f.dev.tracker().Violate("Fence#%d released with %d values pending", f.id, len(f.pending))
	}
	for _, p := range f.pending {
		vk.DestroyFence(f.dev.handle, p.handle, nil)
	}
	for _, handle := range f.free {
		vk.DestroyFence(f.dev.handle, handle, nil)
	}
	f.pending, f.free = nil, nil
	f.dev.tracker().Untrack(f.id)
}
