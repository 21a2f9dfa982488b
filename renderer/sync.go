package renderer

import (
	"fmt"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// FrameSync serializes the CPU with the GPU timeline. Every Flush signals a
// strictly larger fence value and blocks until the GPU reaches it.
type FrameSync struct {
	queue gpu.Queue
	fence gpu.Fence
	value uint64
}

// NewFrameSync returns a FrameSync for a fence created with value 0.
func NewFrameSync(queue gpu.Queue, fence gpu.Fence) *FrameSync {
	return &FrameSync{queue: queue, fence: fence}
}

// Value is the last value Flush signaled.
func (s *FrameSync) Value() uint64 {
	return s.value
}

// Flush waits until all work submitted to the queue so far has completed.
// There is no timeout.
func (s *FrameSync) Flush() error {
	next := s.value + 1
	if err := s.queue.Signal(s.fence, next); err != nil {
		return fmt.Errorf("signaling fence value %d: %w", next, err)
	}
	s.value = next

	if s.fence.CompletedValue() >= next {
		return nil
	}
	if err := s.fence.Wait(next); err != nil {
		return fmt.Errorf("waiting for fence value %d: %w", next, err)
	}
	return nil
}

// Idle reports whether the GPU reached the last signaled value.
func (s *FrameSync) Idle() bool {
	return s.fence.CompletedValue() >= s.value
}
