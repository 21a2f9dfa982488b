package soft

import (
	"fmt"
	"sync"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// work is one unit executed on the queue goroutine. Every object in refs is
// marked busy from submission until run returns. after runs once the refs
// are no longer busy.
type work struct {
	run   func()
	after func()
	refs  []*object
}

type commandQueue struct {
	object

	mu     sync.Mutex
	closed bool
	work   chan work
	done   chan struct{}
}

var _ gpu.Queue = (*commandQueue)(nil)

func newCommandQueue(f *Factory) *commandQueue {
	q := &commandQueue{
		work: make(chan work, 64),
		done: make(chan struct{}),
	}
	q.init(f, "CommandQueue", "")
	go q.loop()
	return q
}

func (q *commandQueue) loop() {
	defer close(q.done)

	for w := range q.work {
		if w.run != nil {
			w.run()
		}
		for _, o := range w.refs {
			o.busy.Add(-1)
		}
		if w.after != nil {
			w.after()
		}
	}
}

func (q *commandQueue) submit(w work) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("soft: submission to a released queue")
	}
	for _, o := range w.refs {
		o.busy.Add(1)
	}
	q.work <- w
	return nil
}

func (q *commandQueue) ExecuteCommandLists(lists ...gpu.CommandList) error {
	if err := q.factory.fault("ExecuteCommandLists"); err != nil {
		return err
	}

	var (
		runs []func()
		refs []*object
	)
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok {
			return fmt.Errorf("soft: foreign command list %T", l)
		}
		run, lrefs, err := cl.submission()
		if err != nil {
			return err
		}
		runs = append(runs, run)
		refs = append(refs, lrefs...)
	}

	return q.submit(work{
		run: func() {
			for _, run := range runs {
				run()
			}
		},
		refs: refs,
	})
}

func (q *commandQueue) Signal(f gpu.Fence, value uint64) error {
	if err := q.factory.fault("Signal"); err != nil {
		return err
	}
	fe, ok := f.(*fence)
	if !ok {
		return fmt.Errorf("soft: foreign fence %T", f)
	}

	fe.scheduled(value)
	return q.submit(work{
		after: func() { fe.signal(value) },
		refs:  []*object{&fe.object},
	})
}

// Release drains the queue. Work still pending is executed before the
// goroutine exits.
func (q *commandQueue) Release() {
	if !q.release() {
		return
	}

	q.mu.Lock()
	q.closed = true
	close(q.work)
	q.mu.Unlock()

	<-q.done
}

type fence struct {
	object

	mu           sync.Mutex
	cond         *sync.Cond
	value        uint64
	scheduledMax uint64
}

var _ gpu.Fence = (*fence)(nil)

func newFence(f *Factory, initial uint64) *fence {
	fe := &fence{value: initial, scheduledMax: initial}
	fe.cond = sync.NewCond(&fe.mu)
	fe.init(f, "Fence", "")
	return fe
}

// scheduled records that value will be signaled by already submitted work.
func (f *fence) scheduled(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if value <= f.scheduledMax {
		f.tracker().Violate("Fence#%d signaled with %d which does not exceed %d", f.id, value, f.scheduledMax)
	}
	f.scheduledMax = max(f.scheduledMax, value)
}

func (f *fence) signal(value uint64) {
	f.mu.Lock()
	f.value = value
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Wait fails instead of blocking forever when no submitted work will ever
// reach value.
func (f *fence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.value < value && f.scheduledMax < value {
		return fmt.Errorf("soft: fence value %d was never signaled (last scheduled %d)", value, f.scheduledMax)
	}
	for f.value < value {
		f.cond.Wait()
	}
	return nil
}

func (f *fence) Release() {
	f.release()
}
