package soft

import (
	"fmt"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

type vertexBinding struct {
	buf    *buffer
	size   int
	stride int
}

type indexBinding struct {
	buf    *buffer
	size   int
	format gpu.Format
}

type tableBinding struct {
	heap *descriptorHeap
	slot int
}

// execState is the pipeline state seen by commands while a list executes on
// the queue goroutine.
type execState struct {
	tracker *gpu.Tracker
	list    uint64

	pso      *pipelineState
	layout   *pipelineLayout
	viewport *gpu.Viewport
	scissor  *gpu.Rect
	heaps    []*descriptorHeap
	tables   map[int]tableBinding
	target   *texture
	topology *gpu.Topology
	vertices map[int]vertexBinding
	indices  *indexBinding
}

func (s *execState) reset(pso *pipelineState) {
	*s = execState{
		tracker:  s.tracker,
		list:     s.list,
		pso:      pso,
		tables:   make(map[int]tableBinding),
		vertices: make(map[int]vertexBinding),
	}
}

func (s *execState) violate(format string, args ...any) {
	s.tracker.Violate("GraphicsCommandList#%d: %s", s.list, fmt.Sprintf(format, args...))
}

type command func(*execState)

type commandList struct {
	object

	recording bool
	pool      *commandPool
	initial   *pipelineState
	cmds      []command
	refs      map[*object]struct{}
}

var _ gpu.CommandList = (*commandList)(nil)

func (l *commandList) begin(pool *commandPool, pso gpu.PipelineState) error {
	var initial *pipelineState
	if pso != nil {
		p, ok := pso.(*pipelineState)
		if !ok {
			return fmt.Errorf("soft: foreign pipeline state %T", pso)
		}
		initial = p
	}

	l.recording = true
	l.pool = pool
	l.initial = initial
	l.cmds = nil
	l.refs = map[*object]struct{}{&pool.object: {}}
	if initial != nil {
		l.refs[&initial.object] = struct{}{}
	}
	return nil
}

func (l *commandList) record(cmd command, refs ...*object) {
	if !l.recording {
		l.tracker().Violate("GraphicsCommandList#%d: command recorded into a closed list", l.id)
		return
	}
	for _, o := range refs {
		l.refs[o] = struct{}{}
	}
	l.cmds = append(l.cmds, cmd)
}

// submission returns the closure replaying the recorded commands and the
// objects it references.
func (l *commandList) submission() (func(), []*object, error) {
	if l.recording {
		return nil, nil, fmt.Errorf("soft: command list #%d executed while still recording", l.id)
	}
	if !l.alive() {
		return nil, nil, fmt.Errorf("soft: released command list #%d executed", l.id)
	}

	cmds := l.cmds
	initial := l.initial
	st := &execState{tracker: l.tracker(), list: l.id}

	refs := make([]*object, 0, len(l.refs)+1)
	refs = append(refs, &l.object)
	for o := range l.refs {
		refs = append(refs, o)
	}

	return func() {
		st.reset(initial)
		for _, cmd := range cmds {
			cmd(st)
		}
	}, refs, nil
}

func (l *commandList) Reset(pool gpu.CommandPool, pso gpu.PipelineState) error {
	if err := l.factory.fault("ResetCommandList"); err != nil {
		return err
	}
	if l.recording {
		return fmt.Errorf("soft: reset of command list #%d which was not closed", l.id)
	}
	p, ok := pool.(*commandPool)
	if !ok {
		return fmt.Errorf("soft: foreign command pool %T", pool)
	}
	return l.begin(p, pso)
}

func (l *commandList) Close() error {
	if !l.recording {
		return fmt.Errorf("soft: command list #%d closed twice", l.id)
	}
	l.recording = false
	return nil
}

func (l *commandList) ClearState(pso gpu.PipelineState) {
	var p *pipelineState
	var refs []*object
	if pso != nil {
		p, _ = pso.(*pipelineState)
		if p != nil {
			refs = append(refs, &p.object)
		}
	}
	l.record(func(s *execState) { s.reset(p) }, refs...)
}

func (l *commandList) SetPipelineLayout(layout gpu.PipelineLayout) {
	pl, ok := layout.(*pipelineLayout)
	if !ok {
		l.tracker().Violate("GraphicsCommandList#%d: foreign pipeline layout %T", l.id, layout)
		return
	}
	l.record(func(s *execState) {
		s.layout = pl
		clear(s.tables)
	}, &pl.object)
}

func (l *commandList) SetViewports(viewports ...gpu.Viewport) {
	if len(viewports) != 1 {
		l.tracker().Violate("GraphicsCommandList#%d: %d viewports set, exactly one supported", l.id, len(viewports))
		return
	}
	vp := viewports[0]
	l.record(func(s *execState) { s.viewport = &vp })
}

func (l *commandList) SetScissorRects(rects ...gpu.Rect) {
	if len(rects) != 1 {
		l.tracker().Violate("GraphicsCommandList#%d: %d scissor rects set, exactly one supported", l.id, len(rects))
		return
	}
	r := rects[0]
	l.record(func(s *execState) { s.scissor = &r })
}

func (l *commandList) SetDescriptorHeaps(heaps ...gpu.DescriptorHeap) {
	hs := make([]*descriptorHeap, 0, len(heaps))
	refs := make([]*object, 0, len(heaps))
	for _, h := range heaps {
		dh, ok := h.(*descriptorHeap)
		if !ok {
			l.tracker().Violate("GraphicsCommandList#%d: foreign descriptor heap %T", l.id, h)
			return
		}
		if !dh.desc.ShaderVisible {
			l.tracker().Violate("GraphicsCommandList#%d: descriptor heap %q is not shader visible", l.id, dh.desc.Name)
		}
		hs = append(hs, dh)
		refs = append(refs, &dh.object)
	}
	l.record(func(s *execState) { s.heaps = hs }, refs...)
}

func (l *commandList) SetDescriptorTable(param int, heap gpu.DescriptorHeap, slot int) {
	dh, ok := heap.(*descriptorHeap)
	if !ok {
		l.tracker().Violate("GraphicsCommandList#%d: foreign descriptor heap %T", l.id, heap)
		return
	}
	l.record(func(s *execState) {
		if s.layout == nil {
			s.violate("descriptor table set without a pipeline layout")
			return
		}
		if param < 0 || param >= len(s.layout.desc.Parameters) {
			s.violate("descriptor table parameter %d not in pipeline layout", param)
			return
		}
		bound := false
		for _, h := range s.heaps {
			bound = bound || h == dh
		}
		if !bound {
			s.violate("descriptor table points into a heap which is not bound")
		}
		s.tables[param] = tableBinding{heap: dh, slot: slot}
	}, &dh.object)
}

func (l *commandList) ResourceBarrier(barriers ...gpu.Barrier) {
	type transition struct {
		ref           *imageRef
		before, after gpu.ResourceState
	}

	ts := make([]transition, 0, len(barriers))
	refs := make([]*object, 0, len(barriers))
	for _, b := range barriers {
		ref, ok := b.Image.(*imageRef)
		if !ok {
			l.tracker().Violate("GraphicsCommandList#%d: foreign image %T in barrier", l.id, b.Image)
			return
		}
		ts = append(ts, transition{ref: ref, before: b.Before, after: b.After})
		refs = append(refs, &ref.object)
	}

	l.record(func(s *execState) {
		for _, t := range ts {
			tex := t.ref.tex
			if tex.state != t.before {
				s.violate("barrier expects image in state %s but it is in %s", t.before, tex.state)
			}
			tex.state = t.after
		}
	}, refs...)
}

func (l *commandList) rtv(rtv gpu.RenderTargetView) (*descriptorHeap, bool) {
	h, ok := rtv.Heap.(*descriptorHeap)
	if !ok {
		l.tracker().Violate("GraphicsCommandList#%d: foreign descriptor heap %T", l.id, rtv.Heap)
		return nil, false
	}
	if h.desc.Type != gpu.HeapTypeRTV {
		l.tracker().Violate("GraphicsCommandList#%d: render target view in a non-RTV heap", l.id)
		return nil, false
	}
	return h, true
}

func (l *commandList) SetRenderTarget(rtv gpu.RenderTargetView) {
	h, ok := l.rtv(rtv)
	if !ok {
		return
	}
	l.record(func(s *execState) {
		d, ok := h.slot(rtv.Slot)
		if !ok || d.tex == nil {
			s.violate("render target view slot %d is empty", rtv.Slot)
			return
		}
		s.target = d.tex
	}, &h.object)
}

func (l *commandList) ClearRenderTargetView(rtv gpu.RenderTargetView, color [4]float32) {
	h, ok := l.rtv(rtv)
	if !ok {
		return
	}
	l.record(func(s *execState) {
		d, ok := h.slot(rtv.Slot)
		if !ok || d.tex == nil {
			s.violate("render target view slot %d is empty", rtv.Slot)
			return
		}
		if d.tex.state != gpu.StateRenderTarget {
			s.violate("clear of an image in state %s", d.tex.state)
		}
		d.tex.fill(color)
	}, &h.object)
}

func (l *commandList) SetPrimitiveTopology(t gpu.Topology) {
	l.record(func(s *execState) { s.topology = &t })
}

func (l *commandList) SetVertexBuffers(startSlot int, views ...gpu.VertexBufferView) {
	bindings := make([]vertexBinding, 0, len(views))
	refs := make([]*object, 0, len(views))
	for _, v := range views {
		b, ok := v.Buffer.(*buffer)
		if !ok {
			l.tracker().Violate("GraphicsCommandList#%d: foreign vertex buffer %T", l.id, v.Buffer)
			return
		}
		bindings = append(bindings, vertexBinding{buf: b, size: v.Size, stride: v.Stride})
		refs = append(refs, &b.object)
	}
	l.record(func(s *execState) {
		for i, b := range bindings {
			s.vertices[startSlot+i] = b
		}
	}, refs...)
}

func (l *commandList) SetIndexBuffer(view gpu.IndexBufferView) {
	b, ok := view.Buffer.(*buffer)
	if !ok {
		l.tracker().Violate("GraphicsCommandList#%d: foreign index buffer %T", l.id, view.Buffer)
		return
	}
	ib := indexBinding{buf: b, size: view.Size, format: view.Format}
	l.record(func(s *execState) { s.indices = &ib }, &b.object)
}

func (l *commandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex, baseVertex, startInstance int) {
	l.record(func(s *execState) {
		for inst := 0; inst < instanceCount; inst++ {
			s.drawIndexed(indexCount, startIndex, baseVertex)
		}
	})
}

func (l *commandList) Release() {
	l.release()
}
