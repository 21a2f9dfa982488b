package soft

import (
	"encoding/binary"
	"math"

	"github.com/xlab/linmath"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// uniformSize is the size of the uniform block the triangle shaders read:
// projection, model and view matrices in that order.
const uniformSize = 3 * 64

type clipVertex struct {
	pos   linmath.Vec4
	color linmath.Vec3
}

func readFloat(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func readVec3(b []byte, off int) linmath.Vec3 {
	return linmath.Vec3{readFloat(b, off), readFloat(b, off+4), readFloat(b, off+8)}
}

// readMat4 decodes a column-major matrix.
func readMat4(b []byte, off int) linmath.Mat4x4 {
	var m linmath.Mat4x4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			m[c][r] = readFloat(b, off+(c*4+r)*4)
		}
	}
	return m
}

func transform(m *linmath.Mat4x4, v linmath.Vec4) linmath.Vec4 {
	var out linmath.Vec4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r] += m[c][r] * v[c]
		}
	}
	return out
}

// uniforms returns projection · view · model from the constant buffer bound
// to the first descriptor table.
func (s *execState) uniforms() (linmath.Mat4x4, bool) {
	var mvp linmath.Mat4x4

	t, ok := s.tables[0]
	if !ok {
		s.violate("draw without a constant buffer bound to parameter 0")
		return mvp, false
	}
	d, ok := t.heap.slot(t.slot)
	if !ok || d.buf == nil {
		s.violate("constant buffer view slot %d is empty", t.slot)
		return mvp, false
	}
	if d.size < uniformSize {
		s.violate("constant buffer view of %d bytes is smaller than the %d byte uniform block", d.size, uniformSize)
		return mvp, false
	}

	proj := readMat4(d.buf.data, 0)
	model := readMat4(d.buf.data, 64)
	view := readMat4(d.buf.data, 128)

	var pv linmath.Mat4x4
	pv.Mult(&proj, &view)
	mvp.Mult(&pv, &model)
	return mvp, true
}

func (s *execState) fetchIndex(i int) (int, bool) {
	ib := s.indices
	size := ib.format.Size()
	off := i * size
	if size == 0 || off+size > ib.size || off+size > len(ib.buf.data) {
		s.violate("index %d outside the bound index buffer", i)
		return 0, false
	}
	switch ib.format {
	case gpu.FormatR16Uint:
		return int(binary.LittleEndian.Uint16(ib.buf.data[off:])), true
	default:
		return int(binary.LittleEndian.Uint32(ib.buf.data[off:])), true
	}
}

func (s *execState) fetchVertex(index int, mvp *linmath.Mat4x4) (clipVertex, bool) {
	var v clipVertex

	pso := s.pso
	vb, ok := s.vertices[pso.position.Slot]
	if !ok {
		s.violate("no vertex buffer bound to slot %d", pso.position.Slot)
		return v, false
	}
	base := index * vb.stride
	if index < 0 || base+vb.stride > vb.size || base+vb.stride > len(vb.buf.data) {
		s.violate("vertex %d outside the bound vertex buffer", index)
		return v, false
	}

	p := readVec3(vb.buf.data, base+pso.position.Offset)
	v.pos = transform(mvp, linmath.Vec4{p[0], p[1], p[2], 1})
	v.color = linmath.Vec3{1, 1, 1}
	if pso.hasColor {
		if cb, ok := s.vertices[pso.color.Slot]; ok {
			v.color = readVec3(cb.buf.data, index*cb.stride+pso.color.Offset)
		}
	}
	return v, true
}

func (s *execState) drawIndexed(indexCount, startIndex, baseVertex int) {
	switch {
	case s.pso == nil:
		s.violate("draw without a pipeline state")
		return
	case s.layout == nil:
		s.violate("draw without a pipeline layout")
		return
	case s.layout != s.pso.layout:
		s.violate("pipeline layout does not match the pipeline state")
		return
	case s.target == nil:
		s.violate("draw without a render target")
		return
	case s.viewport == nil || s.scissor == nil:
		s.violate("draw without viewport and scissor rect")
		return
	case s.topology == nil || *s.topology != gpu.TopologyTriangleList:
		s.violate("draw without triangle list topology")
		return
	case s.indices == nil:
		s.violate("indexed draw without an index buffer")
		return
	}
	if s.target.state != gpu.StateRenderTarget {
		s.violate("draw into an image in state %s", s.target.state)
	}

	mvp, ok := s.uniforms()
	if !ok {
		return
	}

	var tri [3]clipVertex
	for i := 0; i+3 <= indexCount; i += 3 {
		for k := range tri {
			idx, ok := s.fetchIndex(startIndex + i + k)
			if !ok {
				return
			}
			v, ok := s.fetchVertex(idx+baseVertex, &mvp)
			if !ok {
				return
			}
			tri[k] = v
		}
		s.rasterize(tri)
	}
}

func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// rasterize fills the pixels whose centers lie inside tri. Triangles which
// cross the w = 0 plane are dropped.
func (s *execState) rasterize(tri [3]clipVertex) {
	var sx, sy, iw [3]float32
	vp := s.viewport
	for k, v := range tri {
		w := v.pos[3]
		if w <= 0 {
			return
		}
		iw[k] = 1 / w
		sx[k] = vp.X + (v.pos[0]*iw[k]+1)*0.5*vp.Width
		sy[k] = vp.Y + (1-v.pos[1]*iw[k])*0.5*vp.Height
	}

	area := edge(sx[0], sy[0], sx[1], sy[1], sx[2], sy[2])
	if area == 0 {
		return
	}
	rast := s.pso.desc.Rasterizer
	// Screen space has y pointing down, so a positive area is clockwise.
	front := (area > 0) != rast.FrontCounterClockwise
	if (rast.Cull == gpu.CullBack && !front) || (rast.Cull == gpu.CullFront && front) {
		return
	}

	tex := s.target
	left := max(0, s.scissor.Left, int(vp.X))
	top := max(0, s.scissor.Top, int(vp.Y))
	right := min(tex.width, s.scissor.Right, int(vp.X+vp.Width))
	bottom := min(tex.height, s.scissor.Bottom, int(vp.Y+vp.Height))

	minX := max(left, int(math.Floor(float64(min(sx[0], sx[1], sx[2])))))
	maxX := min(right, int(math.Ceil(float64(max(sx[0], sx[1], sx[2])))))
	minY := max(top, int(math.Floor(float64(min(sy[0], sy[1], sy[2])))))
	maxY := min(bottom, int(math.Ceil(float64(max(sy[0], sy[1], sy[2])))))

	for y := minY; y < maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x < maxX; x++ {
			px := float32(x) + 0.5
			b0 := edge(sx[1], sy[1], sx[2], sy[2], px, py) / area
			b1 := edge(sx[2], sy[2], sx[0], sy[0], px, py) / area
			b2 := 1 - b0 - b1
			if b0 < 0 || b1 < 0 || b2 < 0 {
				continue
			}

			p0, p1, p2 := b0*iw[0], b1*iw[1], b2*iw[2]
			norm := p0 + p1 + p2
			var c [4]float32
			for i := 0; i < 3; i++ {
				c[i] = (p0*tri[0].color[i] + p1*tri[1].color[i] + p2*tri[2].color[i]) / norm
			}
			c[3] = 1
			tex.set(x, y, c)
		}
	}
}

func unorm8(v float32) uint8 {
	switch {
	case v <= 0 || v != v:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
