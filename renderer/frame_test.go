package renderer

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/xlab/linmath"

	"github.com/ironsmile/spinning-triangle-go/gpu/soft"
)

var _ = DescribeTable("AlignUp",
	func(n, align, want int) {
		Expect(AlignUp(n, align)).To(Equal(want))
	},
	Entry("zero", 0, 256, 0),
	Entry("one", 1, 256, 256),
	Entry("uniform block", UniformsSize, 256, 256),
	Entry("exact multiple", 256, 256, 256),
	Entry("one past", 257, 256, 512),
	Entry("two blocks", 512, 256, 512),
	Entry("just below", 511, 256, 512),
	Entry("small alignment", 13, 4, 16),
)

var _ = Describe("FrameState", func() {
	var (
		clock *fakeClock
		fs    *FrameState
	)

	BeforeEach(func() {
		clock = newFakeClock()
		fs = NewFrameState(clock, 16.0/9.0)
	})

	It("starts with an identity model", func() {
		var id linmath.Mat4x4
		id.Identity()
		Expect(fs.Uniforms.Model).To(Equal(id))
		Expect(UniformsSize).To(Equal(192))
	})

	It("places the camera in front of the origin", func() {
		Expect(fs.Uniforms.View[3][2]).To(BeNumerically("~", -Zoom, 1e-6))
		Expect(fs.Uniforms.View[0][0]).To(BeNumerically("~", 1, 1e-6))
	})

	It("accepts frames no more often than the frame rate", func() {
		_, ok := fs.Tick()
		Expect(ok).To(BeFalse())

		clock.Advance(frameInterval - time.Millisecond)
		_, ok = fs.Tick()
		Expect(ok).To(BeFalse())

		clock.Advance(time.Millisecond)
		dt, ok := fs.Tick()
		Expect(ok).To(BeTrue())
		Expect(dt).To(BeNumerically("~", 1000.0/FrameRate, 0.01))

		_, ok = fs.Tick()
		Expect(ok).To(BeFalse())
	})

	It("reports the milliseconds since the last accepted frame", func() {
		clock.Advance(250 * time.Millisecond)
		dt, ok := fs.Tick()
		Expect(ok).To(BeTrue())
		Expect(dt).To(BeNumerically("~", 250, 1e-3))
	})

	It("wraps the elapsed rotation", func() {
		fs.Advance(7000)
		Expect(fs.Elapsed()).To(BeNumerically("~", 7-2*math.Pi, 1e-4))
	})

	It("rotates around Y only", func() {
		fs.Advance(float32(math.Pi / 2 / RotationSpeed))

		m := fs.Uniforms.Model
		Expect(m[1][1]).To(BeNumerically("~", 1, 1e-5))
		Expect(m[0][0]).To(BeNumerically("~", 0, 1e-5))
		Expect(m[2][2]).To(BeNumerically("~", 0, 1e-5))
	})

	It("follows the aspect ratio", func() {
		wide := fs.Uniforms.Projection
		fs.SetAspect(1)
		Expect(fs.Uniforms.Projection[0][0]).To(BeNumerically(">", wide[0][0]))
		Expect(fs.Uniforms.Projection[1][1]).To(BeNumerically("~", wide[1][1], 1e-6))
	})
})

var _ = Describe("FrameRecorder", func() {
	var h *harness

	BeforeEach(func() {
		var err error
		h, err = newHarness(16, 16, soft.Config{})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(h.r.Close()).To(Succeed())
		Expect(h.factory.Tracker().Live()).To(BeEmpty())
	})

	It("rejects steps out of order", func() {
		rec := h.r.recorder
		Expect(rec.Stage()).To(Equal(Idle))

		Expect(rec.Submit(h.r.dc.Queue)).To(MatchError(ErrInvalidState))
		Expect(rec.Present(h.r.targets)).To(MatchError(ErrInvalidState))
		Expect(rec.Complete(h.r.sync)).To(MatchError(ErrInvalidState))
		Expect(rec.Stage()).To(Equal(Idle))
	})

	It("walks through every stage of a frame", func() {
		rec := h.r.recorder

		Expect(rec.Record(h.r.pipeline, h.r.targets, h.r.resources)).To(Succeed())
		Expect(rec.Stage()).To(Equal(Recording))
		Expect(rec.Record(h.r.pipeline, h.r.targets, h.r.resources)).To(MatchError(ErrInvalidState))

		Expect(rec.Submit(h.r.dc.Queue)).To(Succeed())
		Expect(rec.Stage()).To(Equal(Submitted))

		Expect(rec.Present(h.r.targets)).To(Succeed())
		Expect(rec.Stage()).To(Equal(Presented))
		Expect(rec.Drain(h.r.dc.Queue, h.r.sync)).To(MatchError(ErrInvalidState))

		Expect(rec.Complete(h.r.sync)).To(Succeed())
		Expect(rec.Stage()).To(Equal(Idle))
		Expect(h.surface.Presents()).To(Equal(1))
		Expect(h.factory.Tracker().Violations()).To(BeEmpty())
	})
})
