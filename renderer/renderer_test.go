package renderer

import (
	"bytes"
	"errors"
	"image/color"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/ironsmile/spinning-triangle-go/gpu"
	"github.com/ironsmile/spinning-triangle-go/gpu/soft"
	"github.com/ironsmile/spinning-triangle-go/shaders"
	"github.com/ironsmile/spinning-triangle-go/window/events"
)

var _ = Describe("Renderer", func() {
	var h *harness

	AfterEach(func() {
		if h != nil && h.r != nil {
			Expect(h.r.Close()).To(Succeed())
			Expect(h.factory.Tracker().Live()).To(BeEmpty())
			Expect(h.factory.Tracker().Violations()).To(BeEmpty())
		}
		h = nil
	})

	Context("at 1280x720", func() {
		BeforeEach(func() {
			var err error
			h, err = newHarness(1280, 720, soft.Config{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("renders a frame to one of the two back buffers", func() {
			Expect(h.r.CurrentImageIndex()).To(BeNumerically("<", BufferCount))

			Expect(h.frame()).To(Succeed())
			Expect(h.r.Frames()).To(Equal(1))
			Expect(h.surface.Presents()).To(Equal(1))
			Expect(h.r.CurrentImageIndex()).To(BeNumerically(">=", 0))
			Expect(h.r.CurrentImageIndex()).To(BeNumerically("<", BufferCount))

			img := h.surface.Frontbuffer()
			Expect(img.Bounds().Dx()).To(Equal(1280))
			Expect(img.Bounds().Dy()).To(Equal(720))
		})

		It("alternates the back buffers", func() {
			first := h.r.CurrentImageIndex()
			Expect(h.frame()).To(Succeed())
			Expect(h.r.CurrentImageIndex()).NotTo(Equal(first))
			Expect(h.frame()).To(Succeed())
			Expect(h.r.CurrentImageIndex()).To(Equal(first))
		})

		It("caps the frame rate", func() {
			Expect(h.r.Render()).To(Succeed())
			Expect(h.r.Frames()).To(BeZero())

			h.clock.Advance(10 * time.Millisecond)
			Expect(h.r.Render()).To(Succeed())
			Expect(h.r.Frames()).To(BeZero())

			h.clock.Advance(7 * time.Millisecond)
			Expect(h.r.Render()).To(Succeed())
			Expect(h.r.Frames()).To(Equal(1))

			// The gate restarts from the accepted frame.
			h.clock.Advance(16 * time.Millisecond)
			Expect(h.r.Render()).To(Succeed())
			Expect(h.r.Frames()).To(Equal(1))
			Expect(h.surface.Presents()).To(Equal(1))
		})

		It("signals strictly increasing fence values", func() {
			last := h.r.sync.Value()
			for i := 0; i < 5; i++ {
				Expect(h.frame()).To(Succeed())
				Expect(h.r.sync.Value()).To(BeNumerically(">", last))
				Expect(h.r.sync.Idle()).To(BeTrue())
				last = h.r.sync.Value()
			}
		})

		It("rotates the model over time", func() {
			before := h.r.frame.Uniforms.Model
			Expect(h.frame()).To(Succeed())
			Expect(h.r.frame.Uniforms.Model).NotTo(Equal(before))
			Expect(h.r.frame.Elapsed()).To(BeNumerically("~", 0.02, 1e-5))
		})

		It("resizes without leaking", func() {
			Expect(h.frame()).To(Succeed())
			live := len(h.factory.Tracker().Live())

			sizes := [][2]int{{800, 600}, {1, 1}, {1920, 1080}, {640, 480}}
			for _, size := range sizes {
				Expect(h.r.Resize(size[0], size[1])).To(Succeed())
				Expect(h.frame()).To(Succeed())

				img := h.surface.Frontbuffer()
				Expect(img.Bounds().Dx()).To(Equal(size[0]))
				Expect(img.Bounds().Dy()).To(Equal(size[1]))
				Expect(h.factory.Tracker().Live()).To(HaveLen(live))
			}
			Expect(h.factory.Tracker().Violations()).To(BeEmpty())
		})

		It("clamps a minimized window to one pixel", func() {
			Expect(h.r.Resize(0, 0)).To(Succeed())
			w, hgt := h.r.targets.Size()
			Expect(w).To(Equal(1))
			Expect(hgt).To(Equal(1))
			Expect(h.r.targets.Viewport().Width).To(BeEquivalentTo(1))

			Expect(h.frame()).To(Succeed())
			Expect(h.surface.Frontbuffer().Bounds().Dx()).To(Equal(1))
		})

		It("clamps oversized dimensions", func() {
			Expect(clampDimension(70000)).To(Equal(MaxDimension))
			Expect(clampDimension(-3)).To(Equal(1))
			Expect(clampDimension(720)).To(Equal(720))
		})

		It("reloads shaders", func() {
			Expect(h.frame()).To(Succeed())
			old := h.r.pipeline

			Expect(h.r.ReloadShaders(spirvHeader(), spirvHeader())).To(Succeed())
			Expect(h.r.pipeline).NotTo(BeIdenticalTo(old))
			Expect(h.frame()).To(Succeed())
		})

		It("keeps the old pipeline when the new shaders are broken", func() {
			old := h.r.pipeline

			err := h.r.ReloadShaders([]byte("not spir-v"), spirvHeader())
			Expect(err).To(HaveOccurred())
			Expect(KindOf(err)).To(Equal(PipelineCreateError))
			Expect(h.r.pipeline).To(BeIdenticalTo(old))
			Expect(h.frame()).To(Succeed())
		})

		It("is unusable after Close", func() {
			Expect(h.r.Close()).To(Succeed())
			Expect(h.factory.Tracker().Live()).To(BeEmpty())
			Expect(h.r.Close()).To(Succeed())
			Expect(h.r.Render()).To(MatchError(ErrClosed))
			Expect(h.r.Resize(10, 10)).To(MatchError(ErrClosed))
		})
	})

	Context("pixels", func() {
		BeforeEach(func() {
			var err error
			h, err = newHarness(100, 100, soft.Config{})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.frame()).To(Succeed())
		})

		dominant := func(c color.RGBA) string {
			switch {
			case c.R > c.G && c.R > c.B:
				return "red"
			case c.G > c.R && c.G > c.B:
				return "green"
			case c.B > c.R && c.B > c.G:
				return "blue"
			}
			return "none"
		}

		It("clears the background", func() {
			img := h.surface.Frontbuffer()
			Expect(img.RGBAAt(5, 5)).To(Equal(color.RGBA{R: 51, G: 51, B: 51, A: 255}))
			Expect(img.RGBAAt(95, 5)).To(Equal(color.RGBA{R: 51, G: 51, B: 51, A: 255}))
		})

		It("draws the red corner bottom right", func() {
			Expect(dominant(h.surface.Frontbuffer().RGBAAt(90, 95))).To(Equal("red"))
		})

		It("draws the green corner bottom left", func() {
			Expect(dominant(h.surface.Frontbuffer().RGBAAt(10, 95))).To(Equal("green"))
		})

		It("draws the blue corner on top", func() {
			Expect(dominant(h.surface.Frontbuffer().RGBAAt(50, 10))).To(Equal("blue"))
		})
	})

	Context("with the compiled shaders", func() {
		It("renders", func() {
			surface := soft.NewSurface(64, 64)
			factory := soft.NewFactory(soft.Config{Surface: surface})
			clock := newFakeClock()

			dir, err := os.MkdirTemp("", "shaders")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(dir)

			r, err := New(
				factory,
				fakeWindow{desc: events.Desc{Width: 64, Height: 64}},
				shaders.NewLibrary(dir, false),
				Options{Clock: clock},
			)
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(time.Second)
			Expect(r.Render()).To(Succeed())
			Expect(surface.Presents()).To(Equal(1))
			Expect(r.Close()).To(Succeed())
			Expect(factory.Tracker().Live()).To(BeEmpty())
		})
	})

	Context("with a surface that dictates the size", func() {
		It("takes the size of the swapchain images", func() {
			surface := soft.NewSurface(200, 100)
			factory := soft.NewFactory(soft.Config{Surface: surface, SurfaceExtent: true})
			clock := newFakeClock()
			h = &harness{surface: surface, factory: factory, clock: clock}

			var err error
			h.r, err = New(
				factory,
				fakeWindow{desc: events.Desc{Width: 640, Height: 480}},
				stubShaders{},
				Options{Clock: clock},
			)
			Expect(err).NotTo(HaveOccurred())

			w, hgt := h.r.targets.Size()
			Expect(w).To(Equal(200))
			Expect(hgt).To(Equal(100))
			Expect(h.r.targets.Aspect()).To(BeNumerically("~", 2, 1e-6))
			Expect(h.r.targets.Viewport().Width).To(BeEquivalentTo(200))
			Expect(h.r.targets.Scissor().Bottom).To(Equal(100))
			Expect(h.r.frame.Uniforms.Projection).To(Equal(NewFrameState(clock, 2).Uniforms.Projection))

			Expect(h.r.Resize(1024, 1024)).To(Succeed())
			Expect(h.r.targets.Aspect()).To(BeNumerically("~", 2, 1e-6))
		})

		It("keeps running while the window is minimized", func() {
			var err error
			h, err = newHarness(64, 32, soft.Config{SurfaceExtent: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.frame()).To(Succeed())
			live := len(h.factory.Tracker().Live())

			h.surface.Resize(0, 0)
			Expect(h.r.Resize(0, 0)).To(Succeed())
			w, hgt := h.r.targets.Size()
			Expect(w).To(Equal(64))
			Expect(hgt).To(Equal(32))

			Expect(h.frame()).To(Succeed())
			Expect(h.frame()).To(Succeed())
			Expect(h.surface.Presents()).To(Equal(1))
			Expect(h.factory.Tracker().Live()).To(HaveLen(live))

			h.surface.Resize(40, 20)
			Expect(h.r.Resize(40, 20)).To(Succeed())
			Expect(h.frame()).To(Succeed())
			Expect(h.surface.Presents()).To(Equal(2))
			Expect(h.surface.Frontbuffer().Bounds().Dx()).To(Equal(40))
			Expect(h.factory.Tracker().Live()).To(HaveLen(live))
		})
	})

	Context("with more swapchain images than requested", func() {
		var logs *bytes.Buffer

		BeforeEach(func() {
			logs = &bytes.Buffer{}
			gpu.SetLogger(slog.New(slog.NewTextHandler(logs, nil)))
		})

		AfterEach(func() {
			gpu.SetLogger(nil)
		})

		It("renders to every image and says so", func() {
			var err error
			h, err = newHarness(16, 16, soft.Config{MinImageCount: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.r.targets.chain.BufferCount()).To(Equal(3))
			Expect(logs.String()).To(ContainSubstring("swapchain has more images than requested"))

			seen := map[uint32]bool{}
			for i := 0; i < 6; i++ {
				idx := h.r.CurrentImageIndex()
				Expect(idx).To(BeNumerically("<", h.r.targets.chain.BufferCount()))
				seen[idx] = true
				Expect(h.frame()).To(Succeed())
			}
			Expect(seen).To(HaveLen(3))
		})
	})

	Context("pipeline layout versions", func() {
		It("uses 1.1 when available", func() {
			var err error
			h, err = newHarness(32, 32, soft.Config{})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.r.pipeline.Layout.Version()).To(Equal(gpu.LayoutVersion1_1))
		})

		It("falls back to 1.0 when the device cannot be asked", func() {
			var err error
			h, err = newHarness(32, 32, soft.Config{NoLayoutQuery: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.r.pipeline.Layout.Version()).To(Equal(gpu.LayoutVersion1_0))
			Expect(h.frame()).To(Succeed())
		})
	})

	Context("failures", func() {
		expectCleanFailure := func(cfg soft.Config, kind Kind) error {
			fh, err := newHarness(64, 64, cfg)
			Expect(err).To(HaveOccurred())
			Expect(fh.r).To(BeNil())
			Expect(KindOf(err)).To(Equal(kind))
			Expect(fh.factory.Tracker().Live()).To(BeEmpty())
			return err
		}

		It("needs a hardware adapter", func() {
			err := expectCleanFailure(soft.Config{
				Adapters: []soft.AdapterConfig{
					{Name: "software", Software: true, Level: gpu.FeatureLevel12_1},
					{Name: "old", Level: gpu.FeatureLevel11_0},
				},
			}, DeviceInitError)
			Expect(errors.Is(err, ErrNoSuitableAdapter)).To(BeTrue())
		})

		It("reports the failing device step", func() {
			err := expectCleanFailure(soft.Config{
				Faults: map[string]error{"CreateFence": errors.New("boom")},
			}, DeviceInitError)

			var re *Error
			Expect(errors.As(err, &re)).To(BeTrue())
			Expect(re.Step).To(Equal("creating fence"))
		})

		It("reports buffer creation failures", func() {
			expectCleanFailure(soft.Config{
				Faults: map[string]error{"CreateBuffer": errors.New("out of memory")},
			}, ResourceCreateError)
		})

		It("reports pipeline creation failures", func() {
			expectCleanFailure(soft.Config{
				Faults: map[string]error{"CreatePipelineState": errors.New("bad shader")},
			}, PipelineCreateError)
		})

		It("reports swapchain failures", func() {
			expectCleanFailure(soft.Config{
				Faults: map[string]error{"CreateSwapchain": errors.New("no surface")},
			}, PresentError)
		})

		It("reports shader loading failures", func() {
			surface := soft.NewSurface(16, 16)
			factory := soft.NewFactory(soft.Config{Surface: surface})
			_, err := New(
				factory,
				fakeWindow{desc: events.Desc{Width: 16, Height: 16}},
				stubShaders{err: errors.New("missing")},
				Options{},
			)
			Expect(KindOf(err)).To(Equal(PipelineCreateError))
			Expect(factory.Tracker().Live()).To(BeEmpty())
		})

		It("recovers after a failed present", func() {
			var err error
			faults := map[string]error{}
			h, err = newHarness(64, 64, soft.Config{Faults: faults})
			Expect(err).NotTo(HaveOccurred())

			faults["Present"] = errors.New("device removed")
			err = h.frame()
			Expect(KindOf(err)).To(Equal(PresentError))
			Expect(h.r.recorder.Stage()).To(Equal(Idle))

			delete(faults, "Present")
			Expect(h.frame()).To(Succeed())
		})
	})
})
