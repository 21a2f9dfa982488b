package renderer

import (
	"encoding/binary"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/ironsmile/spinning-triangle-go/gpu/soft"
	"github.com/ironsmile/spinning-triangle-go/window/events"
)

func TestRenderer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Renderer Suite")
}

// fakeClock only moves when told to.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fakeWindow struct {
	desc events.Desc
}

func (w fakeWindow) Desc() events.Desc {
	return w.desc
}

// spirvHeader is the smallest module the soft backend accepts. The soft
// pipeline runs its built-in shading for any module.
func spirvHeader() []byte {
	b := make([]byte, 20)
	binary.LittleEndian.PutUint32(b, 0x07230203)
	binary.LittleEndian.PutUint32(b[4:], 0x00010000)
	return b
}

type stubShaders struct {
	err error
}

func (s stubShaders) LoadPipeline() ([]byte, []byte, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return spirvHeader(), spirvHeader(), nil
}

// harness is a renderer over the soft backend together with its surface and
// clock.
type harness struct {
	surface *soft.Surface
	factory *soft.Factory
	clock   *fakeClock
	r       *Renderer
}

func newHarness(width, height int, cfg soft.Config) (*harness, error) {
	h := &harness{
		surface: soft.NewSurface(width, height),
		clock:   newFakeClock(),
	}
	cfg.Surface = h.surface
	h.factory = soft.NewFactory(cfg)

	r, err := New(
		h.factory,
		fakeWindow{desc: events.Desc{Width: width, Height: height}},
		stubShaders{},
		Options{Clock: h.clock, Name: "test device"},
	)
	h.r = r
	return h, err
}

// frame advances the clock by one frame interval and renders.
func (h *harness) frame() error {
	h.clock.Advance(20 * time.Millisecond)
	return h.r.Render()
}
