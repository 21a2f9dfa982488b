package renderer

import (
	"math"
	"time"

	"github.com/xlab/linmath"
)

// Clock is the time source of the frame rate cap.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// FrameState is the CPU side of the animation: the uniform values, the
// elapsed rotation and the time of the last rendered frame.
type FrameState struct {
	Uniforms Uniforms

	clock   Clock
	last    time.Time
	elapsed float32
}

// NewFrameState returns the state of the first frame: identity model, the
// camera Zoom units in front of the origin and a projection for aspect.
func NewFrameState(clock Clock, aspect float32) *FrameState {
	if clock == nil {
		clock = systemClock{}
	}

	fs := &FrameState{clock: clock, last: clock.Now()}
	fs.Uniforms.Model.Identity()
	fs.Uniforms.View.LookAt(
		&linmath.Vec3{0, 0, Zoom},
		&linmath.Vec3{0, 0, 0},
		&linmath.Vec3{0, 1, 0},
	)
	fs.SetAspect(aspect)
	return fs
}

// SetAspect recomputes the projection for a back buffer aspect ratio.
func (fs *FrameState) SetAspect(aspect float32) {
	fs.Uniforms.Projection.Perspective(FieldOfView, aspect, NearPlane, FarPlane)
}

// Tick applies the frame rate cap. It reports false when less than one frame
// interval passed since the last accepted frame. Otherwise it returns the
// milliseconds since then and makes now the last accepted frame.
func (fs *FrameState) Tick() (float32, bool) {
	now := fs.clock.Now()
	dt := now.Sub(fs.last)
	if dt < frameInterval {
		return 0, false
	}

	fs.last = now
	return float32(dt) / float32(time.Millisecond), true
}

// Advance rotates the model around Y for dt milliseconds.
func (fs *FrameState) Advance(dt float32) {
	angle := RotationSpeed * dt
	fs.elapsed = float32(math.Mod(float64(fs.elapsed+angle), 2*math.Pi))

	var m linmath.Mat4x4
	m.Dup(&fs.Uniforms.Model)
	fs.Uniforms.Model.Rotate(&m, 0, 1, 0, angle)
}

// Elapsed is the accumulated rotation in radians, wrapped to [0, 2π).
func (fs *FrameState) Elapsed() float32 {
	return fs.elapsed
}
