package renderer

import (
	"math"
	"time"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

const (
	// BufferCount is the number of images in the swapchain.
	BufferCount = 2

	// FrameRate caps the number of rendered frames per second.
	FrameRate = 60

	// MaxDimension is the largest accepted back buffer width or height.
	MaxDimension = 0xffff

	// FieldOfView is the vertical field of view in radians.
	FieldOfView = math.Pi / 4

	// Zoom is the distance of the camera from the triangle.
	Zoom = 2.5

	NearPlane = 0.01
	FarPlane  = 1024.0

	// RotationSpeed is the rotation of the model in radians per millisecond.
	RotationSpeed = 0.001

	// ConstantBufferAlignment is the size granularity of constant buffer
	// views.
	ConstantBufferAlignment = 256

	// BackBufferFormat is the format of the swapchain images.
	BackBufferFormat = gpu.FormatR8G8B8A8Unorm
)

// ClearColor is the background of every frame.
var ClearColor = [4]float32{0.2, 0.2, 0.2, 1}

// frameInterval is the minimal time between two rendered frames.
var frameInterval = time.Second / FrameRate
