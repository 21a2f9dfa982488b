package vulkan

import (
	"cmp"
	"math"

	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/spinning-triangle-go/unsafer"
)

func clamp[T cmp.Ordered](val, min, max T) T {
	if val < min {
		val = min
	}
	if val > max {
		val = max
	}
	return val
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// repackUint32 copies SPIR-V bytes into word aligned memory.
func repackUint32(code []byte) []uint32 {
	words := make([]uint32, len(code)/4)
	copy(unsafer.SliceToBytes(words), code)
	return words
}

// chooseSwapExtend picks the swapchain extent. Surfaces which let the
// application decide report a current width of MaxUint32; then the requested
// size is used, falling back to the framebuffer size for zero dimensions.
func chooseSwapExtend(
	capabilities vk.SurfaceCapabilities,
	width, height int,
	framebufferSize func() (int, int),
) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}

	if width == 0 || height == 0 {
		fbWidth, fbHeight := framebufferSize()
		if width == 0 {
			width = fbWidth
		}
		if height == 0 {
			height = fbHeight
		}
	}

	actualExtend := vk.Extent2D{
		Width:  uint32(max(width, 0)),
		Height: uint32(max(height, 0)),
	}

	actualExtend.Width = clamp(
		actualExtend.Width,
		capabilities.MinImageExtent.Width,
		capabilities.MaxImageExtent.Width,
	)

	actualExtend.Height = clamp(
		actualExtend.Height,
		capabilities.MinImageExtent.Height,
		capabilities.MaxImageExtent.Height,
	)

	return actualExtend
}
