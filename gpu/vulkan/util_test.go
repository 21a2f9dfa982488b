package vulkan

import (
	"math"
	"testing"

	"github.com/onsi/gomega"
	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

func TestChooseSwapExtend(t *testing.T) {
	g := gomega.NewWithT(t)

	fixed := vk.SurfaceCapabilities{
		CurrentExtent: vk.Extent2D{Width: 800, Height: 600},
	}
	g.Expect(chooseSwapExtend(fixed, 1280, 720, nil)).To(gomega.Equal(vk.Extent2D{Width: 800, Height: 600}))

	free := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 2048},
	}
	framebuffer := func() (int, int) { return 640, 480 }

	g.Expect(chooseSwapExtend(free, 1280, 720, framebuffer)).To(gomega.Equal(vk.Extent2D{Width: 1280, Height: 720}))
	g.Expect(chooseSwapExtend(free, 0, 0, framebuffer)).To(gomega.Equal(vk.Extent2D{Width: 640, Height: 480}))
	g.Expect(chooseSwapExtend(free, 8000, 8000, framebuffer)).To(gomega.Equal(vk.Extent2D{Width: 4096, Height: 2048}))
}

func TestRepackUint32(t *testing.T) {
	g := gomega.NewWithT(t)

	code := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00, 0xff}
	words := repackUint32(code[:8])
	g.Expect(words).To(gomega.Equal([]uint32{0x07230203, 0x00010000}))

	// Unaligned input is copied rather than reinterpreted.
	g.Expect(repackUint32(code[1:9])).To(gomega.HaveLen(2))
}

func TestImageLayout(t *testing.T) {
	g := gomega.NewWithT(t)

	layout, access := imageLayout(gpu.StatePresent)
	g.Expect(layout).To(gomega.Equal(vk.ImageLayoutPresentSrc))
	g.Expect(access).To(gomega.BeZero())

	layout, access = imageLayout(gpu.StateRenderTarget)
	g.Expect(layout).To(gomega.Equal(vk.ImageLayoutColorAttachmentOptimal))
	g.Expect(access & vk.AccessFlags(vk.AccessColorAttachmentWriteBit)).NotTo(gomega.BeZero())
}

func TestApiVersionFor(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(apiVersionFor(gpu.FeatureLevel11_0)).To(gomega.Equal(vk.MakeVersion(1, 0, 0)))
	g.Expect(apiVersionFor(gpu.FeatureLevel12_0)).To(gomega.Equal(vk.MakeVersion(1, 1, 0)))
	g.Expect(apiVersionFor(gpu.FeatureLevel12_1)).To(gomega.Equal(vk.MakeVersion(1, 2, 0)))
}

func TestShaderStages(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(shaderStages(gpu.VisibilityVertex)).To(gomega.Equal(vk.ShaderStageFlags(vk.ShaderStageVertexBit)))
	g.Expect(shaderStages(gpu.VisibilityPixel)).To(gomega.Equal(vk.ShaderStageFlags(vk.ShaderStageFragmentBit)))
	g.Expect(shaderStages(gpu.VisibilityAll)).To(gomega.Equal(vk.ShaderStageFlags(vk.ShaderStageAllGraphics)))
}
