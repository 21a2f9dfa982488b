package renderer

import (
	"github.com/ironsmile/spinning-triangle-go/gpu"
	"github.com/ironsmile/spinning-triangle-go/shaders"
)

// Pipeline is the pipeline layout and the pipeline state drawing the mesh.
type Pipeline struct {
	Layout gpu.PipelineLayout
	State  gpu.PipelineState
}

// layoutVersion returns the highest pipeline layout version the device
// supports, falling back to 1.0 when it cannot tell.
func layoutVersion(device gpu.Device) gpu.LayoutVersion {
	v, err := device.CheckLayoutVersion(gpu.LayoutVersion1_1)
	if err != nil {
		gpu.Logger().Debug("pipeline layout version query failed", "err", err)
		return gpu.LayoutVersion1_0
	}
	return v
}

// BuildPipeline creates the pipeline layout with a single vertex-visible
// constant buffer table and the pipeline state for the given SPIR-V shaders
// and vertex layout.
func BuildPipeline(
	device gpu.Device,
	vertexCode []byte,
	pixelCode []byte,
	inputLayout []gpu.InputElement,
) (_ *Pipeline, err error) {
	p := &Pipeline{}
	defer func() {
		if err != nil {
			p.Release()
		}
	}()

	version := layoutVersion(device)
	p.Layout, err = device.CreatePipelineLayout(gpu.PipelineLayoutDesc{
		Version: version,
		Parameters: []gpu.LayoutParameter{{
			Ranges: []gpu.DescriptorRange{{
				Type:           gpu.RangeCBV,
				NumDescriptors: 1,
			}},
			Visibility: gpu.VisibilityVertex,
		}},
		AllowInputLayout: true,
		Name:             "triangle layout",
	})
	if err != nil {
		return nil, newError(PipelineCreateError, "creating pipeline layout", err)
	}
	gpu.Logger().Debug("created pipeline layout", "version", version)

	p.State, err = device.CreatePipelineState(gpu.PipelineStateDesc{
		Layout:      p.Layout,
		VS:          gpu.ShaderBytecode{Code: vertexCode, EntryPoint: shaders.EntryPoint},
		PS:          gpu.ShaderBytecode{Code: pixelCode, EntryPoint: shaders.EntryPoint},
		InputLayout: inputLayout,
		Rasterizer: gpu.RasterizerDesc{
			Fill:      gpu.FillSolid,
			Cull:      gpu.CullNone,
			DepthClip: true,
		},
		Blend: gpu.BlendDesc{
			RenderTarget: gpu.DefaultRenderTargetBlend,
		},
		SampleMask:   0xffffffff,
		TopologyType: gpu.TopologyTypeTriangle,
		RTVFormats:   []gpu.Format{BackBufferFormat},
		SampleCount:  1,
		Name:         "triangle pipeline",
	})
	if err != nil {
		return nil, newError(PipelineCreateError, "creating pipeline state", err)
	}

	return p, nil
}

// Release destroys the pipeline state before its layout.
func (p *Pipeline) Release() {
	if p.State != nil {
		p.State.Release()
		p.State = nil
	}
	if p.Layout != nil {
		p.Layout.Release()
		p.Layout = nil
	}
}
