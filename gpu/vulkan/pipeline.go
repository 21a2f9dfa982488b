package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// setSignature describes the single binding of a descriptor set layout.
type setSignature struct {
	binding uint32
	count   uint32
	stages  vk.ShaderStageFlags
}

// pipelineLayout maps every descriptor table parameter to one descriptor
// set. The set index equals the parameter index.
type pipelineLayout struct {
	id     uint64
	dev    *device
	desc   gpu.PipelineLayoutDesc
	handle vk.PipelineLayout

	setLayouts []vk.DescriptorSetLayout
	signatures []setSignature
}

func shaderStages(v gpu.ShaderVisibility) vk.ShaderStageFlags {
	switch v {
	case gpu.VisibilityVertex:
		return vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	case gpu.VisibilityPixel:
		return vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return vk.ShaderStageFlags(vk.ShaderStageAllGraphics)
}

func (d *device) CreatePipelineLayout(desc gpu.PipelineLayoutDesc) (gpu.PipelineLayout, error) {
	if desc.Version > gpu.LayoutVersion1_0 {
		v, err := d.CheckLayoutVersion(desc.Version)
		if err != nil {
			return nil, fmt.Errorf("vulkan: pipeline layout version %s: %w", desc.Version, err)
		}
		if v < desc.Version {
			return nil, fmt.Errorf("vulkan: pipeline layout version %s is not supported", desc.Version)
		}
	}

	l := &pipelineLayout{dev: d, desc: desc}
	for i, param := range desc.Parameters {
		if len(param.Ranges) != 1 {
			l.destroy()
			return nil, fmt.Errorf("vulkan: parameter %d must have exactly one range, got %d", i, len(param.Ranges))
		}
		r := param.Ranges[0]
		if r.Type != gpu.RangeCBV || r.NumDescriptors <= 0 {
			l.destroy()
			return nil, fmt.Errorf("vulkan: parameter %d has an unsupported range", i)
		}

		sig := setSignature{
			binding: uint32(r.BaseShaderRegister),
			count:   uint32(r.NumDescriptors),
			stages:  shaderStages(param.Visibility),
		}

		uboLayoutBinding := vk.DescriptorSetLayoutBinding{
			Binding:         sig.binding,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: sig.count,
			StageFlags:      sig.stages,
		}

		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: 1,
			PBindings:    []vk.DescriptorSetLayoutBinding{uboLayoutBinding},
		}

		var setLayout vk.DescriptorSetLayout
		res := vk.CreateDescriptorSetLayout(d.handle, &layoutInfo, nil, &setLayout)
		if err := vk.Error(res); err != nil {
			l.destroy()
			return nil, fmt.Errorf("failed to create descriptor set layout: %w", err)
		}
		l.setLayouts = append(l.setLayouts, setLayout)
		l.signatures = append(l.signatures, sig)
	}

	pipelineLayoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(l.setLayouts)),
		PSetLayouts:    l.setLayouts,
	}

	var handle vk.PipelineLayout
	res := vk.CreatePipelineLayout(d.handle, &pipelineLayoutInfo, nil, &handle)
	if err := vk.Error(res); err != nil {
		l.destroy()
		return nil, fmt.Errorf("failed to create pipeline layout: %w", err)
	}
	l.handle = handle

	l.id = d.tracker().Track("PipelineLayout", desc.Name)
	return l, nil
}

func (l *pipelineLayout) Version() gpu.LayoutVersion {
	return l.desc.Version
}

func (l *pipelineLayout) destroy() {
	if l.handle != vk.PipelineLayout(vk.NullHandle) {
		vk.DestroyPipelineLayout(l.dev.handle, l.handle, nil)
	}
	for _, setLayout := range l.setLayouts {
		vk.DestroyDescriptorSetLayout(l.dev.handle, setLayout, nil)
	}
	l.setLayouts = nil
}

func (l *pipelineLayout) Release() {
	l.destroy()
	l.dev.tracker().Untrack(l.id)
}

type pipelineState struct {
	id      uint64
	dev     *device
	layout  *pipelineLayout
	handle  vk.Pipeline
	strides map[int]int
}

func blendFactor(b gpu.Blend) vk.BlendFactor {
	if b == gpu.BlendOne {
		return vk.BlendFactorOne
	}
	return vk.BlendFactorZero
}

func cullMode(c gpu.CullMode) vk.CullModeFlags {
	switch c {
	case gpu.CullFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gpu.CullBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

// vertexInput builds one binding per input slot. The stride of a slot is
// the end of its furthest element.
func (d *device) vertexInput(elements []gpu.InputElement) (
	[]vk.VertexInputBindingDescription,
	[]vk.VertexInputAttributeDescription,
	map[int]int,
	error,
) {
	strides := make(map[int]int)
	attributes := make([]vk.VertexInputAttributeDescription, 0, len(elements))
	for i, el := range elements {
		format, err := d.vkFormat(el.Format)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("input element %s: %w", el.Semantic, err)
		}
		attributes = append(attributes, vk.VertexInputAttributeDescription{
			Binding:  uint32(el.Slot),
			Location: uint32(i),
			Format:   format,
			Offset:   uint32(el.Offset),
		})
		strides[el.Slot] = max(strides[el.Slot], el.Offset+el.Format.Size())
	}

	bindings := make([]vk.VertexInputBindingDescription, 0, len(strides))
	for slot, stride := range strides {
		bindings = append(bindings, vk.VertexInputBindingDescription{
			Binding:   uint32(slot),
			Stride:    uint32(stride),
			InputRate: vk.VertexInputRateVertex,
		})
	}
	return bindings, attributes, strides, nil
}

func (d *device) CreatePipelineState(desc gpu.PipelineStateDesc) (gpu.PipelineState, error) {
	layout, ok := desc.Layout.(*pipelineLayout)
	if !ok {
		return nil, fmt.Errorf("vulkan: pipeline state needs a pipeline layout, got %T", desc.Layout)
	}
	if len(desc.RTVFormats) != 1 {
		return nil, fmt.Errorf("vulkan: exactly one render target format is supported, got %d", len(desc.RTVFormats))
	}
	if desc.SampleCount != 1 {
		return nil, fmt.Errorf("vulkan: unsupported sample count %d", desc.SampleCount)
	}
	if len(desc.InputLayout) > 0 && !layout.desc.AllowInputLayout {
		return nil, fmt.Errorf("vulkan: pipeline layout %q does not allow an input layout", layout.desc.Name)
	}

	rtvFormat, err := d.vkFormat(desc.RTVFormats[0])
	if err != nil {
		return nil, err
	}
	renderPass, err := d.renderPass(rtvFormat)
	if err != nil {
		return nil, err
	}

	vertexShaderModule, err := d.createShaderModule(desc.VS.Code)
	if err != nil {
		return nil, fmt.Errorf("creating vertex shader module: %w", err)
	}
	defer vk.DestroyShaderModule(d.handle, vertexShaderModule, nil)

	fragmentShaderModule, err := d.createShaderModule(desc.PS.Code)
	if err != nil {
		return nil, fmt.Errorf("creating fragment shader module: %w", err)
	}
	defer vk.DestroyShaderModule(d.handle, fragmentShaderModule, nil)

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertexShaderModule,
			PName:  desc.VS.EntryPoint + "\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragmentShaderModule,
			PName:  desc.PS.EntryPoint + "\x00",
		},
	}

	bindings, attributes, strides, err := d.vertexInput(desc.InputLayout)
	if err != nil {
		return nil, err
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}

	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	polygonMode := vk.PolygonModeFill
	if desc.Rasterizer.Fill == gpu.FillWireframe {
		polygonMode = vk.PolygonModeLine
	}
	frontFace := vk.FrontFaceClockwise
	if desc.Rasterizer.FrontCounterClockwise {
		frontFace = vk.FrontFaceCounterClockwise
	}

	// Depth clamping is an optional device feature; disabled depth clip is
	// treated as clipping.
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             polygonMode,
		LineWidth:               1,
		CullMode:                cullMode(desc.Rasterizer.Cull),
		FrontFace:               frontFace,
		DepthBiasEnable:         vk.False,
	}

	sampleMask := []vk.SampleMask{vk.SampleMask(desc.SampleMask)}
	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1,
		PSampleMask:           sampleMask,
		AlphaToCoverageEnable: vk.Bool32(boolToUint(desc.Blend.AlphaToCoverage)),
		AlphaToOneEnable:      vk.False,
	}

	rt := desc.Blend.RenderTarget
	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask:      vk.ColorComponentFlags(rt.WriteMask),
		BlendEnable:         vk.Bool32(boolToUint(rt.BlendEnable)),
		SrcColorBlendFactor: blendFactor(rt.Src),
		DstColorBlendFactor: blendFactor(rt.Dst),
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: blendFactor(rt.SrcAlpha),
		DstAlphaBlendFactor: blendFactor(rt.DstAlpha),
		AlphaBlendOp:        vk.BlendOpAdd,
	}

	colorBlending := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.Bool32(boolToUint(rt.LogicOpEnable)),
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments: []vk.PipelineColorBlendAttachmentState{
			colorBlendAttachment,
		},
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.Bool32(boolToUint(desc.DepthStencil.DepthEnable)),
		DepthWriteEnable:  vk.Bool32(boolToUint(desc.DepthStencil.DepthEnable)),
		DepthCompareOp:    vk.CompareOpLess,
		StencilTestEnable: vk.Bool32(boolToUint(desc.DepthStencil.StencilEnable)),
	}

	pipelineInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlending,
		PDynamicState:       &dynamicState,
		Layout:              layout.handle,
		RenderPass:          renderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.Pipeline(vk.NullHandle),
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(
		d.handle,
		vk.PipelineCache(vk.NullHandle),
		1,
		[]vk.GraphicsPipelineCreateInfo{pipelineInfo},
		nil,
		pipelines,
	)
	if err := vk.Error(res); err != nil {
		return nil, fmt.Errorf("failed to create graphics pipeline: %w", err)
	}

	return &pipelineState{
		id:      d.tracker().Track("PipelineState", desc.Name),
		dev:     d,
		layout:  layout,
		handle:  pipelines[0],
		strides: strides,
	}, nil
}

func (p *pipelineState) Release() {
	vk.DestroyPipeline(p.dev.handle, p.handle, nil)
	p.dev.tracker().Untrack(p.id)
}

func (d *device) createShaderModule(code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return vk.ShaderModule(vk.NullHandle), fmt.Errorf("shader bytecode size %d is not a multiple of 4", len(code))
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    repackUint32(code),
	}

	var shaderModule vk.ShaderModule
	res := vk.CreateShaderModule(d.handle, &createInfo, nil, &shaderModule)
	return shaderModule, vk.Error(res)
}
