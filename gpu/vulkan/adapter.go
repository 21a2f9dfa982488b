package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/spinning-triangle-go/gpu"
	"github.com/ironsmile/spinning-triangle-go/queues"
)

type adapter struct {
	id         uint64
	factory    *factory
	handle     vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
}

func newAdapter(f *factory, pd vk.PhysicalDevice) *adapter {
	a := &adapter{factory: f, handle: pd}
	vk.GetPhysicalDeviceProperties(pd, &a.properties)
	a.properties.Deref()
	a.properties.Limits.Deref()

	a.id = f.tracker.Track("Adapter", a.name())
	return a
}

func (a *adapter) name() string {
	return vk.ToString(a.properties.DeviceName[:])
}

func (a *adapter) Desc() gpu.AdapterDesc {
	return gpu.AdapterDesc{
		Name:     a.name(),
		Software: a.properties.DeviceType == vk.PhysicalDeviceTypeCpu,
		Discrete: a.properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu,
	}
}

// apiVersionFor is the Vulkan version standing in for a feature level.
func apiVersionFor(level gpu.FeatureLevel) uint32 {
	switch level {
	case gpu.FeatureLevel11_0:
		return vk.MakeVersion(1, 0, 0)
	case gpu.FeatureLevel12_0:
		return vk.MakeVersion(1, 1, 0)
	default:
		return vk.MakeVersion(1, 2, 0)
	}
}

func (a *adapter) Supports(level gpu.FeatureLevel) bool {
	if a.properties.ApiVersion < apiVersionFor(level) {
		return false
	}
	return a.isDeviceSuitable()
}

func (a *adapter) isDeviceSuitable() bool {
	indices := a.findQueueFamilies()
	extensionsSupported := a.checkDeviceExtensionSupport()

	swapChainAdequate := false
	if extensionsSupported {
		details, err := querySwapChainSupport(a.handle, a.factory.surface)
		swapChainAdequate = err == nil && len(details.formats) > 0 &&
			len(details.presentModes) > 0
	}

	return indices.IsComplete() && extensionsSupported && swapChainAdequate
}

// findQueueFamilies returns the queue families used by the backend. A family
// supporting both graphics and present is preferred.
func (a *adapter) findQueueFamilies() queues.FamilyIndices {
	indices := queues.FamilyIndices{}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(a.handle, &queueFamilyCount, nil)

	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(a.handle, &queueFamilyCount, queueFamilies)

	for i, family := range queueFamilies {
		family.Deref()

		graphics := family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0

		var hasPresent vk.Bool32
		err := vk.Error(
			vk.GetPhysicalDeviceSurfaceSupport(a.handle, uint32(i), a.factory.surface, &hasPresent),
		)
		if err != nil {
			gpu.Logger().Warn("querying surface support", "family", i, "err", err)
		}
		present := err == nil && hasPresent.B()

		if graphics && present {
			indices.Graphics.Set(uint32(i))
			indices.Present.Set(uint32(i))
			break
		}
		if graphics && !indices.Graphics.HasValue() {
			indices.Graphics.Set(uint32(i))
		}
		if present && !indices.Present.HasValue() {
			indices.Present.Set(uint32(i))
		}
	}

	return indices
}

func (a *adapter) checkDeviceExtensionSupport() bool {
	var extensionsCount uint32
	res := vk.EnumerateDeviceExtensionProperties(a.handle, "", &extensionsCount, nil)
	if err := vk.Error(res); err != nil {
		gpu.Logger().Warn("enumerating device extension properties", "adapter", a.name(), "err", err)
		return false
	}

	availableExtensions := make([]vk.ExtensionProperties, extensionsCount)
	res = vk.EnumerateDeviceExtensionProperties(a.handle, "", &extensionsCount,
		availableExtensions)
	if err := vk.Error(res); err != nil {
		gpu.Logger().Warn("getting device extension properties", "adapter", a.name(), "err", err)
		return false
	}

	requiredExtensions := make(map[string]struct{})
	for _, extensionName := range deviceExtensions {
		requiredExtensions[extensionName] = struct{}{}
	}

	for _, extension := range availableExtensions {
		extension.Deref()
		extensionName := vk.ToString(extension.ExtensionName[:])

		delete(requiredExtensions, extensionName+"\x00")
	}

	return len(requiredExtensions) == 0
}

func (a *adapter) CreateDevice(level gpu.FeatureLevel) (gpu.Device, error) {
	if !a.Supports(level) {
		return nil, fmt.Errorf("vulkan: adapter %q does not support feature level %s", a.name(), level)
	}
	return newDevice(a)
}

func (a *adapter) Release() {
	a.factory.tracker.Untrack(a.id)
}

// swapChainSupportDetails describes a present surface.
type swapChainSupportDetails struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func querySwapChainSupport(
	device vk.PhysicalDevice,
	surface vk.Surface,
) (swapChainSupportDetails, error) {
	details := swapChainSupportDetails{}

	var capabilities vk.SurfaceCapabilities
	res := vk.GetPhysicalDeviceSurfaceCapabilities(device, surface, &capabilities)
	if err := vk.Error(res); err != nil {
		return details, fmt.Errorf("failed to query device surface capabilities: %w", err)
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	details.capabilities = capabilities

	var formatCount uint32
	res = vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, nil)
	if err := vk.Error(res); err != nil {
		return details, fmt.Errorf("failed to query device surface formats: %w", err)
	}

	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, formats)
		for _, format := range formats {
			format.Deref()
			details.formats = append(details.formats, format)
		}
	}

	var presentModeCount uint32
	res = vk.GetPhysicalDeviceSurfacePresentModes(
		device, surface, &presentModeCount, nil,
	)
	if err := vk.Error(res); err != nil {
		return details, fmt.Errorf("failed to query device surface present modes: %w", err)
	}

	if presentModeCount != 0 {
		presentModes := make([]vk.PresentMode, presentModeCount)
		vk.GetPhysicalDeviceSurfacePresentModes(
			device, surface, &presentModeCount, presentModes,
		)
		details.presentModes = presentModes
	}

	return details, nil
}
