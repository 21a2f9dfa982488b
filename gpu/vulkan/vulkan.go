// Package vulkan implements the gpu interfaces on top of Vulkan.
//
// Normalized device coordinates follow the gpu package convention of y
// pointing up; viewports are flipped with a negative height, which needs
// Vulkan 1.1. Fence values are emulated with binary fences submitted after
// the work they guard.
package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// Name is the name the backend registers with gpu.Register.
const Name = "vulkan"

func init() {
	gpu.Register(Name, Open)
}

// SurfaceSource is the surface handle the backend accepts in gpu.Options. It
// is implemented by window.Window.
type SurfaceSource interface {
	// VulkanProcAddr returns vkGetInstanceProcAddr.
	VulkanProcAddr() unsafe.Pointer

	// RequiredInstanceExtensions lists the instance extensions needed to
	// present to the surface.
	RequiredInstanceExtensions() []string

	// CreateWindowSurface creates a VkSurfaceKHR for instance.
	CreateWindowSurface(instance any) (uintptr, error)

	// FramebufferSize returns the drawable size in pixels.
	FramebufferSize() (int, int)
}

var validationLayers = []string{
	"VK_LAYER_KHRONOS_validation\x00",
}

var deviceExtensions = []string{
	vk.KhrSwapchainExtensionName + "\x00",
}

// Open creates a factory: a Vulkan instance and a surface for
// opts.Surface, which must be a SurfaceSource.
func Open(opts gpu.Options) (gpu.Factory, error) {
	src, ok := opts.Surface.(SurfaceSource)
	if !ok || src == nil {
		return nil, fmt.Errorf("vulkan: surface handle %T is not a SurfaceSource", opts.Surface)
	}

	vk.SetGetInstanceProcAddr(src.VulkanProcAddr())
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("failed to init Vulkan Go: %w", err)
	}

	f := &factory{
		debug:   opts.Debug,
		source:  src,
		tracker: gpu.NewTracker(),
	}
	f.id = f.tracker.Track("Factory", "")

	if err := f.createInstance(opts.AppName); err != nil {
		f.Release()
		return nil, fmt.Errorf("createInstance: %w", err)
	}
	if err := f.createSurface(); err != nil {
		f.Release()
		return nil, fmt.Errorf("createSurface: %w", err)
	}

	return f, nil
}

type factory struct {
	id       uint64
	debug    bool
	source   SurfaceSource
	tracker  *gpu.Tracker
	instance vk.Instance
	surface  vk.Surface
}

func (f *factory) Tracker() *gpu.Tracker {
	return f.tracker
}

func (f *factory) createInstance(appName string) error {
	if f.debug && !checkValidationSupport() {
		return fmt.Errorf("validation layers requested but not available")
	}
	if appName == "" {
		appName = "spinning-triangle"
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   appName + "\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "No Engine\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}

	extensions := f.source.RequiredInstanceExtensions()
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	if f.debug {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = validationLayers
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return fmt.Errorf("failed to create Vulkan instance: %w", err)
	}
	f.instance = instance

	if err := vk.InitInstance(instance); err != nil {
		return fmt.Errorf("failed to load instance functions: %w", err)
	}
	return nil
}

func (f *factory) createSurface() error {
	surfacePtr, err := f.source.CreateWindowSurface(f.instance)
	if err != nil {
		return fmt.Errorf("cannot create surface within the window: %w", err)
	}

	f.surface = vk.SurfaceFromPointer(surfacePtr)
	return nil
}

func (f *factory) Adapters() ([]gpu.Adapter, error) {
	var deviceCount uint32
	err := vk.Error(vk.EnumeratePhysicalDevices(f.instance, &deviceCount, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to get the number of physical devices: %w", err)
	}
	if deviceCount == 0 {
		return nil, nil
	}

	pDevices := make([]vk.PhysicalDevice, deviceCount)
	err = vk.Error(vk.EnumeratePhysicalDevices(f.instance, &deviceCount, pDevices))
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate the physical devices: %w", err)
	}

	adapters := make([]gpu.Adapter, 0, deviceCount)
	for _, pd := range pDevices {
		adapters = append(adapters, newAdapter(f, pd))
	}
	return adapters, nil
}

func (f *factory) CreateSwapchain(queue gpu.Queue, desc gpu.SwapchainDesc) (gpu.Swapchain, error) {
	q, ok := queue.(*commandQueue)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign queue %T", queue)
	}
	return newSwapchain(q, desc)
}

func (f *factory) Release() {
	if f.surface != vk.NullSurface {
		vk.DestroySurface(f.instance, f.surface, nil)
		f.surface = vk.NullSurface
	}
	if f.instance != nil {
		vk.DestroyInstance(f.instance, nil)
		f.instance = nil
	}
	f.tracker.Untrack(f.id)
}

func checkValidationSupport() bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	availableLayers := make([]vk.LayerProperties, count)

	if vk.EnumerateInstanceLayerProperties(&count, availableLayers) != vk.Success {
		return false
	}

	available := make(map[string]struct{}, count)
	for _, layer := range availableLayers {
		layer.Deref()
		available[vk.ToString(layer.LayerName[:])+"\x00"] = struct{}{}
	}

	for _, validationLayer := range validationLayers {
		if _, ok := available[validationLayer]; !ok {
			return false
		}
	}
	return true
}
