package renderer

import (
	"fmt"

	"github.com/ironsmile/spinning-triangle-go/gpu"
)

// RequiredFeatureLevel is the lowest feature level an adapter must support.
const RequiredFeatureLevel = gpu.FeatureLevel12_0

// DeviceContext owns the factory, the chosen adapter and everything created
// directly from the device: one direct queue, one command pool and one fence.
type DeviceContext struct {
	Factory gpu.Factory
	Adapter gpu.Adapter
	Device  gpu.Device
	Queue   gpu.Queue
	Pool    gpu.CommandPool
	Fence   gpu.Fence
}

// NewDeviceContext picks the first hardware adapter supporting
// RequiredFeatureLevel and creates the device objects on it. The context
// takes ownership of factory, also on failure.
func NewDeviceContext(factory gpu.Factory, name string) (_ *DeviceContext, err error) {
	dc := &DeviceContext{Factory: factory}
	defer func() {
		if err != nil {
			dc.Release()
		}
	}()

	dc.Adapter, err = pickAdapter(factory)
	if err != nil {
		return nil, newError(DeviceInitError, "picking adapter", err)
	}
	gpu.Logger().Info("selected adapter", "name", dc.Adapter.Desc().Name)

	dc.Device, err = dc.Adapter.CreateDevice(RequiredFeatureLevel)
	if err != nil {
		return nil, newError(DeviceInitError, "creating device", err)
	}
	if name != "" {
		dc.Device.SetName(name)
	}

	dc.Queue, err = dc.Device.CreateCommandQueue(gpu.CommandListDirect)
	if err != nil {
		return nil, newError(DeviceInitError, "creating command queue", err)
	}

	dc.Pool, err = dc.Device.CreateCommandPool(gpu.CommandListDirect)
	if err != nil {
		return nil, newError(DeviceInitError, "creating command pool", err)
	}

	dc.Fence, err = dc.Device.CreateFence(0)
	if err != nil {
		return nil, newError(DeviceInitError, "creating fence", err)
	}

	return dc, nil
}

// pickAdapter returns the first adapter which is not a software rasterizer
// and supports RequiredFeatureLevel. The others are released.
func pickAdapter(factory gpu.Factory) (gpu.Adapter, error) {
	adapters, err := factory.Adapters()
	if err != nil {
		return nil, fmt.Errorf("enumerating adapters: %w", err)
	}

	var chosen gpu.Adapter
	for _, a := range adapters {
		desc := a.Desc()
		if chosen != nil || desc.Software || !a.Supports(RequiredFeatureLevel) {
			gpu.Logger().Debug("skipping adapter", "name", desc.Name, "software", desc.Software)
			a.Release()
			continue
		}
		chosen = a
	}
	if chosen == nil {
		return nil, ErrNoSuitableAdapter
	}
	return chosen, nil
}

// Release destroys the device objects in reverse creation order. It is safe
// to call on a partially constructed context.
func (dc *DeviceContext) Release() {
	for _, r := range []gpu.Releaser{dc.Fence, dc.Pool, dc.Queue, dc.Device, dc.Adapter, dc.Factory} {
		if r != nil {
			r.Release()
		}
	}
	*dc = DeviceContext{}
}
