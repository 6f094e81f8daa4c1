package deferred

import (
	"fmt"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// GPUContext carries the device objects shared by every component.
// It is created once by the device provider and passed explicitly.
type GPUContext struct {
	Device        driver.Device
	GraphicsQueue driver.Queue
	TransferQueue driver.Queue
	Memory        driver.MemoryProperties
}

func (c GPUContext) validate() error {
	if c.Device == nil || c.GraphicsQueue == nil {
		return fmt.Errorf("gpu context is missing a device or a graphics queue")
	}
	return nil
}

// allocate allocates memory satisfying req with the given properties.
func (c GPUContext) allocate(req driver.MemoryRequirements, props driver.MemoryProperty) (driver.Memory, error) {
	idx, err := c.Memory.FindType(req.TypeBits, props)
	if err != nil {
		return nil, err
	}
	return c.Device.AllocateMemory(req.Size, idx)
}

// HostBuffer is a buffer backed by its own host-visible coherent allocation
// that stays mapped for its whole life.
type HostBuffer struct {
	Buffer driver.Buffer
	Memory driver.Memory
	Data   []byte
}

// NewHostBuffer creates and maps a buffer of the given size.
func NewHostBuffer(ctx GPUContext, size uint64, usage driver.BufferUsage) (hb *HostBuffer, err error) {
	var rel releaser
	defer rel.onError(&err)

	buf, err := ctx.Device.CreateBuffer(driver.BufferInfo{Size: size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer: %w", err)
	}
	rel.push(buf)
	mem, err := ctx.allocate(buf.MemoryRequirements(), driver.MemoryHostVisible|driver.MemoryHostCoherent)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate buffer memory: %w", err)
	}
	rel.push(mem)
	if err = ctx.Device.BindBufferMemory(buf, mem, 0); err != nil {
		return nil, fmt.Errorf("failed to bind buffer memory: %w", err)
	}
	data, err := mem.Map()
	if err != nil {
		return nil, fmt.Errorf("failed to map buffer memory: %w", err)
	}
	rel.pushFunc(mem.Unmap)
	return &HostBuffer{Buffer: buf, Memory: mem, Data: data[:size]}, nil
}

// Destroy unmaps and releases the buffer and its memory.
func (hb *HostBuffer) Destroy() {
	if hb == nil || hb.Buffer == nil {
		return
	}
	hb.Memory.Unmap()
	hb.Buffer.Destroy()
	hb.Memory.Destroy()
	hb.Buffer, hb.Memory, hb.Data = nil, nil, nil
}
