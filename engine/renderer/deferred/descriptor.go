package deferred

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

var errNoSetInProgress = errors.New("bind outside of BeginSet/EndSet")

// DescriptorBinder builds descriptor sets out of a single pool whose
// capacity is fixed at creation. A set is described by a BeginSet call,
// one bind call per slot and a final EndSet.
type DescriptorBinder struct {
	ctx     GPUContext
	pool    driver.DescriptorPool
	layouts []driver.DescriptorSetLayout

	building bool
	stages   driver.ShaderStage
	bindings []driver.DescriptorBinding
	writes   []driver.DescriptorWrite
	err      error
}

// NewDescriptorBinder creates the pool shared by every set of the binder.
func NewDescriptorBinder(ctx GPUContext, capacity driver.DescriptorPoolInfo) (*DescriptorBinder, error) {
	pool, err := ctx.Device.CreateDescriptorPool(capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor pool: %w", err)
	}
	core.LogDebug("descriptor pool created for %d sets", capacity.MaxSets)
	return &DescriptorBinder{ctx: ctx, pool: pool}, nil
}

// BeginSet starts describing a set visible to the given stages.
func (b *DescriptorBinder) BeginSet(stages driver.ShaderStage) {
	b.building = true
	b.stages = stages
	b.bindings = nil
	b.writes = nil
	b.err = nil
}

func (b *DescriptorBinder) bind(slot uint32, typ driver.DescriptorType) bool {
	if !b.building {
		b.err = errNoSetInProgress
		return false
	}
	for _, bd := range b.bindings {
		if bd.Binding == slot {
			b.err = fmt.Errorf("slot %d bound twice", slot)
			return false
		}
	}
	b.bindings = append(b.bindings, driver.DescriptorBinding{Binding: slot, Type: typ, Count: 1, Stages: b.stages})
	return true
}

// BindBuffer binds the whole buffer to slot.
func (b *DescriptorBinder) BindBuffer(slot uint32, buf driver.Buffer, typ driver.DescriptorType) {
	if !b.bind(slot, typ) {
		return
	}
	b.writes = append(b.writes, driver.DescriptorWrite{
		Binding: slot,
		Type:    typ,
		Buffer:  &driver.BufferBinding{Buffer: buf, Range: buf.Size()},
	})
}

// BindImage binds an image view with its sampler to slot.
func (b *DescriptorBinder) BindImage(slot uint32, view driver.ImageView, sampler driver.Sampler, typ driver.DescriptorType, layout driver.ImageLayout) {
	if !b.bind(slot, typ) {
		return
	}
	b.writes = append(b.writes, driver.DescriptorWrite{
		Binding: slot,
		Type:    typ,
		Image:   &driver.ImageBinding{View: view, Sampler: sampler, Layout: layout},
	})
}

// EndSet creates the layout, allocates the set and writes every binding.
func (b *DescriptorBinder) EndSet() (driver.DescriptorSet, driver.DescriptorSetLayout, error) {
	if !b.building {
		return nil, nil, errNoSetInProgress
	}
	b.building = false
	if b.err != nil {
		return nil, nil, b.err
	}
	layout, err := b.ctx.Device.CreateDescriptorSetLayout(b.bindings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create descriptor set layout: %w", err)
	}
	set, err := b.pool.Allocate(layout)
	if err != nil {
		layout.Destroy()
		return nil, nil, fmt.Errorf("failed to allocate descriptor set: %w", err)
	}
	for i := range b.writes {
		b.writes[i].Set = set
	}
	b.ctx.Device.UpdateDescriptorSets(b.writes)
	b.layouts = append(b.layouts, layout)
	return set, layout, nil
}

// Reset frees every set and destroys every layout created so far.
// Sets must be built again before use.
func (b *DescriptorBinder) Reset() error {
	if err := b.pool.Reset(); err != nil {
		return fmt.Errorf("failed to reset descriptor pool: %w", err)
	}
	for _, l := range b.layouts {
		l.Destroy()
	}
	b.layouts = nil
	b.building = false
	return nil
}

// Destroy releases the layouts and the pool.
func (b *DescriptorBinder) Destroy() {
	for _, l := range b.layouts {
		l.Destroy()
	}
	b.layouts = nil
	if b.pool != nil {
		b.pool.Destroy()
		b.pool = nil
	}
}
