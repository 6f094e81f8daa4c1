package drivertest

import (
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

type cmdState int

const (
	stateInitial cmdState = iota
	stateRecording
	stateExecutable
)

// Command is one recorded command.
type Command struct {
	Op string
	// Refs holds the IDs of the objects the command uses.
	Refs []int
	// Data holds push constant bytes.
	Data []byte
	// Args holds draw parameters and offsets.
	Args []uint32
	// Clear holds the clear values of a BeginRenderPass.
	Clear []driver.ClearValue
}

// CommandBuffer is an in-memory driver.CommandBuffer.
type CommandBuffer struct {
	object
	state cmdState
	cmds  []Command
	refs  map[int]struct{}
	// sets bound during recording, checked again at submission.
	sets []*DescriptorSet
}

var _ driver.CommandBuffer = (*CommandBuffer)(nil)

// Commands returns the commands of the current recording.
func (c *CommandBuffer) Commands() []Command {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	return append([]Command(nil), c.cmds...)
}

func (c *CommandBuffer) pendingLocked() bool {
	for _, s := range c.dev.pending {
		for _, cb := range s.cmds {
			if cb == c {
				return true
			}
		}
	}
	return false
}

func (c *CommandBuffer) Reset() error {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkLive("reset", c)
	if c.pendingLocked() {
		d.violate("command buffer %d reset while in flight", c.id)
	}
	c.state = stateInitial
	c.cmds = nil
	c.sets = nil
	c.refs = make(map[int]struct{})
	return nil
}

func (c *CommandBuffer) Begin(usage driver.CommandUsage) error {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkLive("begin", c)
	if c.pendingLocked() {
		d.violate("command buffer %d recorded while in flight", c.id)
	}
	if c.state == stateRecording {
		d.violate("command buffer %d begun twice", c.id)
	}
	c.state = stateRecording
	c.cmds = nil
	c.sets = nil
	c.refs = make(map[int]struct{})
	return nil
}

func (c *CommandBuffer) End() error {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.state != stateRecording {
		d.violate("command buffer %d ended while not recording", c.id)
	}
	c.state = stateExecutable
	return nil
}

func (c *CommandBuffer) record(op string, objs []interface{}, data []byte, args ...uint32) {
	d := c.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if c.state != stateRecording {
		d.violate("%s on command buffer %d that is not recording", op, c.id)
	}
	cmd := Command{Op: op, Args: args}
	if data != nil {
		cmd.Data = append([]byte(nil), data...)
	}
	for _, o := range objs {
		id := d.checkLive(op, o)
		cmd.Refs = append(cmd.Refs, id)
		c.refs[id] = struct{}{}
	}
	c.cmds = append(c.cmds, cmd)
}

func (c *CommandBuffer) BeginRenderPass(b driver.RenderPassBegin) {
	fb, _ := b.Framebuffer.(*Framebuffer)
	objs := []interface{}{b.RenderPass, b.Framebuffer}
	if fb != nil {
		c.dev.mu.Lock()
		for _, id := range fb.views {
			c.refs[id] = struct{}{}
		}
		c.dev.mu.Unlock()
	}
	c.record("BeginRenderPass", objs, nil, b.Area.Width, b.Area.Height, uint32(len(b.Clear)))
	c.dev.mu.Lock()
	c.cmds[len(c.cmds)-1].Clear = append([]driver.ClearValue(nil), b.Clear...)
	c.dev.mu.Unlock()
}

func (c *CommandBuffer) EndRenderPass() { c.record("EndRenderPass", nil, nil) }

func (c *CommandBuffer) SetViewport(vp driver.Viewport) {
	c.record("SetViewport", nil, nil, uint32(vp.Width), uint32(vp.Height))
}

func (c *CommandBuffer) SetScissor(e driver.Extent2D) {
	c.record("SetScissor", nil, nil, e.Width, e.Height)
}

func (c *CommandBuffer) BindPipeline(p driver.Pipeline) {
	c.bindPipeline("BindPipeline", p, false)
}

func (c *CommandBuffer) BindComputePipeline(p driver.Pipeline) {
	c.bindPipeline("BindComputePipeline", p, true)
}

func (c *CommandBuffer) bindPipeline(op string, p driver.Pipeline, compute bool) {
	if tp, ok := p.(*Pipeline); ok && tp.compute != compute {
		c.dev.mu.Lock()
		c.dev.violate("%s: pipeline %d bound at the wrong bind point", op, tp.id)
		c.dev.mu.Unlock()
	}
	c.record(op, []interface{}{p}, nil)
}

func (c *CommandBuffer) BindDescriptorSets(layout driver.PipelineLayout, first uint32, sets []driver.DescriptorSet) {
	c.bindSets("BindDescriptorSets", layout, first, sets)
}

func (c *CommandBuffer) BindComputeDescriptorSets(layout driver.PipelineLayout, first uint32, sets []driver.DescriptorSet) {
	c.bindSets("BindComputeDescriptorSets", layout, first, sets)
}

func (c *CommandBuffer) bindSets(op string, layout driver.PipelineLayout, first uint32, sets []driver.DescriptorSet) {
	d := c.dev
	d.mu.Lock()
	var args []uint32
	for _, s := range sets {
		ds, ok := s.(*DescriptorSet)
		if !ok || ds.freed {
			d.violate("bind of freed or foreign descriptor set")
			continue
		}
		args = append(args, uint32(ds.id))
		c.sets = append(c.sets, ds)
		for _, id := range ds.bound {
			c.refs[id] = struct{}{}
		}
	}
	d.mu.Unlock()
	c.checkSets()
	c.record(op, []interface{}{layout}, nil, append([]uint32{first}, args...)...)
}

// Dispatch records the group counts as Args.
func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	c.record("Dispatch", nil, nil, x, y, z)
}

// BufferBarrier records the stage and access masks as Args, in the order
// source stage, destination stage, source access, destination access.
func (c *CommandBuffer) BufferBarrier(b driver.BufferBarrier) {
	c.record("BufferBarrier", []interface{}{b.Buffer}, nil,
		uint32(b.SrcStage), uint32(b.DstStage), uint32(b.SrcAccess), uint32(b.DstAccess))
}

func (c *CommandBuffer) checkSets() {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	c.checkRefsLocked()
}

// checkRefsLocked reports every object used by the recording that has
// been destroyed since, including resources behind bound descriptor sets.
func (c *CommandBuffer) checkRefsLocked() {
	d := c.dev
	for _, s := range c.sets {
		if s.freed {
			d.violate("command buffer %d uses freed descriptor set %d", c.id, s.id)
		}
	}
	for _, o := range d.objects {
		if _, ok := c.refs[o.id]; ok && o.destroyed {
			d.violate("command buffer %d uses destroyed %s %d", c.id, o.kind, o.id)
		}
	}
}

func (c *CommandBuffer) PushConstants(layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	c.record("PushConstants", []interface{}{layout}, data, uint32(stages), offset)
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []driver.Buffer, offsets []uint64) {
	objs := make([]interface{}, len(buffers))
	for i, b := range buffers {
		objs[i] = b
	}
	c.record("BindVertexBuffers", objs, nil, first)
}

func (c *CommandBuffer) BindIndexBuffer(buf driver.Buffer, offset uint64, typ driver.IndexType) {
	c.record("BindIndexBuffer", []interface{}{buf}, nil, uint32(offset), uint32(typ))
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.record("Draw", nil, nil, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.record("DrawIndexed", nil, nil, indexCount, instanceCount, firstIndex, uint32(vertexOffset), firstInstance)
}

func (c *CommandBuffer) Barrier(b driver.ImageBarrier) {
	c.record("Barrier", []interface{}{b.Image}, nil, uint32(b.Old), uint32(b.New))
}

func (c *CommandBuffer) CopyBufferToImage(src driver.Buffer, dst driver.Image, e driver.Extent2D) {
	c.record("CopyBufferToImage", []interface{}{src, dst}, nil, e.Width, e.Height)
}
