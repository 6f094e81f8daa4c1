package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// Queue implements driver.Queue. Presentation goes through the present
// family's queue, which may be the same queue.
type Queue struct {
	dev           *Device
	handle        vk.Queue
	family        uint32
	present       vk.Queue
	presentFamily uint32
}

func newQueue(d *Device, family int) *Queue {
	return &Queue{
		dev:           d,
		handle:        d.queue(family),
		family:        uint32(family),
		present:       d.queue(d.families.present),
		presentFamily: uint32(d.families.present),
	}
}

func (q *Queue) Submit(batches []driver.SubmitInfo, fence driver.Fence) error {
	infos := make([]vk.SubmitInfo, len(batches))
	for i, b := range batches {
		stages := make([]vk.PipelineStageFlags, len(b.WaitStages))
		for j, s := range b.WaitStages {
			stages[j] = vkStages(s)
		}
		cmds := make([]vk.CommandBuffer, len(b.CommandBuffers))
		for j, c := range b.CommandBuffers {
			cb := c.(*CommandBuffer)
			cmds[j] = cb.handle
			cb.state = commandBufferSubmitted
		}
		infos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(b.Wait)),
			PWaitSemaphores:      semaphoreHandles(b.Wait),
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(cmds)),
			PCommandBuffers:      cmds,
			SignalSemaphoreCount: uint32(len(b.Signal)),
			PSignalSemaphores:    semaphoreHandles(b.Signal),
		}
	}
	f := vk.NullFence
	if fence != nil {
		f = fence.(*Fence).handle
	}
	return q.dev.locks.safeQueueCall(q.family, func() error {
		return resultError("vkQueueSubmit", vk.QueueSubmit(q.handle, uint32(len(infos)), infos, f))
	})
}

func (q *Queue) Present(sc driver.Swapchain, imageIndex uint32, wait []driver.Semaphore) error {
	sems := semaphoreHandles(wait)
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(sems)),
		PWaitSemaphores:    sems,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.(*Swapchain).handle},
		PImageIndices:      []uint32{imageIndex},
	}
	return q.dev.locks.safeQueueCall(q.presentFamily, func() error {
		return resultError("vkQueuePresent", vk.QueuePresent(q.present, &info))
	})
}

func (q *Queue) WaitIdle() error {
	return q.dev.locks.safeQueueCall(q.family, func() error {
		return resultError("vkQueueWaitIdle", vk.QueueWaitIdle(q.handle))
	})
}
