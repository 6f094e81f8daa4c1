package drivertest

import (
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

type submission struct {
	fence *Fence
	cmds  []*CommandBuffer
}

// SubmitRecord describes one batch of a queue submission.
type SubmitRecord struct {
	Queue          string
	CommandBuffers []int
	Wait           []int
	WaitStages     []driver.PipelineStage
	Signal         []int
	// Fence is the ID of the fence of the submission, or 0.
	Fence int
	// Commands holds the recorded commands of each command buffer at
	// submission time.
	Commands [][]Command
}

// PresentRecord describes one present request.
type PresentRecord struct {
	Swapchain  int
	Generation int
	Image      uint32
	Wait       []int
	Err        error
}

// Queue is an in-memory driver.Queue.
type Queue struct {
	dev  *Device
	name string
}

var _ driver.Queue = (*Queue)(nil)

func (q *Queue) Submit(batches []driver.SubmitInfo, fence driver.Fence) error {
	d := q.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &submission{}
	if fence != nil {
		d.checkLive("submit", fence)
		s.fence = fence.(*Fence)
		if s.fence.signaled {
			d.violate("submit with signaled fence %d", s.fence.id)
		}
	}
	for _, b := range batches {
		rec := SubmitRecord{Queue: q.name, WaitStages: b.WaitStages}
		if s.fence != nil {
			rec.Fence = s.fence.id
		}
		if len(b.Wait) != len(b.WaitStages) {
			d.violate("submit with %d wait semaphores and %d stages", len(b.Wait), len(b.WaitStages))
		}
		for _, w := range b.Wait {
			rec.Wait = append(rec.Wait, d.checkLive("submit wait", w))
			sem := w.(*Semaphore)
			if !sem.signaled {
				d.violate("submit waits on semaphore %d that nothing signals", sem.id)
			}
			sem.signaled = false
		}
		for _, c := range b.CommandBuffers {
			rec.CommandBuffers = append(rec.CommandBuffers, d.checkLive("submit", c))
			cb := c.(*CommandBuffer)
			if cb.state != stateExecutable {
				d.violate("submit of command buffer %d that is not executable", cb.id)
			}
			cb.checkRefsLocked()
			rec.Commands = append(rec.Commands, append([]Command(nil), cb.cmds...))
			s.cmds = append(s.cmds, cb)
		}
		for _, sg := range b.Signal {
			rec.Signal = append(rec.Signal, d.checkLive("submit signal", sg))
			sg.(*Semaphore).signaled = true
		}
		d.submits = append(d.submits, rec)
	}
	if d.AutoComplete {
		if s.fence != nil {
			s.fence.signaled = true
		}
		d.cond.Broadcast()
		return nil
	}
	d.pending = append(d.pending, s)
	return nil
}

func (q *Queue) Present(sc driver.Swapchain, imageIndex uint32, wait []driver.Semaphore) error {
	d := q.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkLive("present", sc)
	s := sc.(*Swapchain)
	rec := PresentRecord{Swapchain: s.id, Generation: s.Generation, Image: imageIndex}
	if int(imageIndex) >= len(s.images) {
		d.violate("present of image %d out of %d", imageIndex, len(s.images))
	}
	for _, w := range wait {
		rec.Wait = append(rec.Wait, d.checkLive("present wait", w))
		sem := w.(*Semaphore)
		if !sem.signaled {
			d.violate("present waits on semaphore %d that nothing signals", sem.id)
		}
		sem.signaled = false
	}
	if len(d.presentErrs) > 0 {
		rec.Err = d.presentErrs[0]
		d.presentErrs = d.presentErrs[1:]
	}
	d.presents = append(d.presents, rec)
	return rec.Err
}

func (q *Queue) WaitIdle() error {
	d := q.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waitIdle++
	d.completeLocked(len(d.pending))
	return nil
}
