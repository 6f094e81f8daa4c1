// Package drivertest provides an in-memory driver.Device for tests.
//
// The device never executes commands. It records them, tracks the lifetime
// of every object it creates and keeps submissions pending until the test
// completes them, so fence and semaphore discipline can be checked without
// a GPU. Misuse is not reported through return values; it is collected as
// violations that tests assert to be empty.
package drivertest

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// Kind names a category of driver object.
type Kind string

const (
	KindImage          Kind = "image"
	KindMemory         Kind = "memory"
	KindImageView      Kind = "image view"
	KindBuffer         Kind = "buffer"
	KindSampler        Kind = "sampler"
	KindRenderPass     Kind = "render pass"
	KindFramebuffer    Kind = "framebuffer"
	KindShaderModule   Kind = "shader module"
	KindSetLayout      Kind = "descriptor set layout"
	KindDescriptorPool Kind = "descriptor pool"
	KindPipelineLayout Kind = "pipeline layout"
	KindPipeline       Kind = "pipeline"
	KindFence          Kind = "fence"
	KindSemaphore      Kind = "semaphore"
	KindCommandBuffer  Kind = "command buffer"
	KindSwapchain      Kind = "swapchain"
)

type object struct {
	dev       *Device
	id        int
	kind      Kind
	destroyed bool
}

// ID returns the unique identifier of the object.
func (o *object) ID() int { return o.id }

// Destroy releases the object. Further calls have no effect.
func (o *object) Destroy() {
	o.dev.mu.Lock()
	defer o.dev.mu.Unlock()
	o.dev.destroyLocked(o)
}

type identified interface{ obj() *object }

func (o *object) obj() *object { return o }

// Device is an in-memory driver.Device.
// It is safe for concurrent use so that tests can complete GPU work from
// another goroutine while the code under test blocks on a fence.
type Device struct {
	// AutoComplete makes every submission complete as soon as it is made.
	AutoComplete bool
	// DepthFormats lists the depth formats reported as supported.
	DepthFormats []driver.Format
	// MinImageCount is the minimum number of swapchain images.
	MinImageCount uint32

	mu      sync.Mutex
	cond    *sync.Cond
	nextID  int
	objects []*object
	props   driver.MemoryProperties

	pending      []*submission
	submits      []SubmitRecord
	presents     []PresentRecord
	pipelines    []driver.GraphicsPipelineInfo
	violations   []string
	acquireErrs  []error
	presentErrs  []error
	createErrs   map[Kind][]error
	waitIdle     int
	lost         bool
	fenceWaits   int
	acquires     int
	swapchainGen int

	computePipelines []driver.ComputePipelineInfo

	graphics *Queue
	transfer *Queue
}

// New returns a Device with one device-local and one host-visible coherent
// memory type.
func New() *Device {
	d := &Device{
		DepthFormats: []driver.Format{driver.FormatD32Float},
		props: driver.MemoryProperties{Types: []driver.MemoryType{
			{Properties: driver.MemoryDeviceLocal},
			{Properties: driver.MemoryHostVisible | driver.MemoryHostCoherent},
		}},
		createErrs: make(map[Kind][]error),
	}
	d.cond = sync.NewCond(&d.mu)
	d.graphics = &Queue{dev: d, name: "graphics"}
	d.transfer = &Queue{dev: d, name: "transfer"}
	return d
}

// GraphicsQueue returns the queue used for rendering and presentation.
func (d *Device) GraphicsQueue() *Queue { return d.graphics }

// TransferQueue returns the queue used for uploads.
func (d *Device) TransferQueue() *Queue { return d.transfer }

func (d *Device) newObject(kind Kind) (object, error) {
	if errs := d.createErrs[kind]; len(errs) > 0 {
		d.createErrs[kind] = errs[1:]
		return object{}, errs[0]
	}
	d.nextID++
	return object{dev: d, id: d.nextID, kind: kind}, nil
}

// register must be called with the address of the object embedded in the
// value that is handed out.
func (d *Device) register(o *object) { d.objects = append(d.objects, o) }

func (d *Device) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Device) destroyLocked(o *object) {
	if o.destroyed {
		return
	}
	for _, s := range d.pending {
		for _, cb := range s.cmds {
			if cb.id == o.id {
				d.violate("command buffer %d freed while pending", o.id)
			}
			if _, ok := cb.refs[o.id]; ok {
				d.violate("%s %d destroyed while in use by pending command buffer %d", o.kind, o.id, cb.id)
			}
		}
		if s.fence != nil && s.fence.id == o.id {
			d.violate("fence %d destroyed while pending", o.id)
		}
	}
	o.destroyed = true
}

func (d *Device) checkLive(what string, v interface{}) int {
	if v == nil {
		d.violate("%s: nil object", what)
		return 0
	}
	id, ok := v.(identified)
	if !ok {
		d.violate("%s: foreign object %T", what, v)
		return 0
	}
	o := id.obj()
	if o.dev != d {
		d.violate("%s: %s %d belongs to another device", what, o.kind, o.id)
	}
	if o.destroyed {
		d.violate("%s: use of destroyed %s %d", what, o.kind, o.id)
	}
	return o.id
}

// FailNext makes the next creation of an object of the given kind fail
// with err. Calls accumulate.
func (d *Device) FailNext(kind Kind, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.createErrs[kind] = append(d.createErrs[kind], err)
}

// FailNextAcquire makes the next AcquireNext return err.
func (d *Device) FailNextAcquire(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireErrs = append(d.acquireErrs, err)
}

// FailNextPresent makes the next Present return err.
func (d *Device) FailNextPresent(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentErrs = append(d.presentErrs, err)
}

// Lose marks the device as lost. Fence waits fail from then on.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
	d.cond.Broadcast()
}

// CompleteAll completes every pending submission.
func (d *Device) CompleteAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeLocked(len(d.pending))
}

// CompleteNext completes the oldest pending submission, if any.
func (d *Device) CompleteNext() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeLocked(1)
}

func (d *Device) completeLocked(n int) {
	if n > len(d.pending) {
		n = len(d.pending)
	}
	for _, s := range d.pending[:n] {
		if s.fence != nil {
			s.fence.signaled = true
		}
	}
	d.pending = d.pending[n:]
	d.cond.Broadcast()
}

// Pending returns the number of submissions not yet completed.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Violations returns every misuse detected so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Live returns the number of live objects of the given kind.
func (d *Device) Live(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, o := range d.objects {
		if o.kind == kind && !o.destroyed {
			n++
		}
	}
	return n
}

// Leaks describes every object not yet destroyed, sorted.
func (d *Device) Leaks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var s []string
	for _, o := range d.objects {
		if !o.destroyed {
			s = append(s, fmt.Sprintf("%s %d", o.kind, o.id))
		}
	}
	sort.Strings(s)
	return s
}

// Alive reports whether the object with the given ID exists and has not
// been destroyed.
func (d *Device) Alive(id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.objects {
		if o.id == id {
			return !o.destroyed
		}
	}
	return false
}

// Submits returns every submission made so far, in order.
func (d *Device) Submits() []SubmitRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SubmitRecord(nil), d.submits...)
}

// Presents returns every present request made so far, in order.
func (d *Device) Presents() []PresentRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]PresentRecord(nil), d.presents...)
}

// Pipelines returns the create info of every graphics pipeline created.
func (d *Device) Pipelines() []driver.GraphicsPipelineInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]driver.GraphicsPipelineInfo(nil), d.pipelines...)
}

// ComputePipelines returns the create info of every compute pipeline
// created, in order.
func (d *Device) ComputePipelines() []driver.ComputePipelineInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]driver.ComputePipelineInfo(nil), d.computePipelines...)
}

// WaitIdleCalls returns the number of device and queue idle waits.

func (d *Device) WaitIdleCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waitIdle
}

// Acquires returns the number of AcquireNext calls that reached the device.
func (d *Device) Acquires() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquires
}

// FenceWaits returns the number of WaitForFences calls.
func (d *Device) FenceWaits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fenceWaits
}

// ID returns the identifier of an object created by a Device, or 0.
func ID(v interface{}) int {
	if id, ok := v.(identified); ok {
		return id.obj().id
	}
	return 0
}

var errPoolExhausted = errors.New("drivertest: descriptor pool exhausted")
