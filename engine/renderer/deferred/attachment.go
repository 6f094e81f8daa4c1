package deferred

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// ErrNotOwner is returned when an attachment is released through a target
// that did not create it.
var ErrNotOwner = errors.New("attachment is owned by another target")

type AttachmentUsage int

const (
	AttachmentColor AttachmentUsage = iota
	AttachmentDepth
)

func (u AttachmentUsage) String() string {
	if u == AttachmentDepth {
		return "depth"
	}
	return "color"
}

// Attachment is an image with its own memory and a view over it.
type Attachment struct {
	Image  driver.Image
	Memory driver.Memory
	View   driver.ImageView
	Format driver.Format
	Usage  AttachmentUsage
	Extent driver.Extent2D

	owner uuid.UUID
}

// Owner returns the ID of the target that created the attachment.
func (a *Attachment) Owner() uuid.UUID { return a.owner }

// newAttachment creates an image, binds fresh device-local memory to it and
// creates a view. Color attachments are sampled by later passes.
func newAttachment(ctx GPUContext, owner uuid.UUID, format driver.Format, usage AttachmentUsage, extent driver.Extent2D) (a *Attachment, err error) {
	var rel releaser
	defer rel.onError(&err)

	imgUsage := driver.UsageColorAttachment | driver.UsageSampled
	if usage == AttachmentDepth {
		imgUsage = driver.UsageDepthStencilAttachment
	}
	img, err := ctx.Device.CreateImage(driver.ImageInfo{Extent: extent, Format: format, Usage: imgUsage})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s attachment image: %w", usage, err)
	}
	rel.push(img)

	mem, err := ctx.allocate(img.MemoryRequirements(), driver.MemoryDeviceLocal)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %s attachment memory: %w", usage, err)
	}
	rel.push(mem)
	if err = ctx.Device.BindImageMemory(img, mem, 0); err != nil {
		return nil, fmt.Errorf("failed to bind %s attachment memory: %w", usage, err)
	}

	view, err := ctx.Device.CreateImageView(img, driver.ImageViewInfo{Format: format, Aspect: format.Aspect()})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s attachment view: %w", usage, err)
	}

	core.LogDebug("created %s attachment %s %dx%d", usage, format, extent.Width, extent.Height)
	return &Attachment{
		Image:  img,
		Memory: mem,
		View:   view,
		Format: format,
		Usage:  usage,
		Extent: extent,
		owner:  owner,
	}, nil
}

// destroy releases the view, the image and the memory, in that order.
func (a *Attachment) destroy(owner uuid.UUID) error {
	if a.owner != owner {
		return fmt.Errorf("destroy %s attachment: %w", a.Usage, ErrNotOwner)
	}
	if a.View == nil {
		return nil
	}
	a.View.Destroy()
	a.Image.Destroy()
	a.Memory.Destroy()
	a.View, a.Image, a.Memory = nil, nil, nil
	return nil
}

// depthFormats lists the depth formats tried, in order of preference.
var depthFormats = []driver.Format{
	driver.FormatD32Float,
	driver.FormatD32FloatS8,
	driver.FormatD24UnormS8,
	driver.FormatD16UnormS8,
	driver.FormatD16Unorm,
}

func selectDepthFormat(dev driver.Device) (driver.Format, error) {
	f, ok := dev.SupportedDepthFormat(depthFormats)
	if !ok {
		return driver.FormatUndefined, fmt.Errorf("no supported depth format")
	}
	return f, nil
}
