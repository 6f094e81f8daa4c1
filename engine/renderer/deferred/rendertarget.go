package deferred

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// G-buffer layout: world position, normal and albedo, then depth.
var gbufferFormats = []driver.Format{
	driver.FormatRGBA16Float,
	driver.FormatRGBA16Float,
	driver.FormatRGBA8Unorm,
}

// RenderTarget groups color attachments and one depth attachment into a
// render pass and a framebuffer that later passes sample from.
type RenderTarget struct {
	ID          uuid.UUID
	Extent      driver.Extent2D
	Attachments []*Attachment
	RenderPass  driver.RenderPass
	Framebuffer driver.Framebuffer

	ctx          GPUContext
	colorFormats []driver.Format
	depthFormat  driver.Format
}

// NewGBuffer creates the offscreen target of the attribute pass.
func NewGBuffer(ctx GPUContext, extent driver.Extent2D) (*RenderTarget, error) {
	depth, err := selectDepthFormat(ctx.Device)
	if err != nil {
		return nil, err
	}
	return NewRenderTarget(ctx, extent, gbufferFormats, depth)
}

// NewRenderTarget creates one color attachment per format plus a depth
// attachment, in that order.
func NewRenderTarget(ctx GPUContext, extent driver.Extent2D, colorFormats []driver.Format, depthFormat driver.Format) (*RenderTarget, error) {
	rt := &RenderTarget{
		ID:           uuid.New(),
		ctx:          ctx,
		colorFormats: colorFormats,
		depthFormat:  depthFormat,
	}
	if err := rt.build(extent); err != nil {
		return nil, err
	}
	core.LogDebug("render target %s created with %d attachments", rt.ID, len(rt.Attachments))
	return rt, nil
}

func (rt *RenderTarget) build(extent driver.Extent2D) (err error) {
	var rel releaser
	defer rel.onError(&err)

	if extent.IsZero() {
		return fmt.Errorf("render target %s: zero-area extent", rt.ID)
	}
	attachments := make([]*Attachment, 0, len(rt.colorFormats)+1)
	for _, f := range rt.colorFormats {
		a, err := newAttachment(rt.ctx, rt.ID, f, AttachmentColor, extent)
		if err != nil {
			return err
		}
		rel.pushFunc(func() { a.destroy(rt.ID) })
		attachments = append(attachments, a)
	}
	depth, err := newAttachment(rt.ctx, rt.ID, rt.depthFormat, AttachmentDepth, extent)
	if err != nil {
		return err
	}
	rel.pushFunc(func() { depth.destroy(rt.ID) })
	attachments = append(attachments, depth)

	info := driver.RenderPassInfo{Depth: len(rt.colorFormats)}
	for i, f := range rt.colorFormats {
		info.Attachments = append(info.Attachments, driver.AttachmentInfo{
			Format:  f,
			Load:    driver.LoadClear,
			Store:   driver.StoreStore,
			Initial: driver.LayoutUndefined,
			Final:   driver.LayoutShaderRead,
		})
		info.Color = append(info.Color, i)
	}
	info.Attachments = append(info.Attachments, driver.AttachmentInfo{
		Format:  rt.depthFormat,
		Load:    driver.LoadClear,
		Store:   driver.StoreDontCare,
		Initial: driver.LayoutUndefined,
		Final:   driver.LayoutDepthStencilAttachment,
	})
	// Attribute writes must finish before the resolve pass samples them.
	info.Dependencies = []driver.SubpassDependency{
		{
			Src:       driver.SubpassExternal,
			Dst:       0,
			SrcStage:  driver.StageBottomOfPipe,
			DstStage:  driver.StageColorAttachmentOutput,
			SrcAccess: driver.AccessMemoryRead,
			DstAccess: driver.AccessColorWrite,
		},
		{
			Src:       0,
			Dst:       driver.SubpassExternal,
			SrcStage:  driver.StageColorAttachmentOutput,
			DstStage:  driver.StageFragmentShader,
			SrcAccess: driver.AccessColorWrite,
			DstAccess: driver.AccessShaderRead,
		},
	}
	rp, err := rt.ctx.Device.CreateRenderPass(info)
	if err != nil {
		return fmt.Errorf("failed to create offscreen render pass: %w", err)
	}
	rel.push(rp)

	views := make([]driver.ImageView, len(attachments))
	for i, a := range attachments {
		views[i] = a.View
	}
	fb, err := rt.ctx.Device.CreateFramebuffer(driver.FramebufferInfo{RenderPass: rp, Attachments: views, Extent: extent})
	if err != nil {
		return fmt.Errorf("failed to create offscreen framebuffer: %w", err)
	}

	rt.Extent = extent
	rt.Attachments = attachments
	rt.RenderPass = rp
	rt.Framebuffer = fb
	return nil
}

// ColorAttachments returns the color attachments in render pass order.
func (rt *RenderTarget) ColorAttachments() []*Attachment {
	return rt.Attachments[:len(rt.colorFormats)]
}

// DepthAttachment returns the depth attachment.
func (rt *RenderTarget) DepthAttachment() *Attachment {
	return rt.Attachments[len(rt.colorFormats)]
}

// ClearValues returns zero for every color attachment and 1.0 for depth.
func (rt *RenderTarget) ClearValues() []driver.ClearValue {
	cv := make([]driver.ClearValue, len(rt.Attachments))
	cv[len(cv)-1].Depth = 1
	return cv
}

// Release destroys an attachment created by this target.
func (rt *RenderTarget) Release(a *Attachment) error {
	return a.destroy(rt.ID)
}

// Resize rebuilds every attachment, the render pass and the framebuffer at
// the new extent. On failure the target keeps its previous resources.
// The caller guarantees that the GPU no longer uses the target.
func (rt *RenderTarget) Resize(extent driver.Extent2D) error {
	old := *rt
	if err := rt.build(extent); err != nil {
		*rt = old
		return err
	}
	old.destroyResources()
	core.LogDebug("render target %s resized to %dx%d", rt.ID, extent.Width, extent.Height)
	return nil
}

func (rt *RenderTarget) destroyResources() {
	if rt.Framebuffer != nil {
		rt.Framebuffer.Destroy()
	}
	if rt.RenderPass != nil {
		rt.RenderPass.Destroy()
	}
	for _, a := range rt.Attachments {
		if err := rt.Release(a); err != nil {
			core.LogError("render target %s: %s", rt.ID, err)
		}
	}
	rt.Framebuffer, rt.RenderPass, rt.Attachments = nil, nil, nil
}

// Destroy releases every resource of the target.
func (rt *RenderTarget) Destroy() {
	rt.destroyResources()
	core.LogDebug("render target %s destroyed", rt.ID)
}
