package forward

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/gbuffer/engine/core"
	"github.com/spaghettifunk/gbuffer/engine/renderer/deferred"
	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

// Texture is a sampled RGBA8 image in device-local memory.
type Texture struct {
	Image   driver.Image
	Memory  driver.Memory
	View    driver.ImageView
	Sampler driver.Sampler
	Extent  driver.Extent2D
}

// whitePixel backs the texture used when no image could be loaded.
var whitePixel = []byte{255, 255, 255, 255}

// NewTexture uploads width*height RGBA8 pixels through a staging buffer and
// a single-use command buffer on the graphics queue. It returns once the
// copy has completed.
func NewTexture(ctx deferred.GPUContext, extent driver.Extent2D, pixels []byte, timeout time.Duration) (tex *Texture, err error) {
	if extent.IsZero() {
		return nil, fmt.Errorf("texture has zero area")
	}
	if want := int(extent.Width) * int(extent.Height) * 4; len(pixels) != want {
		return nil, fmt.Errorf("texture %dx%d needs %d bytes, got %d", extent.Width, extent.Height, want, len(pixels))
	}
	tex = &Texture{Extent: extent}
	defer func() {
		if err != nil {
			tex.Destroy()
			tex = nil
		}
	}()

	if tex.Image, err = ctx.Device.CreateImage(driver.ImageInfo{
		Extent: extent,
		Format: driver.FormatRGBA8Unorm,
		Usage:  driver.UsageSampled | driver.UsageTransferDst,
	}); err != nil {
		return nil, fmt.Errorf("failed to create texture image: %w", err)
	}
	req := tex.Image.MemoryRequirements()
	idx, err := ctx.Memory.FindType(req.TypeBits, driver.MemoryDeviceLocal)
	if err != nil {
		return nil, fmt.Errorf("texture memory: %w", err)
	}
	if tex.Memory, err = ctx.Device.AllocateMemory(req.Size, idx); err != nil {
		return nil, fmt.Errorf("failed to allocate texture memory: %w", err)
	}
	if err = ctx.Device.BindImageMemory(tex.Image, tex.Memory, 0); err != nil {
		return nil, fmt.Errorf("failed to bind texture memory: %w", err)
	}
	if err = upload(ctx, tex.Image, extent, pixels, timeout); err != nil {
		return nil, err
	}
	if tex.View, err = ctx.Device.CreateImageView(tex.Image, driver.ImageViewInfo{
		Format: driver.FormatRGBA8Unorm,
		Aspect: driver.AspectColor,
	}); err != nil {
		return nil, fmt.Errorf("failed to create texture view: %w", err)
	}
	if tex.Sampler, err = ctx.Device.CreateSampler(driver.SamplerInfo{
		Filter:  driver.FilterLinear,
		Address: driver.AddressRepeat,
	}); err != nil {
		return nil, fmt.Errorf("failed to create texture sampler: %w", err)
	}
	core.LogDebug("texture created %dx%d", extent.Width, extent.Height)
	return tex, nil
}

func upload(ctx deferred.GPUContext, img driver.Image, extent driver.Extent2D, pixels []byte, timeout time.Duration) error {
	staging, err := deferred.NewHostBuffer(ctx, uint64(len(pixels)), driver.BufferTransferSrc)
	if err != nil {
		return fmt.Errorf("texture staging buffer: %w", err)
	}
	defer staging.Destroy()
	copy(staging.Data, pixels)

	cbs, err := ctx.Device.AllocateCommandBuffers(1)
	if err != nil {
		return fmt.Errorf("failed to allocate upload command buffer: %w", err)
	}
	cb := cbs[0]
	defer cb.Destroy()
	fence, err := ctx.Device.CreateFence(false)
	if err != nil {
		return fmt.Errorf("failed to create upload fence: %w", err)
	}
	defer fence.Destroy()

	if err := cb.Begin(driver.UsageOneTimeSubmit); err != nil {
		return fmt.Errorf("failed to begin upload command buffer: %w", err)
	}
	cb.Barrier(driver.ImageBarrier{
		Image:     img,
		Old:       driver.LayoutUndefined,
		New:       driver.LayoutTransferDst,
		SrcStage:  driver.StageTopOfPipe,
		DstStage:  driver.StageTransfer,
		DstAccess: driver.AccessTransferWrite,
		Aspect:    driver.AspectColor,
	})
	cb.CopyBufferToImage(staging.Buffer, img, extent)
	cb.Barrier(driver.ImageBarrier{
		Image:     img,
		Old:       driver.LayoutTransferDst,
		New:       driver.LayoutShaderRead,
		SrcStage:  driver.StageTransfer,
		DstStage:  driver.StageFragmentShader,
		SrcAccess: driver.AccessTransferWrite,
		DstAccess: driver.AccessShaderRead,
		Aspect:    driver.AspectColor,
	})
	if err := cb.End(); err != nil {
		return fmt.Errorf("failed to end upload command buffer: %w", err)
	}
	err = ctx.GraphicsQueue.Submit([]driver.SubmitInfo{{CommandBuffers: []driver.CommandBuffer{cb}}}, fence)
	if err != nil {
		return fmt.Errorf("failed to submit texture upload: %w", err)
	}
	if err := ctx.Device.WaitForFences([]driver.Fence{fence}, timeout); err != nil {
		return fmt.Errorf("texture upload: %w", err)
	}
	return nil
}

// Destroy releases the texture. It is safe on a partially created one.
func (t *Texture) Destroy() {
	if t == nil {
		return
	}
	for _, d := range []driver.Destroyer{t.Sampler, t.View, t.Image, t.Memory} {
		if d != nil {
			d.Destroy()
		}
	}
	t.Sampler, t.View, t.Image, t.Memory = nil, nil, nil, nil
}
