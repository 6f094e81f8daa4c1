package vulkan

import (
	"errors"
	"math"
	"testing"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/gbuffer/engine/renderer/driver"
)

func TestResultErrorMapsSentinels(t *testing.T) {
	assert.NoError(t, resultError("vkQueuePresent", vk.Success))

	cases := map[vk.Result]error{
		vk.Suboptimal:             driver.ErrSuboptimal,
		vk.ErrorOutOfDate:         driver.ErrOutOfDate,
		vk.Timeout:                driver.ErrTimeout,
		vk.ErrorDeviceLost:        driver.ErrDeviceLost,
		vk.ErrorOutOfDeviceMemory: driver.ErrFatal,
		vk.ErrorSurfaceLost:       driver.ErrFatal,
	}
	for res, want := range cases {
		err := resultError("vkCall", res)
		require.Error(t, err)
		assert.True(t, errors.Is(err, want), "%s should wrap %v", resultString(res, false), want)
		assert.Contains(t, err.Error(), "vkCall")
	}
}

func TestResultStringExtended(t *testing.T) {
	assert.Equal(t, "VK_ERROR_OUT_OF_DATE_KHR", resultString(vk.ErrorOutOfDate, false))
	assert.Contains(t, resultString(vk.ErrorDeviceLost, true), "device has been lost")
}

func TestFormatRoundTrip(t *testing.T) {
	for f := range formats {
		assert.Equal(t, f, driverFormat(vkFormat(f)))
	}
	assert.Equal(t, vk.FormatUndefined, vkFormat(driver.FormatUndefined))
	assert.Equal(t, driver.FormatUndefined, driverFormat(vk.FormatR8Unorm))
}

func TestTimeoutNanos(t *testing.T) {
	assert.Equal(t, uint64(math.MaxUint64), timeoutNanos(-1))
	assert.Equal(t, uint64(2e9), timeoutNanos(2*time.Second))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(5), clamp(uint32(1), 5, 10))
	assert.Equal(t, uint32(10), clamp(uint32(50), 5, 10))
	assert.Equal(t, 7, clamp(7, 5, 10))
}

func TestChooseExtent(t *testing.T) {
	s := swapchainSupport{capabilities: vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 1920, Height: 1080},
	}}
	got := s.chooseExtent(driver.Extent2D{Width: 4000, Height: 600})
	assert.Equal(t, uint32(1920), got.Width)
	assert.Equal(t, uint32(600), got.Height)

	s.capabilities.CurrentExtent = vk.Extent2D{Width: 800, Height: 600}
	got = s.chooseExtent(driver.Extent2D{Width: 4000, Height: 4000})
	assert.Equal(t, vk.Extent2D{Width: 800, Height: 600}, got)
}

func TestChooseImageCount(t *testing.T) {
	s := swapchainSupport{capabilities: vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3}}
	assert.Equal(t, uint32(3), s.chooseImageCount(1))
	assert.Equal(t, uint32(3), s.chooseImageCount(8))

	s.capabilities.MaxImageCount = 0
	assert.Equal(t, uint32(8), s.chooseImageCount(8))
}

func TestChoosePresentMode(t *testing.T) {
	s := swapchainSupport{presentModes: []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate}}
	assert.Equal(t, vk.PresentModeFifo, s.choosePresentMode(true))
	assert.Equal(t, vk.PresentModeImmediate, s.choosePresentMode(false))

	s.presentModes = append(s.presentModes, vk.PresentModeMailbox)
	assert.Equal(t, vk.PresentModeMailbox, s.choosePresentMode(false))
}

func TestChooseFormat(t *testing.T) {
	s := swapchainSupport{formats: []vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}}
	_, f := s.chooseFormat()
	assert.Equal(t, driver.FormatBGRA8Unorm, f)

	s.formats = s.formats[:1]
	sf, f := s.chooseFormat()
	assert.Equal(t, driver.FormatRGBA8Unorm, f)
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, sf.Format)
}

func TestQueueFamiliesUnique(t *testing.T) {
	assert.Equal(t, []uint32{0}, queueFamilies{graphics: 0, present: 0, transfer: 0}.unique())
	assert.Equal(t, []uint32{0, 2}, queueFamilies{graphics: 0, present: 0, transfer: 2}.unique())
	assert.Equal(t, []uint32{1, 0, 2}, queueFamilies{graphics: 1, present: 0, transfer: 2}.unique())
	assert.False(t, queueFamilies{graphics: 0, present: -1, transfer: 0}.complete())
}

func TestLockPoolSerializesGroup(t *testing.T) {
	p := newLockPool()
	done := make(chan struct{})
	inside := 0
	for i := 0; i < 8; i++ {
		go func() {
			_ = p.safeCall(pipelineManagement, func() error {
				inside++
				inside--
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, 0, inside)

	want := errors.New("boom")
	assert.Equal(t, want, p.safeQueueCall(3, func() error { return want }))
}

func TestMemoryPropertyConversion(t *testing.T) {
	flags := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	assert.Equal(t, driver.MemoryHostVisible|driver.MemoryHostCoherent, driverMemoryProperty(flags))
}

func TestComputeFlags(t *testing.T) {
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageComputeBit), vkShaderStages(driver.StageCompute))
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit|vk.PipelineStageHostBit),
		vkStages(driver.StageComputeShader|driver.StageHost))
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderWriteBit|vk.AccessHostReadBit),
		vkAccess(driver.AccessShaderWrite|driver.AccessHostRead))
}
