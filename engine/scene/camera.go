package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// vulkanClip maps OpenGL clip space to Vulkan's: y points down and depth
// goes from 0 to 1.
var vulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Camera is a perspective camera looking at a point. The view matrix is
// rebuilt lazily after the camera moves.
type Camera struct {
	Position mgl32.Vec3
	LookAt   mgl32.Vec3
	Up       mgl32.Vec3
	// Fov is the vertical field of view in degrees.
	Fov  float32
	Near float32
	Far  float32

	isDirty bool
	view    mgl32.Mat4
}

func NewCamera() *Camera {
	c := &Camera{}
	c.Reset()
	return c
}

func (c *Camera) Reset() {
	c.Position = mgl32.Vec3{0, 2, 8}
	c.LookAt = mgl32.Vec3{0, 0, 0}
	c.Up = mgl32.Vec3{0, 1, 0}
	c.Fov = 45
	c.Near = 0.1
	c.Far = 1000
	c.isDirty = true
}

func (c *Camera) SetPosition(p mgl32.Vec3) {
	c.Position = p
	c.isDirty = true
}

func (c *Camera) SetLookAt(p mgl32.Vec3) {
	c.LookAt = p
	c.isDirty = true
}

func (c *Camera) View() mgl32.Mat4 {
	if c.isDirty {
		c.view = mgl32.LookAtV(c.Position, c.LookAt, c.Up)
		c.isDirty = false
	}
	return c.view
}

// Projection returns the Vulkan-ready projection for the given aspect ratio.
func (c *Camera) Projection(aspect float32) mgl32.Mat4 {
	return vulkanClip.Mul4(mgl32.Perspective(mgl32.DegToRad(c.Fov), aspect, c.Near, c.Far))
}

// ProjView returns projection * view.
func (c *Camera) ProjView(aspect float32) mgl32.Mat4 {
	return c.Projection(aspect).Mul4(c.View())
}

func (c *Camera) Forward() mgl32.Vec3 {
	return c.LookAt.Sub(c.Position).Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.Forward().Cross(c.Up).Normalize()
}

// MoveForward moves the camera and its target along the view direction.
func (c *Camera) MoveForward(amount float32) {
	c.translate(c.Forward().Mul(amount))
}

func (c *Camera) MoveRight(amount float32) {
	c.translate(c.Right().Mul(amount))
}

func (c *Camera) MoveUp(amount float32) {
	c.translate(c.Up.Normalize().Mul(amount))
}

func (c *Camera) translate(d mgl32.Vec3) {
	c.Position = c.Position.Add(d)
	c.LookAt = c.LookAt.Add(d)
	c.isDirty = true
}

// Orbit rotates the camera position around the target by yaw radians
// about the up axis.
func (c *Camera) Orbit(yaw float32) {
	rot := mgl32.HomogRotate3D(yaw, c.Up.Normalize())
	offset := c.Position.Sub(c.LookAt)
	c.Position = c.LookAt.Add(rot.Mul4x1(offset.Vec4(0)).Vec3())
	c.isDirty = true
}
