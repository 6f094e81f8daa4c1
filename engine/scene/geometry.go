package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/gbuffer/engine/core"
)

// Vertex is the interleaved vertex of every mesh: position, normal and
// texture coordinates, 32 bytes.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Texcoord mgl32.Vec2
}

const VertexSize = 32

// Mesh is an indexed triangle list.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32
}

type face struct {
	normal, u, v mgl32.Vec3
}

// The six faces of a unit cube: outward normal and the two in-plane axes,
// ordered so that u x v points along the normal.
var cubeFaces = []face{
	{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
	{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
	{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
}

// GenerateCube returns a box centered on the origin with 4 vertices and 6
// indices per face. Zero sizes default to one.
func GenerateCube(width, height, depth float32) Mesh {
	if width == 0 {
		core.LogWarn("width must be nonzero, defaulting to one")
		width = 1
	}
	if height == 0 {
		core.LogWarn("height must be nonzero, defaulting to one")
		height = 1
	}
	if depth == 0 {
		core.LogWarn("depth must be nonzero, defaulting to one")
		depth = 1
	}
	half := mgl32.Vec3{width / 2, height / 2, depth / 2}
	scale := func(v mgl32.Vec3) mgl32.Vec3 {
		return mgl32.Vec3{v[0] * half[0], v[1] * half[1], v[2] * half[2]}
	}

	m := Mesh{Name: "cube"}
	for _, f := range cubeFaces {
		base := uint32(len(m.Vertices))
		corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
		for _, c := range corners {
			p := f.normal.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1]))
			m.Vertices = append(m.Vertices, Vertex{
				Position: scale(p),
				Normal:   f.normal,
				Texcoord: mgl32.Vec2{(c[0] + 1) / 2, (c[1] + 1) / 2},
			})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return m
}

// GeneratePlane returns a horizontal quad facing up.
func GeneratePlane(width, depth float32) Mesh {
	w, d := width/2, depth/2
	return Mesh{
		Name: "plane",
		Vertices: []Vertex{
			{Position: mgl32.Vec3{-w, 0, d}, Normal: mgl32.Vec3{0, 1, 0}, Texcoord: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{w, 0, d}, Normal: mgl32.Vec3{0, 1, 0}, Texcoord: mgl32.Vec2{1, 0}},
			{Position: mgl32.Vec3{w, 0, -d}, Normal: mgl32.Vec3{0, 1, 0}, Texcoord: mgl32.Vec2{1, 1}},
			{Position: mgl32.Vec3{-w, 0, -d}, Normal: mgl32.Vec3{0, 1, 0}, Texcoord: mgl32.Vec2{0, 1}},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// GenerateNormals replaces the normals of m with face normals.
func GenerateNormals(m *Mesh) {
	for i := 0; i+2 < len(m.Indices); i += 3 {
		i0, i1, i2 := m.Indices[i], m.Indices[i+1], m.Indices[i+2]
		edge1 := m.Vertices[i1].Position.Sub(m.Vertices[i0].Position)
		edge2 := m.Vertices[i2].Position.Sub(m.Vertices[i0].Position)
		n := edge1.Cross(edge2).Normalize()
		m.Vertices[i0].Normal = n
		m.Vertices[i1].Normal = n
		m.Vertices[i2].Normal = n
	}
}
