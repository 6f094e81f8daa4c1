package loaders

// Resource is the result of a loader.
type Resource struct {
	Name     string
	FullPath string
	DataSize uint64
	Data     interface{}
}

// ImageData holds tightly packed 8-bit RGBA pixels, rows top to bottom
// unless flipped on load.
type ImageData struct {
	Width  uint32
	Height uint32
	Pixels []uint8
}

type ImageParams struct {
	FlipY bool
}
