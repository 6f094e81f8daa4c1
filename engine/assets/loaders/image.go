package loaders

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/transform"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type ImageLoader struct{}

// Load decodes a PNG, JPEG, BMP, TIFF or WebP file into RGBA pixels.
// params may be nil or *ImageParams.
func (il *ImageLoader) Load(path string, params interface{}) (*Resource, error) {
	var flip bool
	if p, ok := params.(*ImageParams); ok && p != nil {
		flip = p.FlipY
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	b := img.Bounds()
	var rgba *image.RGBA
	if flip {
		rgba = transform.FlipV(img)
	} else {
		rgba = clone.AsRGBA(img)
	}

	return &Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		DataSize: uint64(len(rgba.Pix)),
		Data: &ImageData{
			Width:  uint32(b.Dx()),
			Height: uint32(b.Dy()),
			Pixels: rgba.Pix,
		},
	}, nil
}
