package assets

import (
	"fmt"

	"github.com/spaghettifunk/gbuffer/engine/assets/loaders"
	"github.com/spaghettifunk/gbuffer/engine/core"
)

type Loader interface {
	Load(path string, params interface{}) (*loaders.Resource, error)
}

var (
	shaderLoader Loader = &loaders.BinaryLoader{}
	imageLoader  Loader = &loaders.ImageLoader{}
)

// LoadSPIRV reads a compiled shader module.
func LoadSPIRV(path string) ([]uint32, error) {
	res, err := shaderLoader.Load(path, nil)
	if err != nil {
		return nil, err
	}
	core.LogDebug("loaded shader %s (%d bytes)", res.FullPath, res.DataSize)
	return res.Data.([]uint32), nil
}

// LoadImage decodes an image into RGBA pixels, optionally flipped so that
// the first row is the bottom one.
func LoadImage(path string, flipY bool) (*loaders.ImageData, error) {
	res, err := imageLoader.Load(path, &loaders.ImageParams{FlipY: flipY})
	if err != nil {
		return nil, err
	}
	img, ok := res.Data.(*loaders.ImageData)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected image data %T", path, res.Data)
	}
	core.LogDebug("loaded image %s %dx%d", res.FullPath, img.Width, img.Height)
	return img, nil
}
