package loaders

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

type BinaryLoader struct{}

// Load reads a SPIR-V module. Data holds the words as []uint32.
func (bl *BinaryLoader) Load(path string, params interface{}) (*Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(buf) < 4 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("%s: size %d is not a multiple of 4", path, len(buf))
	}

	res := bytesToBytecode(buf)
	if res[0] != spirvMagic {
		return nil, fmt.Errorf("%s: not a SPIR-V module (magic %#08x)", path, res[0])
	}

	return &Resource{
		Name:     filepath.Base(path),
		FullPath: path,
		DataSize: uint64(len(buf)),
		Data:     res,
	}, nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
