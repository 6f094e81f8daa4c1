package assets

import (
	"fmt"

	"github.com/magefile/mage/sh"

	"github.com/spaghettifunk/gbuffer/engine/core"
)

// CompileShaders runs the external shader compilation command, for example
// ["mage", "build:shaders"]. Its output goes to the engine's stdout.
func CompileShaders(command []string) error {
	if len(command) == 0 {
		return nil
	}
	core.LogInfo("compiling shaders: %v", command)
	if err := sh.RunV(command[0], command[1:]...); err != nil {
		return fmt.Errorf("shader compilation failed: %w", err)
	}
	return nil
}
