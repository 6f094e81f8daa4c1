//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the engine with gbuffer.toml.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "gbuffer.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the unit tests against the in-memory driver.
func (Run) Tests() error {
	_, err := executeCmd("go", withArgs("test", "./engine/..."), withEnv("CGO_ENABLED", "1"), withStream())
	return err
}
