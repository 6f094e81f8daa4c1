//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

const shaderDir = "assets/shaders"

var shaderSources = []string{
	"simple.vert",
	"mrt.frag",
	"resolve.vert",
	"resolve.frag",
	"quad.vert",
	"quad.frag",
	"scan.comp",
	"add.comp",
}

type Build mg.Namespace

// Compiles the GLSL sources under assets/shaders to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the gbuffer binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/gbuffer", "."), withStream())
	return err
}

func buildShaders() error {
	include := filepath.Join(shaderDir, "params.glsl")
	for _, src := range shaderSources {
		in := filepath.Join(shaderDir, src)
		out := in + ".spv"
		stale, err := target.Path(out, in, include)
		if err != nil {
			return err
		}
		if !stale {
			continue
		}
		if _, err := executeCmd("glslangValidator", withArgs("-V", in, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}
