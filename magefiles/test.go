//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test. The vulkan and platform packages need cgo and the
// Vulkan and glfw headers to build.
func (Test) All() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the tests that only need the headless device.
func (Test) Headless() error {
	pkgs := []string{
		"./engine/core/...",
		"./engine/math/...",
		"./engine/config/...",
		"./engine/renderer/descriptors/...",
		"./engine/renderer/swapchain/...",
		"./engine/renderer/frames/...",
		"./engine/renderer/metadata/...",
		"./engine/systems/...",
	}
	if _, err := executeCmd("go", withArgs(append([]string{"test", "-race"}, pkgs...)...), withStream()); err != nil {
		return err
	}
	return nil
}
