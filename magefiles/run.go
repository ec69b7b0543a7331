//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed in a window with the Vulkan backend.
func (Run) Engine() error {
	fmt.Println("Run engine...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "framepace.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the testbed against the headless device; no display or GPU needed.
func (Run) Headless() error {
	fmt.Println("Run headless...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "framepace.toml", "-backend", "headless"), withStream()); err != nil {
		return err
	}
	return nil
}
