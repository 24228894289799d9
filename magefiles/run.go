//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the headless editor with the software backend. EDITOR_CONFIG selects
// a configuration file.
func (Run) Editor() error {
	mg.Deps(Build.Editor)
	args := []string{"run", "--backend", "software"}
	if config := os.Getenv("EDITOR_CONFIG"); config != "" {
		args = append(args, "--config", config)
	}
	fmt.Println("Run editor...")
	_, err := executeCmd("bin/anima-editor", withArgs(args...), withStream())
	return err
}

// Runs the headless editor on the Vulkan backend.
func (Run) Vulkan() error {
	mg.Deps(Build.Editor)
	_, err := executeCmd("bin/anima-editor", withArgs("run", "--backend", "vulkan"), withStream())
	return err
}
