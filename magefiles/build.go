//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds the editor binary into bin/.
func (Build) Editor() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/anima-editor", "."), cgoEnv, withStream()); err != nil {
		return err
	}
	return nil
}

// Runs go vet on every package.
func Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}

// Runs the tests of every package. The Vulkan tests skip without a driver.
func Test() error {
	mg.Deps(Vet)
	_, err := executeCmd("go", withArgs("test", "-count=1", "./..."), cgoEnv, withStream())
	return err
}
