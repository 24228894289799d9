package main

import "github.com/spaghettifunk/anima-editor/cmd"

func main() {
	cmd.Execute()
}
