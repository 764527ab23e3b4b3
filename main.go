package main

import (
	"github.com/jareddonovan/creative-coding-showcase/cmd"
)

func main() {
	cmd.Execute()
}
