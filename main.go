package main

import "github.com/aitweaker/tweakd/cmd"

func main() {
	cmd.Execute()
}
