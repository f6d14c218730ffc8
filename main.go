// The main package for the element-counter executable.
package main

import "github.com/JakeFAU/element-counter/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
