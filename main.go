// The main package for the h1bcrawler executable.
package main

import "github.com/JakeFAU/h1b-jobs-crawler/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
