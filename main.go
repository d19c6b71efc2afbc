package main

import (
	"github.com/leadfoundry/siteauditor/cmd"
)

// main defers all execution to the Cobra command tree in cmd.
func main() {
	cmd.Execute()
}
