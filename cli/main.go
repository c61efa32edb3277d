// Command seal inspects and queries configured data sources.
package main

import (
	"fmt"
	"os"

	"github.com/satishbabariya/seal-go/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
