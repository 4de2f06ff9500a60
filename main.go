// Package main is the entry point for the satcam camera payload controller.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/satcam/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
