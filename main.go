package main

import (
	"os"
)

// main is the app's entry point.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
