package main

import (
	"os"
)

// BinaryName names the log files. Version and BuildDate can be set at build
// time via ldflags.
var (
	Version   = "dev"
	BuildDate = "unknown"

	BinaryName = "torcs_driver"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
