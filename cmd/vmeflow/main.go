// Package main implements the vmeflow command line interface. vmeflow is a
// real-time dataflow engine for VME detector readout: it turns raw module
// words into calibrated parameters, aggregates, histograms and export
// streams while a run is taking data.
package main

import (
	"fmt"
	"os"
	"runtime/debug"
)

// Build information, overridable via -ldflags.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "vmeflow"

func main() {
	os.Exit(realMain())
}

// realMain wraps command execution so deferred cleanup runs before the
// process exits.
func realMain() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s", r, debug.Stack())
			code = 2
		}
	}()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
