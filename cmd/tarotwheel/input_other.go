//go:build !linux

package main

import (
	"fmt"
	"os"
)

// readDevices falls back to one blocking reader goroutine per device.
func readDevices(files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	if len(files) == 0 {
		readErr <- fmt.Errorf("no input devices provided")
		return
	}
	for _, f := range files {
		go readInputEvents(f, events, readErr)
	}
}
