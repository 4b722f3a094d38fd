package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// decodeInputEvent parses one raw event. reader is reset onto buf.
func decodeInputEvent(reader *bytes.Reader, buf []byte) (inputEvent, error) {
	reader.Reset(buf)
	var ev inputEvent
	err := binary.Read(reader, binary.LittleEndian, &ev)
	return ev, err
}

// readInputEvents reads input events from a single device and sends them to
// a channel. It runs in a dedicated goroutine and blocks on read operations.
func readInputEvents(f *os.File, events chan<- inputEvent, readErr chan<- error) {
	buf := make([]byte, binary.Size(inputEvent{}))
	reader := bytes.NewReader(buf)

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
			return
		}
		ev, err := decodeInputEvent(reader, buf)
		if err != nil {
			// Skip malformed events
			continue
		}
		events <- ev
	}
}

// inputSweepInterval is how often the input loop checks for an implicit
// release of a dial gesture.
const inputSweepInterval = 10 * time.Millisecond

// runInput opens the configured devices, translates raw events into pointer
// events and forwards them to the daemon. It returns when ctx is canceled or
// a device fails.
func runInput(ctx context.Context, devices []string, cfg InputConfig, out chan<- Event, logger *slog.Logger) error {
	files := make([]*os.File, 0, len(devices))
	for _, dev := range devices {
		f, err := os.Open(ExpandPath(dev))
		if err != nil {
			for _, g := range files {
				g.Close()
			}
			return fmt.Errorf("open input device %s: %w (run as root or add user to 'input' group)", dev, err)
		}
		files = append(files, f)
	}

	// Closing the devices unblocks the reader on shutdown.
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	raw := make(chan inputEvent, 64)
	readErr := make(chan error, len(files))
	go readDevices(files, raw, readErr)

	tr := newPointerTranslator(cfg)
	sweep := time.NewTicker(inputSweepInterval)
	defer sweep.Stop()

	logger.Info("input listening", "devices", devices)

	forward := func(evs []Event) {
		for _, ev := range evs {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("input reader stopped: %w", err)

		case ev := <-raw:
			forward(tr.Translate(ev, time.Now()))

		case now := <-sweep.C:
			forward(tr.Expire(now))
		}
	}
}
