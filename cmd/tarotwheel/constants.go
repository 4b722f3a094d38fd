package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01
	EV_REL = 0x02

	BTN_LEFT  = 0x110
	BTN_TOUCH = 0x14a

	REL_X      = 0x00
	REL_HWHEEL = 0x06
	REL_DIAL   = 0x07
	REL_WHEEL  = 0x08
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Daemon defaults
const (
	defaultUpdateHz = 60 // frame loop frequency (Hz)

	defaultSlotCount     = 40
	defaultViewportWidth = 800.0
	defaultCardWidth     = 100.0
	defaultCardHeight    = 167.0
	defaultVisibility    = 0.7

	defaultPixelsPerCount   = 12.0 // screen pixels per relative count
	defaultVelocityWindowMS = 100  // release velocity sampling window (ms)
	defaultIdleReleaseMS    = 80   // implicit release after this much dial silence (ms)

	defaultIPCSocketPath   = "/tmp/tarotwheel.sock"
	defaultStateWSAddr     = "127.0.0.1:8088"
	defaultStateWSPath     = "/ws/state"
	defaultFrameCoalesceMS = 33
)
