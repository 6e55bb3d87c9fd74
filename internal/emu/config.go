package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace    bool // callers sample Snapshot() per step for instruction traces
	LimitFPS bool // throttle to ~60 Hz (useful for headless test mode)
}
