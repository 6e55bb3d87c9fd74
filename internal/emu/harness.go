package emu

import (
	"bytes"
	"io"
	"strings"
)

// HarnessResult is the outcome of running a test ROM.
type HarnessResult int

const (
	HarnessRunning HarnessResult = iota
	HarnessPassed
	HarnessFailed
	HarnessTimeout
)

func (r HarnessResult) String() string {
	switch r {
	case HarnessPassed:
		return "passed"
	case HarnessFailed:
		return "failed"
	case HarnessTimeout:
		return "timeout"
	default:
		return "running"
	}
}

// HarnessOptions configures test-ROM detection.
type HarnessOptions struct {
	MaxFrames int // frames to run before reporting a timeout

	// DetectSerial checks captured serial text for "Passed"/"Failed",
	// the reporting convention of Blargg's test ROMs.
	DetectSerial bool

	// Echo receives a live copy of the serial stream in addition to the
	// harness's own capture.
	Echo io.Writer

	// DetectRegisters checks for the Fibonacci register pattern
	// (B,C,D,E,H,L = 3,5,8,13,21,34) once the program parks in a tight
	// loop, the reporting convention of Mooneye-style test ROMs.
	DetectRegisters bool
}

// Defaults fills unset options.
func (o HarnessOptions) Defaults() HarnessOptions {
	if o.MaxFrames == 0 {
		o.MaxFrames = 1800 // ~30 seconds of emulated time
	}
	if !o.DetectSerial && !o.DetectRegisters {
		o.DetectSerial = true
		o.DetectRegisters = true
	}
	return o
}

// Harness drives a machine frame by frame and watches for a test ROM's
// pass/fail report.
type Harness struct {
	m      *Machine
	opts   HarnessOptions
	serial bytes.Buffer
}

func NewHarness(m *Machine, opts HarnessOptions) *Harness {
	h := &Harness{m: m, opts: opts.Defaults()}
	var w io.Writer = &h.serial
	if h.opts.Echo != nil {
		w = io.MultiWriter(&h.serial, h.opts.Echo)
	}
	m.SetSerialWriter(w)
	return h
}

// SerialOutput returns everything the ROM has sent over the serial port.
func (h *Harness) SerialOutput() string { return h.serial.String() }

// Run executes frames until the ROM reports, the CPU faults, or the frame
// budget runs out. A CPU fault (illegal opcode) counts as a failure.
func (h *Harness) Run() (HarnessResult, error) {
	for i := 0; i < h.opts.MaxFrames; i++ {
		if err := h.m.StepFrame(); err != nil {
			return HarnessFailed, err
		}
		if r := h.Check(); r != HarnessRunning {
			return r, nil
		}
	}
	return HarnessTimeout, nil
}

// Check inspects the current machine state for a verdict without stepping.
func (h *Harness) Check() HarnessResult {
	if h.opts.DetectSerial {
		out := h.serial.String()
		if strings.Contains(out, "Passed") || strings.Contains(out, "passed") {
			return HarnessPassed
		}
		if strings.Contains(out, "Failed") || strings.Contains(out, "failed") {
			return HarnessFailed
		}
	}
	if h.opts.DetectRegisters && h.parked() {
		c := h.m.cpu
		if c.B == 3 && c.C == 5 && c.D == 8 && c.E == 13 && c.H == 21 && c.L == 34 {
			return HarnessPassed
		}
		return HarnessFailed
	}
	return HarnessRunning
}

// parked reports whether the CPU sits in a terminal tight loop:
// JR -2 onto itself or JP to its own address.
func (h *Harness) parked() bool {
	c := h.m.cpu
	pc := c.PC
	op := h.m.Peek(pc)
	switch op {
	case 0x18: // JR r8
		return h.m.Peek(pc+1) == 0xFE
	case 0xC3: // JP a16
		target := uint16(h.m.Peek(pc+1)) | uint16(h.m.Peek(pc+2))<<8
		return target == pc
	}
	return false
}
