package emu

import "testing"

// serialProgram emits the given text over the serial port byte by byte,
// then parks in a tight loop.
func serialProgram(text string) []byte {
	var p []byte
	for _, ch := range []byte(text) {
		p = append(p,
			0x3E, ch, // LD A,ch
			0xE0, 0x01, // LDH (FF01),A
			0x3E, 0x81, // LD A,81
			0xE0, 0x02, // LDH (FF02),A ; start transfer
		)
	}
	return append(p, 0x18, 0xFE) // JR -2
}

func newHarnessMachine(t *testing.T, program []byte) *Machine {
	t.Helper()
	m := New(Config{})
	if err := m.LoadCartridge(buildTestROM(0x00, 0x00, program), nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	return m
}

func TestHarness_SerialPassed(t *testing.T) {
	m := newHarnessMachine(t, serialProgram("Passed"))
	h := NewHarness(m, HarnessOptions{MaxFrames: 5})
	res, err := h.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res != HarnessPassed {
		t.Fatalf("result got %v want passed; serial=%q", res, h.SerialOutput())
	}
	if h.SerialOutput() != "Passed" {
		t.Fatalf("serial capture got %q want %q", h.SerialOutput(), "Passed")
	}
}

func TestHarness_SerialFailed(t *testing.T) {
	m := newHarnessMachine(t, serialProgram("Failed #3"))
	h := NewHarness(m, HarnessOptions{MaxFrames: 5})
	res, err := h.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res != HarnessFailed {
		t.Fatalf("result got %v want failed; serial=%q", res, h.SerialOutput())
	}
}

func TestHarness_FibonacciRegisters(t *testing.T) {
	prog := []byte{
		0x06, 0x03, // LD B,3
		0x0E, 0x05, // LD C,5
		0x16, 0x08, // LD D,8
		0x1E, 0x0D, // LD E,13
		0x26, 0x15, // LD H,21
		0x2E, 0x22, // LD L,34
		0x18, 0xFE, // JR -2
	}
	m := newHarnessMachine(t, prog)
	h := NewHarness(m, HarnessOptions{MaxFrames: 5})
	res, err := h.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res != HarnessPassed {
		t.Fatalf("result got %v want passed", res)
	}
}

func TestHarness_WrongRegistersInParkLoopFail(t *testing.T) {
	prog := []byte{
		0x06, 0x42, // LD B,42
		0x18, 0xFE, // JR -2
	}
	m := newHarnessMachine(t, prog)
	h := NewHarness(m, HarnessOptions{MaxFrames: 5})
	res, err := h.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res != HarnessFailed {
		t.Fatalf("result got %v want failed", res)
	}
}

func TestHarness_TimeoutWithoutReport(t *testing.T) {
	prog := []byte{
		0x3C,             // INC A
		0xC3, 0x00, 0x01, // JP 0100 (not a self-jump: the JP sits at 0101)
	}
	m := newHarnessMachine(t, prog)
	h := NewHarness(m, HarnessOptions{MaxFrames: 2})
	res, err := h.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res != HarnessTimeout {
		t.Fatalf("result got %v want timeout", res)
	}
}

func TestHarness_SelfJumpParksTheProgram(t *testing.T) {
	// JP to its own address at 0x0100, with the Fibonacci registers set by
	// hand to verify the JP-self detector.
	prog := []byte{0xC3, 0x00, 0x01} // at 0x0100: JP 0x0100
	m := newHarnessMachine(t, prog)
	c := m.CPU()
	c.B, c.C, c.D, c.E, c.H, c.L = 3, 5, 8, 13, 21, 34
	h := NewHarness(m, HarnessOptions{MaxFrames: 2, DetectRegisters: true})
	res, err := h.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res != HarnessPassed {
		t.Fatalf("result got %v want passed", res)
	}
}
