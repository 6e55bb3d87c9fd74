package cpu

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/hallgrim/dotmatrix/internal/bus"
)

// CPU implements the SM83 core. Step executes one instruction (or services
// one interrupt) and advances the bus by the consumed dots.
type CPU struct {
	// 8-bit registers
	A, F byte
	B, C byte
	D, E byte
	H, L byte

	SP uint16
	PC uint16

	IME     bool
	halted  bool
	stopped bool
	// EI enables IME after the following instruction; counts Step
	// completions until the enable lands.
	eiDelay int
	// HALT with IME=0 and a pending interrupt: the next opcode byte is
	// fetched without advancing PC, so it executes twice.
	haltBug bool

	bus *bus.Bus
}

// IllegalOpcodeError reports execution of an unmapped SM83 opcode. The core
// treats this as fatal; there is no defined hardware behavior to emulate.
type IllegalOpcodeError struct {
	Opcode byte
	PC     uint16
}

func (e *IllegalOpcodeError) Error() string {
	return fmt.Sprintf("cpu: illegal opcode %#02x at %#04x", e.Opcode, e.PC)
}

// New creates a CPU attached to a bus, starting at PC=0 (boot ROM entry).
func New(b *bus.Bus) *CPU {
	return &CPU{bus: b, SP: 0xFFFE, PC: 0x0000}
}

// SetPC allows tests or a boot stub to set the program counter.
func (c *CPU) SetPC(pc uint16) { c.PC = pc }

// Bus exposes the underlying bus for tests/tools.
func (c *CPU) Bus() *bus.Bus { return c.bus }

// Halted reports whether the core is sleeping in HALT.
func (c *CPU) Halted() bool { return c.halted }

// Stopped reports whether the core is in STOP.
func (c *CPU) Stopped() bool { return c.stopped }

// ResetNoBoot sets registers to the DMG post-boot state, used when running
// without a boot ROM.
func (c *CPU) ResetNoBoot() {
	c.A, c.F = 0x01, 0xB0
	c.B, c.C = 0x00, 0x13
	c.D, c.E = 0x00, 0xD8
	c.H, c.L = 0x01, 0x4D
	c.SP = 0xFFFE
	c.PC = 0x0100
	c.IME = false
	c.halted = false
	c.stopped = false
	c.eiDelay = 0
	c.haltBug = false
}

// Flags helpers
const (
	flagZ byte = 1 << 7
	flagN byte = 1 << 6
	flagH byte = 1 << 5
	flagC byte = 1 << 4
)

func (c *CPU) setZNHC(z, n, h, carry bool) {
	var f byte
	if z {
		f |= flagZ
	}
	if n {
		f |= flagN
	}
	if h {
		f |= flagH
	}
	if carry {
		f |= flagC
	}
	c.F = f
}

func (c *CPU) add8(a, b byte) (res byte, z, n, h, cy bool) {
	r := uint16(a) + uint16(b)
	res = byte(r)
	z = res == 0
	n = false
	h = ((a & 0x0F) + (b & 0x0F)) > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) adc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := uint16(a) + uint16(b) + uint16(ci)
	res = byte(r)
	z = res == 0
	n = false
	h = ((a & 0x0F) + (b & 0x0F) + ci) > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) sub8(a, b byte) (res byte, z, n, h, cy bool) {
	r := int16(a) - int16(b)
	res = byte(r)
	z = res == 0
	n = true
	h = (a & 0x0F) < (b & 0x0F)
	cy = int16(a) < int16(b)
	return
}

func (c *CPU) sbc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := int16(a) - int16(b) - int16(ci)
	res = byte(r)
	z = res == 0
	n = true
	h = (a & 0x0F) < ((b & 0x0F) + ci)
	cy = int16(a) < int16(b)+int16(ci)
	return
}

func (c *CPU) and8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a & b
	z = res == 0
	n = false
	h = true
	cy = false
	return
}

func (c *CPU) xor8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a ^ b
	z = res == 0
	n = false
	h = false
	cy = false
	return
}

func (c *CPU) or8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a | b
	z = res == 0
	n = false
	h = false
	cy = false
	return
}

func (c *CPU) cp8(a, b byte) (z, n, h, cy bool) {
	_, z, n, h, cy = c.sub8(a, b)
	return
}

func (c *CPU) read8(addr uint16) byte     { return c.bus.Read(addr) }
func (c *CPU) write8(addr uint16, v byte) { c.bus.Write(addr, v) }

func (c *CPU) fetch8() byte {
	b := c.read8(c.PC)
	if c.haltBug {
		// PC does not advance: the byte will be fetched again.
		c.haltBug = false
		return b
	}
	c.PC++
	return b
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return lo | (hi << 8)
}

func (c *CPU) read16(addr uint16) uint16 {
	lo := uint16(c.read8(addr))
	hi := uint16(c.read8(addr + 1))
	return lo | (hi << 8)
}

func (c *CPU) write16(addr uint16, v uint16) {
	c.write8(addr, byte(v&0x00FF))
	c.write8(addr+1, byte(v>>8))
}

func (c *CPU) getAF() uint16  { return uint16(c.A)<<8 | uint16(c.F&0xF0) }
func (c *CPU) setAF(v uint16) { c.A = byte(v >> 8); c.F = byte(v) & 0xF0 }
func (c *CPU) getBC() uint16  { return uint16(c.B)<<8 | uint16(c.C) }
func (c *CPU) setBC(v uint16) { c.B = byte(v >> 8); c.C = byte(v) }
func (c *CPU) getDE() uint16  { return uint16(c.D)<<8 | uint16(c.E) }
func (c *CPU) setDE(v uint16) { c.D = byte(v >> 8); c.E = byte(v) }
func (c *CPU) getHL() uint16  { return uint16(c.H)<<8 | uint16(c.L) }
func (c *CPU) setHL(v uint16) { c.H = byte(v >> 8); c.L = byte(v) }

// getReg/setReg map the 3-bit register encoding; index 6 is (HL).
func (c *CPU) getReg(idx byte) byte {
	switch idx {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 6:
		return c.read8(c.getHL())
	default:
		return c.A
	}
}

func (c *CPU) setReg(idx byte, v byte) {
	switch idx {
	case 0:
		c.B = v
	case 1:
		c.C = v
	case 2:
		c.D = v
	case 3:
		c.E = v
	case 4:
		c.H = v
	case 5:
		c.L = v
	case 6:
		c.write8(c.getHL(), v)
	default:
		c.A = v
	}
}

func (c *CPU) push16(v uint16) {
	c.SP -= 2
	c.write16(c.SP, v)
}

func (c *CPU) pop16() uint16 {
	v := c.read16(c.SP)
	c.SP += 2
	return v
}

// cond evaluates the 2-bit condition encoding NZ/Z/NC/C.
func (c *CPU) cond(idx byte) bool {
	switch idx {
	case 0:
		return c.F&flagZ == 0
	case 1:
		return c.F&flagZ != 0
	case 2:
		return c.F&flagC == 0
	default:
		return c.F&flagC != 0
	}
}

// serviceInterrupt dispatches the highest-priority pending interrupt, if any.
// Servicing takes 5 machine cycles (20 dots).
func (c *CPU) serviceInterrupt() int {
	pending := c.bus.PendingInterrupts()
	if pending == 0 {
		return 0
	}
	// priority order VBlank(0), LCD STAT(1), Timer(2), Serial(3), Joypad(4)
	var bit int
	for bit = 0; bit < 5; bit++ {
		if pending&(1<<bit) != 0 {
			break
		}
	}
	c.bus.ClearInterrupt(bit)
	c.halted = false
	c.IME = false
	c.push16(c.PC)
	c.PC = 0x0040 + uint16(bit)*8
	return 20
}

// Step executes one instruction or services one interrupt, returning the
// consumed dots. Illegal opcodes return an IllegalOpcodeError; the machine
// state is left as-is so callers can inspect it.
func (c *CPU) Step() (cycles int, err error) {
	defer func() {
		if c.bus != nil && cycles > 0 {
			c.bus.Tick(cycles)
		}
		// Apply EI delayed enable: IME turns on after the instruction
		// following EI has completed.
		if err == nil {
			switch c.eiDelay {
			case 2:
				c.eiDelay = 1
			case 1:
				c.eiDelay = 0
				c.IME = true
			}
		}
	}()

	// STOP: low-power until a joypad press.
	if c.stopped {
		if c.bus.JoypadState() != 0 {
			c.stopped = false
		} else {
			return 4, nil
		}
	}

	if c.halted {
		if c.IME {
			if cyc := c.serviceInterrupt(); cyc != 0 {
				return cyc, nil
			}
			return 4, nil
		}
		// wake on pending interrupt without servicing
		if c.bus.PendingInterrupts() != 0 {
			c.halted = false
		} else {
			return 4, nil
		}
	}

	// If IME and an interrupt is pending, service before executing opcode
	if c.IME {
		if cyc := c.serviceInterrupt(); cyc != 0 {
			return cyc, nil
		}
	}

	opPC := c.PC
	op := c.fetch8()
	handler := opcodes[op]
	if handler == nil {
		return 0, &IllegalOpcodeError{Opcode: op, PC: opPC}
	}
	return handler(c), nil
}

// --- Save/Load state ---
type cpuState struct {
	A, F, B, C, D, E, H, L byte
	SP, PC                 uint16
	IME                    bool
	Halted                 bool
	Stopped                bool
	EIDelay                int
	HaltBug                bool
}

func (c *CPU) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(cpuState{
		A: c.A, F: c.F, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		SP: c.SP, PC: c.PC,
		IME: c.IME, Halted: c.halted, Stopped: c.stopped,
		EIDelay: c.eiDelay, HaltBug: c.haltBug,
	})
	return buf.Bytes()
}

func (c *CPU) LoadState(data []byte) {
	var s cpuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	c.A, c.F, c.B, c.C, c.D, c.E, c.H, c.L = s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L
	c.SP, c.PC = s.SP, s.PC
	c.IME, c.halted, c.stopped = s.IME, s.Halted, s.Stopped
	c.eiDelay, c.haltBug = s.EIDelay, s.HaltBug
}
