package emu

import (
	"bytes"
	"encoding/gob"
	"errors"
	"os"
	"sync/atomic"

	"github.com/hallgrim/dotmatrix/internal/bus"
	"github.com/hallgrim/dotmatrix/internal/cart"
	"github.com/hallgrim/dotmatrix/internal/cpu"
	"github.com/hallgrim/dotmatrix/internal/ppu"
)

// FrameDots is the length of one LCD frame in dots (154 lines of 456).
const FrameDots = 70224

// Screen dimensions, re-exported for front-ends.
const (
	ScreenWidth  = ppu.ScreenWidth
	ScreenHeight = ppu.ScreenHeight
)

// ErrStopped is returned by StepFrame/RunFrames when a stop request was
// observed at an instruction boundary.
var ErrStopped = errors.New("emu: stopped")

// Buttons is the host-side input state for one frame.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Machine aggregates the cartridge, bus, and CPU into a steppable unit.
type Machine struct {
	cfg     Config
	bus     *bus.Bus
	cpu     *cpu.CPU
	romPath string
	romData []byte
	bootROM []byte
	stop    atomic.Bool
}

func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// LoadCartridge wires a new bus and CPU around the given ROM image. A fatal
// cartridge error (bad checksum, truncated image, unsupported mapper) is
// returned as-is. If boot is a 256-byte boot ROM it is mapped over
// 0x0000–0x00FF and execution starts at 0x0000; otherwise the machine starts
// at 0x0100 with documented post-boot register and IO values.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	c, err := cart.New(rom)
	if err != nil {
		return err
	}
	b := bus.NewWithCart(c)
	cp := cpu.New(b)
	if len(boot) >= 0x100 {
		m.bootROM = make([]byte, 0x100)
		copy(m.bootROM, boot[:0x100])
		b.SetBootROM(m.bootROM)
		cp.SP = 0xFFFE
		cp.PC = 0x0000
		cp.IME = false
	} else {
		m.bootROM = nil
		cp.ResetNoBoot()
	}
	m.bus = b
	m.cpu = cp
	m.romData = rom
	if m.bootROM == nil {
		m.applyPostBootIO()
	}
	return nil
}

// Reset rebuilds the machine around the loaded ROM, replaying the boot ROM
// if one is configured. Battery RAM is not preserved across a reset; use
// SaveBattery/LoadBattery around it if that matters.
func (m *Machine) Reset() error {
	if m.romData == nil {
		return errors.New("emu: no cartridge loaded")
	}
	return m.LoadCartridge(m.romData, m.bootROM)
}

// LoadROMFromFile replaces the current cartridge with a ROM from disk,
// preserving the configured boot ROM.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(data, m.bootROM); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the currently loaded ROM file path, if any.
func (m *Machine) ROMPath() string { return m.romPath }

// SetROMPath records the ROM's file path for save/state association. It
// does not reload anything.
func (m *Machine) SetROMPath(path string) { m.romPath = path }

// HasBootROM reports whether a boot ROM is configured on this machine.
func (m *Machine) HasBootROM() bool { return len(m.bootROM) >= 0x100 }

// Bus exposes the memory bus for tools and tests.
func (m *Machine) Bus() *bus.Bus { return m.bus }

// CPU exposes the processor core for tools and tests.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// applyPostBootIO sets the IO registers to their DMG post-boot defaults, so
// ROMs started at 0x0100 without a boot ROM see an enabled LCD.
func (m *Machine) applyPostBootIO() {
	b := m.bus
	b.Write(0xFF00, 0xCF) // JOYP: no group selected
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC
	b.Write(0xFF40, 0x91) // LCDC: LCD+BG on, tile data 8000, map 9800
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	b.Write(0xFFFF, 0x00) // IE
}

// Step executes one CPU instruction (or interrupt service) and advances the
// rest of the machine by the consumed dots.
func (m *Machine) Step() (int, error) {
	return m.cpu.Step()
}

// RequestStop asks the run loop to stop at the next instruction boundary.
func (m *Machine) RequestStop() { m.stop.Store(true) }

// ClearStop resets a previous stop request.
func (m *Machine) ClearStop() { m.stop.Store(false) }

// StepFrame advances the machine by at least one frame worth of dots.
func (m *Machine) StepFrame() error {
	dots := 0
	for dots < FrameDots {
		if m.stop.Load() {
			return ErrStopped
		}
		cyc, err := m.cpu.Step()
		if err != nil {
			return err
		}
		dots += cyc
	}
	return nil
}

// RunFrames executes n frames.
func (m *Machine) RunFrames(n int) error {
	for i := 0; i < n; i++ {
		if err := m.StepFrame(); err != nil {
			return err
		}
	}
	return nil
}

// Frame returns the front buffer: 160x144 post-palette shades (0..3),
// published atomically at V-Blank entry.
func (m *Machine) Frame() []byte { return m.bus.PPU().Frame() }

// FrameSeq returns the publish counter of the front buffer.
func (m *Machine) FrameSeq() uint64 { return m.bus.PPU().FrameSeq() }

// SetButtons applies the host input state for the next steps. A newly
// pressed button raises the Joypad interrupt and wakes STOP.
func (m *Machine) SetButtons(btn Buttons) {
	if m.bus == nil {
		return
	}
	var mask byte
	if btn.Right {
		mask |= bus.JoypRight
	}
	if btn.Left {
		mask |= bus.JoypLeft
	}
	if btn.Up {
		mask |= bus.JoypUp
	}
	if btn.Down {
		mask |= bus.JoypDown
	}
	if btn.A {
		mask |= bus.JoypA
	}
	if btn.B {
		mask |= bus.JoypB
	}
	if btn.Select {
		mask |= bus.JoypSelectBtn
	}
	if btn.Start {
		mask |= bus.JoypStart
	}
	m.bus.SetJoypadState(mask)
}

// SetSerialWriter connects an io.Writer to receive bytes sent over the
// serial port. Test ROMs report results this way.
func (m *Machine) SetSerialWriter(w interface{ Write([]byte) (int, error) }) {
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// SaveBattery returns the cartridge's battery-backed RAM, if any.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m == nil || m.bus == nil {
		return nil, false
	}
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		data := bb.SaveRAM()
		if len(data) == 0 {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

// LoadBattery restores battery-backed RAM into the cartridge if supported.
func (m *Machine) LoadBattery(data []byte) bool {
	if m == nil || m.bus == nil {
		return false
	}
	if bb, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		bb.LoadRAM(data)
		return true
	}
	return false
}

// Snapshot is a read-only copy of the observable machine state, for
// debuggers and trace tooling.
type Snapshot struct {
	A, F, B, C, D, E, H, L byte
	SP, PC                 uint16
	IME, Halted, Stopped   bool

	LCDC, STAT, LY      byte
	DIV, TIMA, TMA, TAC byte
	IF, IE              byte
}

func (m *Machine) Snapshot() Snapshot {
	c := m.cpu
	b := m.bus
	return Snapshot{
		A: c.A, F: c.F, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		SP: c.SP, PC: c.PC,
		IME: c.IME, Halted: c.Halted(), Stopped: c.Stopped(),
		LCDC: b.Read(0xFF40), STAT: b.Read(0xFF41), LY: b.Read(0xFF44),
		DIV: b.Read(0xFF04), TIMA: b.Read(0xFF05), TMA: b.Read(0xFF06), TAC: b.Read(0xFF07),
		IF: b.Read(0xFF0F), IE: b.Read(0xFFFF),
	}
}

// Peek reads a bus address without side effects beyond the bus's own
// read semantics.
func (m *Machine) Peek(addr uint16) byte { return m.bus.Read(addr) }

// Poke writes a bus address directly.
func (m *Machine) Poke(addr uint16, v byte) { m.bus.Write(addr, v) }

// --- Save/Load state ---

type machineState struct {
	CPU  []byte
	Bus  []byte
	PPU  []byte
	Cart []byte
}

func (m *Machine) SaveState() []byte {
	if m == nil || m.bus == nil || m.cpu == nil {
		return nil
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(machineState{
		CPU:  m.cpu.SaveState(),
		Bus:  m.bus.SaveState(),
		PPU:  m.bus.PPU().SaveState(),
		Cart: m.bus.Cart().SaveState(),
	})
	return buf.Bytes()
}

func (m *Machine) LoadState(data []byte) error {
	if m == nil || m.bus == nil || m.cpu == nil {
		return nil
	}
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	m.cpu.LoadState(s.CPU)
	m.bus.LoadState(s.Bus)
	m.bus.PPU().LoadState(s.PPU)
	m.bus.Cart().LoadState(s.Cart)
	return nil
}

func (m *Machine) SaveStateToFile(path string) error {
	data := m.SaveState()
	if len(data) == 0 {
		return nil
	}
	return os.WriteFile(path, data, 0644)
}

func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}
