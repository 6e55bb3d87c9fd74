package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/hallgrim/dotmatrix/internal/cart"
	"github.com/hallgrim/dotmatrix/internal/ppu"
)

// Interrupt bit positions in IF/IE.
const (
	IntVBlank = 0
	IntSTAT   = 1
	IntTimer  = 2
	IntSerial = 3
	IntJoypad = 4
)

// Bus connects the CPU to cartridge, WRAM, HRAM, PPU and the IO registers.
// Tick advances all bus-side hardware (timer, DMA, PPU) by a number of dots;
// 4 dots make one machine cycle.
type Bus struct {
	cart cart.Cartridge
	ppu  *ppu.PPU

	wram [0x2000]byte // 0xC000–0xDFFF, echoed at 0xE000–0xFDFF
	hram [0x7F]byte   // 0xFF80–0xFFFE

	ifReg byte // FF0F (lower 5 bits)
	ie    byte // FFFF

	// timer: divInternal counts dots; DIV is its top byte.
	divInternal   uint16
	tima          byte // FF05
	tma           byte // FF06
	tac           byte // FF07 (lower 3 bits)
	reloadPending bool // TIMA overflowed; reload+IRQ after 4 dots
	reloadCounter int

	// serial
	sb        byte // FF01
	sc        byte // FF02
	serialOut io.Writer

	// joypad
	joypSelect byte // FF00 bits 4-5 as written
	buttons    byte // pressed mask, see Joyp* constants

	// OAM DMA
	dmaReg     byte
	dmaActive  bool
	dmaSrc     uint16
	dmaIndex   int
	dmaSubtick int // dots into the current byte (one byte per machine cycle)

	// boot ROM overlay at 0x0000–0x00FF until unmapped via FF50
	bootROM    []byte
	bootMapped bool
}

// New builds a bus over raw ROM bytes with no mapper (ROM-only semantics).
func New(rom []byte) *Bus {
	return NewWithCart(cart.NewROMOnly(rom))
}

// NewWithCart builds a bus over a parsed cartridge.
func NewWithCart(c cart.Cartridge) *Bus {
	b := &Bus{cart: c, joypSelect: 0x30}
	b.ppu = ppu.New(b.RequestInterrupt)
	return b
}

// Cart returns the attached cartridge.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// PPU returns the attached pixel unit.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// SetBootROM maps a boot ROM over 0x0000–0x00FF until a write to FF50.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = data
	b.bootMapped = len(data) > 0
}

// BootROMMapped reports whether the overlay is still active.
func (b *Bus) BootROMMapped() bool { return b.bootMapped }

// SetSerialWriter directs serial output (SB bytes on completed transfers) to w.
func (b *Bus) SetSerialWriter(w io.Writer) { b.serialOut = w }

// RequestInterrupt sets a bit in IF.
func (b *Bus) RequestInterrupt(bit int) {
	b.ifReg |= 1 << bit
}

// ClearInterrupt clears a bit in IF; the CPU calls this when servicing.
func (b *Bus) ClearInterrupt(bit int) {
	b.ifReg &^= 1 << bit
}

// PendingInterrupts returns IF&IE over the five interrupt bits.
func (b *Bus) PendingInterrupts() byte {
	return b.ifReg & b.ie & 0x1F
}

func (b *Bus) Read(addr uint16) byte {
	// During OAM DMA the CPU can only see HRAM and the DMA register.
	if b.dmaActive && addr < 0xFF80 && addr != 0xFF46 {
		return 0xFF
	}
	switch {
	case addr < 0x0100 && b.bootMapped:
		if int(addr) < len(b.bootROM) {
			return b.bootROM[addr]
		}
		return 0xFF
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.CPURead(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xE000:
		return b.wram[addr-0xC000]
	case addr < 0xFE00: // echo RAM
		return b.wram[addr-0xE000]
	case addr < 0xFEA0:
		return b.ppu.CPURead(addr)
	case addr < 0xFF00: // unusable gap
		return 0xFF
	case addr == 0xFFFF:
		return b.ie
	case addr >= 0xFF80:
		return b.hram[addr-0xFF80]
	default:
		return b.readIO(addr)
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	if b.dmaActive && addr < 0xFF80 && addr != 0xFF46 {
		return
	}
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr < 0xA000:
		b.ppu.CPUWrite(addr, value)
	case addr < 0xC000:
		b.cart.Write(addr, value)
	case addr < 0xE000:
		b.wram[addr-0xC000] = value
	case addr < 0xFE00: // echo RAM
		b.wram[addr-0xE000] = value
	case addr < 0xFEA0:
		b.ppu.CPUWrite(addr, value)
	case addr < 0xFF00:
		// unusable gap: ignored
	case addr == 0xFFFF:
		b.ie = value
	case addr >= 0xFF80:
		b.hram[addr-0xFF80] = value
	default:
		b.writeIO(addr, value)
	}
}

func (b *Bus) readIO(addr uint16) byte {
	switch addr {
	case 0xFF00:
		return b.readJoypad()
	case 0xFF01:
		return b.sb
	case 0xFF02:
		return 0x7E | b.sc
	case 0xFF04:
		return byte(b.divInternal >> 8)
	case 0xFF05:
		return b.tima
	case 0xFF06:
		return b.tma
	case 0xFF07:
		return 0xF8 | (b.tac & 0x07)
	case 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case 0xFF46:
		return b.dmaReg
	default:
		if addr >= 0xFF40 && addr <= 0xFF4B {
			return b.ppu.CPURead(addr)
		}
		return 0xFF
	}
}

func (b *Bus) writeIO(addr uint16, value byte) {
	switch addr {
	case 0xFF00:
		b.joypSelect = value & 0x30
	case 0xFF01:
		b.sb = value
	case 0xFF02:
		b.sc = value
		// Internal-clock transfers complete immediately.
		if value&0x80 != 0 && value&0x01 != 0 {
			if b.serialOut != nil {
				_, _ = b.serialOut.Write([]byte{b.sb})
			}
			b.sb = 0xFF // nothing on the other end of the link
			b.sc &^= 0x80
			b.RequestInterrupt(IntSerial)
		}
	case 0xFF04:
		// DIV reset can produce a falling edge on the timer input.
		prev := b.timerInput()
		b.divInternal = 0
		if prev && !b.timerInput() {
			b.incrementTIMA()
		}
	case 0xFF05:
		// A TIMA write during the reload delay cancels the reload.
		b.reloadPending = false
		b.tima = value
	case 0xFF06:
		b.tma = value
	case 0xFF07:
		prev := b.timerInput()
		b.tac = value & 0x07
		if prev && !b.timerInput() {
			b.incrementTIMA()
		}
	case 0xFF0F:
		b.ifReg = value & 0x1F
	case 0xFF46:
		b.startDMA(value)
	case 0xFF50:
		if value != 0 {
			b.bootMapped = false
		}
	default:
		if addr >= 0xFF40 && addr <= 0xFF4B {
			b.ppu.CPUWrite(addr, value)
		}
	}
}

// Tick advances timer, DMA and PPU by the given number of dots.
func (b *Bus) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		b.tickTimer()
		b.tickDMA()
	}
	b.ppu.Tick(cycles)
}

// timerInput is the level feeding the TIMA increment edge detector:
// the TAC-selected divider bit ANDed with the TAC enable bit.
func (b *Bus) timerInput() bool {
	if b.tac&0x04 == 0 {
		return false
	}
	var bit uint
	switch b.tac & 0x03 {
	case 0x00:
		bit = 9 // 4096 Hz
	case 0x01:
		bit = 3 // 262144 Hz
	case 0x02:
		bit = 5 // 65536 Hz
	case 0x03:
		bit = 7 // 16384 Hz
	}
	return b.divInternal&(1<<bit) != 0
}

func (b *Bus) tickTimer() {
	if b.reloadPending {
		b.reloadCounter--
		if b.reloadCounter <= 0 {
			b.reloadPending = false
			b.tima = b.tma
			b.RequestInterrupt(IntTimer)
		}
	}
	prev := b.timerInput()
	b.divInternal++
	if prev && !b.timerInput() {
		b.incrementTIMA()
	}
}

func (b *Bus) incrementTIMA() {
	if b.reloadPending {
		// Edges are swallowed while the reload is in flight.
		return
	}
	b.tima++
	if b.tima == 0 {
		b.reloadPending = true
		b.reloadCounter = 4
	}
}

func (b *Bus) startDMA(value byte) {
	b.dmaReg = value
	b.dmaSrc = uint16(value) << 8
	b.dmaIndex = 0
	b.dmaSubtick = 0
	b.dmaActive = true
}

// tickDMA copies one byte per machine cycle (4 dots); the whole transfer
// takes 160 machine cycles.
func (b *Bus) tickDMA() {
	if !b.dmaActive {
		return
	}
	b.dmaSubtick++
	if b.dmaSubtick < 4 {
		return
	}
	b.dmaSubtick = 0
	b.ppu.DMAWrite(byte(b.dmaIndex), b.dmaRead(b.dmaSrc+uint16(b.dmaIndex)))
	b.dmaIndex++
	if b.dmaIndex >= 0xA0 {
		b.dmaActive = false
	}
}

// dmaRead bypasses CPU-side access blocking; the DMA engine reads the source
// directly.
func (b *Bus) dmaRead(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr < 0xA000:
		return b.ppu.RawVRAM(addr)
	case addr < 0xC000:
		return b.cart.Read(addr)
	case addr < 0xE000:
		return b.wram[addr-0xC000]
	case addr < 0xFE00:
		return b.wram[addr-0xE000]
	default:
		return 0xFF
	}
}

// --- Save/Load state ---
type busState struct {
	WRAM [0x2000]byte
	HRAM [0x7F]byte
	IF   byte
	IE   byte

	DivInternal    uint16
	TIMA, TMA, TAC byte
	ReloadPending  bool
	ReloadCounter  int

	SB, SC byte

	JoypSelect byte
	Buttons    byte

	DMAReg     byte
	DMAActive  bool
	DMASrc     uint16
	DMAIndex   int
	DMASubtick int

	BootMapped bool
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		WRAM: b.wram, HRAM: b.hram, IF: b.ifReg, IE: b.ie,
		DivInternal: b.divInternal, TIMA: b.tima, TMA: b.tma, TAC: b.tac,
		ReloadPending: b.reloadPending, ReloadCounter: b.reloadCounter,
		SB: b.sb, SC: b.sc,
		JoypSelect: b.joypSelect, Buttons: b.buttons,
		DMAReg: b.dmaReg, DMAActive: b.dmaActive, DMASrc: b.dmaSrc,
		DMAIndex: b.dmaIndex, DMASubtick: b.dmaSubtick,
		BootMapped: b.bootMapped,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return
	}
	b.wram, b.hram, b.ifReg, b.ie = s.WRAM, s.HRAM, s.IF, s.IE
	b.divInternal, b.tima, b.tma, b.tac = s.DivInternal, s.TIMA, s.TMA, s.TAC
	b.reloadPending, b.reloadCounter = s.ReloadPending, s.ReloadCounter
	b.sb, b.sc = s.SB, s.SC
	b.joypSelect, b.buttons = s.JoypSelect, s.Buttons
	b.dmaReg, b.dmaActive, b.dmaSrc = s.DMAReg, s.DMAActive, s.DMASrc
	b.dmaIndex, b.dmaSubtick = s.DMAIndex, s.DMASubtick
	b.bootMapped = s.BootMapped
}
