package ppu

import (
	"bytes"
	"encoding/gob"
)

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT, etc.).
type InterruptRequester func(bit int)

// Screen dimensions.
const (
	ScreenWidth  = 160
	ScreenHeight = 144
)

// Dot timing per scanline. Mode 3 is modeled with a fixed length.
const (
	oamScanDots  = 80
	transferDots = 172
	lineDots     = 456
)

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, and DMG scanline rendering.
// It exposes CPU-facing Read/Write for VRAM/OAM and PPU IO regs.
//
// Each visible line is composed into an off-screen buffer when the line
// enters HBlank, using the register snapshot latched at the start of mode 3.
// The finished buffer is published at the VBlank transition, so a frame is
// never observed half-drawn.
type PPU struct {
	// memory
	vram [0x2000]byte // 0x8000–0x9FFF
	oam  [0xA0]byte   // 0xFE00–0xFE9F

	// regs
	lcdc byte // FF40
	stat byte // FF41 (mode bits 0-1, coincidence flag bit2, enables bits3-6)
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot int // dots within current line [0..455]

	req InterruptRequester

	// Per-scanline register snapshot captured when the line enters mode 3
	lineRegs [154]LineRegs

	// Internal window line counter. Advances only across lines where the
	// window was actually shown, so hiding and re-showing the window resumes
	// from the same row.
	winLineCounter byte
	winStarted     bool

	// back receives scanlines as they complete; front is the last full frame.
	// Values are post-palette shades 0..3 (0 lightest).
	back  [ScreenWidth * ScreenHeight]byte
	front [ScreenWidth * ScreenHeight]byte

	frameSeq uint64 // bumped when front is replaced
}

func New(req InterruptRequester) *PPU {
	return &PPU{req: req}
}

// LineRegs represents the PPU-visible registers relevant for rendering a scanline.
type LineRegs struct {
	LCDC    byte
	SCY     byte
	SCX     byte
	BGP     byte
	OBP0    byte
	OBP1    byte
	WY      byte
	WX      byte
	WinLine byte
}

// CPURead returns bytes for VRAM, OAM, and PPU IO registers. Returns 0xFF for others.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		// VRAM is inaccessible to CPU during mode 3 (return 0xFF)
		if (p.stat & 0x03) == 3 {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		// OAM is inaccessible during modes 2 and 3
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		// On DMG, bit7 reads as 1; bit6..3 are enables; bit2 coincidence; bit1..0 mode
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and PPU IO regs. Others are ignored here.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			// Turning LCD off resets LY/mode and blanks the published frame
			p.ly = 0
			p.dot = 0
			p.setMode(0)
			p.updateLYC()
			p.front = [ScreenWidth * ScreenHeight]byte{}
			p.frameSeq++
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			// Turning LCD on: start at LY=0, mode 2 (OAM)
			p.ly = 0
			p.dot = 0
			p.winLineCounter = 0
			p.winStarted = false
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF44:
		p.ly = 0
		p.dot = 0
		p.winLineCounter = 0
		p.winStarted = false
		p.updateLYC()
		if (p.lcdc & 0x80) != 0 {
			p.setMode(2)
		}
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// Tick advances PPU state by the given number of dots.
func (p *PPU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		if (p.lcdc & 0x80) == 0 { // LCD off
			continue
		}
		p.dot++
		// Mode scheduling
		var mode byte
		if p.ly >= 144 {
			mode = 1
		} else {
			switch {
			case p.dot < oamScanDots:
				mode = 2
			case p.dot < oamScanDots+transferDots:
				mode = 3
			default:
				mode = 0
			}
		}
		p.setMode(mode)

		if p.dot >= lineDots {
			p.dot = 0
			p.ly++
			if p.ly == 144 {
				// Enter VBlank: publish the completed frame
				p.front = p.back
				p.frameSeq++
				if p.req != nil {
					p.req(0)
				} // VBlank IF
				if (p.stat & (1 << 4)) != 0 {
					if p.req != nil {
						p.req(1)
					}
				} // STAT VBlank
			} else if p.ly > 153 {
				p.ly = 0
				p.winLineCounter = 0
				p.winStarted = false
			}
			p.updateLYC()
			// Set mode for new line start (dot=0)
			if p.ly >= 144 {
				p.setMode(1)
			} else {
				p.setMode(2)
			}
		}
	}
}

func (p *PPU) setMode(mode byte) {
	prev := p.stat & 0x03
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case 0: // HBlank: line is done, compose it
		if prev == 3 && p.ly < 144 {
			p.composeScanline(p.ly)
		}
		if (p.stat & (1 << 3)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 2: // OAM
		if (p.stat & (1 << 5)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 3: // Entering mode 3: latch per-line regs for rendering
		p.captureLineRegs()
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if (p.stat & (1 << 6)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	} else {
		p.stat &^= 1 << 2
	}
}

func (p *PPU) captureLineRegs() {
	if p.ly >= 144 {
		return
	}
	// On DMG, window display requires both BG (bit0) and window (bit5)
	// enabled. The internal counter starts at 0 on the first line the window
	// shows, however far past WY that happens, and consumes one row per line
	// the window is shown. Hiding and re-showing resumes from the same row.
	windowVisible := (p.lcdc&0x20) != 0 && (p.lcdc&0x01) != 0 && p.ly >= p.wy && p.wx <= 166
	if windowVisible && !p.winStarted {
		p.winLineCounter = 0
		p.winStarted = true
	}
	p.lineRegs[p.ly] = LineRegs{
		LCDC:    p.lcdc,
		SCY:     p.scy,
		SCX:     p.scx,
		BGP:     p.bgp,
		OBP0:    p.obp0,
		OBP1:    p.obp1,
		WY:      p.wy,
		WX:      p.wx,
		WinLine: p.winLineCounter,
	}
	if windowVisible {
		p.winLineCounter++
	}
}

// rawVRAM bypasses CPU access restrictions; the renderer sees VRAM the way
// the pixel pipeline does.
type rawVRAM struct{ p *PPU }

func (r rawVRAM) Read(addr uint16) byte {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return r.p.vram[addr-0x8000]
	}
	return 0xFF
}

// composeScanline renders BG, window and OBJ layers for line ly into the back
// buffer as post-palette shades.
func (p *PPU) composeScanline(ly byte) {
	lr := p.lineRegs[ly]
	mem := rawVRAM{p}

	var bgci [160]byte
	if lr.LCDC&0x01 != 0 {
		mapBase := uint16(0x9800)
		if lr.LCDC&0x08 != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := lr.LCDC&0x10 != 0
		bgci = renderBGScanlineUsingFetcher(mem, mapBase, tileData8000, lr.SCX, lr.SCY, ly)

		// Window overlays BG from WX-7 onward.
		if lr.LCDC&0x20 != 0 && ly >= lr.WY && lr.WX <= 166 {
			winMap := uint16(0x9800)
			if lr.LCDC&0x40 != 0 {
				winMap = 0x9C00
			}
			winXStart := int(lr.WX) - 7
			win := RenderWindowScanlineUsingFetcher(mem, winMap, tileData8000, winXStart, lr.WinLine)
			if winXStart < 0 {
				winXStart = 0
			}
			for x := winXStart; x < 160; x++ {
				bgci[x] = win[x]
			}
		}
	}

	var objci, objpal [160]byte
	if lr.LCDC&0x02 != 0 {
		tall := lr.LCDC&0x04 != 0
		sprites := collectSpritesForLine(&p.oam, int(ly), tall)
		objci, objpal = ComposeSpriteLineExt(mem, sprites, int(ly), bgci, tall)
	}

	row := p.back[int(ly)*ScreenWidth : (int(ly)+1)*ScreenWidth]
	for x := 0; x < 160; x++ {
		if objci[x] != 0 {
			op := lr.OBP0
			if objpal[x] != 0 {
				op = lr.OBP1
			}
			row[x] = (op >> (objci[x] * 2)) & 0x03
		} else {
			row[x] = (lr.BGP >> (bgci[x] * 2)) & 0x03
		}
	}
}

// Frame returns the last completed frame as 160x144 shades (0..3, row-major).
// The returned slice aliases internal storage and is stable until the next
// VBlank transition.
func (p *PPU) Frame() []byte { return p.front[:] }

// FrameSeq increments whenever a new frame is published; callers can poll it
// to detect fresh frames.
func (p *PPU) FrameSeq() uint64 { return p.frameSeq }

// LineRegs returns the captured register snapshot for a given scanline (0..153).
func (p *PPU) LineRegs(y int) LineRegs {
	if y < 0 || y >= len(p.lineRegs) {
		return LineRegs{}
	}
	return p.lineRegs[y]
}

// RawVRAM returns VRAM bytes without CPU access restrictions; for debug use.
func (p *PPU) RawVRAM(addr uint16) byte {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return p.vram[addr-0x8000]
	}
	return 0xFF
}

// RawOAM returns OAM bytes without CPU access restrictions.
func (p *PPU) RawOAM(addr uint16) byte {
	if addr >= 0xFE00 && addr <= 0xFE9F {
		return p.oam[addr-0xFE00]
	}
	return 0xFF
}

// DMAWrite stores a byte into OAM regardless of the current mode; used by the
// OAM DMA engine, which is not subject to CPU access blocking.
func (p *PPU) DMAWrite(index byte, value byte) {
	if int(index) < len(p.oam) {
		p.oam[index] = value
	}
}

// --- Save/Load state ---
type ppuState struct {
	VRAM       [0x2000]byte
	OAM        [0xA0]byte
	LCDC       byte
	STAT       byte
	SCY        byte
	SCX        byte
	LY         byte
	LYC        byte
	BGP        byte
	OBP0       byte
	OBP1       byte
	WY         byte
	WX         byte
	DOT        int
	LineRegs   [154]LineRegs
	WinLine    byte
	WinStarted bool
	Back       [ScreenWidth * ScreenHeight]byte
	Front      [ScreenWidth * ScreenHeight]byte
	FrameSeq   uint64
}

func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := ppuState{
		VRAM: p.vram, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1, WY: p.wy, WX: p.wx,
		DOT: p.dot, LineRegs: p.lineRegs, WinLine: p.winLineCounter, WinStarted: p.winStarted,
		Back: p.back, Front: p.front, FrameSeq: p.frameSeq,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) {
	var s ppuState
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return
	}
	p.vram = s.VRAM
	p.oam = s.OAM
	p.lcdc, p.stat, p.scy, p.scx, p.ly, p.lyc = s.LCDC, s.STAT, s.SCY, s.SCX, s.LY, s.LYC
	p.bgp, p.obp0, p.obp1, p.wy, p.wx = s.BGP, s.OBP0, s.OBP1, s.WY, s.WX
	p.dot = s.DOT
	p.lineRegs = s.LineRegs
	p.winLineCounter = s.WinLine
	p.winStarted = s.WinStarted
	p.back = s.Back
	p.front = s.Front
	p.frameSeq = s.FrameSeq
}
