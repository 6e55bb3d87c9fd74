package ppu

import "testing"

func TestComposeSpriteLinePriorityAndTransparency(t *testing.T) {
	mem := mockVRAM{}
	// Sprite tile with a single opaque leftmost pixel at bit7: lo=0x01<<7 -> 0x80, hi=0
	base := uint16(0x8000)
	mem[base+0] = 0x80
	mem[base+1] = 0x00
	sprites := []Sprite{{X: 10, Y: 5, Tile: 0, Attr: 0, OAMIndex: 0}}
	var bgci [160]byte
	out := ComposeSpriteLine(mem, sprites, 5, bgci, false)
	if out[10] == 0 {
		t.Fatalf("expected sprite pixel at x=10")
	}
	// With priority behind BG and bgci non-zero, pixel must be skipped
	sprites[0].Attr = 1 << 7
	bgci[10] = 1
	out = ComposeSpriteLine(mem, sprites, 5, bgci, false)
	if out[10] != 0 {
		t.Fatalf("expected sprite pixel to be hidden behind BG")
	}
}

func TestComposeSpriteLineTieBreaker(t *testing.T) {
	mem := mockVRAM{}
	// Two sprites overlap at x=20; both opaque full row (lo=0xFF, hi=0)
	base := uint16(0x8000)
	mem[base+0] = 0xFF
	mem[base+1] = 0x00
	s0 := Sprite{X: 19, Y: 0, Tile: 0, Attr: 0, OAMIndex: 5}
	s1 := Sprite{X: 20, Y: 0, Tile: 0, Attr: 0, OAMIndex: 3}
	var bgci [160]byte
	out := ComposeSpriteLine(mem, []Sprite{s0, s1}, 0, bgci, false)
	// At x=20 the lower-X sprite wins the column
	if out[20] == 0 {
		t.Fatalf("expected a sprite at x=20")
	}
}

func TestComposeSpriteLinePaletteSelection(t *testing.T) {
	mem := mockVRAM{}
	base := uint16(0x8000)
	// Make an opaque pixel at bit7
	mem[base+0] = 0x80
	mem[base+1] = 0x00
	// Two overlapping sprites at same X; one selects OBP0, the other OBP1; leftmost X rule should pick X=10
	s0 := Sprite{X: 10, Y: 0, Tile: 0, Attr: 0 << 4, OAMIndex: 2}   // OBP0
	s1 := Sprite{X: 11, Y: 0, Tile: 0, Attr: 1<<4 | 0, OAMIndex: 1} // OBP1 but appears to the right, shouldn't win at x=10
	var bgci [160]byte
	ci, pal := ComposeSpriteLineExt(mem, []Sprite{s0, s1}, 0, bgci, false)
	if ci[10] == 0 {
		t.Fatalf("expected sprite pixel at x=10")
	}
	if pal[10] != 0 {
		t.Fatalf("expected OBP0 at x=10, got pal=%d", pal[10])
	}
	// Now put both with same X but different OAM index; lower OAM index should win and carry its palette
	s0 = Sprite{X: 12, Y: 0, Tile: 0, Attr: 0 << 4, OAMIndex: 5} // OBP0, higher index
	s1 = Sprite{X: 12, Y: 0, Tile: 0, Attr: 1 << 4, OAMIndex: 3} // OBP1, lower index
	ci, pal = ComposeSpriteLineExt(mem, []Sprite{s0, s1}, 0, bgci, false)
	if ci[12] == 0 {
		t.Fatalf("expected sprite pixel at x=12")
	}
	if pal[12] != 1 {
		t.Fatalf("expected OBP1 at x=12 due to lower OAM index, got pal=%d", pal[12])
	}
}

func TestComposeSpriteLineFlips(t *testing.T) {
	mem := mockVRAM{}
	base := uint16(0x8000)
	// Row 0: single opaque pixel at bit7 (leftmost); row 7: full row
	mem[base+0] = 0x80
	mem[base+1] = 0x00
	mem[base+14] = 0xFF
	mem[base+15] = 0x00
	var bgci [160]byte

	// X flip moves the opaque pixel from column 0 to column 7
	s := Sprite{X: 0, Y: 0, Tile: 0, Attr: attrXFlip, OAMIndex: 0}
	out := ComposeSpriteLine(mem, []Sprite{s}, 0, bgci, false)
	if out[0] != 0 || out[7] == 0 {
		t.Fatalf("x-flip got out[0]=%d out[7]=%d", out[0], out[7])
	}

	// Y flip on line 0 reads tile row 7 (full row)
	s = Sprite{X: 0, Y: 0, Tile: 0, Attr: attrYFlip, OAMIndex: 0}
	out = ComposeSpriteLine(mem, []Sprite{s}, 0, bgci, false)
	for x := 0; x < 8; x++ {
		if out[x] != 1 {
			t.Fatalf("y-flip px %d got %d want 1", x, out[x])
		}
	}
}

func TestCollectSpritesForLineLimitAndOrder(t *testing.T) {
	var oam [0xA0]byte
	// 12 sprites all covering line 0 (OAM Y=16)
	for i := 0; i < 12; i++ {
		oam[i*4] = 16
		oam[i*4+1] = byte(8 + i)
	}
	got := collectSpritesForLine(&oam, 0, false)
	if len(got) != 10 {
		t.Fatalf("per-line sprite count got %d want 10", len(got))
	}
	for i, s := range got {
		if s.OAMIndex != i {
			t.Fatalf("OAM order broken at %d: index %d", i, s.OAMIndex)
		}
	}

	// 8x16 mode doubles coverage
	oam = [0xA0]byte{}
	oam[0] = 16 // screen Y=0
	if got := collectSpritesForLine(&oam, 12, true); len(got) != 1 {
		t.Fatalf("tall sprite should cover line 12")
	}
	if got := collectSpritesForLine(&oam, 12, false); len(got) != 0 {
		t.Fatalf("short sprite should not cover line 12")
	}
}
