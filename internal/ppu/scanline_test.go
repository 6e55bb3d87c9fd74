package ppu

import "testing"

// fillTileRow writes one 2bpp tile row at 0x8000 addressing.
func fillTileRow(mem mockVRAM, tile int, fineY, lo, hi byte) {
	addr := uint16(0x8000+tile*16) + uint16(fineY)*2
	mem[addr] = lo
	mem[addr+1] = hi
}

// rowPixel decodes pixel i (0 leftmost) of a 2bpp row.
func rowPixel(lo, hi byte, i int) byte {
	b := 7 - byte(i)
	return ((hi>>b)&1)<<1 | ((lo >> b) & 1)
}

func TestBGScanlineFineSCXDiscardsLeadPixels(t *testing.T) {
	mem := mockVRAM{}
	mapBase := uint16(0x9800)
	for tile := 0; tile < 32; tile++ {
		mem[mapBase+uint16(tile)] = byte(tile)
		fillTileRow(mem, tile, 0, byte(tile), ^byte(tile))
	}

	// SCX=5 drops five pixels of tile 0; the line still spans 160 pixels,
	// so tile 1 begins at column 3.
	out := renderBGScanlineUsingFetcher(mem, mapBase, true, 5, 0, 0)
	for i := 0; i < 3; i++ {
		if want := rowPixel(0x00, 0xFF, i+5); out[i] != want {
			t.Fatalf("lead px %d got %d want %d", i, out[i], want)
		}
	}
	for i := 0; i < 8; i++ {
		if want := rowPixel(0x01, ^byte(0x01), i); out[3+i] != want {
			t.Fatalf("tile1 px %d got %d want %d", i, out[3+i], want)
		}
	}
}

func TestBGScanlineWrapsAtMapRowEdge(t *testing.T) {
	mem := mockVRAM{}
	mapBase := uint16(0x9800)
	mem[mapBase+31] = 31
	mem[mapBase] = 0
	fillTileRow(mem, 31, 0, 0xF0, 0x0F)
	fillTileRow(mem, 0, 0, 0x3C, 0xC3)

	// SCX=248 starts in the last map column; the next tile wraps to column 0.
	out := renderBGScanlineUsingFetcher(mem, mapBase, true, 248, 0, 0)
	for i := 0; i < 8; i++ {
		if want := rowPixel(0xF0, 0x0F, i); out[i] != want {
			t.Fatalf("last-column px %d got %d want %d", i, out[i], want)
		}
	}
	for i := 0; i < 8; i++ {
		if want := rowPixel(0x3C, 0xC3, i); out[8+i] != want {
			t.Fatalf("wrapped px %d got %d want %d", i, out[8+i], want)
		}
	}
}

func TestBGScanlineSCYSelectsMapRowAndFineY(t *testing.T) {
	mem := mockVRAM{}
	mapBase := uint16(0x9800)
	// LY=2 with SCY=19 lands on BG row 21: map row 2, fine Y 5.
	mem[mapBase+2*32] = 7
	fillTileRow(mem, 7, 5, 0xA5, 0x5A)

	out := renderBGScanlineUsingFetcher(mem, mapBase, true, 0, 19, 2)
	for i := 0; i < 8; i++ {
		if want := rowPixel(0xA5, 0x5A, i); out[i] != want {
			t.Fatalf("px %d got %d want %d", i, out[i], want)
		}
	}
}
