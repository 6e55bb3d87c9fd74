package ppu

import "sort"

// OBJ attribute bits (OAM byte 3).
const (
	attrPalette  = 1 << 4 // DMG palette: 0=OBP0, 1=OBP1
	attrXFlip    = 1 << 5
	attrYFlip    = 1 << 6
	attrBehindBG = 1 << 7 // BG color 1-3 draws over this sprite
)

// Sprite is one OAM entry with position already converted to screen
// coordinates (OAM Y-16, X-8). OAMIndex keeps the original slot for the
// drawing-priority tie-break.
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
}

// collectSpritesForLine scans OAM in slot order and returns the sprites that
// cover scanline ly, capped at the hardware limit of 10 per line.
func collectSpritesForLine(oam *[0xA0]byte, ly int, tall bool) []Sprite {
	h := 8
	if tall {
		h = 16
	}
	var out []Sprite
	for i := 0; i < 40 && len(out) < 10; i++ {
		y := int(oam[i*4]) - 16
		if ly < y || ly >= y+h {
			continue
		}
		out = append(out, Sprite{
			X:        int(oam[i*4+1]) - 8,
			Y:        y,
			Tile:     oam[i*4+2],
			Attr:     oam[i*4+3],
			OAMIndex: i,
		})
	}
	return out
}

// ComposeSpriteLine renders the OBJ layer for scanline ly over the given BG
// color indices. The result holds OBJ color indices (0 = no sprite pixel).
// Priority: lower X wins; on equal X, lower OAM index wins. A sprite with the
// behind-BG attribute loses to BG colors 1-3.
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, ly int, bgci [160]byte, tall bool) [160]byte {
	ci, _ := ComposeSpriteLineExt(mem, sprites, ly, bgci, tall)
	return ci
}

// ComposeSpriteLineExt also reports which DMG palette (0=OBP0, 1=OBP1) won
// each pixel.
func ComposeSpriteLineExt(mem VRAMReader, sprites []Sprite, ly int, bgci [160]byte, tall bool) (ci, pal [160]byte) {
	// Sort by drawing priority so the first opaque pixel per column wins.
	ordered := make([]Sprite, len(sprites))
	copy(ordered, sprites)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].X != ordered[j].X {
			return ordered[i].X < ordered[j].X
		}
		return ordered[i].OAMIndex < ordered[j].OAMIndex
	})

	h := 8
	if tall {
		h = 16
	}
	var taken [160]bool
	for _, s := range ordered {
		row := ly - s.Y
		if row < 0 || row >= h {
			continue
		}
		if s.Attr&attrYFlip != 0 {
			row = h - 1 - row
		}
		tile := s.Tile
		if tall {
			tile &= 0xFE // bit 0 ignored in 8x16 mode
		}
		base := 0x8000 + uint16(tile)*16 + uint16(row)*2
		lo := mem.Read(base)
		hi := mem.Read(base + 1)
		for px := 0; px < 8; px++ {
			x := s.X + px
			if x < 0 || x >= 160 || taken[x] {
				continue
			}
			bit := 7 - byte(px)
			if s.Attr&attrXFlip != 0 {
				bit = byte(px)
			}
			c := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if c == 0 {
				continue // transparent
			}
			if s.Attr&attrBehindBG != 0 && bgci[x] != 0 {
				// BG wins, but the column is still consumed by this sprite.
				taken[x] = true
				continue
			}
			taken[x] = true
			ci[x] = c
			if s.Attr&attrPalette != 0 {
				pal[x] = 1
			}
		}
	}
	return ci, pal
}
