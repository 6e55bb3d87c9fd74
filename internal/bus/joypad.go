package bus

// Joypad button bits for SetJoypadState. Low nibble is the direction group,
// high nibble the button group, matching the two JOYP select lines.
const (
	JoypRight     byte = 1 << 0
	JoypLeft      byte = 1 << 1
	JoypUp        byte = 1 << 2
	JoypDown      byte = 1 << 3
	JoypA         byte = 1 << 4
	JoypB         byte = 1 << 5
	JoypSelectBtn byte = 1 << 6
	JoypStart     byte = 1 << 7
)

// SetJoypadState replaces the pressed-button mask. A newly pressed button
// raises the joypad interrupt.
func (b *Bus) SetJoypadState(state byte) {
	if state&^b.buttons != 0 {
		b.RequestInterrupt(IntJoypad)
	}
	b.buttons = state
}

// JoypadState returns the current pressed-button mask.
func (b *Bus) JoypadState() byte { return b.buttons }

// readJoypad builds the FF00 value: selected groups pull their lines low for
// pressed buttons; unselected lines read 1.
func (b *Bus) readJoypad() byte {
	v := 0xC0 | b.joypSelect | 0x0F
	if b.joypSelect&0x10 == 0 { // P14 low: direction keys
		v &^= b.buttons & 0x0F
	}
	if b.joypSelect&0x20 == 0 { // P15 low: action buttons
		v &^= (b.buttons >> 4) & 0x0F
	}
	return v
}
