package emu

// FastBootROM synthesizes a minimal 256-byte boot ROM: it initializes the
// stack pointer, sets A to the DMG hardware revision byte, and unmaps
// itself via 0xFF50, handing off to the cartridge entry point at 0x0100.
// It skips the logo scroll and the logo/checksum lockout of the real boot
// ROM, so any cartridge image boots instantly.
func FastBootROM() []byte {
	rom := make([]byte, 0x100)
	copy(rom, []byte{
		0x31, 0xFE, 0xFF, // LD SP,0xFFFE
		0xC3, 0xFC, 0x00, // JP 0x00FC
	})
	copy(rom[0xFC:], []byte{
		0x3E, 0x01, // LD A,0x01
		0xE0, 0x50, // LDH (0xFF50),A  ; unmap, next fetch is 0x0100
	})
	return rom
}
