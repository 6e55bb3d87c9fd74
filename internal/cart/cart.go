package cart

import (
	"errors"
	"fmt"
)

// Cartridge defines the minimal interface the Bus needs for ROM/RAM banking.
// Implementations can be ROM-only or MBC variants. Addresses are CPU addresses.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000–0x7FFF) and external RAM (0xA000–0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000–0x7FFF) and external RAM writes (0xA000–0xBFFF).
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize internal banking registers and external RAM for save states.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is an optional interface for cartridges with external RAM to be persisted.
// Implementations should return a copy of RAM bytes (may be empty if no RAM), and accept data to load.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// Load-time failures. The core never starts executing from a cartridge that
// failed to load.
var (
	ErrROMTooSmall     = errors.New("cart: ROM too small to contain header")
	ErrHeaderChecksum  = errors.New("cart: header checksum mismatch")
	ErrROMSizeMismatch = errors.New("cart: ROM shorter than header-declared size")
)

// UnsupportedMapperError reports a cartridge-type byte we have no MBC for.
type UnsupportedMapperError struct {
	Code byte
}

func (e *UnsupportedMapperError) Error() string {
	return fmt.Sprintf("cart: unsupported mapper type %#02x (%s)", e.Code, cartTypeString(e.Code))
}

// New picks a mapper implementation based on the ROM header.
// Unknown mapper types and malformed ROMs are load-time errors, never
// silently downgraded to ROM-only.
func New(rom []byte) (Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, err
	}
	if !HeaderChecksumOK(rom) {
		return nil, ErrHeaderChecksum
	}
	if h.ROMSizeBytes > 0 && len(rom) < h.ROMSizeBytes {
		return nil, fmt.Errorf("%w: have %d bytes, header declares %d", ErrROMSizeMismatch, len(rom), h.ROMSizeBytes)
	}
	switch h.CartType {
	case 0x00:
		return NewROMOnly(rom), nil
	case 0x01, 0x02, 0x03: // MBC1 variants (RAM, RAM+BAT are transparent here)
		return NewMBC1(rom, h.RAMSizeBytes), nil
	case 0x05, 0x06: // MBC2 variants (built-in 512x4-bit RAM)
		return NewMBC2(rom), nil
	case 0x0F, 0x10, 0x11, 0x12, 0x13: // MBC3 variants (RTC on 0x0F/0x10)
		return NewMBC3(rom, h.RAMSizeBytes), nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E: // MBC5 variants
		return NewMBC5(rom, h.RAMSizeBytes), nil
	default:
		return nil, &UnsupportedMapperError{Code: h.CartType}
	}
}

// romBankCount is the number of physical 16KB ROM banks, at least 1.
// Bank registers are reduced modulo this so out-of-range selections wrap
// instead of reading past the ROM.
func romBankCount(rom []byte) int {
	n := len(rom) / 0x4000
	if n < 1 {
		n = 1
	}
	return n
}

// ramBankCount is the number of physical 8KB RAM banks, at least 1.
func ramBankCount(ram []byte) int {
	n := len(ram) / 0x2000
	if n < 1 {
		n = 1
	}
	return n
}
