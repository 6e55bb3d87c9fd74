package cart

import (
	"bytes"
	"encoding/gob"
)

// MBC5 implements 9-bit ROM banking and 4-bit RAM banking.
// Banking behavior:
// - 0000-1FFF: RAM enable (0x0A in low nibble)
// - 2000-2FFF: ROM bank low 8 bits
// - 3000-3FFF: ROM bank bit 8
// - 4000-5FFF: RAM bank (0-15)
// Unlike MBC1/MBC3, bank 0 is selectable in the 4000-7FFF window.
type MBC5 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    uint16 // 9 bits
	ramBank    byte   // 4 bits
}

func NewMBC5(rom []byte, ramSize int) *MBC5 {
	m := &MBC5{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	return m
}

func (m *MBC5) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank) % romBankCount(m.rom)
		return m.rom[bank*0x4000+int(addr-0x4000)]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.ramBank) % ramBankCount(m.ram)
		return m.ram[rb*0x2000+int(addr-0xA000)]
	default:
		return 0xFF
	}
}

func (m *MBC5) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x3000:
		m.romBank = (m.romBank & 0x100) | uint16(value)
	case addr < 0x4000:
		m.romBank = (m.romBank & 0xFF) | (uint16(value&0x01) << 8)
	case addr < 0x6000:
		m.ramBank = value & 0x0F
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		rb := int(m.ramBank) % ramBankCount(m.ram)
		m.ram[rb*0x2000+int(addr-0xA000)] = value
	}
}

func (m *MBC5) SaveRAM() []byte {
	return append([]byte(nil), m.ram...)
}

func (m *MBC5) LoadRAM(data []byte) {
	copy(m.ram, data)
}

type mbc5State struct {
	RAM        []byte
	RomBank    uint16
	RamBank    byte
	RamEnabled bool
}

func (m *MBC5) SaveState() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(mbc5State{
		RAM:     append([]byte(nil), m.ram...),
		RomBank: m.romBank, RamBank: m.ramBank, RamEnabled: m.ramEnabled,
	})
	return buf.Bytes()
}

func (m *MBC5) LoadState(data []byte) {
	var s mbc5State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(m.ram) > 0 && len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.romBank, m.ramBank, m.ramEnabled = s.RomBank, s.RamBank, s.RamEnabled
}
