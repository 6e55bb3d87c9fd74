package cart

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"
)

// nowUnix is swappable in tests.
var nowUnix = func() int64 { return time.Now().Unix() }

// MBC3 implements ROM/RAM banking plus the real-time clock.
// Banking behavior:
// - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank (0-3) or RTC register select (08-0C)
// - 6000-7FFF: latch clock on a 0->1 write
// - A000-BFFF: external RAM or the selected latched RTC register
// ROM: bank 0 fixed at 0000-3FFF; switchable 4000-7FFF uses bank (1..127)
type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	ramBank    byte // 0..3 for RAM, 0x08..0x0C selects an RTC register

	// Live RTC counters, advanced from wall-clock time on access.
	rtcSec, rtcMin, rtcHour byte
	rtcDay                  uint16 // 9 bits
	rtcHalt, rtcCarry       bool
	lastRTCWallSec          int64

	// Latched copies, frozen by a 0->1 write to 6000-7FFF.
	latchSec, latchMin, latchHour byte
	latchDay                      uint16
	latchHalt, latchCarry         bool
	lastLatchWrite                byte
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	m.lastRTCWallSec = nowUnix()
	return m
}

func (m *MBC3) Read(addr uint16) byte {
	m.updateRTC()
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		bank %= romBankCount(m.rom)
		return m.rom[bank*0x4000+int(addr-0x4000)]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.ramBank >= 0x08 {
			return m.readRTCReg(m.ramBank)
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.ramBank&0x03) % ramBankCount(m.ram)
		return m.ram[rb*0x2000+int(addr-0xA000)]
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	m.updateRTC()
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		if value <= 0x03 || (value >= 0x08 && value <= 0x0C) {
			m.ramBank = value
		} else {
			m.ramBank = 0
		}
	case addr < 0x8000:
		if m.lastLatchWrite == 0 && value == 1 {
			m.latchRTC()
		}
		m.lastLatchWrite = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.ramBank >= 0x08 {
			m.writeRTCReg(m.ramBank, value)
			return
		}
		if len(m.ram) == 0 {
			return
		}
		rb := int(m.ramBank&0x03) % ramBankCount(m.ram)
		m.ram[rb*0x2000+int(addr-0xA000)] = value
	}
}

// updateRTC folds elapsed wall-clock seconds into the live counters.
func (m *MBC3) updateRTC() {
	now := nowUnix()
	elapsed := now - m.lastRTCWallSec
	m.lastRTCWallSec = now
	if m.rtcHalt || elapsed <= 0 {
		return
	}
	total := int64(m.rtcSec) + elapsed
	m.rtcSec = byte(total % 60)
	carryMin := total / 60
	totalMin := int64(m.rtcMin) + carryMin
	m.rtcMin = byte(totalMin % 60)
	carryHour := totalMin / 60
	totalHour := int64(m.rtcHour) + carryHour
	m.rtcHour = byte(totalHour % 24)
	carryDay := totalHour / 24
	totalDay := int64(m.rtcDay) + carryDay
	if totalDay > 0x1FF {
		m.rtcCarry = true
	}
	m.rtcDay = uint16(totalDay & 0x1FF)
}

func (m *MBC3) latchRTC() {
	m.latchSec, m.latchMin, m.latchHour = m.rtcSec, m.rtcMin, m.rtcHour
	m.latchDay = m.rtcDay
	m.latchHalt, m.latchCarry = m.rtcHalt, m.rtcCarry
}

func (m *MBC3) readRTCReg(reg byte) byte {
	switch reg {
	case 0x08:
		return m.latchSec
	case 0x09:
		return m.latchMin
	case 0x0A:
		return m.latchHour
	case 0x0B:
		return byte(m.latchDay & 0xFF)
	case 0x0C:
		v := byte(m.latchDay>>8) & 0x01
		if m.latchHalt {
			v |= 1 << 6
		}
		if m.latchCarry {
			v |= 1 << 7
		}
		return v
	default:
		return 0xFF
	}
}

func (m *MBC3) writeRTCReg(reg, value byte) {
	switch reg {
	case 0x08:
		m.rtcSec = value % 60
	case 0x09:
		m.rtcMin = value % 60
	case 0x0A:
		m.rtcHour = value % 24
	case 0x0B:
		m.rtcDay = (m.rtcDay & 0x100) | uint16(value)
	case 0x0C:
		m.rtcDay = (m.rtcDay & 0xFF) | (uint16(value&0x01) << 8)
		m.rtcHalt = value&(1<<6) != 0
		m.rtcCarry = value&(1<<7) != 0
	}
}

// BatteryBacked implementation. RTC state is appended to the RAM blob so
// the clock survives across sessions.
func (m *MBC3) SaveRAM() []byte {
	out := make([]byte, len(m.ram), len(m.ram)+16)
	copy(out, m.ram)
	var rtc [16]byte
	rtc[0] = m.rtcSec
	rtc[1] = m.rtcMin
	rtc[2] = m.rtcHour
	binary.LittleEndian.PutUint16(rtc[3:5], m.rtcDay)
	if m.rtcHalt {
		rtc[5] |= 1 << 0
	}
	if m.rtcCarry {
		rtc[5] |= 1 << 1
	}
	binary.LittleEndian.PutUint64(rtc[8:16], uint64(m.lastRTCWallSec))
	return append(out, rtc[:]...)
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(data) == 0 {
		return
	}
	n := len(m.ram)
	if n > 0 {
		copy(m.ram, data)
	}
	if len(data) >= n+16 {
		rtc := data[n : n+16]
		m.rtcSec, m.rtcMin, m.rtcHour = rtc[0], rtc[1], rtc[2]
		m.rtcDay = binary.LittleEndian.Uint16(rtc[3:5]) & 0x1FF
		m.rtcHalt = rtc[5]&(1<<0) != 0
		m.rtcCarry = rtc[5]&(1<<1) != 0
		m.lastRTCWallSec = int64(binary.LittleEndian.Uint64(rtc[8:16]))
	}
}

type mbc3State struct {
	RAM        []byte
	RomBank    byte
	RamBank    byte
	RamEnabled bool

	Sec, Min, Hour byte
	Day            uint16
	Halt, Carry    bool
	WallSec        int64

	LatchSec, LatchMin, LatchHour byte
	LatchDay                      uint16
	LatchHalt, LatchCarry         bool
	LastLatchWrite                byte
}

func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := mbc3State{
		RAM: append([]byte(nil), m.ram...), RomBank: m.romBank, RamBank: m.ramBank, RamEnabled: m.ramEnabled,
		Sec: m.rtcSec, Min: m.rtcMin, Hour: m.rtcHour, Day: m.rtcDay,
		Halt: m.rtcHalt, Carry: m.rtcCarry, WallSec: m.lastRTCWallSec,
		LatchSec: m.latchSec, LatchMin: m.latchMin, LatchHour: m.latchHour, LatchDay: m.latchDay,
		LatchHalt: m.latchHalt, LatchCarry: m.latchCarry, LastLatchWrite: m.lastLatchWrite,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return
	}
	if len(m.ram) > 0 && len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.romBank, m.ramBank, m.ramEnabled = s.RomBank, s.RamBank, s.RamEnabled
	m.rtcSec, m.rtcMin, m.rtcHour, m.rtcDay = s.Sec, s.Min, s.Hour, s.Day
	m.rtcHalt, m.rtcCarry, m.lastRTCWallSec = s.Halt, s.Carry, s.WallSec
	m.latchSec, m.latchMin, m.latchHour, m.latchDay = s.LatchSec, s.LatchMin, s.LatchHour, s.LatchDay
	m.latchHalt, m.latchCarry, m.lastLatchWrite = s.LatchHalt, s.LatchCarry, s.LastLatchWrite
}
