package cpu

// opcodes maps every primary opcode to a handler returning its dot count.
// Entries left nil are the opcodes the SM83 does not implement; executing
// one is a fatal IllegalOpcodeError.
var opcodes [256]func(*CPU) int

// cbOps holds the CB-prefixed instruction set.
var cbOps [256]func(*CPU) int

func init() {
	buildPrimaryTable()
	buildCBTable()
}

func buildPrimaryTable() {
	op := &opcodes

	op[0x00] = func(c *CPU) int { return 4 } // NOP

	// LD rr,d16
	op[0x01] = func(c *CPU) int { c.setBC(c.fetch16()); return 12 }
	op[0x11] = func(c *CPU) int { c.setDE(c.fetch16()); return 12 }
	op[0x21] = func(c *CPU) int { c.setHL(c.fetch16()); return 12 }
	op[0x31] = func(c *CPU) int { c.SP = c.fetch16(); return 12 }
	op[0x08] = func(c *CPU) int { c.write16(c.fetch16(), c.SP); return 20 } // LD (a16),SP

	// LD (BC/DE),A and A,(BC/DE)
	op[0x02] = func(c *CPU) int { c.write8(c.getBC(), c.A); return 8 }
	op[0x12] = func(c *CPU) int { c.write8(c.getDE(), c.A); return 8 }
	op[0x0A] = func(c *CPU) int { c.A = c.read8(c.getBC()); return 8 }
	op[0x1A] = func(c *CPU) int { c.A = c.read8(c.getDE()); return 8 }

	// LDI/LDD via HL
	op[0x22] = func(c *CPU) int { hl := c.getHL(); c.write8(hl, c.A); c.setHL(hl + 1); return 8 }
	op[0x2A] = func(c *CPU) int { hl := c.getHL(); c.A = c.read8(hl); c.setHL(hl + 1); return 8 }
	op[0x32] = func(c *CPU) int { hl := c.getHL(); c.write8(hl, c.A); c.setHL(hl - 1); return 8 }
	op[0x3A] = func(c *CPU) int { hl := c.getHL(); c.A = c.read8(hl); c.setHL(hl - 1); return 8 }

	// LD r,d8 / INC r / DEC r for the 8 register slots (6 = (HL))
	for i := byte(0); i < 8; i++ {
		idx := i
		memCost := 0
		if idx == 6 {
			memCost = 4
		}
		op[0x06+idx*8] = func(c *CPU) int { c.setReg(idx, c.fetch8()); return 8 + memCost }
		op[0x04+idx*8] = func(c *CPU) int {
			old := c.getReg(idx)
			v := old + 1
			c.setReg(idx, v)
			c.setZNHC(v == 0, false, (old&0x0F) == 0x0F, (c.F&flagC) != 0)
			return 4 + 2*memCost
		}
		op[0x05+idx*8] = func(c *CPU) int {
			old := c.getReg(idx)
			v := old - 1
			c.setReg(idx, v)
			c.setZNHC(v == 0, true, (old&0x0F) == 0x00, (c.F&flagC) != 0)
			return 4 + 2*memCost
		}
	}

	// LD r,r' block 0x40-0x7F; 0x76 is HALT
	for d := byte(0); d < 8; d++ {
		for s := byte(0); s < 8; s++ {
			code := 0x40 + d*8 + s
			if code == 0x76 {
				continue
			}
			dst, src := d, s
			cycles := 4
			if dst == 6 || src == 6 {
				cycles = 8
			}
			op[code] = func(c *CPU) int {
				c.setReg(dst, c.getReg(src))
				return cycles
			}
		}
	}
	op[0x76] = (*CPU).opHALT
	op[0x10] = (*CPU).opSTOP

	// ALU A,r block 0x80-0xBF
	for g := byte(0); g < 8; g++ {
		for s := byte(0); s < 8; s++ {
			group, src := g, s
			cycles := 4
			if src == 6 {
				cycles = 8
			}
			op[0x80+g*8+s] = func(c *CPU) int {
				c.alu(group, c.getReg(src))
				return cycles
			}
		}
	}

	// ALU A,d8
	for g := byte(0); g < 8; g++ {
		group := g
		op[0xC6+g*8] = func(c *CPU) int {
			c.alu(group, c.fetch8())
			return 8
		}
	}

	// Rotates on A and flag ops
	op[0x07] = func(c *CPU) int { // RLCA
		cval := (c.A >> 7) & 1
		c.A = (c.A << 1) | cval
		c.setZNHC(false, false, false, cval == 1)
		return 4
	}
	op[0x0F] = func(c *CPU) int { // RRCA
		cval := c.A & 1
		c.A = (c.A >> 1) | (cval << 7)
		c.setZNHC(false, false, false, cval == 1)
		return 4
	}
	op[0x17] = func(c *CPU) int { // RLA
		cval := (c.A >> 7) & 1
		carry := byte(0)
		if (c.F & flagC) != 0 {
			carry = 1
		}
		c.A = (c.A << 1) | carry
		c.setZNHC(false, false, false, cval == 1)
		return 4
	}
	op[0x1F] = func(c *CPU) int { // RRA
		cval := c.A & 1
		carry := byte(0)
		if (c.F & flagC) != 0 {
			carry = 1
		}
		c.A = (c.A >> 1) | (carry << 7)
		c.setZNHC(false, false, false, cval == 1)
		return 4
	}
	op[0x27] = func(c *CPU) int { // DAA
		a := c.A
		cf := (c.F & flagC) != 0
		if (c.F & flagN) == 0 { // after addition
			if cf || a > 0x99 {
				a += 0x60
				cf = true
			}
			if (c.F&flagH) != 0 || (a&0x0F) > 9 {
				a += 0x06
			}
		} else { // after subtraction
			if cf {
				a -= 0x60
			}
			if (c.F & flagH) != 0 {
				a -= 0x06
			}
		}
		c.A = a
		c.setZNHC(c.A == 0, (c.F&flagN) != 0, false, cf)
		return 4
	}
	op[0x2F] = func(c *CPU) int { // CPL
		c.A = ^c.A
		c.F = (c.F & (flagZ | flagC)) | flagN | flagH
		return 4
	}
	op[0x37] = func(c *CPU) int { // SCF
		c.F = (c.F & flagZ) | flagC
		return 4
	}
	op[0x3F] = func(c *CPU) int { // CCF
		c.F = (c.F & (flagZ | flagC)) ^ flagC
		return 4
	}

	// LDH / LD via 0xFF00+C / absolute
	op[0xE0] = func(c *CPU) int { c.write8(0xFF00+uint16(c.fetch8()), c.A); return 12 }
	op[0xF0] = func(c *CPU) int { c.A = c.read8(0xFF00 + uint16(c.fetch8())); return 12 }
	op[0xE2] = func(c *CPU) int { c.write8(0xFF00+uint16(c.C), c.A); return 8 }
	op[0xF2] = func(c *CPU) int { c.A = c.read8(0xFF00 + uint16(c.C)); return 8 }
	op[0xEA] = func(c *CPU) int { c.write8(c.fetch16(), c.A); return 16 }
	op[0xFA] = func(c *CPU) int { c.A = c.read8(c.fetch16()); return 16 }

	// 16-bit INC/DEC and ADD HL,rr
	op[0x03] = func(c *CPU) int { c.setBC(c.getBC() + 1); return 8 }
	op[0x13] = func(c *CPU) int { c.setDE(c.getDE() + 1); return 8 }
	op[0x23] = func(c *CPU) int { c.setHL(c.getHL() + 1); return 8 }
	op[0x33] = func(c *CPU) int { c.SP++; return 8 }
	op[0x0B] = func(c *CPU) int { c.setBC(c.getBC() - 1); return 8 }
	op[0x1B] = func(c *CPU) int { c.setDE(c.getDE() - 1); return 8 }
	op[0x2B] = func(c *CPU) int { c.setHL(c.getHL() - 1); return 8 }
	op[0x3B] = func(c *CPU) int { c.SP--; return 8 }
	op[0x09] = func(c *CPU) int { c.addHL(c.getBC()); return 8 }
	op[0x19] = func(c *CPU) int { c.addHL(c.getDE()); return 8 }
	op[0x29] = func(c *CPU) int { c.addHL(c.getHL()); return 8 }
	op[0x39] = func(c *CPU) int { c.addHL(c.SP); return 8 }

	// Stack/SP ops
	op[0xF8] = func(c *CPU) int { // LD HL,SP+r8
		off := int8(c.fetch8())
		low := byte(c.SP & 0xFF)
		_, _, _, h, cy := c.add8(low, byte(off))
		c.setHL(uint16(int32(int16(c.SP)) + int32(off)))
		c.setZNHC(false, false, h, cy)
		return 12
	}
	op[0xF9] = func(c *CPU) int { c.SP = c.getHL(); return 8 }
	op[0xE8] = func(c *CPU) int { // ADD SP,r8
		off := int8(c.fetch8())
		low := byte(c.SP & 0xFF)
		_, _, _, h, cy := c.add8(low, byte(off))
		c.SP = uint16(int32(int16(c.SP)) + int32(off))
		c.setZNHC(false, false, h, cy)
		return 16
	}

	// Jumps
	op[0xC3] = func(c *CPU) int { c.PC = c.fetch16(); return 16 }
	op[0xE9] = func(c *CPU) int { c.PC = c.getHL(); return 4 }
	op[0x18] = func(c *CPU) int {
		off := int8(c.fetch8())
		c.PC = uint16(int32(c.PC) + int32(off))
		return 12
	}
	for i := byte(0); i < 4; i++ {
		cc := i
		op[0x20+cc*8] = func(c *CPU) int { // JR cc,r8
			off := int8(c.fetch8())
			if c.cond(cc) {
				c.PC = uint16(int32(c.PC) + int32(off))
				return 12
			}
			return 8
		}
		op[0xC2+cc*8] = func(c *CPU) int { // JP cc,a16
			addr := c.fetch16()
			if c.cond(cc) {
				c.PC = addr
				return 16
			}
			return 12
		}
		op[0xC4+cc*8] = func(c *CPU) int { // CALL cc,a16
			addr := c.fetch16()
			if c.cond(cc) {
				c.push16(c.PC)
				c.PC = addr
				return 24
			}
			return 12
		}
		op[0xC0+cc*8] = func(c *CPU) int { // RET cc
			if c.cond(cc) {
				c.PC = c.pop16()
				return 20
			}
			return 8
		}
	}

	// CALL/RET/RETI
	op[0xCD] = func(c *CPU) int {
		addr := c.fetch16()
		c.push16(c.PC)
		c.PC = addr
		return 24
	}
	op[0xC9] = func(c *CPU) int { c.PC = c.pop16(); return 16 }
	op[0xD9] = func(c *CPU) int { // RETI: IME restored immediately
		c.PC = c.pop16()
		c.IME = true
		return 16
	}

	// RST t
	for i := byte(0); i < 8; i++ {
		target := uint16(i) * 8
		op[0xC7+i*8] = func(c *CPU) int {
			c.push16(c.PC)
			c.PC = target
			return 16
		}
	}

	// PUSH/POP
	op[0xC5] = func(c *CPU) int { c.push16(c.getBC()); return 16 }
	op[0xD5] = func(c *CPU) int { c.push16(c.getDE()); return 16 }
	op[0xE5] = func(c *CPU) int { c.push16(c.getHL()); return 16 }
	op[0xF5] = func(c *CPU) int { c.push16(c.getAF()); return 16 }
	op[0xC1] = func(c *CPU) int { c.setBC(c.pop16()); return 12 }
	op[0xD1] = func(c *CPU) int { c.setDE(c.pop16()); return 12 }
	op[0xE1] = func(c *CPU) int { c.setHL(c.pop16()); return 12 }
	op[0xF1] = func(c *CPU) int { c.setAF(c.pop16()); return 12 }

	// Interrupt enable control
	op[0xF3] = func(c *CPU) int { c.IME = false; c.eiDelay = 0; return 4 }
	op[0xFB] = func(c *CPU) int { c.eiDelay = 2; return 4 }

	// 0x36 LD (HL),d8 is covered by the generated LD r,d8 family (idx 6).

	// CB prefix
	op[0xCB] = func(c *CPU) int {
		return cbOps[c.fetch8()](c)
	}
}

// alu applies the 3-bit ALU group encoding to A.
func (c *CPU) alu(group, src byte) {
	switch group {
	case 0: // ADD
		r, z, n, h, cy := c.add8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 1: // ADC
		r, z, n, h, cy := c.adc8(c.A, src, (c.F&flagC) != 0)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 2: // SUB
		r, z, n, h, cy := c.sub8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 3: // SBC
		r, z, n, h, cy := c.sbc8(c.A, src, (c.F&flagC) != 0)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 4: // AND
		r, z, n, h, cy := c.and8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 5: // XOR
		r, z, n, h, cy := c.xor8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 6: // OR
		r, z, n, h, cy := c.or8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 7: // CP
		z, n, h, cy := c.cp8(c.A, src)
		c.setZNHC(z, n, h, cy)
	}
}

// addHL implements ADD HL,rr (Z unchanged).
func (c *CPU) addHL(v uint16) {
	hl := c.getHL()
	r := uint32(hl) + uint32(v)
	h := ((hl & 0x0FFF) + (v & 0x0FFF)) > 0x0FFF
	c.setHL(uint16(r))
	c.setZNHC((c.F&flagZ) != 0, false, h, r > 0xFFFF)
}

func (c *CPU) opHALT() int {
	if !c.IME && c.bus.PendingInterrupts() != 0 {
		// HALT bug: the CPU does not halt and the next opcode byte is
		// read twice.
		c.haltBug = true
		return 4
	}
	c.halted = true
	return 4
}

func (c *CPU) opSTOP() int {
	c.fetch8() // padding byte
	c.stopped = true
	return 4
}

func buildCBTable() {
	for i := 0; i < 256; i++ {
		cb := byte(i)
		reg := cb & 7
		y := (cb >> 3) & 7
		group := cb >> 6

		cycles := 8
		if reg == 6 {
			cycles = 16
			if group == 1 { // BIT (HL) only reads
				cycles = 12
			}
		}

		switch group {
		case 0: // rotate/shift/swap
			kind := y
			cbOps[i] = func(c *CPU) int {
				v := c.getReg(reg)
				var cflag byte
				switch kind {
				case 0: // RLC
					cflag = (v >> 7) & 1
					v = (v << 1) | cflag
				case 1: // RRC
					cflag = v & 1
					v = (v >> 1) | (cflag << 7)
				case 2: // RL
					cflag = (v >> 7) & 1
					cin := byte(0)
					if (c.F & flagC) != 0 {
						cin = 1
					}
					v = (v << 1) | cin
				case 3: // RR
					cflag = v & 1
					cin := byte(0)
					if (c.F & flagC) != 0 {
						cin = 1
					}
					v = (v >> 1) | (cin << 7)
				case 4: // SLA
					cflag = (v >> 7) & 1
					v <<= 1
				case 5: // SRA
					cflag = v & 1
					v = (v >> 1) | (v & 0x80)
				case 6: // SWAP
					cflag = 0
					v = (v << 4) | (v >> 4)
				case 7: // SRL
					cflag = v & 1
					v >>= 1
				}
				c.setZNHC(v == 0, false, false, cflag == 1)
				c.setReg(reg, v)
				return cycles
			}
		case 1: // BIT y,r
			bit := y
			cbOps[i] = func(c *CPU) int {
				v := c.getReg(reg)
				// Z set if bit clear, N=0, H=1, C unchanged
				c.F = (c.F & flagC) | flagH
				if (v>>bit)&1 == 0 {
					c.F |= flagZ
				}
				return cycles
			}
		case 2: // RES y,r
			bit := y
			cbOps[i] = func(c *CPU) int {
				c.setReg(reg, c.getReg(reg)&^(1<<bit))
				return cycles
			}
		case 3: // SET y,r
			bit := y
			cbOps[i] = func(c *CPU) int {
				c.setReg(reg, c.getReg(reg)|(1<<bit))
				return cycles
			}
		}
	}
}
