package cpu

import "errors"

// opcode mirrors asm.Opcode's numbering (§GLOSSARY); kept as a distinct
// type so this package never needs to import the assembler.
type opcode byte

const (
	opLd opcode = iota
	opLi
	opSt
	opAdd
	opSub
	opJmp
	opBeq
	opBne
	opCmp
	opAnd
	opOr
	opXor
	opShl
	opShr
	opPush
	opPop
)

var (
	// ErrSegmentationFault is set on a recovered panic during execution,
	// matching the teacher's default top-level recovery behavior.
	ErrSegmentationFault = errors.New("segmentation fault")
	// ErrIllegalInstruction marks a decoded opcode nibble with no handler.
	// The opcode space is fully covered (§8 property 3) so this should be
	// unreachable in practice; it exists as a defensive backstop.
	ErrIllegalInstruction = errors.New("illegal instruction")
)

// Step executes exactly one fetch/decode/execute tick (§4.7). A no-op while
// the halt gate is set.
func (c *CPU) Step() {
	if c.flags.I {
		return
	}

	word := c.mem[c.pc]
	op := opcode((word >> 12) & 0xF)
	rd := register((word >> 10) & 0x3)
	rn := register((word >> 8) & 0x3)
	imm := byte(word & 0xFF)

	switch op {
	case opLd:
		addr := c.loadStoreAddr(rn, imm)
		c.r[rd] = byte(c.mem[addr])
		c.flags.Z = c.r[rd] == 0

	case opLi:
		c.r[rd] = imm

	case opSt:
		addr := c.loadStoreAddr(rn, imm)
		c.mem[addr] = uint16(c.r[rd] & 0xFF)

	case opAdd:
		c.add(rd, rn, imm)

	case opSub:
		c.sub(rd, rn, imm)

	case opJmp:
		c.lr = byte(c.pc)
		c.pc = uint16(imm)

	case opBeq:
		if c.flags.Z {
			c.pc = uint16(imm)
		}

	case opBne:
		if !c.flags.Z {
			c.pc = uint16(imm)
		}

	case opCmp:
		c.cmp(rd, rn, imm)

	case opAnd:
		c.logical(rd, rn, imm, func(a, b byte) byte { return a & b })

	case opOr:
		c.logical(rd, rn, imm, func(a, b byte) byte { return a | b })

	case opXor:
		c.logical(rd, rn, imm, func(a, b byte) byte { return a ^ b })

	case opShl:
		c.shift(rd, rn, imm, true)

	case opShr:
		c.shift(rd, rn, imm, false)

	case opPush:
		c.push(imm)

	case opPop:
		c.pop(imm)

	default:
		c.errcode = ErrIllegalInstruction
		c.flags.I = true
		return
	}

	// PC always advances by one after dispatch; jmp/beq/bne set PC to the
	// pre-pass's -1-biased target as part of the switch above, so this
	// unconditional advance is what lands execution on the real target
	// (§8 testable property 6, §9's label-minus-one bias).
	c.pc++

	if c.pc > c.opts.EndMarker {
		c.flags.I = true
	}
}

// loadStoreAddr resolves the shared ld/st addressing-mode ambiguity: the
// encoder zeroes Rn for the `[#addr]` form and zeroes imm for the `[Rn]`
// form, so imm != 0 unambiguously selects the immediate-address form
// (Rn == r0 with imm == 0 and `[r0]` with an empty immediate collide, and
// are treated identically since both then read mem[R[r0]]).
func (c *CPU) loadStoreAddr(rn register, imm byte) uint16 {
	if imm != 0 {
		return uint16(imm)
	}
	return uint16(c.r[rn])
}

// operandByImm resolves the "register, or immediate" ambiguity for
// add/sub/cmp: imm != 0 selects the immediate, otherwise R[Rn] is used.
// and/or/xor use a different predicate (Rn == r0, see logical).
func operandByImm(c *CPU, rn register, imm byte) byte {
	if imm != 0 {
		return imm
	}
	return c.r[rn]
}

func (c *CPU) add(rd, rn register, imm byte) {
	b := operandByImm(c, rn, imm)
	sum := int(c.r[rd]) + int(b)

	c.flags.C = sum > 255
	c.flags.NV = sum > 127 || sum < -128
	c.r[rd] = byte(sum & 0xFF)
	c.flags.Z = c.r[rd] == 0
}

// sub reproduces the documented carry-flag quirk (§9): carry is computed
// from the post-write (masked) Rd value compared against Rn's *register*
// value, not the raw subtraction, even when an immediate subtrahend was
// used.
func (c *CPU) sub(rd, rn register, imm byte) {
	b := operandByImm(c, rn, imm)
	diff := int(c.r[rd]) - int(b)

	c.flags.NV = diff > 127 || diff < -128
	c.r[rd] = byte(diff & 0xFF)
	c.flags.C = c.r[rd] < c.r[rn]
	c.flags.Z = c.r[rd] == 0
}

func (c *CPU) cmp(rd, rn register, imm byte) {
	b := operandByImm(c, rn, imm)
	diff := int(c.r[rd]) - int(b)

	c.flags.NV = diff > 127 || diff < -128
	masked := byte(diff & 0xFF)
	c.flags.C = masked < c.r[rn]
	c.flags.Z = masked == 0
}

// logical reproduces the Group-1 R0-clobber bug (§9): unless
// Options.LogicalWritesToRd is set, the result always lands in R0
// regardless of the encoded Rd. The second operand is the immediate when
// Rn == r0 and R[Rn] otherwise.
func (c *CPU) logical(rd, rn register, imm byte, f func(a, b byte) byte) {
	b := c.r[rn]
	if rn == r0 {
		b = imm
	}
	result := f(c.r[rd], b)

	target := r0
	if c.opts.LogicalWritesToRd {
		target = rd
	}
	c.r[target] = result
	c.flags.Z = result == 0
}

func (c *CPU) shift(rd, rn register, imm byte, left bool) {
	src := c.r[rn]
	amount := imm & 0x0F

	var result byte
	var displaced bool
	if left {
		wide := uint16(src) << amount
		result = byte(wide & 0xFF)
		displaced = wide&0xFF00 != 0
	} else {
		result = src >> amount
		displaced = amount > 0 && (src>>(amount-1))&0x1 != 0
	}

	c.r[rd] = result
	c.flags.NV = displaced
	c.flags.C = false
	c.flags.Z = result == 0
}

// push predecrements SP then stores each selected register, in ascending
// bit order (R0..R3, then LR); pop is its mirror image (§4.7).
func (c *CPU) push(mask byte) {
	for bit := 0; bit < 5; bit++ {
		if mask&(1<<uint(bit)) == 0 {
			continue
		}
		c.sp--
		c.mem[c.sp] = uint16(c.registerAt(bit))
	}
}

// pop restores registers in descending bit order so a push/pop pair of the
// same mask round-trips correctly (§8 testable property 7). If bit 7 (IRC)
// is set the mask instead names a syscall number dispatched to the host
// bridge before any register is touched (§4.8, §9).
func (c *CPU) pop(mask byte) {
	if mask&0x80 != 0 {
		c.dispatchSyscall(mask & 0x7F)
		return
	}

	for bit := 4; bit >= 0; bit-- {
		if mask&(1<<uint(bit)) == 0 {
			continue
		}
		value := byte(c.mem[c.sp])
		c.sp++
		c.setRegisterAt(bit, value)
	}

	if mask&(1<<4) != 0 {
		c.pc = uint16(c.lr)
	}
}

func (c *CPU) registerAt(bit int) byte {
	if bit == 4 {
		return c.lr
	}
	return c.r[register(bit)]
}

func (c *CPU) setRegisterAt(bit int, value byte) {
	if bit == 4 {
		c.lr = value
		return
	}
	c.r[register(bit)] = value
}
