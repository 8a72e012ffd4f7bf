package asm

import "fmt"

// Opcode is the 4-bit operation field of an encoded instruction word.
type Opcode byte

const (
	Ld Opcode = iota
	Li
	St
	Add
	Sub
	Jmp
	Beq
	Bne
	Cmp
	And
	Or
	Xor
	Shl
	Shr
	Push
	Pop
)

const numOpcodes = 16

// opGroup classifies a mnemonic for the purposes of operand encoding. Group1
// mnemonics pack Rd/Rn/imm; Group2 mnemonics pack only imm, except cmp,
// which packs Rd and Rn (or Rd and imm) like a Group1 mnemonic (§4.4).
type opGroup int

const (
	group1 opGroup = iota
	group2
)

var (
	opToStr = map[Opcode]string{
		Ld: "ld", Li: "li", St: "st", Add: "add", Sub: "sub",
		Jmp: "jmp", Beq: "beq", Bne: "bne", Cmp: "cmp",
		And: "and", Or: "or", Xor: "xor", Shl: "shl", Shr: "shr",
		Push: "push", Pop: "pop",
	}

	strToOp map[string]Opcode

	opGroupOf = map[Opcode]opGroup{
		Ld: group1, Li: group1, St: group1, Add: group1, Sub: group1,
		And: group1, Or: group1, Xor: group1, Shl: group1, Shr: group1,
		Jmp: group2, Beq: group2, Bne: group2, Cmp: group2,
		Push: group2, Pop: group2,
	}
)

func init() {
	strToOp = make(map[string]Opcode, len(opToStr))
	for op, s := range opToStr {
		strToOp[s] = op
	}

	if len(opToStr) != numOpcodes {
		panic("opcode table does not cover all 16 opcodes")
	}
}

func (op Opcode) String() string {
	if s, ok := opToStr[op]; ok {
		return s
	}
	return fmt.Sprintf("Opcode(%d)", byte(op))
}

func (op Opcode) group() opGroup {
	return opGroupOf[op]
}

// IsRegisterWrite reports whether op writes its result into a general
// purpose register.
func (op Opcode) IsRegisterWrite() bool {
	switch op {
	case Ld, Li, Add, Sub, And, Or, Xor, Shl, Shr:
		return true
	default:
		return false
	}
}

// register encodes r0..r3 into their 2-bit field value.
type register byte

const (
	r0 register = iota
	r1
	r2
	r3
)

var strToRegister = map[string]register{
	"r0": r0, "r1": r1, "r2": r2, "r3": r3,
}

// pushPopMask bit positions (§4.4): R0..R3 at 0..3, LR at 4, IRC at 7.
const (
	maskBitLR  = 1 << 4
	maskBitIRC = 1 << 7
)
