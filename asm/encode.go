package asm

import (
	"strconv"
	"strings"
)

// encodeWord packs the four instruction-word fields per §3: [op:4|Rd:2|Rn:2|imm:8].
func encodeWord(op Opcode, rd, rn register, imm uint8) uint16 {
	return uint16(op)<<12 | uint16(rd)<<10 | uint16(rn)<<8 | uint16(imm)
}

// encodeLine dispatches a single .text instruction line to the Group 1 or
// Group 2 encoder per the mnemonic table in §4.4, first rewriting any
// `=label` operand into its first data-label address.
func encodeLine(ln rawLine, codeLabels map[string]uint16, dataLabels map[string]uint16) (uint16, error) {
	fields := strings.Fields(ln.text)
	mnemonic, operands := fields[0], rewriteDataLabels(splitOperands(strings.Join(fields[1:], " ")), dataLabels)

	// `syscall` is not a distinct opcode — it is the §4.4 mnemonic alias for
	// a `pop` with the IRC bit set, kept as a separate keyword purely for
	// source readability (§8's "message print" scenario writes `syscall 1`).
	op, ok := strToOp[mnemonic]
	if !ok {
		if mnemonic == "syscall" {
			op = Pop
		} else {
			return 0, &Error{Kind: InvalidOpcode, Line: ln.lineNo, Msg: mnemonic}
		}
	}

	var word uint16
	var err error
	switch op.group() {
	case group1:
		word, err = encodeGroup1(op, operands, ln.lineNo)
	case group2:
		word, err = encodeGroup2(op, operands, ln.lineNo, codeLabels)
	}
	if err != nil {
		return 0, err
	}

	if bitLen(word) > 16 {
		panic("encoder produced a word wider than 16 bits")
	}

	return word, nil
}

func bitLen(w uint16) int {
	n := 0
	for w != 0 {
		n++
		w >>= 1
	}
	if n == 0 {
		return 1
	}
	return n
}

// rewriteDataLabels replaces any `=label` operand with `#addr` using the
// label's first laid-out cell address (§4.4 step 2).
func rewriteDataLabels(operands []string, dataLabels map[string]uint16) []string {
	out := make([]string, len(operands))
	for i, tok := range operands {
		if strings.HasPrefix(tok, "=") {
			if addr, ok := dataLabels[tok[1:]]; ok {
				out[i] = "#0x" + strconv.FormatUint(uint64(addr), 16)
				continue
			}
		}
		out[i] = tok
	}
	return out
}

func parseRegister(tok string) (register, bool) {
	r, ok := strToRegister[tok]
	return r, ok
}

// parseImmediate accepts `#0xNN` (hex), `#0bNNNN...` (binary, left-padded to
// 8 bits conceptually), and `#N` (decimal); anything else is fatal (§4.4).
func parseImmediate(tok string) (uint8, error) {
	if !strings.HasPrefix(tok, "#") {
		return 0, errNotImmediate
	}
	tok = tok[1:]

	base := 10
	switch {
	case strings.HasPrefix(tok, "0x"):
		base, tok = 16, tok[2:]
	case strings.HasPrefix(tok, "0b"):
		base, tok = 2, tok[2:]
	}

	v, err := strconv.ParseUint(tok, base, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

var errNotImmediate = &Error{Kind: InvalidOperand, Msg: "not an immediate"}

// encodeGroup1 handles ld/st/li/add/sub/and/or/xor/shl/shr (§4.4).
func encodeGroup1(op Opcode, operands []string, lineNo int) (uint16, error) {
	fail := func(msg string) (uint16, error) {
		return 0, &Error{Kind: InvalidOperand, Line: lineNo, Msg: msg}
	}

	switch op {
	case Li:
		if len(operands) != 2 {
			return fail("li requires Rd, #imm")
		}
		rd, ok := parseRegister(operands[0])
		if !ok {
			return fail("li: unknown register " + operands[0])
		}
		imm, err := parseImmediate(operands[1])
		if err != nil {
			return fail("li: bad immediate " + operands[1])
		}
		return encodeWord(Li, rd, r0, imm), nil

	case Ld, St:
		if len(operands) != 2 {
			return fail(op.String() + " requires Rd, [operand]")
		}
		rd, ok := parseRegister(operands[0])
		if !ok {
			return fail(op.String() + ": unknown register " + operands[0])
		}
		inner := strings.TrimSuffix(strings.TrimPrefix(operands[1], "["), "]")
		if rn, ok := parseRegister(inner); ok {
			return encodeWord(op, rd, rn, 0), nil
		}
		addr, err := parseImmediate("#" + strings.TrimPrefix(inner, "#"))
		if err != nil {
			return fail(op.String() + ": bad operand " + operands[1])
		}
		return encodeWord(op, rd, r0, addr), nil

	case Add, Sub:
		if len(operands) < 2 || len(operands) > 3 {
			return fail(op.String() + " requires Rd, Rn [, #imm]")
		}
		rd, ok := parseRegister(operands[0])
		if !ok {
			return fail(op.String() + ": unknown register " + operands[0])
		}
		rn, ok := parseRegister(operands[1])
		if !ok {
			return fail(op.String() + ": unknown register " + operands[1])
		}
		var imm uint8
		if len(operands) == 3 {
			var err error
			imm, err = parseImmediate(operands[2])
			if err != nil {
				return fail(op.String() + ": bad immediate " + operands[2])
			}
		}
		return encodeWord(op, rd, rn, imm), nil

	case And, Or, Xor:
		if len(operands) != 2 {
			return fail(op.String() + " requires Rd, Rn or Rd, #imm")
		}
		rd, ok := parseRegister(operands[0])
		if !ok {
			return fail(op.String() + ": unknown register " + operands[0])
		}
		if rn, ok := parseRegister(operands[1]); ok {
			return encodeWord(op, rd, rn, 0), nil
		}
		imm, err := parseImmediate(operands[1])
		if err != nil {
			return fail(op.String() + ": bad operand " + operands[1])
		}
		return encodeWord(op, rd, r0, imm), nil

	case Shl, Shr:
		if len(operands) < 2 || len(operands) > 3 {
			return fail(op.String() + " requires Rd, Rn [, #imm]")
		}
		rd, ok := parseRegister(operands[0])
		if !ok {
			return fail(op.String() + ": unknown register " + operands[0])
		}
		rn, ok := parseRegister(operands[1])
		if !ok {
			return fail(op.String() + ": unknown register " + operands[1])
		}
		var imm uint8
		if len(operands) == 3 {
			v, err := parseImmediate(operands[2])
			if err != nil {
				return fail(op.String() + ": bad immediate " + operands[2])
			}
			imm = v & 0x0F
		}
		return encodeWord(op, rd, rn, imm), nil

	default:
		return fail("not a group-1 mnemonic: " + op.String())
	}
}

// encodeGroup2 handles jmp/beq/bne/cmp/push/pop/syscall (§4.4).
func encodeGroup2(op Opcode, operands []string, lineNo int, codeLabels map[string]uint16) (uint16, error) {
	fail := func(msg string) (uint16, error) {
		return 0, &Error{Kind: InvalidOperand, Line: lineNo, Msg: msg}
	}

	switch op {
	case Jmp, Beq, Bne:
		if len(operands) != 1 {
			return fail(op.String() + " requires a single label or immediate")
		}
		if imm, err := parseImmediate(operands[0]); err == nil {
			// A literal target is an absolute 8-bit address (§4.7): apply the
			// same -1 bias code labels get in prePassLabels, since the CPU's
			// fetch/decode/execute tick always advances PC by one after
			// landing here, label or not.
			return encodeWord(op, r0, r0, imm-1), nil
		}
		addr, ok := codeLabels[operands[0]]
		if !ok {
			return 0, &Error{Kind: UndefinedLabel, Line: lineNo, Msg: operands[0]}
		}
		return encodeWord(op, r0, r0, uint8(addr)), nil

	case Cmp:
		if len(operands) != 2 {
			return fail("cmp requires Rd, Rn or Rd, #imm")
		}
		rd, ok := parseRegister(operands[0])
		if !ok {
			return fail("cmp: unknown register " + operands[0])
		}
		if rn, ok := parseRegister(operands[1]); ok {
			return encodeWord(Cmp, rd, rn, 0), nil
		}
		imm, err := parseImmediate(operands[1])
		if err != nil {
			return fail("cmp: bad operand " + operands[1])
		}
		return encodeWord(Cmp, rd, r0, imm), nil

	case Push, Pop:
		if len(operands) != 1 {
			return fail(op.String() + " requires a register set or syscall number")
		}
		mask, err := parseRegisterMaskOrSyscall(operands[0])
		if err != nil {
			return fail(op.String() + ": " + err.Error())
		}
		return uint16(op)<<12 | uint16(mask), nil

	default:
		return fail("not a group-2 mnemonic: " + op.String())
	}
}

// parseRegisterMaskOrSyscall parses `{r0,r1,...}` (with optional `lr`) into
// a push/pop register bitmask, or `#n`/bare `n` into a syscall-dispatch
// pop encoding with the IRC bit (bit 7) set (§4.4, §9).
func parseRegisterMaskOrSyscall(tok string) (uint8, error) {
	if strings.HasPrefix(tok, "{") && strings.HasSuffix(tok, "}") {
		var mask uint8
		inner := strings.Trim(tok, "{}")
		for _, name := range strings.Split(inner, ",") {
			name = strings.TrimSpace(name)
			switch name {
			case "r0":
				mask |= 1 << 0
			case "r1":
				mask |= 1 << 1
			case "r2":
				mask |= 1 << 2
			case "r3":
				mask |= 1 << 3
			case "lr":
				mask |= maskBitLR
			default:
				return 0, &Error{Kind: InvalidOperand, Msg: "unknown register in set: " + name}
			}
		}
		return mask, nil
	}

	n, err := parseImmediate(tok)
	if err != nil {
		// bare decimal, as used by `syscall n` / `pop n`
		v, e := strconv.ParseUint(tok, 10, 7)
		if e != nil {
			return 0, &Error{Kind: InvalidOperand, Msg: "bad register set or syscall number: " + tok}
		}
		n = uint8(v)
	}
	return maskBitIRC | (n & 0x7F), nil
}
