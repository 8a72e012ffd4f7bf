package asm

import (
	"strings"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func assemble(t *testing.T, source string) *Program {
	t.Helper()
	prog, err := Assemble(strings.Split(source, "\n"), DefaultOptions())
	assert(t, err == nil, "Assemble failed: %v", err)
	return prog
}

func TestEncodeWidthIsAlways16Bits(t *testing.T) {
	prog := assemble(t, `
		.text
		li r0, #5
		li r1, #3
		add r0, r1
		cmp r0, r1
		pop #0
	`)

	for i, word := range prog.Instructions {
		assert(t, word <= 0xFFFF, "instruction %d overflowed 16 bits: %04x", i, word)
	}
}

func TestLiAddPop(t *testing.T) {
	prog := assemble(t, `
		.text
		li r0, #5
		li r1, #3
		add r0, r1
		pop #0
	`)

	assert(t, len(prog.Instructions) == 4, "expected 4 words, got %d", len(prog.Instructions))
	assert(t, prog.Instructions[0] == encodeWord(Li, r0, r0, 5), "li r0,#5 mismatch: %04x", prog.Instructions[0])
	assert(t, prog.Instructions[2] == encodeWord(Add, r0, r1, 0), "add r0,r1 mismatch: %04x", prog.Instructions[2])

	popWord := prog.Instructions[3]
	assert(t, popWord>>12 == uint16(Pop), "expected pop opcode, got %04x", popWord)
	assert(t, popWord&maskBitIRC != 0, "expected IRC bit set on syscall pop")
	assert(t, popWord&0x7F == 0, "expected syscall number 0, got %d", popWord&0x7F)
}

func TestRoundTripLabel(t *testing.T) {
	// label L: followed by n instructions, ending with jmp L (§8 property 1).
	prog := assemble(t, `
		.text
		loop:
			li r0, #1
			li r1, #2
		jmp loop
	`)

	jmpWord := prog.Instructions[len(prog.Instructions)-1]
	assert(t, jmpWord>>12 == uint16(Jmp), "expected jmp opcode")
	assert(t, jmpWord&0xFF == 0xFF, "jmp loop should target counter-1=0xFFFF truncated to 0xFF, got %02x", jmpWord&0xFF)
}

func TestBranchTargetMatchesPrePass(t *testing.T) {
	prog := assemble(t, `
		.text
		li r0, #10
		cmp r0, #10
		beq eq
		li r0, #0
		eq:
		pop #0
	`)

	beqWord := prog.Instructions[2]
	target := beqWord & 0xFF
	// eq: follows 4 instructions (li,cmp,beq,li) so code_labels[eq] = 4-1 = 3;
	// the CPU always advances PC by one more after dispatch (§8 property 6),
	// landing on index 4 - the "pop #0" instruction right after the label.
	assert(t, target == 3, "expected branch target 3, got %d", target)
}

func TestDataLayoutReservesSeparatorBetweenLabels(t *testing.T) {
	prog := assemble(t, `
		.data
		a: .byte 1, 2
		b: .byte 3
		.text
		li r0, #0
	`)

	assert(t, len(prog.Data) == 2, "expected 2 data records, got %d", len(prog.Data))
	a, b := prog.Data[0], prog.Data[1]
	assert(t, a.Addr == 0xAD, "label a should start at default data base, got %#x", a.Addr)
	// a occupies 2 cells (0xAD,0xAE) + 1 separator -> b starts at 0xB0
	assert(t, b.Addr == 0xB0, "label b should start at 0xB0, got %#x", b.Addr)
}

func TestAscizEmitsNoTrailingNUL(t *testing.T) {
	prog := assemble(t, `
		.data
		msg: .asciz "hi"
		.text
		li r0, #0
	`)

	assert(t, len(prog.Data[0].Bytes) == 2, "expected 2 bytes for \"hi\" with no NUL, got %d", len(prog.Data[0].Bytes))
}

func TestMessageLabelRewrite(t *testing.T) {
	prog := assemble(t, `
		.data
		msg: .asciz "hi\n"
		.text
		li r0, =msg
		pop 1
		pop 0
	`)

	liWord := prog.Instructions[0]
	assert(t, liWord&0xFF == 0xAD, "li r0,=msg should resolve to data base 0xAD, got %#x", liWord&0xFF)
}

func TestPushPopRegisterSet(t *testing.T) {
	prog := assemble(t, `
		.text
		push {r0, r1}
		pop {r0, r1}
	`)

	pushWord := prog.Instructions[0]
	popWord := prog.Instructions[1]
	assert(t, pushWord&0x03 == 0x03, "push {r0,r1} should set bits 0 and 1")
	assert(t, popWord&0x03 == 0x03, "pop {r0,r1} should set bits 0 and 1")
	assert(t, popWord&maskBitIRC == 0, "pop of a register set must not set IRC")
}

func TestSyscallMnemonicAliasesPop(t *testing.T) {
	// §8's message-print scenario: `li r0,=msg; syscall 1; syscall 0`.
	prog := assemble(t, `
		.data
		msg: .asciz "hi\n"
		.text
		li r0, =msg
		syscall 1
		syscall 0
	`)

	printWord := prog.Instructions[1]
	exitWord := prog.Instructions[2]
	assert(t, printWord>>12 == uint16(Pop), "syscall should encode as pop, got opcode %d", printWord>>12)
	assert(t, printWord&maskBitIRC != 0, "expected IRC bit set on syscall 1")
	assert(t, printWord&0x7F == 1, "expected syscall number 1, got %d", printWord&0x7F)
	assert(t, exitWord&0x7F == 0, "expected syscall number 0, got %d", exitWord&0x7F)
}

func TestLegacyHashCommentDoesNotClobberImmediate(t *testing.T) {
	prog := assemble(t, `
		.text
		li r0, #5 # load five
		pop #0
	`)

	assert(t, prog.Instructions[0] == encodeWord(Li, r0, r0, 5), "li r0,#5 mismatch despite trailing # comment: %04x", prog.Instructions[0])
}

func TestLiteralJumpTargetGetsSameBiasAsLabel(t *testing.T) {
	// A literal `jmp #5` must land the CPU's fetch at index 5 after the
	// universal post-dispatch PC++ (§4.7), exactly like a label target does.
	prog := assemble(t, `
		.text
		jmp #5
	`)

	jmpWord := prog.Instructions[0]
	assert(t, jmpWord&0xFF == 4, "jmp #5 should encode target 5-1=4, got %d", jmpWord&0xFF)
}

func TestUnknownMnemonicIsFatal(t *testing.T) {
	_, err := Assemble(strings.Split(`
		.text
		frobnicate r0, r1
	`, "\n"), DefaultOptions())

	assert(t, err != nil, "expected an error for an unknown mnemonic")
	var asmErr *Error
	assert(t, asErrorKind(err, &asmErr) && asmErr.Kind == InvalidOpcode, "expected InvalidOpcode, got %v", err)
}

func asErrorKind(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}
