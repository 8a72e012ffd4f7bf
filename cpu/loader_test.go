package cpu

import (
	"bytes"
	"strings"
	"testing"

	"vasm16/asm"
	"vasm16/asm/ihex"
)

func TestHexRoundTripPopulatesMemory(t *testing.T) {
	prog, err := asm.Assemble(strings.Split(`
		.text
		li r0, #5
		li r1, #3
		add r0, r1
		pop #0
	`, "\n"), asm.DefaultOptions())
	assert(t, err == nil, "Assemble failed: %v", err)

	var buf bytes.Buffer
	assert(t, ihex.WriteProgram(&buf, prog.Instructions) == nil, "WriteProgram failed")
	for _, rec := range prog.Data {
		assert(t, ihex.WriteData(&buf, rec.Addr, rec.Bytes) == nil, "WriteData failed")
	}
	assert(t, ihex.WriteEOF(&buf) == nil, "WriteEOF failed")

	c := NewCPU(DefaultOptions())
	result, err := c.Load(&buf)
	assert(t, err == nil, "Load failed: %v", err)
	assert(t, result.Words == len(prog.Instructions), "expected %d words loaded, got %d", len(prog.Instructions), result.Words)

	for i, want := range prog.Instructions {
		got := c.mem[uint32(result.ProgramBase)+uint32(i)]
		assert(t, got == want, "cell %d mismatch: want %04x got %04x", i, want, got)
	}
}
