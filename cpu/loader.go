package cpu

import (
	"fmt"
	"io"

	"vasm16/asm/ihex"
)

// LoadResult reports where the program record landed so the caller can set
// PC and, if `auto` is set, start the CPU (§6, §12).
type LoadResult struct {
	ProgramBase uint16
	Words       int
}

// Load consumes an Intel-HEX stream into memory. Data records land at their
// declared address; the program record lands at the first contiguous block
// of untouched (zero) cells large enough to hold it, mirroring the
// reference CLI's find_empty_memory_slot behavior (§12) rather than always
// loading at address zero. Loads never zero cells they don't touch (§3).
func (c *CPU) Load(r io.Reader) (LoadResult, error) {
	records, err := ihex.Read(r)
	if err != nil {
		return LoadResult{}, fmt.Errorf("load: %w", err)
	}

	var programWords []uint16
	for _, rec := range records {
		switch rec.Type {
		case ihex.RecordData:
			for i, b := range rec.Payload {
				addr := uint32(rec.Addr) + uint32(i)
				if addr >= memorySize {
					continue
				}
				c.mem[addr] = uint16(b)
			}
		case ihex.RecordProgram:
			programWords = ihex.ProgramWords(rec)
		case ihex.RecordEOF:
			// terminates the stream; nothing to do
		}
	}

	if programWords == nil {
		return LoadResult{}, fmt.Errorf("load: stream contained no program record")
	}

	base := c.findEmptySlot(len(programWords))
	for i, word := range programWords {
		c.mem[uint32(base)+uint32(i)] = word
	}

	return LoadResult{ProgramBase: base, Words: len(programWords)}, nil
}

// findEmptySlot scans for the first run of `n` consecutive zero cells, the
// dual of the reference loader's find_empty_memory_slot (§12).
func (c *CPU) findEmptySlot(n int) uint16 {
	if n == 0 {
		return 0
	}

	run := 0
	for addr := 0; addr < memorySize; addr++ {
		if c.mem[addr] == 0 {
			run++
			if run == n {
				return uint16(addr - n + 1)
			}
		} else {
			run = 0
		}
	}

	return 0
}

// SetPC positions the program counter, used after Load to start execution
// at the chosen program base (§4.6, §12).
func (c *CPU) SetPC(pc uint16) { c.pc = pc }
