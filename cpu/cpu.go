// Package cpu implements the 16-bit register CPU core: fetch/decode/execute,
// flags, the stack discipline, branch/link, and the syscall bridge to the
// host (§3, §4.7, §4.8).
package cpu

import "fmt"

const memorySize = 1 << 16

// register indexes R0..R3 by position; LR and SP/PC are separate fields.
type register int

const (
	r0 register = iota
	r1
	r2
	r3
	numGPRegisters
)

// Flags holds the four boolean condition flags (§3): Z (zero), NV
// (overflow), C (carry), I (halt gate).
type Flags struct {
	Z  bool
	NV bool
	C  bool
	I  bool
}

// Options configures the CPU's reproducible-bug surface (§9, §14).
type Options struct {
	// LogicalWritesToRd selects between the documented and/or/xor bug
	// (false: result always lands in R0) and the "fixed" behavior (true:
	// result lands in Rd). Defaults to false to match the reference
	// implementation's observable behavior.
	LogicalWritesToRd bool
	// EndMarker is the sentinel PC value: the CPU halts once PC exceeds it
	// after a tick (§3, §4.7), and SysExit sets PC to it. Defaults to 0x00FF.
	EndMarker uint16
}

// DefaultOptions matches the reference CPU's defaults.
func DefaultOptions() Options {
	return Options{LogicalWritesToRd: false, EndMarker: 0x00FF}
}

// CPU is the full machine state plus its syscall bridge. All mutable state
// here is owned exclusively by whichever goroutine calls Step/Run (§5); the
// syscall queue is the only field safe to touch concurrently.
type CPU struct {
	mem [memorySize]uint16

	r  [numGPRegisters]byte
	lr byte
	sp uint16
	pc uint16

	flags Flags
	opts  Options

	queue *syscallQueue

	// errcode is set when the CPU halts abnormally (segfault-equivalent,
	// illegal instruction) so callers can distinguish a clean halt from a
	// crash, matching the teacher's errcode-on-VM pattern.
	errcode error
}

// NewCPU constructs a CPU with registers at their power-on state: SP at the
// top of memory, PC at zero, and the halt gate set until `start`/`run` (§3).
func NewCPU(opts Options) *CPU {
	c := &CPU{opts: opts, queue: newSyscallQueue()}
	c.reset()
	return c
}

func (c *CPU) reset() {
	c.r = [numGPRegisters]byte{}
	c.lr = 0
	c.sp = 0xFFFF
	c.pc = 0x0000
	c.flags = Flags{I: true}
	c.errcode = nil
}

// Start clears the halt gate so the fetch/decode/execute loop may run.
func (c *CPU) Start() { c.flags.I = false }

// Halted reports whether the halt gate is currently set.
func (c *CPU) Halted() bool { return c.flags.I }

// Err returns the error that halted the CPU abnormally, if any.
func (c *CPU) Err() error { return c.errcode }

// Registers returns a snapshot of R0-R3, LR, SP, PC and the flags for
// display (the `registers`/`sysinfo` CLI commands, §6).
type Registers struct {
	R0, R1, R2, R3, LR byte
	SP, PC             uint16
	Flags              Flags
}

func (c *CPU) Registers() Registers {
	return Registers{
		R0: c.r[r0], R1: c.r[r1], R2: c.r[r2], R3: c.r[r3], LR: c.lr,
		SP: c.sp, PC: c.pc, Flags: c.flags,
	}
}

// ReadMemory reads an inclusive [lo,hi] cell range (the `mem` CLI command),
// returning zero for any address outside the address space rather than
// failing the whole read (§7, MemoryOutOfRange is never fatal).
func (c *CPU) ReadMemory(lo, hi uint32) []uint16 {
	out := make([]uint16, 0, hi-lo+1)
	for addr := lo; addr <= hi; addr++ {
		if addr >= memorySize {
			out = append(out, 0)
			continue
		}
		out = append(out, c.mem[addr])
	}
	return out
}

// WriteBytes stores one or more raw bytes starting at addr (the `store` CLI
// command), dropping any byte that falls outside the address space.
func (c *CPU) WriteBytes(addr uint16, bytes []byte) {
	for i, b := range bytes {
		target := uint32(addr) + uint32(i)
		if target >= memorySize {
			return
		}
		c.mem[target] = uint16(b)
	}
}

func (c *CPU) String() string {
	reg := c.Registers()
	return fmt.Sprintf(
		"R0=%02x R1=%02x R2=%02x R3=%02x LR=%02x SP=%04x PC=%04x Z=%v NV=%v C=%v I=%v",
		reg.R0, reg.R1, reg.R2, reg.R3, reg.LR, reg.SP, reg.PC,
		reg.Flags.Z, reg.Flags.NV, reg.Flags.C, reg.Flags.I,
	)
}
