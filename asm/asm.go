// Package asm implements the two-pass assembler: source text in, a flat
// instruction word stream and laid-out data records out. It never touches
// a filesystem or terminal directly — callers in cmd/vasm own that.
package asm

import "fmt"

// ErrorKind names one of the fatal assembler error classes from §7.
type ErrorKind int

const (
	InvalidOpcode ErrorKind = iota
	InvalidOperand
	UndefinedLabel
	InvalidDataDeclaration
	UnsupportedDirective
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidOpcode:
		return "InvalidOpcode"
	case InvalidOperand:
		return "InvalidOperand"
	case UndefinedLabel:
		return "UndefinedLabel"
	case InvalidDataDeclaration:
		return "InvalidDataDeclaration"
	case UnsupportedDirective:
		return "UnsupportedDirective"
	default:
		return "UnknownError"
	}
}

// Error carries the failing source line number alongside its kind so the
// CLI can report `line N: kind: msg` per §7's recovery policy.
type Error struct {
	Kind ErrorKind
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Options configures the data-layout base address and the (currently inert)
// .org base, per §14.
type Options struct {
	DataBase uint16
	OrgBase  uint16
}

// DefaultOptions matches the reference assembler's defaults (§3, §15).
func DefaultOptions() Options {
	return Options{DataBase: 0xAD, OrgBase: 0x0000}
}

// Program is the fully encoded output of one assembly: a flat instruction
// word stream plus the laid-out data records, ready for the HEX writer.
type Program struct {
	Instructions []uint16
	Data         []DataRecord
}

// Assemble runs the full pipeline described in §4: sectionize, lay out
// .data, pre-pass .text labels, then encode each instruction line in order.
func Assemble(source []string, opts Options) (*Program, error) {
	text, data, err := sectionize(source)
	if err != nil {
		return nil, err
	}

	dataRecords, dataLabels, err := layoutData(data, opts)
	if err != nil {
		return nil, err
	}

	codeLabels := prePassLabels(text)

	instrLines := instructionLines(text)
	instructions := make([]uint16, 0, len(instrLines))
	for _, ln := range instrLines {
		word, err := encodeLine(ln, codeLabels, dataLabels)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, word)
	}

	return &Program{Instructions: instructions, Data: dataRecords}, nil
}
