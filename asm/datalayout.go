package asm

import (
	"strconv"
	"strings"
)

// DataRecord is one `.data` label's fully laid-out byte payload, ready for
// the HEX writer (§4.5) — address of its first cell plus the byte stream.
type DataRecord struct {
	Label string
	Addr  uint16
	Bytes []byte
}

// layoutData walks only `.data` lines (§4.2). Each line has shape
// `label: directive operand-list`. The cursor starts at opts.DataBase and
// advances by one byte per `.byte` value, two per `.word` value (stored
// little-endian, one byte per cell), one per `.asciz` character. After each
// label is fully laid out, one cell is reserved as a separator so labels
// never alias (and, per §15's open-question resolution, that reserved cell
// stays zero-valued and doubles as the NUL terminator `SYS_PRINT` expects).
func layoutData(data []rawLine, opts Options) ([]DataRecord, map[string]uint16, error) {
	records := make([]DataRecord, 0, len(data))
	firstAddr := make(map[string]uint16)
	cursor := opts.DataBase

	var cur *DataRecord
	for _, ln := range data {
		switch ln.kind {
		case lineLabel:
			if cur != nil {
				records = append(records, *cur)
				cursor++ // separator cell between labels
			}
			cur = &DataRecord{Label: ln.text, Addr: cursor}
			firstAddr[ln.text] = cursor

		case lineInstruction:
			if cur == nil {
				return nil, nil, &Error{Kind: InvalidDataDeclaration, Line: ln.lineNo, Msg: "data line outside of any label"}
			}

			fields := strings.Fields(ln.text)
			directive, operands := fields[0], strings.Join(fields[1:], " ")

			switch directive {
			case ".byte":
				for _, tok := range splitOperands(operands) {
					v, err := strconv.ParseUint(trimImmPrefix(tok), immBase(tok), 16)
					if err != nil {
						return nil, nil, &Error{Kind: InvalidDataDeclaration, Line: ln.lineNo, Msg: tok}
					}
					cur.Bytes = append(cur.Bytes, byte(v))
					cursor++
				}

			case ".word":
				for _, tok := range splitOperands(operands) {
					v, err := strconv.ParseUint(trimImmPrefix(tok), immBase(tok), 32)
					if err != nil {
						return nil, nil, &Error{Kind: InvalidDataDeclaration, Line: ln.lineNo, Msg: tok}
					}
					cur.Bytes = append(cur.Bytes, byte(v&0xFF), byte((v>>8)&0xFF))
					cursor += 2
				}

			case ".asciz":
				text, err := parseQuotedString(operands)
				if err != nil {
					return nil, nil, &Error{Kind: InvalidDataDeclaration, Line: ln.lineNo, Msg: operands}
				}
				cur.Bytes = append(cur.Bytes, []byte(text)...)
				cursor += uint16(len(text))

			default:
				return nil, nil, &Error{Kind: UnsupportedDirective, Line: ln.lineNo, Msg: directive}
			}
		}
	}

	if cur != nil {
		records = append(records, *cur)
	}

	return records, firstAddr, nil
}

func immBase(tok string) int {
	switch {
	case strings.HasPrefix(tok, "0x"):
		return 16
	case strings.HasPrefix(tok, "0b"):
		return 2
	default:
		return 10
	}
}

func trimImmPrefix(tok string) string {
	switch {
	case strings.HasPrefix(tok, "0x"), strings.HasPrefix(tok, "0b"):
		return tok[2:]
	default:
		return tok
	}
}

// parseQuotedString strips the surrounding quote characters and resolves
// the handful of backslash escapes the assembly dialect recognises.
func parseQuotedString(operand string) (string, error) {
	operand = strings.TrimSpace(operand)
	if len(operand) < 2 || operand[0] != '"' || operand[len(operand)-1] != '"' {
		return "", &Error{Kind: InvalidDataDeclaration, Msg: "unterminated string: " + operand}
	}

	inner := operand[1 : len(operand)-1]
	replacer := strings.NewReplacer(
		`\n`, "\n", `\t`, "\t", `\r`, "\r", `\\`, `\`, `\"`, `"`,
	)
	return replacer.Replace(inner), nil
}
