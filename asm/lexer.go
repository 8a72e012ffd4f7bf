package asm

import (
	"regexp"
	"strings"
)

// commentsSemi strips everything from a `;` (current dialect) to end of
// line, mirroring the teacher's single compiled regex used for the same
// purpose in its own comment stripping pass.
var commentsSemi = regexp.MustCompile(`;.*`)

// commentsHash strips a legacy `#` comment, but only when the `#` is not
// the start of an immediate (§4.4's `#imm`/`#0xNN`/`#0bNNNN`). Every valid
// immediate prefix is followed directly by a digit, so a `#` followed by
// anything else (or by nothing at all) is unambiguously a comment marker.
var commentsHash = regexp.MustCompile(`#([^0-9].*)?$`)

var directiveSet = map[string]bool{
	".global": true, ".text": true, ".data": true, ".org": true,
	".asciz": true, ".include": true, ".section": true, ".align": true,
}

type lineKind int

const (
	lineBlank lineKind = iota
	lineDirective
	lineLabel
	lineInstruction
)

// rawLine is one canonicalised, comment-stripped, non-blank source line
// together with the 1-based line number it came from (for error messages).
type rawLine struct {
	lineNo int
	kind   lineKind
	text   string // directive name, label name (sans ':'), or full instruction text
}

// classifyLine canonicalises raw and determines what kind of content
// remains after comment stripping and whitespace trimming.
func classifyLine(raw string, lineNo int) rawLine {
	line := commentsSemi.ReplaceAllString(raw, "")
	line = commentsHash.ReplaceAllString(line, "")
	line = strings.ToLower(strings.TrimSpace(line))

	if line == "" {
		return rawLine{lineNo: lineNo, kind: lineBlank}
	}

	fields := strings.Fields(line)
	switch {
	case strings.HasPrefix(fields[0], "."):
		return rawLine{lineNo: lineNo, kind: lineDirective, text: line}
	case strings.HasSuffix(fields[0], ":") && len(fields[0]) > 1:
		return rawLine{lineNo: lineNo, kind: lineLabel, text: strings.TrimSuffix(fields[0], ":")}
	default:
		return rawLine{lineNo: lineNo, kind: lineInstruction, text: line}
	}
}

// splitOperands tokenises the operand portion of an instruction on both
// commas and whitespace, dropping empty tokens (§4.1). A `{...}` register
// set is kept together as a single token regardless of the commas or
// whitespace inside it.
func splitOperands(s string) []string {
	if braceStart := strings.IndexByte(s, '{'); braceStart >= 0 {
		braceEnd := strings.IndexByte(s[braceStart:], '}')
		if braceEnd >= 0 {
			braceEnd += braceStart
			set := strings.Join(strings.Fields(strings.ReplaceAll(s[braceStart+1:braceEnd], ",", " ")), ",")
			before := splitOperands(s[:braceStart])
			after := splitOperands(s[braceEnd+1:])
			return append(append(before, "{"+set+"}"), after...)
		}
	}

	s = strings.ReplaceAll(s, ",", " ")
	return strings.Fields(s)
}

// section tracks which of .text/.data is currently active while walking
// source lines; directives other than these two are parsed but inert.
type section int

const (
	sectionNone section = iota
	sectionText
	sectionData
)

func sectionize(lines []string) (text []rawLine, data []rawLine, err error) {
	cur := sectionNone

	for i, raw := range lines {
		ln := classifyLine(raw, i+1)
		switch ln.kind {
		case lineBlank:
			continue
		case lineDirective:
			switch ln.text {
			case ".text":
				cur = sectionText
			case ".data":
				cur = sectionData
			default:
				if !directiveSet[strings.Fields(ln.text)[0]] {
					return nil, nil, &Error{Kind: UnsupportedDirective, Line: ln.lineNo, Msg: ln.text}
				}
				// .global/.org/.include/.section/.align: tolerated no-ops
			}
		case lineLabel, lineInstruction:
			lns := []rawLine{ln}
			// A label may share its line with what it names
			// (`msg: .asciz "hi"`, `loop: li r0, #1`); the remainder is kept
			// as a line of its own right after the label.
			if ln.kind == lineLabel {
				if _, after, ok := strings.Cut(raw, ":"); ok {
					if rest := classifyLine(after, ln.lineNo); rest.kind != lineBlank {
						if rest.kind == lineDirective {
							rest.kind = lineInstruction
						}
						lns = append(lns, rest)
					}
				}
			}
			switch cur {
			case sectionText:
				text = append(text, lns...)
			case sectionData:
				data = append(data, lns...)
			default:
				// A label or instruction before any section directive is
				// assumed to belong to .text, matching assemblies that omit
				// an explicit leading ".text".
				text = append(text, lns...)
			}
		}
	}

	return text, data, nil
}
