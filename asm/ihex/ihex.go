// Package ihex reads and writes the Intel-HEX subset used to move an
// assembled program between the assembler and the emulator (§4.5, §4.6,
// §6). It knows nothing about opcodes or registers — only records.
package ihex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RecordType distinguishes the three record shapes this subset supports.
type RecordType int

const (
	RecordProgram RecordType = 0x11
	RecordData    RecordType = 0x00
	RecordEOF     RecordType = 0x01
)

// Record is one parsed line of the HEX stream.
type Record struct {
	Type    RecordType
	Addr    uint16
	Payload []byte
}

var errMalformed = errors.New("ihex: malformed record")

// programRecordHeader is written literally, not computed from the payload
// length: the reference writer hardcodes `:1000 0011` regardless of how
// many words actually follow it, so the byte-count field does not describe
// the real payload size for this one record shape (§4.5, §9). Read mirrors
// the quirk by ignoring the declared count for program records.
const programRecordHeader = ":10" + "00" + "00" + "11"

// WriteProgram emits the single program record for a sequence of 16-bit
// instruction words: `:1000 0011 <words as big-endian 4-hex-digit groups>`.
func WriteProgram(w io.Writer, words []uint16) error {
	var b strings.Builder
	b.WriteString(programRecordHeader)
	for _, word := range words {
		fmt.Fprintf(&b, "%04X", word)
	}

	_, err := fmt.Fprintln(w, b.String())
	return err
}

// WriteData emits one data record per label: address of its first cell,
// followed by its raw byte payload.
func WriteData(w io.Writer, addr uint16, payload []byte) error {
	var b strings.Builder
	for _, by := range payload {
		fmt.Fprintf(&b, "%02X", by)
	}

	_, err := fmt.Fprintf(w, ":%02X%04X%02X%s\n", len(payload), addr, RecordData, b.String())
	return err
}

// WriteEOF emits the terminating record.
func WriteEOF(w io.Writer) error {
	_, err := fmt.Fprintln(w, ":00000001FF")
	return err
}

// Read parses every record from r in order. It stops at (and includes) the
// first EOF record; a stream lacking one is itself a LoadFailure-class error.
func Read(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)

	var records []Record
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)

		if rec.Type == RecordEOF {
			return records, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return nil, fmt.Errorf("ihex: stream missing EOF record")
}

func parseLine(line string) (Record, error) {
	if !strings.HasPrefix(line, ":") || len(line) < 11 {
		return Record{}, errMalformed
	}
	line = line[1:]

	byteCount, err := strconv.ParseUint(line[0:2], 16, 16)
	if err != nil {
		return Record{}, errMalformed
	}
	addr, err := strconv.ParseUint(line[2:6], 16, 32)
	if err != nil {
		return Record{}, errMalformed
	}
	recType, err := strconv.ParseUint(line[6:8], 16, 8)
	if err != nil {
		return Record{}, errMalformed
	}

	payloadHex := line[8:]
	if RecordType(recType) == RecordProgram {
		// The declared byte count does not describe the real payload for
		// program records (see programRecordHeader); consume every
		// remaining hex digit pair instead of trusting it.
		byteCount = uint64(len(payloadHex) / 2)
	} else if len(payloadHex) < int(byteCount)*2 {
		return Record{}, errMalformed
	}
	payloadHex = payloadHex[:byteCount*2]

	payload := make([]byte, byteCount)
	for i := range payload {
		v, err := strconv.ParseUint(payloadHex[i*2:i*2+2], 16, 8)
		if err != nil {
			return Record{}, errMalformed
		}
		payload[i] = byte(v)
	}

	return Record{Type: RecordType(recType), Addr: uint16(addr), Payload: payload}, nil
}

// ProgramWords decodes a program record's payload back into big-endian
// 16-bit instruction words.
func ProgramWords(rec Record) []uint16 {
	words := make([]uint16, 0, len(rec.Payload)/2)
	for i := 0; i+1 < len(rec.Payload); i += 2 {
		words = append(words, uint16(rec.Payload[i])<<8|uint16(rec.Payload[i+1]))
	}
	return words
}
