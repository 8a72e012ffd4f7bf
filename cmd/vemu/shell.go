package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vasm16/cpu"
)

// harddriveRootName is the sandboxed directory user HEX files live under
// (§6, §12 — auto-created on first run like the reference CLI).
const harddriveRootName = "harddrive"

// shell owns everything the REPL touches: the CPU, the sandbox cwd, and
// the two ambient toggles (auto-run-after-load, verbose logging). It is
// the only thing that ever touches the filesystem on the emulator side
// (§5's "host's filesystem sandbox is accessed only by the command loop").
type shell struct {
	cpu *cpu.CPU

	harddriveRoot string
	cwd           string // absolute path, always under harddriveRoot

	autoRun bool
	verbose bool

	logger *log.Logger
	out    io.Writer
}

func newShell(c *cpu.CPU, harddriveRoot string, logger *log.Logger, out io.Writer) (*shell, error) {
	abs, err := filepath.Abs(harddriveRoot)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}

	return &shell{cpu: c, harddriveRoot: abs, cwd: abs, logger: logger, out: out}, nil
}

// runREPL reads commands from r until `shutdown`/`exit` or EOF, returning
// the process exit code (§6: zero on clean exit, non-zero on fatal error).
func (s *shell) runREPL(ctx context.Context, cancel context.CancelFunc, r io.Reader, prompt bool) int {
	scanner := bufio.NewScanner(r)

	for {
		if prompt {
			fmt.Fprint(s.out, "vemu> ")
		}
		if !scanner.Scan() {
			cancel()
			return 0
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		code, handled := s.dispatch(line)
		if handled {
			cancel()
			return code
		}

		select {
		case <-ctx.Done():
			return 0
		default:
		}
	}
}

// dispatch runs one REPL command. The second return value is true when the
// command should end the REPL loop (shutdown/exit).
func (s *shell) dispatch(line string) (exitCode int, done bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "start", "run":
		s.cpu.Start()

	case "auto":
		s.autoRun = !s.autoRun
		fmt.Fprintf(s.out, "auto-run: %v\n", s.autoRun)

	case "log", "l":
		s.verbose = !s.verbose
		fmt.Fprintf(s.out, "verbose logging: %v\n", s.verbose)

	case "mem":
		s.cmdMem(args)

	case "store":
		s.cmdStore(args)

	case "registers":
		fmt.Fprintln(s.out, s.cpu.String())

	case "sysinfo":
		fmt.Fprintf(s.out, "%s  %s\n", s.cpu.String(), time.Now().Format(time.RFC3339))

	case "load":
		s.cmdLoad(args)

	case "cd":
		s.cmdCd(args)

	case "ls":
		s.cmdLs()

	case "help", "?":
		s.cmdHelp()

	case "shutdown", "exit":
		return 0, true

	default:
		fmt.Fprintf(s.out, "unknown command: %s (try `help`)\n", cmd)
	}

	return 0, false
}

func (s *shell) cmdMem(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "usage: mem <hex-lo> <hex-hi>")
		return
	}
	lo, err1 := strconv.ParseUint(args[0], 16, 32)
	hi, err2 := strconv.ParseUint(args[1], 16, 32)
	if err1 != nil || err2 != nil || hi < lo {
		fmt.Fprintln(s.out, "mem: invalid range")
		return
	}

	for i, cell := range s.cpu.ReadMemory(uint32(lo), uint32(hi)) {
		fmt.Fprintf(s.out, "%04x: %04x\n", uint32(lo)+uint32(i), cell)
	}
}

func (s *shell) cmdStore(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "usage: store <hex-addr> <hex-byte>...")
		return
	}
	addr, err := strconv.ParseUint(args[0], 16, 16)
	if err != nil {
		fmt.Fprintln(s.out, "store: invalid address")
		return
	}

	bytes := make([]byte, 0, len(args)-1)
	for _, tok := range args[1:] {
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			fmt.Fprintf(s.out, "store: invalid byte %q\n", tok)
			return
		}
		bytes = append(bytes, byte(v))
	}

	s.cpu.WriteBytes(uint16(addr), bytes)
}

func (s *shell) cmdLoad(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: load <path>")
		return
	}

	path, err := s.sandboxedPath(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "load: %v\n", err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(s.out, "load: %v\n", err)
		s.logger.Printf("LoadFailure: %v", err)
		return
	}
	defer f.Close()

	result, err := s.cpu.Load(f)
	if err != nil {
		fmt.Fprintf(s.out, "load: %v\n", err)
		s.logger.Printf("LoadFailure: %v", err)
		return
	}

	fmt.Fprintf(s.out, "loaded %d words at %#04x\n", result.Words, result.ProgramBase)
	if s.autoRun {
		s.cpu.SetPC(result.ProgramBase)
		s.cpu.Start()
	}
}

// sandboxedPath resolves name relative to the current sandbox directory
// and rejects any path that would escape harddriveRoot (§6, §5).
func (s *shell) sandboxedPath(name string) (string, error) {
	candidate := filepath.Join(s.cwd, name)
	rel, err := filepath.Rel(s.harddriveRoot, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path escapes the harddrive sandbox")
	}
	return candidate, nil
}

func (s *shell) cmdCd(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: cd <dir>")
		return
	}

	path, err := s.sandboxedPath(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "cd: %v\n", err)
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		fmt.Fprintln(s.out, "cd: not a directory")
		return
	}
	s.cwd = path
}

func (s *shell) cmdLs() {
	entries, err := os.ReadDir(s.cwd)
	if err != nil {
		fmt.Fprintf(s.out, "ls: %v\n", err)
		return
	}
	for _, e := range entries {
		fmt.Fprintln(s.out, e.Name())
	}
}

func (s *shell) cmdHelp() {
	fmt.Fprint(s.out, `commands:
  start, run              clear the halt gate
  auto                    toggle auto-run-after-load
  log, l                  toggle verbose logging
  mem <hex> <hex>         dump an inclusive memory range
  store <hex> <hex>...    write one or more bytes starting at an address
  registers               dump R0-R3, SP, PC, flags
  sysinfo                 dump registers plus the current timestamp
  load <path>             load a HEX file from the harddrive sandbox
  cd <dir>, ls            move around the harddrive sandbox
  help, ?                 print this message
  shutdown, exit          signal the exit event
`)
}
