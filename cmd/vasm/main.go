// Command vasm is the one-shot assembler entrypoint: it reads one or more
// assembly source files and writes an Intel-HEX image (§2, §6).
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"vasm16/asm"
	"vasm16/asm/ihex"
)

func main() {
	app := cli.NewApp()
	app.Name = "vasm"
	app.Usage = "assemble vasm16 source into an Intel-HEX image"
	app.ArgsUsage = "<source.asm> [more.asm...]"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "out, o", Value: "a.hex", Usage: "output HEX file path"},
		cli.IntFlag{Name: "data-base", Value: 0xAD, Usage: "starting address for the first .data label"},
		cli.IntFlag{Name: "org-base", Value: 0x0000, Usage: "base address for .org (currently inert, see SPEC_FULL.md §15)"},
	}
	app.Action = assembleAction

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func assembleAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.NewExitError("vasm: at least one source file is required", 1)
	}

	var lines []string
	for _, path := range c.Args() {
		fileLines, err := readLines(path)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("vasm: %v", err), 1)
		}
		lines = append(lines, fileLines...)
	}

	opts := asm.Options{
		DataBase: uint16(c.Int("data-base")),
		OrgBase:  uint16(c.Int("org-base")),
	}

	prog, err := asm.Assemble(lines, opts)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("vasm: %v", err), 1)
	}

	out, err := os.Create(c.String("out"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("vasm: %v", err), 1)
	}
	defer out.Close()

	if err := ihex.WriteProgram(out, prog.Instructions); err != nil {
		return cli.NewExitError(fmt.Sprintf("vasm: %v", err), 1)
	}
	for _, rec := range prog.Data {
		if err := ihex.WriteData(out, rec.Addr, rec.Bytes); err != nil {
			return cli.NewExitError(fmt.Sprintf("vasm: %v", err), 1)
		}
	}
	if err := ihex.WriteEOF(out); err != nil {
		return cli.NewExitError(fmt.Sprintf("vasm: %v", err), 1)
	}

	fmt.Printf("vasm: wrote %d words, %d data labels -> %s\n", len(prog.Instructions), len(prog.Data), c.String("out"))
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
