// Command vemu is the interactive emulator shell: it owns a CPU instance,
// a syscall drainer, and a line-oriented REPL over the command table in
// SPEC_FULL.md §6 (start/run, auto, log, mem, store, registers, sysinfo,
// load, cd/ls, help, shutdown/exit).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/urfave/cli"
	"golang.org/x/term"

	"vasm16/cpu"
)

func main() {
	app := cli.NewApp()
	app.Name = "vemu"
	app.Usage = "interactive shell for the vasm16 CPU"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "auto", Usage: "start execution immediately after a successful load"},
		cli.BoolFlag{Name: "logical-writes-to-rd", Usage: "disable the and/or/xor R0-clobber bug"},
		cli.StringFlag{Name: "harddrive", Value: harddriveRootName, Usage: "sandboxed directory for load/cd/ls"},
		cli.StringFlag{Name: "log-file", Value: "emlog.log", Usage: "path to the truncated-per-run log file"},
	}
	app.Action = runShell

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runShell(c *cli.Context) error {
	logFile, err := os.Create(c.String("log-file"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("vemu: %v", err), 1)
	}
	defer logFile.Close()
	logger := log.New(logFile, "", log.LstdFlags)

	opts := cpu.DefaultOptions()
	opts.LogicalWritesToRd = c.Bool("logical-writes-to-rd")
	machine := cpu.NewCPU(opts)

	sh, err := newShell(machine, c.String("harddrive"), logger, os.Stdout)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("vemu: %v", err), 1)
	}
	sh.autoRun = c.Bool("auto")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			logger.Println("received interrupt, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	// The CPU worker: Step is a no-op while halted (§4.7), so this loop can
	// simply keep ticking across `start`/`shutdown` toggles issued from the
	// REPL without needing to be respawned each time.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				machine.Step()
			}
		}
	}()

	go machine.RunSyscallDrainer(ctx, os.Stdout, logger)

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Fprintln(os.Stdout, "vemu — type `help` for the command list")
	}

	code := sh.runREPL(ctx, cancel, os.Stdin, interactive)
	if code != 0 {
		return cli.NewExitError("vemu: exited with error", code)
	}
	return nil
}
