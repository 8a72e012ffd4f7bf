package cpu

import (
	"context"
	"io"
	"log"
	"runtime/debug"
	"time"
)

// drainPollInterval bounds how long the syscall drainer blocks between
// checks of the shutdown signal (§5's "blocks on queue-dequeue with a
// timeout").
const drainPollInterval = 20 * time.Millisecond

func (c *CPU) defaultRecover() {
	if r := recover(); r != nil {
		if c.errcode == nil {
			c.errcode = ErrSegmentationFault
		}
		c.flags.I = true
	}
}

// Run drives the fetch/decode/execute loop on the calling goroutine until
// the CPU halts or ctx is cancelled (§5: "single worker that owns all
// mutable CPU state"). GC is disabled for the duration of the hot loop and
// restored on return, matching the teacher's RunProgram.
func (c *CPU) Run(ctx context.Context) error {
	defer debug.SetGCPercent(debug.SetGCPercent(-1))
	defer c.defaultRecover()

	for !c.flags.I {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.Step()
	}

	return c.errcode
}

// RunSyscallDrainer polls the syscall queue until ctx is cancelled,
// dispatching each request to out and logging unsupported syscall numbers
// rather than failing the whole emulator (§4.8, §5, §7).
func (c *CPU) RunSyscallDrainer(ctx context.Context, out io.Writer, logger *log.Logger) {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drainRemaining(out, logger)
			return
		case <-c.queue.notify:
			c.drainRemaining(out, logger)
		case <-ticker.C:
			c.drainRemaining(out, logger)
		}
	}
}

func (c *CPU) drainRemaining(out io.Writer, logger *log.Logger) {
	for {
		req, ok := c.queue.tryPop()
		if !ok {
			return
		}
		if err := c.Dispatch(out, req); err != nil {
			logger.Printf("unsupported syscall %d: %v", req.Number, err)
		}
	}
}
