package logging

import (
	"context"
	"log/slog"
	"os"
)

// GuardStdout temporarily redirects the process's os.Stdout to a pipe for the
// duration of fn, draining anything written to it into the logger at debug
// level instead. This exists because several of ragcrawl's collaborators
// (HTML converters, tree-sitter bindings, vendored C libraries behind cgo
// drivers) are known to print diagnostics to stdout outside of our control;
// in stdio MCP transport that would corrupt the JSON-RPC stream (spec P9).
// HTTP transport has no such constraint but uses the guard anyway for
// consistency and because it costs nothing when nobody writes to the pipe.
func GuardStdout(ctx context.Context, logger *slog.Logger, fn func() error) error {
	real := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		// Can't set up the pipe; run unguarded rather than fail the call.
		return fn()
	}
	os.Stdout = w

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, readErr := r.Read(buf)
			if n > 0 {
				logger.DebugContext(ctx, "suppressed stdout write", slog.String("data", string(buf[:n])))
			}
			if readErr != nil {
				return
			}
		}
	}()

	runErr := fn()

	os.Stdout = real
	_ = w.Close()
	<-done
	_ = r.Close()

	return runErr
}
