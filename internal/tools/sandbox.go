package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/vinayprograms/agentcore/internal/contracts"
)

// ChildProcessSandbox is the default contracts.ExecSandbox: it runs a
// command directly via os/exec (never through a shell, so no shell
// metacharacter injection is possible), enforcing both TimeoutMs and
// MaxBufferBytes.
type ChildProcessSandbox struct{}

// Run implements contracts.ExecSandbox.
func (ChildProcessSandbox) Run(ctx context.Context, command string, args []string, opts contracts.ExecOptions) (contracts.ExecResult, error) {
	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}

	maxBuf := opts.MaxBufferBytes
	if maxBuf <= 0 {
		maxBuf = 1 << 20 // 1 MiB default
	}
	var stdout, stderr boundedBuffer
	stdout.limit = maxBuf
	stderr.limit = maxBuf
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := contracts.ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		result.Code = cmd.ProcessState.ExitCode()
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("exec %s timed out: %w", command, ctx.Err())
	}
	if err != nil {
		return result, fmt.Errorf("exec %s: %w", command, err)
	}
	return result, nil
}

// boundedBuffer caps how much data it retains at limit bytes and silently
// discards the overflow, matching the spirit of ExecSandbox's maxBuffer
// enforcement. It leaves no marker that output was truncated.
type boundedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string { return b.buf.String() }

var _ contracts.ExecSandbox = ChildProcessSandbox{}
