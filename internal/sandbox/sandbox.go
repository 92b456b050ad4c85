// Package sandbox isolates the one thing MFP never does itself: running
// untrusted Python. It speaks to the sandbox through the ContainerRuntime
// interface so the executor never depends on a real Docker daemon, and
// ships a process-based implementation alongside a deterministic fake
// used by tests.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/mfp-dev/mfp/internal/errs"
)

// Limits bounds one container's resource use for the lifetime of a
// single execute_code call.
type Limits struct {
	MemoryMiB  int
	CPUPercent int
	Timeout    time.Duration
}

// Spec describes the container the executor wants started: the image to
// run, the compiled-library root to mount read-only, and the snippet's
// environment (credential values only, never the credential names'
// underlying secrets store).
type Spec struct {
	Image          string
	LibraryRootDir string
	Env            map[string]string
	Limits         Limits
}

// Handle is a running (or exited) container, returned by Start.
type Handle interface {
	// Wait blocks until the container exits or ctx is done, returning
	// combined stdout+stderr and the process exit code.
	Wait(ctx context.Context) (output []byte, exitCode int, err error)
	// Kill forcibly stops the container. Safe to call after Wait.
	Kill(ctx context.Context) error
	// Remove deletes the container's resources. Safe to call multiple
	// times; always called from a defer so a crash never leaks a
	// container.
	Remove(ctx context.Context) error
}

// ContainerRuntime starts one container per execute_code call. Code is
// supplied at Start time rather than streamed over stdin afterward,
// since MFP never needs an interactive session with the sandbox.
type ContainerRuntime interface {
	Start(ctx context.Context, spec Spec, code string) (Handle, error)
}

// Run starts a container, waits for it to finish or ctx to expire, and
// guarantees removal regardless of outcome.
func Run(ctx context.Context, rt ContainerRuntime, spec Spec, code string) (output []byte, exitCode int, err error) {
	h, err := rt.Start(ctx, spec, code)
	if err != nil {
		return nil, 0, errs.Wrap(errs.RuntimeError, err, "sandbox: start container: %v", err)
	}
	defer h.Remove(context.Background())

	runCtx := ctx
	var cancel context.CancelFunc
	if spec.Limits.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Limits.Timeout)
		defer cancel()
	}

	output, exitCode, err = h.Wait(runCtx)
	if runCtx.Err() == context.DeadlineExceeded {
		h.Kill(context.Background())
		return output, exitCode, errs.New(errs.ExecutionTimeout, "sandbox: execution exceeded %s", spec.Limits.Timeout)
	}
	if runCtx.Err() == context.Canceled {
		h.Kill(context.Background())
		return output, exitCode, errs.Wrap(errs.RuntimeError, runCtx.Err(), "sandbox: execution cancelled")
	}
	if err != nil {
		return output, exitCode, errs.Wrap(errs.RuntimeError, err, "sandbox: wait: %v", err)
	}
	return output, exitCode, nil
}

// processRuntime runs each container via a real `docker run` subprocess.
// Grounded on the exec.CommandContext + CombinedOutput idiom used for
// invoking external build tools: code is handed to the container as a
// single `python3 -c` argument rather than over stdin, avoiding a second
// attach round trip.
type processRuntime struct {
	dockerPath string
}

// NewProcessRuntime returns a ContainerRuntime backed by the docker CLI
// found on PATH (or at dockerPath, if non-empty).
func NewProcessRuntime(dockerPath string) ContainerRuntime {
	if dockerPath == "" {
		dockerPath = "docker"
	}
	return &processRuntime{dockerPath: dockerPath}
}

// syncBuffer guards a bytes.Buffer written by the process's output-copy
// goroutines and read by Wait, which may observe the buffer while the
// process is still running if ctx expires before the process exits.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

type processHandle struct {
	cmd *exec.Cmd
	buf *syncBuffer
}

func (r *processRuntime) Start(ctx context.Context, spec Spec, code string) (Handle, error) {
	args := []string{
		"run",
		"--rm",
		"--read-only",
		"--network", "none",
		"--user", "1000:1000",
		"--security-opt", "no-new-privileges",
		"--memory", fmt.Sprintf("%dm", spec.Limits.MemoryMiB),
		"--memory-swap", fmt.Sprintf("%dm", spec.Limits.MemoryMiB),
		"--cpus", cpuQuota(spec.Limits.CPUPercent),
		"--tmpfs", "/tmp:rw,size=64m",
		"-v", spec.LibraryRootDir + ":/mfp/lib:ro",
		"-w", "/mfp/lib",
	}
	for k, v := range spec.Env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, spec.Image, "python3", "-c", code)

	cmd := exec.CommandContext(ctx, r.dockerPath, args...)
	buf := &syncBuffer{}
	cmd.Stdout = buf
	cmd.Stderr = buf

	if err := cmd.Start(); err != nil {
		return nil, errs.Wrap(errs.RuntimeError, err, "sandbox: docker run: %v", err)
	}
	return &processHandle{cmd: cmd, buf: buf}, nil
}

func (h *processHandle) Wait(ctx context.Context) ([]byte, int, error) {
	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	select {
	case <-ctx.Done():
		return h.buf.Bytes(), 0, ctx.Err()
	case err := <-done:
		exitCode := 0
		if h.cmd.ProcessState != nil {
			exitCode = h.cmd.ProcessState.ExitCode()
		}
		if err != nil {
			if _, ok := err.(*exec.ExitError); ok {
				return h.buf.Bytes(), exitCode, nil
			}
			return h.buf.Bytes(), exitCode, err
		}
		return h.buf.Bytes(), exitCode, nil
	}
}

func (h *processHandle) Kill(ctx context.Context) error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

func (h *processHandle) Remove(ctx context.Context) error {
	// --rm on the docker invocation already removes the container once
	// it exits; nothing further to clean up on this side.
	return nil
}

// cpuQuota converts a percentage of one CPU into docker's --cpus value,
// e.g. 50 -> "0.50".
func cpuQuota(percent int) string {
	if percent <= 0 {
		percent = 100
	}
	return fmt.Sprintf("%.2f", float64(percent)/100.0)
}
