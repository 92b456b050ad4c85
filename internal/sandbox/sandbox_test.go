package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mfp-dev/mfp/internal/errs"
)

func TestRun_ReturnsOutputOnSuccess(t *testing.T) {
	t.Parallel()
	rt := &FakeRuntime{Scripts: []FakeScript{{Output: "42\n", ExitCode: 0}}}

	output, exitCode, err := Run(context.Background(), rt, Spec{
		Image:          "python:3.12-slim",
		LibraryRootDir: "/compiled/petstore",
		Limits:         Limits{MemoryMiB: 256, CPUPercent: 50, Timeout: time.Second},
	}, "print(42)")

	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", exitCode)
	}
	if string(output) != "42\n" {
		t.Fatalf("unexpected output %q", output)
	}
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	t.Parallel()
	rt := &FakeRuntime{Scripts: []FakeScript{{Output: "Traceback...\n", ExitCode: 1}}}

	output, exitCode, err := Run(context.Background(), rt, Spec{
		Image: "python:3.12-slim", Limits: Limits{Timeout: time.Second},
	}, "raise ValueError()")

	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if exitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", exitCode)
	}
	if string(output) == "" {
		t.Fatalf("expected traceback output")
	}
}

func TestRun_TimeoutReturnsExecutionTimeoutError(t *testing.T) {
	t.Parallel()
	rt := &FakeRuntime{Scripts: []FakeScript{{Hang: true}}}

	_, _, err := Run(context.Background(), rt, Spec{
		Image: "python:3.12-slim", Limits: Limits{Timeout: 10 * time.Millisecond},
	}, "while True: pass")

	if err == nil {
		t.Fatalf("expected timeout error")
	}
	e, ok := errs.As(err, errs.ExecutionTimeout)
	if !ok {
		t.Fatalf("expected ExecutionTimeout kind, got %v", err)
	}
	_ = e
}

func TestRun_CancelledContextStopsWait(t *testing.T) {
	t.Parallel()
	rt := &FakeRuntime{Scripts: []FakeScript{{Hang: true}}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var runErr error
	go func() {
		_, _, runErr = Run(ctx, rt, Spec{Image: "python:3.12-slim"}, "while True: pass")
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not return after context cancellation")
	}
	if runErr == nil {
		t.Fatalf("expected an error from cancelled run")
	}
}

func TestRun_StartErrorWrapsAsRuntimeError(t *testing.T) {
	t.Parallel()
	rt := &FakeRuntime{Scripts: []FakeScript{{StartErr: errors.New("daemon unreachable")}}}

	_, _, err := Run(context.Background(), rt, Spec{Image: "python:3.12-slim"}, "pass")
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := errs.As(err, errs.RuntimeError); !ok {
		t.Fatalf("expected RuntimeError kind, got %v", err)
	}
}

func TestCPUQuota(t *testing.T) {
	cases := map[int]string{50: "0.50", 100: "1.00", 0: "1.00", 200: "2.00"}
	for percent, want := range cases {
		if got := cpuQuota(percent); got != want {
			t.Errorf("cpuQuota(%d) = %q, want %q", percent, got, want)
		}
	}
}
