// Package lint runs an external linter over generated or submitted
// Python source. MFP never implements a linter itself — static
// analysis beyond the sandbox-escape checks in internal/guard belongs
// to a real tool (ruff), invoked as a subprocess.
package lint

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/mfp-dev/mfp/internal/errs"
)

// Runner checks one piece of Python source and reports the linter's
// output verbatim on failure, so operators see exactly what ruff saw.
type Runner interface {
	Check(ctx context.Context, code string) (output string, err error)
}

// processRunner shells out to `ruff check` over stdin.
type processRunner struct {
	ruffPath string
}

// NewProcessRunner returns a Runner backed by the ruff binary found on
// PATH (or at ruffPath, if non-empty).
func NewProcessRunner(ruffPath string) Runner {
	if ruffPath == "" {
		ruffPath = "ruff"
	}
	return &processRunner{ruffPath: ruffPath}
}

func (r *processRunner) Check(ctx context.Context, code string) (string, error) {
	cmd := exec.CommandContext(ctx, r.ruffPath, "check", "--quiet", "-")
	cmd.Stdin = bytes.NewReader([]byte(code))
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return "", nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return out.String(), errs.New(errs.LintError, "lint: ruff reported violations")
	}
	return out.String(), errs.Wrap(errs.InternalError, err, "lint: run ruff: %v", err)
}

// NopRunner always succeeds. Used when an operator has no linter
// installed and would rather skip this stage than fail every call.
type NopRunner struct{}

func (NopRunner) Check(ctx context.Context, code string) (string, error) { return "", nil }
