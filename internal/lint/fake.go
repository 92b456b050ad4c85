package lint

import (
	"context"

	"github.com/mfp-dev/mfp/internal/errs"
)

// FakeRunner is a deterministic Runner for tests: no ruff binary
// required. If Reject is set, every Check fails with that output.
type FakeRunner struct {
	Reject string
	Calls  []string
}

func (f *FakeRunner) Check(ctx context.Context, code string) (string, error) {
	f.Calls = append(f.Calls, code)
	if f.Reject != "" {
		return f.Reject, errs.New(errs.LintError, "lint: fake runner rejected code")
	}
	return "", nil
}
