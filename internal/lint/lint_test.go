package lint

import (
	"context"
	"testing"

	"github.com/mfp-dev/mfp/internal/errs"
)

func TestFakeRunner_AcceptsByDefault(t *testing.T) {
	r := &FakeRunner{}
	out, err := r.Check(context.Background(), "print(1)")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestFakeRunner_RejectsWithLintError(t *testing.T) {
	r := &FakeRunner{Reject: "E501 line too long"}
	_, err := r.Check(context.Background(), "x = 1" + string(make([]byte, 200)))
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := errs.As(err, errs.LintError); !ok {
		t.Fatalf("expected LintError kind, got %v", err)
	}
}

func TestNopRunner_AlwaysSucceeds(t *testing.T) {
	var r NopRunner
	if _, err := r.Check(context.Background(), "anything at all"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
