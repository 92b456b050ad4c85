// Package executor runs one execute_code call through MFP's state
// machine: size check, static analysis, lint, server detection,
// sandboxed execution, output parsing, and caching. No step is ever
// retried here — a transient failure is surfaced to the caller, who
// retries if they choose to.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/mfp-dev/mfp/internal/cache"
	"github.com/mfp-dev/mfp/internal/errs"
	"github.com/mfp-dev/mfp/internal/guard"
	"github.com/mfp-dev/mfp/internal/lint"
	"github.com/mfp-dev/mfp/internal/policy"
	"github.com/mfp-dev/mfp/internal/registry"
	"github.com/mfp-dev/mfp/internal/sandbox"
	"github.com/mfp-dev/mfp/internal/spec"
	"github.com/mfp-dev/mfp/internal/vault"
)

// importRe mirrors the "from {server}.functions import ..." shape the
// generated library expects a snippet to use. Aliased or dynamic
// imports are not detected; per the open-design decision recorded in
// DESIGN.md, a server missed here simply lacks env injection and fails
// at runtime inside the sandbox rather than here.
var importRe = regexp.MustCompile(`(?m)^\s*from\s+([A-Za-z0-9_]+)\.functions\s+import\s+`)

// SourceInfo is the slice of a configured SwaggerSource the executor
// needs to build a sandbox's environment: its base URL and the raw
// (possibly ${VAR}-templated) auth header.
type SourceInfo struct {
	BaseURL    string
	AuthHeader string
}

// Limits bounds one execute_code call.
type Limits struct {
	MaxCodeBytes int
	Image        string
	MemoryMiB    int
	CPUPercent   int
	Timeout      time.Duration
	CacheEnabled bool
	CacheTTL     time.Duration
}

// Executor wires the guard, policy, vault, sandbox, and cache together
// into the execute_code pipeline. Safe for concurrent use: every field
// is either immutable after construction or already safe for
// concurrent use on its own (Registry, cache.Store).
type Executor struct {
	Registry        *registry.Registry
	Cache           *cache.Store
	Runtime         sandbox.ContainerRuntime
	Lint            lint.Runner
	Sources         map[string]SourceInfo
	LibraryRoot     string
	Limits          Limits
	DomainAllowlist []string
}

// Execute runs one snippet through every state in turn. It never
// returns a Go error: every failure mode becomes a populated
// ExecutionResult, since the MCP tool surface must never raise.
func (e *Executor) Execute(ctx context.Context, code, description string) *spec.ExecutionResult {
	start := time.Now()
	result := e.execute(ctx, code, description)
	result.DurationMS = time.Since(start).Milliseconds()
	return result
}

func (e *Executor) execute(ctx context.Context, code, description string) *spec.ExecutionResult {
	// SIZE
	if err := policy.CheckCodeSize([]byte(code), e.Limits.MaxCodeBytes); err != nil {
		return failResult(spec.ErrorTypeSecurity, "code exceeds the maximum submission size")
	}

	// AST
	allowed := guard.AllowedServerModules(e.Registry.KnownServers())
	if err := guard.Check(code, allowed); err != nil {
		return failResult(spec.ErrorTypeSecurity, err.Error())
	}

	// POLICY: a snippet is free to call requests.get/post directly rather
	// than going through a generated function, so the domain allowlist
	// has to be enforced here too, not just against each source's own
	// trusted base_url at compile time.
	if err := policy.CheckCodeURLs(code, e.DomainAllowlist); err != nil {
		return failResult(spec.ErrorTypeSecurity, err.Error())
	}

	// LINT (over the snippet together with the prelude it runs behind)
	prelude := "import sys\nsys.path.insert(0, \"/mfp/lib\")\n"
	if e.Lint != nil {
		if lintOutput, err := e.Lint.Check(ctx, prelude+code); err != nil {
			if _, ok := errs.As(err, errs.LintError); ok {
				return failResultWithDetail(spec.ErrorTypeLint, "snippet failed lint checks", lintOutput)
			}
			return failResult(spec.ErrorTypeInternal, "internal error running lint")
		}
	}

	// ASSEMBLE
	serversUsed := detectServersUsed(code)
	env := map[string]string{}
	for _, name := range serversUsed {
		src, ok := e.Sources[name]
		if !ok {
			// Unknown server reference: per the accepted open-design
			// limitation, this simply means no credentials are injected
			// and the snippet's own call fails at runtime.
			continue
		}
		for k, v := range vault.BuildServerEnv(name, src.BaseURL, src.AuthHeader) {
			env[k] = v
		}
	}

	if ctx.Err() != nil {
		return failResult(spec.ErrorTypeInternal, "execution cancelled before sandbox start")
	}

	// CONTAINER + SEND + WAIT (guaranteed cleanup lives inside sandbox.Run)
	fullCode := prelude + code

	sbSpec := sandbox.Spec{
		Image:          e.Limits.Image,
		LibraryRootDir: e.LibraryRoot,
		Env:            env,
		Limits: sandbox.Limits{
			MemoryMiB:  e.Limits.MemoryMiB,
			CPUPercent: e.Limits.CPUPercent,
			Timeout:    e.Limits.Timeout,
		},
	}

	output, exitCode, err := sandbox.Run(ctx, e.Runtime, sbSpec, fullCode)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return failResult(spec.ErrorTypeInternal, "execution cancelled")
		}
		if _, ok := errs.As(err, errs.ExecutionTimeout); ok {
			r := failResult(spec.ErrorTypeTimeout, fmt.Sprintf("execution exceeded %s", e.Limits.Timeout))
			r.Stdout, r.Stderr = splitOutput(output)
			return r
		}
		r := failResult(spec.ErrorTypeRuntime, "sandbox execution failed")
		r.Stdout, r.Stderr = splitOutput(output)
		return r
	}

	// READ
	stdout, stderr := splitOutput(output)
	success, data := parseLastJSONResult(stdout, exitCode == 0)

	result := &spec.ExecutionResult{
		Success: success,
		Data:    data,
		Stdout:  stdout,
		Stderr:  stderr,
	}
	if !success {
		result.ErrorType = spec.ErrorTypeRuntime
		result.Error = "snippet did not complete successfully"
		return result
	}

	// CACHE
	if e.Limits.CacheEnabled && e.Cache != nil {
		resultSummary := summarize(data)
		entry, err := e.Cache.Put(code, description, serversUsed, true, resultSummary, e.Limits.CacheTTL)
		if err == nil {
			result.CacheID = entry.ID
		}
	}

	return result
}

func failResult(errType spec.ErrorType, message string) *spec.ExecutionResult {
	return &spec.ExecutionResult{Success: false, Error: message, ErrorType: errType}
}

func failResultWithDetail(errType spec.ErrorType, message, detail string) *spec.ExecutionResult {
	r := failResult(errType, message)
	r.Stderr = detail
	return r
}

// detectServersUsed scans code for "from {server}.functions import"
// lines and returns the referenced server names, sorted and
// deduplicated for deterministic env assembly.
func detectServersUsed(code string) []string {
	matches := importRe.FindAllStringSubmatch(code, -1)
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		seen[m[1]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// splitOutput separates a container's combined stdout+stderr buffer.
// The sandbox interface captures both streams into one buffer (see
// sandbox.processHandle), so the executor can only approximate a
// stdout/stderr split: everything is treated as stdout, since Python
// tracebacks are self-describing and the last-JSON-object convention
// in parseLastJSONResult only ever looks at combined output anyway.
func splitOutput(output []byte) (stdout, stderr string) {
	return string(output), ""
}

// parseLastJSONResult looks for the last JSON object in output shaped
// like {"success": bool, "data": ...} and returns it. If none is
// found, the raw output becomes the result's data and success follows
// the container's exit code.
func parseLastJSONResult(output string, exitCodeZero bool) (success bool, data any) {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var candidate struct {
			Success *bool `json:"success"`
			Data    any   `json:"data"`
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(line)))
		if err := dec.Decode(&candidate); err != nil || candidate.Success == nil {
			continue
		}
		return *candidate.Success, candidate.Data
	}
	return exitCodeZero, strings.TrimRight(output, "\n")
}

// summarize renders a cache entry's result_summary field: a short,
// human-readable gist of the execution's data, not the full payload.
func summarize(data any) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	const maxLen = 500
	s := string(raw)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
