// Package compiler drives one compile run: fetch each configured
// swagger source, skip it if its hash matches what's already on disk,
// otherwise parse, generate, and atomically write its function library
// and manifest.
package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mfp-dev/mfp/internal/codegen"
	"github.com/mfp-dev/mfp/internal/errs"
	"github.com/mfp-dev/mfp/internal/hashutil"
	"github.com/mfp-dev/mfp/internal/lint"
	"github.com/mfp-dev/mfp/internal/spec"
)

const (
	manifestFileName = "manifest.json"
	functionsFile    = "functions.py"
	initMarkerName   = "__init__"
)

// SourceResult is what Compile reports for one swagger source.
type SourceResult struct {
	ServerName string
	Skipped    bool // hash unchanged, no writes performed
	Written    bool
	Error      error
}

// Options controls one Compile invocation.
type Options struct {
	CompiledDir string
	DryRun      bool
	LLMEnhance  bool
	Lint        lint.Runner // nil disables the lint pass
	Enhancer    Enhancer    // nil disables --llm-enhance
}

// Compile runs every source in sources through fetch→hash-check→parse→
// generate→write. A failure on one source is recorded in its
// SourceResult and does not stop the remaining sources: one broken
// swagger document must not take down every other configured server.
func Compile(ctx context.Context, sources []spec.SwaggerSource, opts Options) []SourceResult {
	results := make([]SourceResult, 0, len(sources))
	for _, src := range sources {
		results = append(results, compileOne(ctx, src, opts))
	}
	return results
}

func compileOne(ctx context.Context, src spec.SwaggerSource, opts Options) SourceResult {
	result := SourceResult{ServerName: src.Name}

	raw, err := spec.FetchRaw(ctx, src.Location())
	if err != nil {
		result.Error = errs.Wrap(errs.ParseError, err, "compiler: fetch %s: %v", src.Name, err)
		return result
	}
	newHash := hashutil.HexString(hashutil.SourceHash(raw))

	serverDir := filepath.Join(opts.CompiledDir, src.Name)
	if existing, ok := readManifest(serverDir); ok && existing.SwaggerHash == newHash {
		result.Skipped = true
		return result
	}

	doc, err := spec.Load(ctx, src.Location())
	if err != nil {
		result.Error = errs.Wrap(errs.ParseError, err, "compiler: parse %s: %v", src.Name, err)
		return result
	}

	serverSpec, err := spec.BuildServerSpec(ctx, doc, src, raw)
	if err != nil {
		result.Error = errs.Wrap(errs.ParseError, err, "compiler: normalize %s: %v", src.Name, err)
		return result
	}

	if opts.DryRun {
		result.Written = false
		return result
	}

	rendered, err := codegen.Render(serverSpec)
	if err != nil {
		result.Error = errs.Wrap(errs.CompileError, err, "compiler: render %s: %v", src.Name, err)
		return result
	}

	functionsPy := rendered.FunctionsPy
	if opts.LLMEnhance && opts.Enhancer != nil {
		enhanced, err := opts.Enhancer.Enhance(ctx, functionsPy)
		if err != nil {
			result.Error = errs.Wrap(errs.CompileError, err, "compiler: llm-enhance %s: %v", src.Name, err)
			return result
		}
		functionsPy = enhanced
		// The enhanced output is not hashed: the manifest records newHash
		// above, the hash of the raw swagger source, so an Enhancer
		// rewrite never affects whether a later compile skips this source.
	}

	if opts.Lint != nil {
		if lintOutput, err := opts.Lint.Check(ctx, string(functionsPy)); err != nil {
			result.Error = errs.Wrap(errs.CompileError, fmt.Errorf("%s", lintOutput), "compiler: lint %s failed: %v", src.Name, err)
			return result
		}
	}

	manifest := spec.Manifest{
		ServerName:    src.Name,
		GeneratedAt:   time.Now(),
		SwaggerHash:   newHash,
		EndpointCount: len(serverSpec.Endpoints),
		Functions:     toFunctionInfos(rendered.Functions),
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		result.Error = errs.Wrap(errs.InternalError, err, "compiler: marshal manifest %s: %v", src.Name, err)
		return result
	}

	if err := writeFileAtomic(serverDir, functionsFile, functionsPy); err != nil {
		result.Error = errs.Wrap(errs.InternalError, err, "compiler: write functions.py for %s: %v", src.Name, err)
		return result
	}
	if err := writeFileAtomic(serverDir, manifestFileName, manifestJSON); err != nil {
		result.Error = errs.Wrap(errs.InternalError, err, "compiler: write manifest for %s: %v", src.Name, err)
		return result
	}
	if err := writeFileAtomic(serverDir, initMarkerName, nil); err != nil {
		result.Error = errs.Wrap(errs.InternalError, err, "compiler: write init marker for %s: %v", src.Name, err)
		return result
	}

	result.Written = true
	return result
}

func toFunctionInfos(rendered []codegen.RenderedFunction) []spec.FunctionInfo {
	out := make([]spec.FunctionInfo, 0, len(rendered))
	for _, r := range rendered {
		out = append(out, spec.FunctionInfo{
			Name:       r.Name,
			Signature:  r.Signature,
			Parameters: r.Parameters,
			Returns:    r.Returns,
			Summary:    r.Summary,
		})
	}
	return out
}

func readManifest(serverDir string) (spec.Manifest, bool) {
	raw, err := os.ReadFile(filepath.Join(serverDir, manifestFileName))
	if err != nil {
		return spec.Manifest{}, false
	}
	var m spec.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return spec.Manifest{}, false
	}
	if _, err := os.Stat(filepath.Join(serverDir, initMarkerName)); err != nil {
		return spec.Manifest{}, false
	}
	return m, true
}

// writeFileAtomic writes content to dir/name via a temp file in the
// same directory followed by a rename, so a crash mid-write never
// leaves a half-written functions.py or manifest.json for the registry
// to load.
func writeFileAtomic(dir, name string, content []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-mfp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if len(content) > 0 {
		if _, err := tmp.Write(content); err != nil {
			return fmt.Errorf("write temp file: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	target := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpPath, target, err)
	}
	success = true
	return nil
}
