// Package registry loads every compiled server's manifest.json from
// disk and answers the discovery queries MFP's tool surface needs:
// list the compiled servers, and fetch one function's signature and
// source excerpt by name.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mfp-dev/mfp/internal/errs"
	"github.com/mfp-dev/mfp/internal/spec"
)

const (
	manifestFileName = "manifest.json"
	initMarkerName   = "__init__"
	functionsFile    = "functions.py"
)

// ServerSummary is what list_servers reports for one compiled server.
type ServerSummary struct {
	Name          string `json:"name"`
	EndpointCount int    `json:"endpoint_count"`
	SwaggerHash   string `json:"swagger_hash"`
}

type entry struct {
	manifest spec.Manifest
	dir      string
}

// Registry is safe for concurrent use: Load replaces its indexes
// wholesale under a write lock, queries take a read lock.
type Registry struct {
	mu         sync.RWMutex
	byServer   map[string]entry
	byFunction map[string]spec.FunctionInfo // "server/function" -> info
}

// New returns an empty Registry. Call Load before serving queries.
func New() *Registry {
	return &Registry{
		byServer:   make(map[string]entry),
		byFunction: make(map[string]spec.FunctionInfo),
	}
}

// Load scans compiledDir for one subdirectory per compiled server, each
// expected to contain manifest.json, functions.py, and an __init__
// marker file. A server directory missing the marker is skipped: it is
// mid-compile, not yet ready to serve. Two manifests claiming the same
// server name is a ConfigError, per MFP's duplicate-name policy.
func (r *Registry) Load(compiledDir string) error {
	entries, err := os.ReadDir(compiledDir)
	if os.IsNotExist(err) {
		r.mu.Lock()
		r.byServer = make(map[string]entry)
		r.byFunction = make(map[string]spec.FunctionInfo)
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.InternalError, err, "registry: read %s: %v", compiledDir, err)
	}

	byServer := make(map[string]entry, len(entries))
	byFunction := make(map[string]spec.FunctionInfo)

	names := make([]string, 0, len(entries))
	for _, de := range entries {
		if de.IsDir() {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		dir := filepath.Join(compiledDir, name)
		if _, err := os.Stat(filepath.Join(dir, initMarkerName)); err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, manifestFileName))
		if err != nil {
			continue
		}
		var m spec.Manifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return errs.Wrap(errs.ConfigError, err, "registry: parse manifest for %s: %v", name, err)
		}
		if _, dup := byServer[m.ServerName]; dup {
			return errs.New(errs.ConfigError, "registry: duplicate compiled server name %q", m.ServerName)
		}
		byServer[m.ServerName] = entry{manifest: m, dir: dir}
		for _, fn := range m.Functions {
			byFunction[m.ServerName+"/"+fn.Name] = fn
		}
	}

	r.mu.Lock()
	r.byServer = byServer
	r.byFunction = byFunction
	r.mu.Unlock()
	return nil
}

// ListServers returns a summary of every loaded server, sorted by name.
func (r *Registry) ListServers() []ServerSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ServerSummary, 0, len(r.byServer))
	for name, e := range r.byServer {
		out = append(out, ServerSummary{
			Name:          name,
			EndpointCount: e.manifest.EndpointCount,
			SwaggerHash:   e.manifest.SwaggerHash,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FunctionNames returns the sorted names of every function compiled
// for server, or nil if server isn't loaded.
func (r *Registry) FunctionNames(server string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byServer[server]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.manifest.Functions))
	for _, fn := range e.manifest.Functions {
		out = append(out, fn.Name)
	}
	sort.Strings(out)
	return out
}

// GetFunction returns the FunctionInfo for one compiled function,
// re-slicing its SourceExcerpt fresh from functions.py on disk so the
// manifest itself doesn't need to carry a stale copy.
func (r *Registry) GetFunction(server, name string) (*spec.FunctionInfo, error) {
	r.mu.RLock()
	fn, ok := r.byFunction[server+"/"+name]
	dir, hasDir := "", false
	if e, found := r.byServer[server]; found {
		dir, hasDir = e.dir, true
	}
	r.mu.RUnlock()

	if !ok {
		return nil, errs.New(errs.InternalError, "registry: unknown function %q on server %q", name, server)
	}
	if hasDir {
		if src, err := os.ReadFile(filepath.Join(dir, functionsFile)); err == nil {
			fn.SourceExcerpt = extractExcerpt(src, name)
		}
	}
	return &fn, nil
}

// KnownServers lists every compiled server name, used by the AST guard
// to build its import allowlist.
func (r *Registry) KnownServers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byServer))
	for name := range r.byServer {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// extractExcerpt slices the body of "def <name>(...):" out of source, up
// to (but excluding) the next top-level def/class or end of file. Falls
// back to the whole file when the function can't be located syntactically
// (e.g. it was renamed since the manifest was written).
func extractExcerpt(source []byte, name string) string {
	lines := strings.Split(string(source), "\n")
	prefix := "def " + name + "("
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(line, prefix) {
			start = i
			break
		}
	}
	if start == -1 {
		return string(source)
	}
	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "def ") || strings.HasPrefix(lines[i], "class ") {
			end = i
			break
		}
	}
	return strings.TrimRight(strings.Join(lines[start:end], "\n"), "\n") + "\n"
}
