package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mfp-dev/mfp/internal/spec"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CompiledDir != Default().CompiledDir {
		t.Errorf("expected default compiled_dir, got %q", cfg.CompiledDir)
	}
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "mfp.yaml")
	content := `
compiled_dir: /srv/mfp/compiled
sources:
  - name: petstore
    swagger_url: https://petstore.example.com/openapi.json
    base_url: https://petstore.example.com
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CompiledDir != "/srv/mfp/compiled" {
		t.Errorf("compiled_dir: got %q", cfg.CompiledDir)
	}
	if cfg.CacheTTL != Default().CacheTTL {
		t.Errorf("expected unset field to keep default cache_ttl, got %v", cfg.CacheTTL)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Name != "petstore" {
		t.Fatalf("sources: got %+v", cfg.Sources)
	}
}

func TestValidate_RejectsDuplicateServerNames(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Sources = []spec.SwaggerSource{
		{Name: "petstore", SwaggerURL: "https://a.example.com/openapi.json", BaseURL: "https://a.example.com"},
		{Name: "petstore", SwaggerURL: "https://b.example.com/openapi.json", BaseURL: "https://b.example.com"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected duplicate server name to fail validation")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("MFP_COMPILED_OUTPUT_DIR", "/tmp/custom-compiled")
	t.Setenv("MFP_CACHE_ENABLED", "false")
	cfg := Default()
	if err := ApplyEnvOverrides(&cfg); err != nil {
		t.Fatalf("apply env overrides: %v", err)
	}
	if cfg.CompiledDir != "/tmp/custom-compiled" {
		t.Errorf("compiled_dir: got %q", cfg.CompiledDir)
	}
	if cfg.CacheEnabled {
		t.Errorf("expected cache_enabled override to false")
	}
}
