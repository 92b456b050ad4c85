package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunCmd_CompilesThenServes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	swaggerPath := filepath.Join(dir, "swagger.yaml")
	if err := os.WriteFile(swaggerPath, []byte(minimalSwaggerYAML), 0o600); err != nil {
		t.Fatalf("write swagger: %v", err)
	}
	compiledDir := filepath.Join(dir, "compiled")
	configPath := writeTestConfig(t, dir, swaggerPath, compiledDir)

	oldStdin := os.Stdin
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdin = r
	defer func() { os.Stdin = oldStdin }()

	if _, err := w.WriteString(`{"tool":"list_servers","arguments":{}}` + "\n"); err != nil {
		t.Fatalf("write request: %v", err)
	}
	w.Close()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"run", "--config", configPath})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "testapi") {
		t.Fatalf("expected the compiled server to be listed after run, got: %s", out.String())
	}
}
