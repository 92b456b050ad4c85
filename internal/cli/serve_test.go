package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestServeCmd_StdioRespondsToListServers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	compiledDir := filepath.Join(dir, "compiled")
	if err := os.MkdirAll(compiledDir, 0o755); err != nil {
		t.Fatalf("mkdir compiled: %v", err)
	}
	configPath := filepath.Join(dir, "mfp.yaml")
	content := "compiled_dir: " + compiledDir + "\n" +
		"cache_db_path: " + filepath.Join(dir, "cache.db") + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

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
	root.SetArgs([]string{"serve", "--config", configPath, "--transport", "stdio"})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "servers") {
		t.Fatalf("expected a servers key in the response, got: %s", out.String())
	}
}

func TestServeCmd_UnknownTransportIsUsageError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	compiledDir := filepath.Join(dir, "compiled")
	if err := os.MkdirAll(compiledDir, 0o755); err != nil {
		t.Fatalf("mkdir compiled: %v", err)
	}
	configPath := filepath.Join(dir, "mfp.yaml")
	content := "compiled_dir: " + compiledDir + "\n" +
		"cache_db_path: " + filepath.Join(dir, "cache.db") + "\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"serve", "--config", configPath, "--transport", "carrier-pigeon"})

	err := root.Execute()
	if err == nil {
		t.Fatalf("expected an error for an unknown transport")
	}
	if _, ok := err.(usageError); !ok {
		t.Fatalf("expected a usage error, got %T: %v", err, err)
	}
}
