package e2e

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	cli "github.com/mfp-dev/mfp/internal/cli"
)

const minimalSpec = "" +
	"openapi: 3.0.0\n" +
	"info:\n" +
	"  title: E2E Sample\n" +
	"  version: '1.0.0'\n" +
	"paths:\n" +
	"  /pets:\n" +
	"    get:\n" +
	"      operationId: listPets\n" +
	"      summary: List pets\n" +
	"      tags: [read]\n" +
	"      responses:\n" +
	"        '200':\n" +
	"          description: ok\n" +
	"          content:\n" +
	"            application/json:\n" +
	"              schema:\n" +
	"                type: array\n" +
	"                items:\n" +
	"                  type: string\n" +
	"  /pets/{id}:\n" +
	"    get:\n" +
	"      operationId: getPet\n" +
	"      summary: Get one pet\n" +
	"      tags: [read]\n" +
	"      parameters:\n" +
	"        - in: path\n" +
	"          name: id\n" +
	"          required: true\n" +
	"          schema:\n" +
	"            type: string\n" +
	"      responses:\n" +
	"        '200':\n" +
	"          description: ok\n"

func writeTempSpec(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "spec.yaml")
	if err := os.WriteFile(p, []byte(minimalSpec), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return p
}

func writeTempConfig(t *testing.T, swaggerPath, compiledDir string) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "mfp.yaml")
	content := "compiled_dir: " + compiledDir + "\n" +
		"sources:\n" +
		"  - name: petstore\n" +
		"    swagger_path: " + swaggerPath + "\n" +
		"    base_url: https://api.petstore.example\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCLI(t *testing.T, args ...string) {
	t.Helper()
	root := cli.NewRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("cli execute %v: %v", args, err)
	}
}

// digestDir hashes every file under dir by relative path and content.
// manifest.json's generated_at timestamp is normalized out first, since
// two compiles a moment apart must still be considered the same output:
// determinism is about the compiled *library*, not the bookkeeping
// timestamp.
func digestDir(t *testing.T, dir string) (files []string, sum string) {
	t.Helper()
	var list []string
	h := sha256.New()
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		list = append(list, rel)
		h.Write([]byte(rel))

		b, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		if filepath.Base(path) == "manifest.json" {
			b = normalizeManifest(t, b)
		}
		h.Write(b)
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	sort.Strings(list)
	return list, hex.EncodeToString(h.Sum(nil))
}

func normalizeManifest(t *testing.T, raw []byte) []byte {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("parse manifest.json: %v", err)
	}
	delete(m, "generated_at")
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("remarshal manifest.json: %v", err)
	}
	return out
}

func TestE2E_Compile_DeterministicAcrossRuns(t *testing.T) {
	t.Parallel()
	swaggerPath := writeTempSpec(t)
	dir1 := filepath.Join(t.TempDir(), "compiled")
	dir2 := filepath.Join(t.TempDir(), "compiled")

	runCLI(t, "compile", "--config", writeTempConfig(t, swaggerPath, dir1))
	runCLI(t, "compile", "--config", writeTempConfig(t, swaggerPath, dir2))

	files1, sum1 := digestDir(t, dir1)
	files2, sum2 := digestDir(t, dir2)
	if !slicesEqual(files1, files2) || sum1 != sum2 {
		t.Fatalf("compiled outputs differ between runs\nfiles1=%v\nfiles2=%v\nsum1=%s\nsum2=%s", files1, files2, sum1, sum2)
	}

	for _, name := range []string{"functions.py", "manifest.json", "__init__"} {
		if _, err := os.Stat(filepath.Join(dir1, "petstore", name)); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}
}

func TestE2E_Compile_SecondRunSkipsUnchangedSource(t *testing.T) {
	t.Parallel()
	swaggerPath := writeTempSpec(t)
	compiledDir := filepath.Join(t.TempDir(), "compiled")
	configPath := writeTempConfig(t, swaggerPath, compiledDir)

	runCLI(t, "compile", "--config", configPath)
	manifestPath := filepath.Join(compiledDir, "petstore", "manifest.json")
	first, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatalf("read manifest after first compile: %v", err)
	}

	runCLI(t, "compile", "--config", configPath)
	second, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatalf("read manifest after second compile: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("expected an unchanged source to leave manifest.json untouched on recompile")
	}
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
