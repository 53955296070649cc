package util

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const sampleABI = `[{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`

func TestLoadABI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "erc20.json")
	if err := os.WriteFile(path, []byte(sampleABI), 0o644); err != nil {
		t.Fatal(err)
	}

	parsed, err := LoadABI(path)
	if err != nil {
		t.Fatalf("LoadABI returned error: %v", err)
	}
	if _, ok := parsed.Methods["balanceOf"]; !ok {
		t.Fatal("expected balanceOf method in parsed ABI")
	}
}

func TestLoadABI_MissingFile(t *testing.T) {
	if _, err := LoadABI("/nonexistent/path.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadABIFromHardhatArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.json")

	artifact := map[string]json.RawMessage{"abi": json.RawMessage(sampleABI)}
	data, err := json.Marshal(artifact)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	parsed, err := LoadABIFromHardhatArtifact(path)
	if err != nil {
		t.Fatalf("LoadABIFromHardhatArtifact returned error: %v", err)
	}
	if _, ok := parsed.Methods["balanceOf"]; !ok {
		t.Fatal("expected balanceOf method in parsed ABI")
	}
}
