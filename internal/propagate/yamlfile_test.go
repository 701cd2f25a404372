package propagate

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readYAML(t *testing.T, path string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestYAMLSinkSetsNestedField(t *testing.T) {
	path := writeYAML(t, "server:\n  port: 5173\noauth:\n  client_id: old\n  issuer: http://localhost:4444\n")
	sink := &YAMLSink{Path: path, DotPath: "oauth.client_id"}

	if err := sink.Stage("abc123"); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := sink.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	doc := readYAML(t, path)
	oauth := doc["oauth"].(map[string]any)
	if oauth["client_id"] != "abc123" {
		t.Fatalf("client_id not updated: %v", oauth)
	}
	if oauth["issuer"] != "http://localhost:4444" {
		t.Fatalf("sibling field lost: %v", oauth)
	}
	server := doc["server"].(map[string]any)
	if server["port"] != 5173 {
		t.Fatalf("unrelated section lost: %v", server)
	}
}

func TestYAMLSinkCreatesIntermediateMappings(t *testing.T) {
	path := writeYAML(t, "server:\n  port: 5173\n")
	sink := &YAMLSink{Path: path, DotPath: "oauth.client_id"}

	if err := sink.Stage("abc123"); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := sink.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	doc := readYAML(t, path)
	oauth, ok := doc["oauth"].(map[string]any)
	if !ok || oauth["client_id"] != "abc123" {
		t.Fatalf("intermediate mapping not created: %v", doc)
	}
}

func TestYAMLSinkRejectsScalarSegment(t *testing.T) {
	path := writeYAML(t, "oauth: just-a-string\n")
	sink := &YAMLSink{Path: path, DotPath: "oauth.client_id"}

	if err := sink.Stage("abc123"); err == nil {
		t.Fatal("expected error when a path segment is not a mapping")
	}
}
