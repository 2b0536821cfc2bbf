package installer

import "testing"

func TestParseManifest_Valid(t *testing.T) {
	raw := []byte(`{
		"name": "sentiment",
		"module": "handler.so",
		"version": "1.0",
		"model": {"clf": {"type": "onnx", "file": "clf.onnx"}}
	}`)
	m, err := ParseManifest(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "sentiment" || m.Module != "handler.so" {
		t.Fatalf("unexpected manifest: %+v", m)
	}
	if m.Model["clf"].Type != "onnx" || m.Model["clf"].File != "clf.onnx" {
		t.Fatalf("unexpected model entry: %+v", m.Model["clf"])
	}
}

func TestParseManifest_RejectsUnknownKey(t *testing.T) {
	raw := []byte(`{"name": "x", "module": "m.so", "model": {"a": {"type": "t", "file": "f"}}, "bogus": 1}`)
	if _, err := ParseManifest(raw); err == nil {
		t.Fatal("expected error for unknown manifest key")
	}
}

func TestParseManifest_RejectsInvalidJSON(t *testing.T) {
	if _, err := ParseManifest([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestParseManifest_RejectsMissingName(t *testing.T) {
	raw := []byte(`{"module": "m.so", "model": {"a": {"type": "t", "file": "f"}}}`)
	if _, err := ParseManifest(raw); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestParseManifest_RejectsMissingModule(t *testing.T) {
	raw := []byte(`{"name": "x", "model": {"a": {"type": "t", "file": "f"}}}`)
	if _, err := ParseManifest(raw); err == nil {
		t.Fatal("expected error for missing module")
	}
}

func TestParseManifest_RejectsEmptyModel(t *testing.T) {
	raw := []byte(`{"name": "x", "module": "m.so", "model": {}}`)
	if _, err := ParseManifest(raw); err == nil {
		t.Fatal("expected error for empty model map")
	}
}

func TestParseManifest_RejectsIncompleteModelEntry(t *testing.T) {
	raw := []byte(`{"name": "x", "module": "m.so", "model": {"a": {"type": "t"}}}`)
	if _, err := ParseManifest(raw); err == nil {
		t.Fatal("expected error for model entry missing file")
	}
}
