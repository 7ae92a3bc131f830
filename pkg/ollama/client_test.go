package ollama_test

import (
	"strings"
	"testing"

	"github.com/garnizeh/contest/pkg/ollama"
)

func TestPrompt_Render(t *testing.T) {
	p, err := ollama.ParsePrompt("v2", "Grade {{.Title}} out of {{.MaxPoints}}: {{truncate 5 .Answer}}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Version != "v2" {
		t.Fatalf("unexpected version %q", p.Version)
	}

	out, err := p.Render(map[string]any{"Title": "Warmup", "MaxPoints": 50, "Answer": "flag{abcdef}"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Grade Warmup out of 50: flag{ [truncated]" {
		t.Fatalf("unexpected prompt %q", out)
	}

	out, err = p.Render(map[string]any{"Title": "Warmup", "MaxPoints": 50, "Answer": "héllo"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasSuffix(out, "héllo") {
		t.Fatalf("short answers must not be cut, got %q", out)
	}
}

func TestPrompt_Errors(t *testing.T) {
	if _, err := ollama.ParsePrompt("bad", "{{.Title"); err == nil {
		t.Fatalf("expected parse error")
	}

	p, err := ollama.ParsePrompt("v1", "{{.Title}} {{.Missing}}")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = p.Render(map[string]any{"Title": "x"})
	if err == nil || !strings.Contains(err.Error(), "v1") {
		t.Fatalf("expected a render error naming the version, got %v", err)
	}
}
