// Package schemas compiles the JSON Schemas that guard documents crossing
// the system boundary: grader responses and competition imports.
package schemas

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"
)

//go:embed json/*.json
var builtin embed.FS

const (
	GradeResult       = "grade_result"
	CompetitionImport = "competition_import"
)

// ValidationError lists the schema violations found in a document.
type ValidationError struct {
	Schema   string
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("document does not match %s schema: %s", e.Schema, strings.Join(e.Messages, "; "))
}

// Loader loads and caches compiled JSON schemas.
type Loader struct {
	src   fs.FS
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewLoader compiles every schema shipped with the binary.
func NewLoader() (*Loader, error) {
	return NewLoaderFS(builtin)
}

// NewLoaderFS compiles every json/*.json file of src, keyed by file name
// without extension.
func NewLoaderFS(src fs.FS) (*Loader, error) {
	l := &Loader{src: src, cache: make(map[string]*jsonschema.Schema)}
	if err := l.Reload(); err != nil {
		return nil, err
	}

	return l, nil
}

// MustLoad is NewLoader for package-level wiring where the embedded schemas
// are known to compile.
func MustLoad() *Loader {
	l, err := NewLoader()
	if err != nil {
		panic(err)
	}
	return l
}

// GetSchema returns a compiled schema by name.
func (l *Loader) GetSchema(name string) (*jsonschema.Schema, bool) {
	l.mu.RLock()
	s, ok := l.cache[name]
	l.mu.RUnlock()

	return s, ok
}

// Reload recompiles all schemas.
func (l *Loader) Reload() error {
	entries, err := fs.ReadDir(l.src, "json")
	if err != nil {
		return fmt.Errorf("read schemas: %w", err)
	}

	newCache := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := fs.ReadFile(l.src, path.Join("json", e.Name()))
		if err != nil {
			return fmt.Errorf("read schema %s: %w", e.Name(), err)
		}
		rs := &jsonschema.Schema{}
		if err := json.Unmarshal(b, rs); err != nil {
			return fmt.Errorf("compile schema %s: %w", e.Name(), err)
		}
		newCache[strings.TrimSuffix(e.Name(), ".json")] = rs
	}

	l.mu.Lock()
	l.cache = newCache
	l.mu.Unlock()
	return nil
}

// Validate checks data against the named schema. Violations are reported as
// *ValidationError; malformed JSON is reported as a plain error.
func (l *Loader) Validate(ctx context.Context, name string, data []byte) error {
	schema, ok := l.GetSchema(name)
	if !ok || schema == nil {
		return fmt.Errorf("no schema named %s", name)
	}

	verrs, err := schema.ValidateBytes(ctx, data)
	if err != nil {
		return fmt.Errorf("schema validate: %w", err)
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, v := range verrs {
			if v.PropertyPath != "" && v.PropertyPath != "/" {
				msgs = append(msgs, v.PropertyPath+": "+v.Message)
				continue
			}
			msgs = append(msgs, v.Message)
		}
		return &ValidationError{Schema: name, Messages: msgs}
	}
	return nil
}
