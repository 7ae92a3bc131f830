package ollama

import (
	"bytes"
	"fmt"
	"text/template"
	"unicode/utf8"
)

// Prompt is a parsed, versioned prompt template. Rendering fails on keys
// missing from the data instead of printing "<no value>".
type Prompt struct {
	Version string
	tpl     *template.Template
}

var promptFuncs = template.FuncMap{
	// truncate cuts s to at most n runes and marks the cut.
	"truncate": func(n int, s string) string {
		if n <= 0 || utf8.RuneCountInString(s) <= n {
			return s
		}
		r := []rune(s)
		return string(r[:n]) + " [truncated]"
	},
}

// ParsePrompt parses text once so bad templates fail at startup.
func ParsePrompt(version, text string) (*Prompt, error) {
	tpl, err := template.New("prompt-" + version).Funcs(promptFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", version, err)
	}
	return &Prompt{Version: version, tpl: tpl}, nil
}

// Render executes the prompt with data.
func (p *Prompt) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := p.tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", p.Version, err)
	}
	return buf.String(), nil
}
