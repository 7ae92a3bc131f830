package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/garnizeh/contest/internal/config"
	"github.com/garnizeh/contest/internal/schemas"
	"github.com/garnizeh/contest/pkg/ollama"
)

// DefaultTemplate is the prompt used when the config does not provide one.
var DefaultTemplate = config.PromptTemplate{
	Version: "v1",
	Template: `You are grading an answer to a competition challenge.

Challenge: {{.Title}}
{{.Description}}

Maximum points: {{.MaxPoints}}

Answer:
{{truncate 8000 .Answer}}
{{if .Attachments}}
Attached files:
{{range .Attachments}}- {{.}}
{{end}}{{end}}
Reply with a single JSON object and nothing else:
{"success": true, "auto_approved": <true if the answer is clearly correct>, "score": <points between 0 and the maximum>, "feedback": "<one sentence>"}`,
}

type generator interface {
	GenerateJSON(ctx context.Context, model, prompt string) (ollama.GenerateResult, error)
}

// OllamaGrader asks a local model to grade a submission.
type OllamaGrader struct {
	client  generator
	model   string
	prompt  *ollama.Prompt
	timeout time.Duration
	loader  *schemas.Loader
	logger  *slog.Logger
}

func NewOllamaGrader(client *ollama.Client, cfg config.GradingConfig, loader *schemas.Loader, logger *slog.Logger) (*OllamaGrader, error) {
	if client == nil {
		return nil, errors.New("ollama client is required")
	}
	return newOllamaGrader(client, cfg, loader, logger)
}

func newOllamaGrader(client generator, cfg config.GradingConfig, loader *schemas.Loader, logger *slog.Logger) (*OllamaGrader, error) {
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if loader == nil {
		return nil, errors.New("schema loader is required")
	}
	tpl := cfg.Template
	if strings.TrimSpace(tpl.Template) == "" {
		tpl = DefaultTemplate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	prompt, err := ollama.ParsePrompt(tpl.Version, tpl.Template)
	if err != nil {
		return nil, err
	}
	return &OllamaGrader{client: client, model: cfg.Model, prompt: prompt, timeout: cfg.Timeout, loader: loader, logger: logger}, nil
}

func (g *OllamaGrader) Grade(ctx context.Context, req Request) (*Result, error) {
	data := map[string]any{
		"Title":       req.ChallengeTitle,
		"Description": req.ChallengeDescription,
		"MaxPoints":   req.MaxPoints,
		"Answer":      req.AnswerText,
		"Attachments": req.AttachmentURLs,
	}
	prompt, err := g.prompt.Render(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	ctxReq, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.client.GenerateJSON(ctxReq, g.model, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	j := extractJSON(out.Text)
	if j == "" {
		g.logger.Warn("grader output has no JSON object", "raw", out.Text)
		return nil, fmt.Errorf("%w: no JSON object in model output", ErrMalformedResult)
	}

	res, err := Parse(ctx, g.loader, []byte(j))
	if err != nil {
		g.logger.Warn("grader output rejected", "err", err, "raw", out.Text)
		return nil, err
	}

	// models drift outside the range they were given
	if res.Score != nil && req.MaxPoints > 0 {
		s := math.Min(math.Max(*res.Score, 0), float64(req.MaxPoints))
		res.Score = &s
	}

	return res, nil
}

// extractJSON returns the substring from the first '{' to the last '}',
// which tolerates models that wrap their JSON in prose or markdown fences.
func extractJSON(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last == -1 || last < first {
		return ""
	}
	return s[first : last+1]
}
