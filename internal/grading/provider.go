package grading

import (
	"fmt"
	"log/slog"

	"github.com/garnizeh/contest/internal/config"
	"github.com/garnizeh/contest/internal/schemas"
	"github.com/garnizeh/contest/pkg/ollama"
)

// FromConfig builds the grader named by cfg.Grading.Provider. It returns a
// nil Grader for the none provider. The returned close func is never nil.
func FromConfig(cfg *config.Config, loader *schemas.Loader, logger *slog.Logger) (Grader, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Grading.Provider {
	case "", config.ProviderNone:
		return nil, noop, nil
	case config.ProviderWebhook:
		return NewWebhookGrader(cfg.Grading.WebhookURL, cfg.Grading.Timeout, nil, loader), noop, nil
	case config.ProviderOllama:
		client, err := ollama.NewDefaultClient(cfg.Ollama)
		if err != nil {
			return nil, noop, fmt.Errorf("ollama client: %w", err)
		}
		g, err := NewOllamaGrader(client, cfg.Grading, loader, logger)
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return g, client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown grading provider %q", cfg.Grading.Provider)
	}
}
