package grading

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garnizeh/contest/internal/config"
	"github.com/garnizeh/contest/internal/schemas"
	"github.com/garnizeh/contest/pkg/ollama"
)

func loader(t *testing.T) *schemas.Loader {
	t.Helper()
	l, err := schemas.NewLoader()
	require.NoError(t, err)
	return l
}

func TestResultApproval(t *testing.T) {
	score := 42.5
	huge := 1e300
	ceiling := float64(MaxScore)
	negative := -1.0
	cases := []struct {
		name   string
		r      *Result
		points int
		ok     bool
	}{
		{"nil", nil, 0, false},
		{"not approved", &Result{Success: true, Score: &score}, 0, false},
		{"no score", &Result{Success: true, AutoApproved: true}, 0, false},
		{"failed", &Result{AutoApproved: true, Score: &score}, 0, false},
		{"approved", &Result{Success: true, AutoApproved: true, Score: &score}, 43, true},
		{"at ceiling", &Result{Success: true, AutoApproved: true, Score: &ceiling}, MaxScore, true},
		{"above ceiling", &Result{Success: true, AutoApproved: true, Score: &huge}, 0, false},
		{"negative", &Result{Success: true, AutoApproved: true, Score: &negative}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := tc.r.Approval()
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.points, p)
		})
	}
}

func TestParse(t *testing.T) {
	l := loader(t)
	ctx := context.Background()

	r, err := Parse(ctx, l, []byte(`{"success":true,"auto_approved":true,"score":10,"feedback":"nice"}`))
	require.NoError(t, err)
	require.True(t, r.AutoApproved)
	require.Equal(t, 10.0, *r.Score)
	require.Equal(t, "nice", *r.Feedback)

	_, err = Parse(ctx, l, []byte(`{"success":"yes"}`))
	require.ErrorIs(t, err, ErrMalformedResult)

	_, err = Parse(ctx, l, []byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedResult)
}

func TestUserRef(t *testing.T) {
	a := UserRef("salt", 7)
	require.Equal(t, a, UserRef("salt", 7))
	require.NotEqual(t, a, UserRef("salt", 8))
	require.NotEqual(t, a, UserRef("pepper", 7))
}

func TestWebhookGrader(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"auto_approved":true,"score":80}`))
	}))
	defer srv.Close()

	g := NewWebhookGrader(srv.URL, time.Second, nil, loader(t))
	res, err := g.Grade(context.Background(), Request{
		AnswerText:     "flag{x}",
		OpaqueUserRef:  "ref",
		ChallengeTitle: "hidden",
	})
	require.NoError(t, err)
	pts, ok := res.Approval()
	require.True(t, ok)
	require.Equal(t, 80, pts)

	require.Equal(t, "flag{x}", got["answer_text"])
	require.Equal(t, "ref", got["opaque_user_ref"])
	require.Equal(t, []any{}, got["attachment_urls"])
	require.NotContains(t, got, "ChallengeTitle")
	require.Len(t, got, 3)
}

func TestWebhookGrader_OutOfRangeScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"auto_approved":true,"score":1e300}`))
	}))
	defer srv.Close()

	g := NewWebhookGrader(srv.URL, time.Second, nil, loader(t))
	res, err := g.Grade(context.Background(), Request{AnswerText: "flag{x}", OpaqueUserRef: "ref"})
	require.NoError(t, err)
	pts, ok := res.Approval()
	require.False(t, ok)
	require.Zero(t, pts)
}

func TestWebhookGrader_Failures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error is retryable", http.StatusBadGateway, ``, nil},
		{"client error is rejected", http.StatusBadRequest, `nope`, ErrRejected},
		{"bad body is malformed", http.StatusOK, `{"score":1}`, ErrMalformedResult},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			g := NewWebhookGrader(srv.URL, time.Second, nil, loader(t))
			_, err := g.Grade(context.Background(), Request{AnswerText: "a"})
			require.Error(t, err)
			if tc.wantErr == nil {
				require.False(t, errors.Is(err, ErrRejected) || errors.Is(err, ErrMalformedResult))
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

type fakeGenerator struct {
	text   string
	err    error
	prompt string
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, _ string, prompt string) (ollama.GenerateResult, error) {
	f.prompt = prompt
	return ollama.GenerateResult{Text: f.text}, f.err
}

func TestOllamaGrader(t *testing.T) {
	gen := &fakeGenerator{text: "Sure:\n```json\n{\"success\":true,\"auto_approved\":true,\"score\":250}\n```"}
	g, err := newOllamaGrader(gen, config.GradingConfig{Model: "llama3"}, loader(t), nil)
	require.NoError(t, err)

	res, err := g.Grade(context.Background(), Request{
		AnswerText:     "42",
		AttachmentURLs: []string{"http://files/a.png"},
		ChallengeTitle: "Meaning",
		MaxPoints:      100,
	})
	require.NoError(t, err)
	require.Equal(t, 100.0, *res.Score, "score is clamped to the challenge maximum")
	require.Contains(t, gen.prompt, "Meaning")
	require.Contains(t, gen.prompt, "http://files/a.png")

	gen.text = "I cannot grade this"
	_, err = g.Grade(context.Background(), Request{AnswerText: "x"})
	require.ErrorIs(t, err, ErrMalformedResult)

	gen.err = errors.New("connection refused")
	_, err = g.Grade(context.Background(), Request{AnswerText: "x"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMalformedResult)
}

func TestNewOllamaGrader_RequiresModel(t *testing.T) {
	_, err := newOllamaGrader(&fakeGenerator{}, config.GradingConfig{}, loader(t), nil)
	require.Error(t, err)

	_, err = NewOllamaGrader(nil, config.GradingConfig{Model: "m"}, loader(t), nil)
	require.Error(t, err)

	_, err = newOllamaGrader(&fakeGenerator{}, config.GradingConfig{Model: "m", Template: config.PromptTemplate{Version: "v9", Template: "{{.Answer"}}, loader(t), nil)
	require.ErrorContains(t, err, "v9", "broken templates fail at construction")
}

func TestOllamaGrader_RealClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "json", req["format"])
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"model": "m", "response": `{"success":true,"auto_approved":false}`, "done": true}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := ollama.NewClient(config.OllamaConfig{BaseURL: srv.URL, Timeout: time.Second}, nil)
	require.NoError(t, err)
	defer client.Close()

	g, err := NewOllamaGrader(client, config.GradingConfig{Model: "m"}, loader(t), nil)
	require.NoError(t, err)
	res, err := g.Grade(context.Background(), Request{AnswerText: "x"})
	require.NoError(t, err)
	_, ok := res.Approval()
	require.False(t, ok)
}

func TestFromConfig(t *testing.T) {
	l := loader(t)

	g, closeFn, err := FromConfig(&config.Config{Grading: config.GradingConfig{Provider: config.ProviderNone}}, l, nil)
	require.NoError(t, err)
	require.Nil(t, g)
	require.NoError(t, closeFn())

	g, _, err = FromConfig(&config.Config{Grading: config.GradingConfig{Provider: config.ProviderWebhook, WebhookURL: "http://grader.test/hook", Timeout: time.Second}}, l, nil)
	require.NoError(t, err)
	require.IsType(t, &WebhookGrader{}, g)

	g, closeFn, err = FromConfig(&config.Config{
		Grading: config.GradingConfig{Provider: config.ProviderOllama, Model: "llama3"},
		Ollama:  config.OllamaConfig{BaseURL: "http://127.0.0.1:11434", Timeout: time.Second},
	}, l, nil)
	require.NoError(t, err)
	require.IsType(t, &OllamaGrader{}, g)
	require.NoError(t, closeFn())

	_, _, err = FromConfig(&config.Config{
		Grading: config.GradingConfig{Provider: config.ProviderOllama},
		Ollama:  config.OllamaConfig{BaseURL: "http://127.0.0.1:11434"},
	}, l, nil)
	require.Error(t, err, "model is required")

	_, _, err = FromConfig(&config.Config{Grading: config.GradingConfig{Provider: "carrier-pigeon"}}, l, nil)
	require.Error(t, err)
}
