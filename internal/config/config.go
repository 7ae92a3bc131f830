package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string         `yaml:"addr"`
	Env           string         `yaml:"env"`
	JWTSecret     string         `yaml:"jwt_secret"`
	APITimeout    time.Duration  `yaml:"timeout"`
	DatabasePath  string         `yaml:"database_path"`
	TokenDuration time.Duration  `yaml:"token_duration"`
	Log           LogConfig      `yaml:"log"`
	Admin         AdminConfig    `yaml:"admin"`
	Platform      PlatformConfig `yaml:"platform"`
	Uploads       UploadConfig   `yaml:"uploads"`
	Grading       GradingConfig  `yaml:"grading"`
	Ollama        OllamaConfig   `yaml:"ollama"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AdminConfig is the account created on first start when no user has that
// username yet.
type AdminConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// PlatformConfig holds the defaults written to platform settings when they
// are missing.
type PlatformConfig struct {
	Name   string `yaml:"name"`
	Logo   string `yaml:"logo"`
	Footer string `yaml:"footer"`
}

type UploadConfig struct {
	Backend           string        `yaml:"backend"`
	Dir               string        `yaml:"dir"`
	PublicBaseURL     string        `yaml:"public_base_url"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
	MaxBytes          int64         `yaml:"max_bytes"`
	S3                S3Config      `yaml:"s3"`
	PresignTTL        time.Duration `yaml:"presign_ttl"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
	Prefix       string `yaml:"prefix"`
}

type GradingConfig struct {
	// Provider is none, webhook or ollama.
	Provider     string         `yaml:"provider"`
	WebhookURL   string         `yaml:"webhook_url"`
	Timeout      time.Duration  `yaml:"timeout"`
	Workers      int            `yaml:"workers"`
	PollInterval time.Duration  `yaml:"poll_interval"`
	MaxAttempts  int            `yaml:"max_attempts"`
	Model        string         `yaml:"model"`
	Template     PromptTemplate `yaml:"template"`
	UserRefSalt  string         `yaml:"user_ref_salt"`
}

type PromptTemplate struct {
	Version  string `yaml:"version"`
	Template string `yaml:"template"`
}

type OllamaConfig struct {
	BaseURL                 string        `yaml:"base_url"`
	DefaultModelNames       []string      `yaml:"models"`
	Timeout                 time.Duration `yaml:"timeout"`
	Retries                 int           `yaml:"retries"`
	Backoff                 time.Duration `yaml:"backoff"`
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitReset            time.Duration `yaml:"circuit_reset"`
}

const (
	ProviderNone    = "none"
	ProviderWebhook = "webhook"
	ProviderOllama  = "ollama"

	BackendLocal = "local"
	BackendS3    = "s3"
)

// DefaultAllowedExtensions are the attachment extensions accepted when the
// config does not list its own.
var DefaultAllowedExtensions = []string{"png", "jpg", "jpeg", "gif", "txt", "pdf", "zip"}

var insecureSecrets = map[string]bool{"": true, "supersecretkey": true, "changeme": true, "secret": true}

// LoadConfig builds the configuration from defaults, the environment (a .env
// file in the working directory is loaded first when present) and, when path
// is set, a YAML file whose values win over both.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Addr:          getEnv("CONTEST_ADDR", ":8080"),
		Env:           getEnv("CONTEST_ENV", ""),
		JWTSecret:     getEnv("CONTEST_JWT_SECRET", "supersecretkey"),
		APITimeout:    getDuration("CONTEST_TIMEOUT", 15*time.Second),
		DatabasePath:  getEnv("CONTEST_DATABASE_PATH", "contest.db"),
		TokenDuration: getDuration("CONTEST_TOKEN_DURATION", 24*time.Hour),
		Log: LogConfig{
			Level:  getEnv("CONTEST_LOG_LEVEL", "info"),
			Format: getEnv("CONTEST_LOG_FORMAT", "json"),
		},
		Admin: AdminConfig{
			Username: getEnv("CONTEST_ADMIN_USERNAME", "admin"),
			Email:    getEnv("CONTEST_ADMIN_EMAIL", "admin@ctf.local"),
			Password: getEnv("CONTEST_ADMIN_PASSWORD", "admin123"),
		},
		Platform: PlatformConfig{
			Name:   getEnv("CONTEST_PLATFORM_NAME", "CTF Platform"),
			Logo:   getEnv("CONTEST_PLATFORM_LOGO", ""),
			Footer: getEnv("CONTEST_PLATFORM_FOOTER", ""),
		},
		Uploads: UploadConfig{
			Backend:       getEnv("CONTEST_UPLOAD_BACKEND", BackendLocal),
			Dir:           getEnv("CONTEST_UPLOAD_DIR", "uploads"),
			PublicBaseURL: getEnv("CONTEST_UPLOAD_PUBLIC_URL", "http://localhost:8080/uploads"),
			MaxBytes:      getInt64("CONTEST_UPLOAD_MAX_BYTES", 16<<20),
			S3: S3Config{
				Bucket:    getEnv("CONTEST_S3_BUCKET", ""),
				Region:    getEnv("CONTEST_S3_REGION", "us-east-1"),
				Endpoint:  getEnv("CONTEST_S3_ENDPOINT", ""),
				AccessKey: getEnv("CONTEST_S3_ACCESS_KEY", ""),
				SecretKey: getEnv("CONTEST_S3_SECRET_KEY", ""),
			},
		},
		Grading: GradingConfig{
			Provider:   getEnv("CONTEST_GRADING_PROVIDER", ProviderNone),
			WebhookURL: getEnv("CONTEST_GRADING_WEBHOOK_URL", ""),
			Model:      getEnv("CONTEST_GRADING_MODEL", ""),
		},
		Ollama: OllamaConfig{
			BaseURL: getEnv("CONTEST_OLLAMA_URL", ""),
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the config targets a development setup.
func (c *Config) IsDevelopment() bool {
	env := c.Env
	if env == "" {
		env = os.Getenv("CONTEST_ENV")
	}
	return strings.EqualFold(env, "development") || strings.EqualFold(env, "dev")
}

// Validate fills defaults for zero values and rejects unusable settings.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.TokenDuration <= 0 {
		c.TokenDuration = 24 * time.Hour
	}
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if insecureSecrets[c.JWTSecret] && !c.IsDevelopment() {
		return errors.New("jwt_secret is insecure; set CONTEST_JWT_SECRET or run with env=development")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	if c.Admin.Username == "" || c.Admin.Email == "" || c.Admin.Password == "" {
		return errors.New("admin username, email and password are required")
	}

	if len(c.Uploads.AllowedExtensions) == 0 {
		c.Uploads.AllowedExtensions = append([]string(nil), DefaultAllowedExtensions...)
	}
	if c.Uploads.MaxBytes <= 0 {
		c.Uploads.MaxBytes = 16 << 20
	}
	if c.Uploads.PresignTTL <= 0 {
		c.Uploads.PresignTTL = 24 * time.Hour
	}
	switch c.Uploads.Backend {
	case "", BackendLocal:
		c.Uploads.Backend = BackendLocal
		if c.Uploads.Dir == "" {
			c.Uploads.Dir = "uploads"
		}
	case BackendS3:
		if c.Uploads.S3.Bucket == "" {
			return errors.New("uploads.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown upload backend %q", c.Uploads.Backend)
	}

	g := &c.Grading
	if g.Workers <= 0 {
		g.Workers = 2
	}
	if g.MaxAttempts <= 0 {
		g.MaxAttempts = 5
	}
	if g.Timeout <= 0 {
		g.Timeout = 10 * time.Second
	}
	if g.PollInterval <= 0 {
		g.PollInterval = 500 * time.Millisecond
	}
	switch g.Provider {
	case "", ProviderNone:
		g.Provider = ProviderNone
	case ProviderWebhook:
		if g.WebhookURL == "" {
			return errors.New("grading.webhook_url is required for the webhook provider")
		}
	case ProviderOllama:
		if g.Model == "" {
			return errors.New("grading.model is required for the ollama provider")
		}
		if g.Template.Version == "" {
			g.Template.Version = "v1"
		}
	default:
		return fmt.Errorf("unknown grading provider %q", g.Provider)
	}

	o := &c.Ollama
	if o.BaseURL == "" {
		o.BaseURL = "http://localhost:11434"
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Retries == 0 {
		o.Retries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.CircuitFailureThreshold <= 0 {
		o.CircuitFailureThreshold = 5
	}
	if o.CircuitReset <= 0 {
		o.CircuitReset = 30 * time.Second
	}

	return nil
}

// NewLogger builds the slog logger described by the log section.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
