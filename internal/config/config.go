package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	defaultConfigFile = "config.json"

	DefaultTemperature float32 = 0.7
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig   BasicConfig               `json:"basic_config"`
	Providers     map[string]ProviderConfig `json:"providers"`
	Downloader    DownloaderConfig          `json:"downloader"`
	Transcription TranscriptionConfig       `json:"transcription"`
	Generation    GenerationConfig          `json:"generation"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type BasicConfig struct {
	ServerAddress     string   `json:"server_address"`
	Environment       string   `json:"environment"`
	AllowedOrigins    []string `json:"allowed_origins"`
	PublicBaseURL     string   `json:"public_base_url"`
	TempDir           string   `json:"temp_dir"`
	TempFileTTL       int      `json:"temp_file_ttl"`       // minutes
	TempCleanInterval int      `json:"temp_clean_interval"` // minutes
	LogLevel          string   `json:"log_level"`
	MaxQuestions      int      `json:"max_questions"`
}

type DownloaderConfig struct {
	BinaryPath     string `json:"binary_path"`
	CookiesPath    string `json:"cookies_path"`
	AudioFormat    string `json:"audio_format"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MaxConcurrent  int    `json:"max_concurrent"`
}

type TranscriptionConfig struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	Language       string `json:"language"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type GenerationConfig struct {
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	Temperature      *float32 `json:"temperature"` // nil means DefaultTemperature; 0 is honoured
	SummaryMaxTokens int      `json:"summary_max_tokens"`
	AnswerMaxTokens  int      `json:"answer_max_tokens"`
	TimeoutSeconds   int      `json:"timeout_seconds"`
}

// Load reads configuration from the provided path (defaults to config.json),
// applies environment overrides and validates the result. A missing default
// file is tolerated so the service can run from the environment alone.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if cfg.BasicConfig.TempDir != "" && !filepath.IsAbs(cfg.BasicConfig.TempDir) {
			cfg.BasicConfig.TempDir = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.TempDir)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays well-known environment variables on top of the file values.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if port, ok := get("PORT"); ok {
		c.BasicConfig.ServerAddress = ":" + strings.TrimPrefix(port, ":")
	}
	if env, ok := get("APP_ENV"); ok {
		c.BasicConfig.Environment = env
	}
	if origins, ok := get("ALLOWED_ORIGINS"); ok {
		c.BasicConfig.AllowedOrigins = splitList(origins)
	} else if origin, ok := get("FRONTEND_URL"); ok {
		c.BasicConfig.AllowedOrigins = []string{origin}
	}
	if base, ok := get("PUBLIC_BASE_URL"); ok {
		c.BasicConfig.PublicBaseURL = base
	}
	if dir, ok := get("TEMP_DIR"); ok {
		c.BasicConfig.TempDir = dir
	}
	if lvl, ok := get("LOG_LEVEL"); ok {
		c.BasicConfig.LogLevel = lvl
	}
	if bin, ok := get("YTDLP_PATH"); ok {
		c.Downloader.BinaryPath = bin
	}
	if cookies, ok := get("YTDLP_COOKIES"); ok {
		c.Downloader.CookiesPath = cookies
	}

	for provider, key := range map[string]string{
		"openai": "OPENAI_API_KEY",
		"gemini": "GEMINI_API_KEY",
		"claude": "ANTHROPIC_API_KEY",
	} {
		apiKey, ok := get(key)
		if !ok {
			continue
		}
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p := c.Providers[provider]
		p.APIKey = apiKey
		c.Providers[provider] = p
	}
}

// Validate fills defaults and checks that the selected providers are usable.
func (c *Config) Validate() error {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":3001"
	}
	if b.Environment == "" {
		b.Environment = EnvProduction
	}
	if len(b.AllowedOrigins) == 0 {
		b.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if b.TempDir == "" {
		b.TempDir = "./temp"
	}
	if b.TempFileTTL <= 0 {
		b.TempFileTTL = 60
	}
	if b.TempCleanInterval <= 0 {
		b.TempCleanInterval = 15
	}
	if b.LogLevel == "" {
		b.LogLevel = "info"
	}
	if b.MaxQuestions <= 0 {
		b.MaxQuestions = 6
	}

	d := &c.Downloader
	if d.BinaryPath == "" {
		d.BinaryPath = "yt-dlp"
	}
	if d.AudioFormat == "" {
		d.AudioFormat = "mp3"
	}
	if d.TimeoutSeconds <= 0 {
		d.TimeoutSeconds = 120
	}
	if d.MaxConcurrent <= 0 {
		d.MaxConcurrent = 4
	}

	t := &c.Transcription
	if t.Provider == "" {
		t.Provider = "openai"
	}
	if t.TimeoutSeconds <= 0 {
		t.TimeoutSeconds = 120
	}
	switch t.Provider {
	case "openai":
		if t.Model == "" {
			t.Model = "whisper-1"
		}
	case "gemini":
		if t.Model == "" {
			t.Model = "gemini-2.5-flash"
		}
	default:
		return fmt.Errorf("transcription.provider %q is not supported", t.Provider)
	}

	g := &c.Generation
	if g.Provider == "" {
		g.Provider = "openai"
	}
	if g.Temperature == nil {
		t := DefaultTemperature
		g.Temperature = &t
	}
	if g.SummaryMaxTokens <= 0 {
		g.SummaryMaxTokens = 5000
	}
	if g.AnswerMaxTokens <= 0 {
		g.AnswerMaxTokens = 1000
	}
	if g.TimeoutSeconds <= 0 {
		g.TimeoutSeconds = 90
	}
	switch g.Provider {
	case "openai", "gemini", "claude":
	default:
		return fmt.Errorf("generation.provider %q is not supported", g.Provider)
	}

	for _, name := range []string{t.Provider, g.Provider} {
		if c.Providers[name].APIKey == "" {
			return fmt.Errorf("api key for provider %s must be configured", name)
		}
	}
	return nil
}

// Provider returns the settings for name; the zero value when unset.
func (c *Config) Provider(name string) ProviderConfig {
	return c.Providers[name]
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.BasicConfig.Environment, EnvProduction)
}

func (c *Config) TempFileTTL() time.Duration {
	return time.Duration(c.BasicConfig.TempFileTTL) * time.Minute
}

func (c *Config) TempCleanInterval() time.Duration {
	return time.Duration(c.BasicConfig.TempCleanInterval) * time.Minute
}

func (d DownloaderConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

func (t TranscriptionConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// TemperatureValue returns the configured temperature, DefaultTemperature when unset.
func (g GenerationConfig) TemperatureValue() float32 {
	if g.Temperature == nil {
		return DefaultTemperature
	}
	return *g.Temperature
}

func (g GenerationConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
