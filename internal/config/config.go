package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Intervue environment variables.
const EnvPrefix = "INTERVUE_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string `yaml:"listen_addr"`
	BackendURL            string `yaml:"backend_url"`
	BackendTimeout        string `yaml:"backend_timeout"`
	DBPath                string `yaml:"db_path"`
	PollInterval          string `yaml:"poll_interval"`
	CameraDevice          string `yaml:"camera_device"`
	MicSampleRate         int    `yaml:"mic_sample_rate"`
	MicSampleRates        []int  `yaml:"mic_sample_rates"`
	FramesPerBuffer       int    `yaml:"frames_per_buffer"`
	FeedbackModel         string `yaml:"feedback_model"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets — env vars only, never serialized to YAML.
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            "127.0.0.1:8765",
		BackendURL:            "http://127.0.0.1:5000",
		BackendTimeout:        "60s",
		DBPath:                "data/intervue.db",
		PollInterval:          "2s",
		CameraDevice:          "/dev/video0",
		MicSampleRate:         16000,
		MicSampleRates:        []int{48000, 44100, 32000, 24000},
		FramesPerBuffer:       1024,
		FeedbackModel:         "openai/gpt-4o-mini",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedPollInterval returns PollInterval as a time.Duration,
// falling back to 2s if the value is invalid.
func (c *Config) ParsedPollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// ParsedBackendTimeout returns BackendTimeout as a time.Duration,
// falling back to 60s if the value is invalid.
func (c *Config) ParsedBackendTimeout() time.Duration {
	d, err := time.ParseDuration(c.BackendTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// SampleRateCandidates returns a deduplicated ordered list of sample rates
// to try: preferred rate first, then configured alternatives, then defaults.
func (c *Config) SampleRateCandidates() []int {
	hardcoded := []int{16000, 48000, 44100, 32000, 24000}

	combined := make([]int, 0, 1+len(c.MicSampleRates)+len(hardcoded))
	combined = append(combined, c.MicSampleRate)
	combined = append(combined, c.MicSampleRates...)
	combined = append(combined, hardcoded...)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv(EnvPrefix + "BACKEND_TIMEOUT"); v != "" {
		cfg.BackendTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "POLL_INTERVAL"); v != "" {
		cfg.PollInterval = v
	}
	if v := os.Getenv(EnvPrefix + "CAMERA_DEVICE"); v != "" {
		cfg.CameraDevice = v
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.MicSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "MIC_SAMPLE_RATES"); v != "" {
		cfg.MicSampleRates = parseSampleRates(v)
	}
	if v := os.Getenv(EnvPrefix + "FRAMES_PER_BUFFER"); v != "" {
		if frames, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && frames > 0 {
			cfg.FramesPerBuffer = frames
		}
	}
	if v := os.Getenv(EnvPrefix + "FEEDBACK_MODEL"); v != "" {
		cfg.FeedbackModel = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

// APIKeyFor returns the configured secret for an LLM provider, or empty
// when the provider is unknown or not configured.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return ""
	}
}

func validate(cfg *Config) []string {
	var warnings []string

	provider := strings.SplitN(cfg.FeedbackModel, "/", 2)[0]
	if cfg.APIKeyFor(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("No API key configured for feedback provider %q — coaching feedback is disabled. Set %s%s_API_KEY.", provider, EnvPrefix, strings.ToUpper(provider)))
	}
	if cfg.GDriveFolderID == "" {
		warnings = append(warnings, "Drive folder not configured — report upload is disabled. Set "+EnvPrefix+"GDRIVE_FOLDER_ID.")
	}
	if _, err := time.ParseDuration(cfg.PollInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid poll_interval %q — using default 2s.", cfg.PollInterval))
	}
	if _, err := time.ParseDuration(cfg.BackendTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid backend_timeout %q — using default 60s.", cfg.BackendTimeout))
	}

	return warnings
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	seen := make(map[int]struct{}, len(parts))
	result := make([]int, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		rate, err := strconv.Atoi(trimmed)
		if err != nil || rate <= 0 {
			continue
		}
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}

	return result
}
