// Package config loads the service configuration: defaults, then an
// optional fieldback.yaml, then environment variables. A .env file in the
// working directory is loaded first and never overrides variables already
// set in the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/fieldback/mail"
)

// Config holds the full fieldbackd configuration.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	DBPath     string          `yaml:"db_path"`
	JWT        JWTConfig       `yaml:"jwt"`
	SuperAdmin SuperAdmin      `yaml:"superadmin"`
	SMTP       mail.Config     `yaml:"smtp"`
	AI         AIConfig        `yaml:"ai"`
	Retention  RetentionConfig `yaml:"retention"`
	Reports    ReportsConfig   `yaml:"reports"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Listen    string          `yaml:"listen"`
	MaxBodyMB int             `yaml:"max_body_mb"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig sets per-client per-minute request budgets.
type RateLimitConfig struct {
	AuthPerMin   int `yaml:"auth_per_min"`
	UploadPerMin int `yaml:"upload_per_min"`
	QAPerMin     int `yaml:"qa_per_min"`
}

// JWTConfig controls token issuance.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// SuperAdmin is the seeded landlord account.
type SuperAdmin struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// AIConfig configures the external enrichment services. An empty Endpoint
// (or Enabled=false) runs the pipeline in heuristic-only mode.
type AIConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Endpoint     string   `yaml:"endpoint"`
	APIKey       string   `yaml:"api_key"`
	Model        string   `yaml:"model"`
	WhisperModel string   `yaml:"whisper_model"`
	OCREndpoint  string   `yaml:"ocr_endpoint"`
	OCRAPIKey    string   `yaml:"ocr_api_key"`
	Language     string   `yaml:"language"`
	OCRLanguages []string `yaml:"ocr_languages"`
}

// RetentionConfig controls the raw-insight purge job.
type RetentionConfig struct {
	PurgeRaw       bool `yaml:"purge_raw"`
	RawWeeksToKeep int  `yaml:"raw_weeks_to_keep"`
}

// ReportsConfig controls weekly report generation.
type ReportsConfig struct {
	// Dir receives the exported XLSX workbooks. Empty disables export.
	Dir string `yaml:"dir"`
	// Schedule enables the in-process weekly generation ticker.
	Schedule bool `yaml:"schedule"`
}

// Default returns the configuration before file and environment overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:    ":8080",
			MaxBodyMB: 10,
			RateLimit: RateLimitConfig{
				AuthPerMin:   30,
				UploadPerMin: 60,
				QAPerMin:     30,
			},
		},
		DBPath: "fieldback.db",
		JWT: JWTConfig{
			TTL: 24 * time.Hour,
		},
		SuperAdmin: SuperAdmin{
			Username: "fieldbackmaster",
		},
		AI: AIConfig{
			Enabled:      true,
			Model:        "gpt-4o-mini",
			WhisperModel: "whisper-1",
			Language:     "it",
			OCRLanguages: []string{"ita", "eng"},
		},
		Retention: RetentionConfig{
			PurgeRaw:       true,
			RawWeeksToKeep: 0,
		},
		Reports: ReportsConfig{
			Schedule: true,
		},
	}
}

// Load builds the configuration. path names an optional YAML file; ""
// skips the file step. Environment variables win over the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	envStr("LISTEN", &c.Server.Listen)
	envInt("MAX_BODY_MB", &c.Server.MaxBodyMB)
	envInt("RATE_LIMIT_AUTH_PER_MIN", &c.Server.RateLimit.AuthPerMin)
	envInt("RATE_LIMIT_UPLOAD_PER_MIN", &c.Server.RateLimit.UploadPerMin)
	envInt("RATE_LIMIT_QA_PER_MIN", &c.Server.RateLimit.QAPerMin)

	envStr("DB_PATH", &c.DBPath)
	envStr("JWT_SECRET", &c.JWT.Secret)
	if v := os.Getenv("JWT_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.JWT.TTL = time.Duration(secs) * time.Second
		}
	}

	envStr("SUPERADMIN_USERNAME", &c.SuperAdmin.Username)
	envStr("SUPERADMIN_PASSWORD", &c.SuperAdmin.Password)

	envStr("SMTP_HOST", &c.SMTP.Host)
	envInt("SMTP_PORT", &c.SMTP.Port)
	envStr("SMTP_USER", &c.SMTP.User)
	envStr("SMTP_PASS", &c.SMTP.Pass)
	envStr("SMTP_FROM", &c.SMTP.From)

	envBool("ENABLE_AI_PROCESSING", &c.AI.Enabled)
	envStr("OPENAI_ENDPOINT", &c.AI.Endpoint)
	envStr("OPENAI_API_KEY", &c.AI.APIKey)
	envStr("OPENAI_MODEL", &c.AI.Model)
	envStr("OPENAI_WHISPER_MODEL", &c.AI.WhisperModel)
	envStr("OCR_ENDPOINT", &c.AI.OCREndpoint)
	envStr("OCR_API_KEY", &c.AI.OCRAPIKey)
	envStr("INSIGHT_LANGUAGE", &c.AI.Language)
	if v := os.Getenv("OCR_LANGUAGES"); v != "" {
		var langs []string
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				langs = append(langs, l)
			}
		}
		if len(langs) > 0 {
			c.AI.OCRLanguages = langs
		}
	}

	envBool("PURGE_RAW", &c.Retention.PurgeRaw)
	envInt("RAW_WEEKS_TO_KEEP", &c.Retention.RawWeeksToKeep)

	envStr("REPORTS_DIR", &c.Reports.Dir)
	envBool("SCHEDULE_REPORTS", &c.Reports.Schedule)

	// AI endpoint defaults to the public API only once a key is present,
	// so a bare environment stays fully offline.
	if c.AI.Endpoint == "" && c.AI.APIKey != "" {
		c.AI.Endpoint = "https://api.openai.com"
	}
	if !c.AI.Enabled {
		c.AI.Endpoint = ""
		c.AI.OCREndpoint = ""
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Server.MaxBodyMB <= 0 {
		return fmt.Errorf("server.max_body_mb must be > 0")
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("jwt.ttl must be > 0")
	}
	if c.Retention.RawWeeksToKeep < 0 {
		return fmt.Errorf("retention.raw_weeks_to_keep must be >= 0")
	}
	return nil
}

// MaxBodyBytes returns the request body cap in bytes.
func (c *ServerConfig) MaxBodyBytes() int64 { return int64(c.MaxBodyMB) * 1024 * 1024 }

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
