package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory, used for the SQLite database file
	Data string
	// DSN points to where nfintake stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// CORSOrigin is the browser origin allowed to call the API.
	CORSOrigin string
	// MaxUploadBytes bounds the size of an uploaded invoice PDF.
	MaxUploadBytes int64

	// AI Configuration
	AIEnabled             bool   // NFINTAKE_AI_ENABLED
	AIEmbeddingProvider   string // NFINTAKE_AI_EMBEDDING_PROVIDER (default: gemini)
	AILLMProvider         string // NFINTAKE_AI_LLM_PROVIDER (default: gemini)
	AIGeminiAPIKey        string // NFINTAKE_AI_GEMINI_API_KEY (legacy: GEMINI_API_KEY)
	AIOpenAIAPIKey        string // NFINTAKE_AI_OPENAI_API_KEY
	AIOpenAIBaseURL       string // NFINTAKE_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AIEmbeddingModel      string // NFINTAKE_AI_EMBEDDING_MODEL (default: text-embedding-004)
	AIEmbeddingDimensions int    // NFINTAKE_AI_EMBEDDING_DIMENSIONS (default: 768)
	AILLMModel            string // NFINTAKE_AI_LLM_MODEL (default: gemini-2.5-flash)
	AIExtractionModel     string // NFINTAKE_AI_EXTRACTION_MODEL (default: gemini-2.5-flash)
}

const (
	defaultCORSOrigin     = "http://localhost:5173"
	defaultMaxUploadBytes = 5 << 20
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and at least one provider key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && (p.AIGeminiAPIKey != "" || p.AIOpenAIAPIKey != "")
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads AI configuration from environment variables.
// GEMINI_API_KEY is honoured as a fallback for the Gemini key.
func (p *Profile) FromEnv() {
	p.AIEnabled = os.Getenv("NFINTAKE_AI_ENABLED") == "true"
	p.AIEmbeddingProvider = getEnvOrDefault("NFINTAKE_AI_EMBEDDING_PROVIDER", "gemini")
	p.AILLMProvider = getEnvOrDefault("NFINTAKE_AI_LLM_PROVIDER", "gemini")
	p.AIGeminiAPIKey = getEnvOrDefault("NFINTAKE_AI_GEMINI_API_KEY", os.Getenv("GEMINI_API_KEY"))
	p.AIOpenAIAPIKey = os.Getenv("NFINTAKE_AI_OPENAI_API_KEY")
	p.AIOpenAIBaseURL = getEnvOrDefault("NFINTAKE_AI_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.AIEmbeddingModel = getEnvOrDefault("NFINTAKE_AI_EMBEDDING_MODEL", "text-embedding-004")
	p.AILLMModel = getEnvOrDefault("NFINTAKE_AI_LLM_MODEL", "gemini-2.5-flash")
	p.AIExtractionModel = getEnvOrDefault("NFINTAKE_AI_EXTRACTION_MODEL", "gemini-2.5-flash")

	p.AIEmbeddingDimensions = 768
	if raw := os.Getenv("NFINTAKE_AI_EMBEDDING_DIMENSIONS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.AIEmbeddingDimensions = n
		} else {
			slog.Warn("ignoring invalid embedding dimensions", slog.String("value", raw))
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q: only 'postgres' and 'sqlite' are supported", p.Driver)
	}
	if p.CORSOrigin == "" {
		p.CORSOrigin = defaultCORSOrigin
	}
	if p.MaxUploadBytes <= 0 {
		p.MaxUploadBytes = defaultMaxUploadBytes
	}
	if p.AIEmbeddingDimensions <= 0 {
		p.AIEmbeddingDimensions = 768
	}

	if p.Driver == "postgres" {
		if p.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
		return nil
	}

	if p.DSN != "" {
		return nil
	}
	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir
	p.DSN = filepath.Join(dataDir, fmt.Sprintf("nfintake_%s.db", p.Mode))
	return nil
}
