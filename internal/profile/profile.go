package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory (blob objects, sqlite file)
	Data string
	// DSN points to where docsense stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres).
	// postgres enables native pgvector similarity search; sqlite falls
	// back to a brute-force in-process scan.
	Driver string
	// Version is the current version of server
	Version string

	// Embedding provider configuration
	EmbeddingBaseURL string        // DOCSENSE_EMBEDDING_BASE_URL (default: https://api.openai.com/v1)
	EmbeddingAPIKey  string        // DOCSENSE_EMBEDDING_API_KEY
	EmbeddingModel   string        // DOCSENSE_EMBEDDING_MODEL (default: text-embedding-3-small)
	EmbeddingDims    int           // DOCSENSE_EMBEDDING_DIMS (default: 1536)
	EmbeddingBatch   int           // DOCSENSE_EMBEDDING_BATCH (default: 100)
	EmbeddingPause   time.Duration // DOCSENSE_EMBEDDING_PAUSE between batches (default: 500ms)

	// Text extraction configuration
	TikaServerURL string // DOCSENSE_TIKA_URL (default: http://localhost:9998)

	// Ingestion limits
	MaxUploadBytes int64 // DOCSENSE_MAX_UPLOAD_BYTES (default: 32 MiB)

	// Background re-embedding of degraded chunks
	ReembedInterval time.Duration // DOCSENSE_REEMBED_INTERVAL (default: 5m, 0 disables)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// HasEmbeddingCredentials reports whether a real embedding provider is
// configured. Without credentials every chunk gets a degraded fallback vector.
func (p *Profile) HasEmbeddingCredentials() bool {
	return p.EmbeddingAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from DOCSENSE_* environment variables.
// Values already set on the profile (e.g. by flags) take precedence.
func (p *Profile) FromEnv() {
	if p.Mode == "" {
		p.Mode = getEnvOrDefault("DOCSENSE_MODE", "dev")
	}
	if p.Addr == "" {
		p.Addr = getEnvOrDefault("DOCSENSE_ADDR", "")
	}
	if p.Port == 0 {
		p.Port = getEnvInt("DOCSENSE_PORT", 8081)
	}
	if p.Data == "" {
		p.Data = getEnvOrDefault("DOCSENSE_DATA", "")
	}
	if p.Driver == "" {
		p.Driver = getEnvOrDefault("DOCSENSE_DRIVER", "sqlite")
	}
	if p.DSN == "" {
		p.DSN = getEnvOrDefault("DOCSENSE_DSN", "")
	}

	p.EmbeddingBaseURL = getEnvOrDefault("DOCSENSE_EMBEDDING_BASE_URL", "https://api.openai.com/v1")
	p.EmbeddingAPIKey = getEnvOrDefault("DOCSENSE_EMBEDDING_API_KEY", "")
	p.EmbeddingModel = getEnvOrDefault("DOCSENSE_EMBEDDING_MODEL", "text-embedding-3-small")
	p.EmbeddingDims = getEnvInt("DOCSENSE_EMBEDDING_DIMS", 1536)
	p.EmbeddingBatch = getEnvInt("DOCSENSE_EMBEDDING_BATCH", 100)
	p.EmbeddingPause = getEnvDuration("DOCSENSE_EMBEDDING_PAUSE", 500*time.Millisecond)

	p.TikaServerURL = getEnvOrDefault("DOCSENSE_TIKA_URL", "http://localhost:9998")

	if v := os.Getenv("DOCSENSE_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			p.MaxUploadBytes = n
		}
	}
	if p.MaxUploadBytes == 0 {
		p.MaxUploadBytes = 32 << 20
	}

	p.ReembedInterval = getEnvDuration("DOCSENSE_REEMBED_INTERVAL", 5*time.Minute)
}

// Validate normalizes and checks the profile before the server starts.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Data == "" {
		if p.Mode == "prod" {
			p.Data = "/var/opt/docsense"
		} else {
			p.Data = "."
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return errors.Wrap(err, "failed to check data directory")
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("docsense_%s.db", p.Mode)
		p.DSN = filepath.Join(p.Data, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for postgres driver")
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q: only 'postgres' and 'sqlite' are supported", p.Driver)
	}

	if p.EmbeddingDims <= 0 {
		return errors.Errorf("invalid embedding dims: %d", p.EmbeddingDims)
	}
	if p.EmbeddingBatch <= 0 {
		p.EmbeddingBatch = 100
	}

	return nil
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing "/" in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")

	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}

	return dataDir, nil
}
