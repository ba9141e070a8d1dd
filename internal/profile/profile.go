package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the memory service.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for the HTTP surface
	Addr string
	// Port is the binding port for the HTTP surface
	Port int
	// Data is the data directory
	Data string
	// Driver is the store driver (sqlite, postgres or mongo)
	Driver string
	// DSN is the connection string; a mongodb:// URI for the mongo driver
	DSN string
	// MongoDatabase is the database name used by the mongo driver
	MongoDatabase string
	// Version is the current version of the service
	Version string

	// Cache Configuration
	RedisAddr     string // GUILDMIND_REDIS_ADDR (empty disables the L2 tier)
	RedisPassword string // GUILDMIND_REDIS_PASSWORD
	RedisDB       int    // GUILDMIND_REDIS_DB
	RedisPrefix   string // GUILDMIND_REDIS_PREFIX (default: guildmind:)

	// AI Configuration
	AIEnabled        bool    // GUILDMIND_AI_ENABLED
	AILLMProvider    string  // GUILDMIND_AI_LLM_PROVIDER (default: deepseek)
	AILLMModel       string  // GUILDMIND_AI_LLM_MODEL (default: deepseek-chat)
	AIDeepSeekAPIKey string  // GUILDMIND_AI_DEEPSEEK_API_KEY
	AIDeepSeekURL    string  // GUILDMIND_AI_DEEPSEEK_BASE_URL (default: https://api.deepseek.com)
	AIOpenAIAPIKey   string  // GUILDMIND_AI_OPENAI_API_KEY
	AIOpenAIBaseURL  string  // GUILDMIND_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AIAnthropicKey   string  // GUILDMIND_AI_ANTHROPIC_API_KEY
	AIAnthropicURL   string  // GUILDMIND_AI_ANTHROPIC_BASE_URL
	AIOllamaBaseURL  string  // GUILDMIND_AI_OLLAMA_BASE_URL (default: http://localhost:11434)
	AIRequestsPerSec float64 // GUILDMIND_AI_RPS (default: 2)

	// Memory tuning
	EnvelopeTTL          time.Duration // GUILDMIND_ENVELOPE_TTL (default: 15m)
	MaxFacts             int           // GUILDMIND_MAX_FACTS (default: 10)
	DecayDays            int           // GUILDMIND_DECAY_DAYS (default: 30)
	PruneThreshold       float64       // GUILDMIND_PRUNE_THRESHOLD (default: 0.2)
	ReinforceBoost       float64       // GUILDMIND_REINFORCE_BOOST (default: 0.15)
	SessionRetentionDays int           // GUILDMIND_SESSION_RETENTION_DAYS (default: 30)
	MaintenanceSpec      string        // GUILDMIND_MAINTENANCE_SPEC (default: 0 0 3 * * *)
	EnrichmentWorkers    int           // GUILDMIND_ENRICHMENT_WORKERS (default: 4)

	// HTTP surface
	HTTPRequestsPerSec float64 // GUILDMIND_HTTP_RPS (default: 10)
	HTTPBurst          int     // GUILDMIND_HTTP_BURST (default: 20)
}

// Defaults for memory tuning.
const (
	DefaultEnvelopeTTL          = 15 * time.Minute
	DefaultMaxFacts             = 10
	DefaultDecayDays            = 30
	DefaultPruneThreshold       = 0.2
	DefaultReinforceBoost       = 0.15
	DefaultSessionRetentionDays = 30
	DefaultMaintenanceSpec      = "0 0 3 * * *"
	DefaultEnrichmentWorkers    = 4
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and the selected provider is reachable.
func (p *Profile) IsAIEnabled() bool {
	if !p.AIEnabled {
		return false
	}
	switch p.AILLMProvider {
	case "deepseek":
		return p.AIDeepSeekAPIKey != ""
	case "openai":
		return p.AIOpenAIAPIKey != ""
	case "anthropic":
		return p.AIAnthropicKey != ""
	case "ollama":
		return p.AIOllamaBaseURL != ""
	default:
		return false
	}
}

// IsRedisEnabled reports whether the shared L2 cache tier is configured.
func (p *Profile) IsRedisEnabled() bool {
	return p.RedisAddr != ""
}

// FromEnv loads configuration from GUILDMIND_* environment variables.
// Values already set on the profile (for example from flags) win over the environment.
func (p *Profile) FromEnv() {
	str := func(dst *string, key, def string) {
		if *dst != "" {
			return
		}
		if v := os.Getenv(key); v != "" {
			*dst = v
			return
		}
		*dst = def
	}
	num := func(dst *int, key string, def int) {
		if *dst != 0 {
			return
		}
		*dst = def
		if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
			*dst = v
		}
	}
	float := func(dst *float64, key string, def float64) {
		if *dst != 0 {
			return
		}
		*dst = def
		if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
			*dst = v
		}
	}

	if !p.AIEnabled {
		p.AIEnabled = os.Getenv("GUILDMIND_AI_ENABLED") == "true"
	}

	str(&p.MongoDatabase, "GUILDMIND_MONGO_DATABASE", "guildmind")
	str(&p.RedisAddr, "GUILDMIND_REDIS_ADDR", "")
	str(&p.RedisPassword, "GUILDMIND_REDIS_PASSWORD", "")
	num(&p.RedisDB, "GUILDMIND_REDIS_DB", 0)
	str(&p.RedisPrefix, "GUILDMIND_REDIS_PREFIX", "guildmind:")

	str(&p.AILLMProvider, "GUILDMIND_AI_LLM_PROVIDER", "deepseek")
	str(&p.AILLMModel, "GUILDMIND_AI_LLM_MODEL", "deepseek-chat")
	str(&p.AIDeepSeekAPIKey, "GUILDMIND_AI_DEEPSEEK_API_KEY", "")
	str(&p.AIDeepSeekURL, "GUILDMIND_AI_DEEPSEEK_BASE_URL", "https://api.deepseek.com")
	str(&p.AIOpenAIAPIKey, "GUILDMIND_AI_OPENAI_API_KEY", "")
	str(&p.AIOpenAIBaseURL, "GUILDMIND_AI_OPENAI_BASE_URL", "https://api.openai.com/v1")
	str(&p.AIAnthropicKey, "GUILDMIND_AI_ANTHROPIC_API_KEY", "")
	str(&p.AIAnthropicURL, "GUILDMIND_AI_ANTHROPIC_BASE_URL", "")
	str(&p.AIOllamaBaseURL, "GUILDMIND_AI_OLLAMA_BASE_URL", "http://localhost:11434")
	float(&p.AIRequestsPerSec, "GUILDMIND_AI_RPS", 2)

	if p.EnvelopeTTL == 0 {
		p.EnvelopeTTL = DefaultEnvelopeTTL
		if d, err := time.ParseDuration(os.Getenv("GUILDMIND_ENVELOPE_TTL")); err == nil {
			p.EnvelopeTTL = d
		}
	}
	num(&p.MaxFacts, "GUILDMIND_MAX_FACTS", DefaultMaxFacts)
	num(&p.DecayDays, "GUILDMIND_DECAY_DAYS", DefaultDecayDays)
	float(&p.PruneThreshold, "GUILDMIND_PRUNE_THRESHOLD", DefaultPruneThreshold)
	float(&p.ReinforceBoost, "GUILDMIND_REINFORCE_BOOST", DefaultReinforceBoost)
	num(&p.SessionRetentionDays, "GUILDMIND_SESSION_RETENTION_DAYS", DefaultSessionRetentionDays)
	str(&p.MaintenanceSpec, "GUILDMIND_MAINTENANCE_SPEC", DefaultMaintenanceSpec)
	num(&p.EnrichmentWorkers, "GUILDMIND_ENRICHMENT_WORKERS", DefaultEnrichmentWorkers)
	float(&p.HTTPRequestsPerSec, "GUILDMIND_HTTP_RPS", 10)
	num(&p.HTTPBurst, "GUILDMIND_HTTP_BURST", 20)
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

	switch p.Driver {
	case "sqlite", "postgres", "mongo":
	case "":
		p.Driver = "sqlite"
	default:
		return errors.Errorf("unsupported driver %q: use sqlite, postgres or mongo", p.Driver)
	}

	if p.Driver == "sqlite" {
		if p.Mode == "prod" && p.Data == "" {
			if runtime.GOOS == "windows" {
				p.Data = filepath.Join(os.Getenv("ProgramData"), "guildmind")
				if _, err := os.Stat(p.Data); os.IsNotExist(err) {
					if err := os.MkdirAll(p.Data, 0770); err != nil {
						slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
						return err
					}
				}
			} else {
				p.Data = "/var/opt/guildmind"
			}
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
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("guildmind_%s.db", p.Mode))
		}
	} else if p.DSN == "" {
		return errors.Errorf("dsn is required for the %s driver", p.Driver)
	}

	if p.DecayDays <= 0 {
		return errors.New("decay days must be positive")
	}
	if p.PruneThreshold < 0 || p.PruneThreshold > 1 {
		return errors.Errorf("prune threshold %.2f outside [0, 1]", p.PruneThreshold)
	}
	if p.ReinforceBoost < 0 || p.ReinforceBoost > 1 {
		return errors.Errorf("reinforce boost %.2f outside [0, 1]", p.ReinforceBoost)
	}
	if p.SessionRetentionDays <= 0 {
		p.SessionRetentionDays = DefaultSessionRetentionDays
	}
	if p.EnvelopeTTL <= 0 {
		p.EnvelopeTTL = DefaultEnvelopeTTL
	}
	if p.MaxFacts <= 0 {
		p.MaxFacts = DefaultMaxFacts
	}
	if p.EnrichmentWorkers <= 0 {
		p.EnrichmentWorkers = DefaultEnrichmentWorkers
	}
	return nil
}
