package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all lattice configuration. Values come from Default, then the
// optional YAML file, then LATTICE_* environment variables.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Recall       RecallConfig       `yaml:"recall"`
	Memory       MemoryConfig       `yaml:"memory"`
	LLM          LLMConfig          `yaml:"llm"`
	Subconscious SubconsciousConfig `yaml:"subconscious"`
	Log          LogConfig          `yaml:"log"`
}

type ServerConfig struct {
	Bind string `yaml:"bind" env:"LATTICE_BIND" validate:"required"`
	Port int    `yaml:"port" env:"LATTICE_PORT" validate:"min=1,max=65535"`
	// Subject is the default subject for the CLI and the MCP transport.
	Subject string `yaml:"subject" env:"LATTICE_SUBJECT"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"LATTICE_DB_PATH"` // empty = ~/.lattice/lattice.db
}

type EmbeddingConfig struct {
	Provider          string        `yaml:"provider" env:"LATTICE_EMBEDDING_PROVIDER" validate:"oneof=auto ollama hashing"`
	OllamaURL         string        `yaml:"ollama_url" env:"LATTICE_OLLAMA_URL"`
	Model             string        `yaml:"model" env:"LATTICE_EMBEDDING_MODEL"`
	Dimensions        int           `yaml:"dimensions" env:"LATTICE_EMBEDDING_DIMENSIONS" validate:"gt=0"`
	CacheSize         int           `yaml:"cache_size" env:"LATTICE_EMBEDDING_CACHE_SIZE" validate:"gte=0"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"LATTICE_EMBEDDING_RPM" validate:"gte=0"` // 0 = unlimited
	BatchSize         int           `yaml:"batch_size" env:"LATTICE_EMBEDDING_BATCH_SIZE" validate:"gt=0"`
	Timeout           time.Duration `yaml:"timeout" env:"LATTICE_EMBEDDING_TIMEOUT" validate:"gt=0"`
}

// RecallConfig weights the ranking blend. All weights must be positive for
// ranking to stay monotonic in similarity, gravity and depth.
type RecallConfig struct {
	SimilarityWeight float64 `yaml:"similarity_weight" env:"LATTICE_RECALL_SIMILARITY_WEIGHT" validate:"gt=0"`
	GravityWeight    float64 `yaml:"gravity_weight" env:"LATTICE_RECALL_GRAVITY_WEIGHT" validate:"gt=0"`
	DepthWeight      float64 `yaml:"depth_weight" env:"LATTICE_RECALL_DEPTH_WEIGHT" validate:"gt=0"`
	MaxResults       int     `yaml:"max_results" env:"LATTICE_RECALL_MAX_RESULTS" validate:"gt=0"`
}

type MemoryConfig struct {
	DefaultSalience float64 `yaml:"default_salience" env:"LATTICE_DEFAULT_SALIENCE" validate:"gt=0"`
	DefaultDepth    float64 `yaml:"default_depth" env:"LATTICE_DEFAULT_DEPTH" validate:"gte=0"`
	BoostFactor     float64 `yaml:"boost_factor" env:"LATTICE_BOOST_FACTOR" validate:"gt=1"`
	ForgetAmount    float64 `yaml:"forget_amount" env:"LATTICE_FORGET_AMOUNT" validate:"gt=0"`
	ReinforceAmount float64 `yaml:"reinforce_amount" env:"LATTICE_REINFORCE_AMOUNT" validate:"gt=0"`
	TopNodes        int     `yaml:"top_nodes" env:"LATTICE_TOP_NODES" validate:"gt=0"`
	LedgerLimit     int     `yaml:"ledger_limit" env:"LATTICE_LEDGER_LIMIT" validate:"gt=0"`
}

type LLMConfig struct {
	Provider     string `yaml:"provider" env:"LATTICE_LLM_PROVIDER" validate:"omitempty,oneof=claude-cli anthropic ollama"` // empty = heuristic only
	Model        string `yaml:"model" env:"LATTICE_LLM_MODEL"`
	OllamaURL    string `yaml:"ollama_url" env:"LATTICE_OLLAMA_URL"`
	OllamaModel  string `yaml:"ollama_model" env:"LATTICE_OLLAMA_MODEL"`
	AnthropicKey string `yaml:"anthropic_key" env:"ANTHROPIC_API_KEY"`
}

type SubconsciousConfig struct {
	Enabled       bool          `yaml:"enabled" env:"LATTICE_SUBCONSCIOUS_ENABLED"`
	MinEventChars int           `yaml:"min_event_chars" env:"LATTICE_SUBCONSCIOUS_MIN_EVENT_CHARS" validate:"gte=0"`
	MaxOps        int           `yaml:"max_ops" env:"LATTICE_SUBCONSCIOUS_MAX_OPS" validate:"gt=0"`
	Timeout       time.Duration `yaml:"timeout" env:"LATTICE_SUBCONSCIOUS_TIMEOUT" validate:"gt=0"`
	// TranscriptDir confines transcript paths posted on session close.
	// Empty means ~/.claude/projects.
	TranscriptDir string `yaml:"transcript_dir" env:"LATTICE_TRANSCRIPT_DIR"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LATTICE_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"LATTICE_LOG_FORMAT" validate:"oneof=console json"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:    "127.0.0.1",
			Port:    37778,
			Subject: "default",
		},
		Embedding: EmbeddingConfig{
			Provider:          "auto",
			OllamaURL:         "http://localhost:11434",
			Model:             "nomic-embed-text",
			Dimensions:        768,
			CacheSize:         1000,
			RequestsPerMinute: 600,
			BatchSize:         10,
			Timeout:           30 * time.Second,
		},
		Recall: RecallConfig{
			SimilarityWeight: 0.6,
			GravityWeight:    0.3,
			DepthWeight:      0.1,
			MaxResults:       10,
		},
		Memory: MemoryConfig{
			DefaultSalience: 1.0,
			DefaultDepth:    0.5,
			BoostFactor:     1.1,
			ForgetAmount:    0.1,
			ReinforceAmount: 0.5,
			TopNodes:        5,
			LedgerLimit:     10,
		},
		LLM: LLMConfig{
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "llama3.2",
		},
		Subconscious: SubconsciousConfig{
			Enabled:       true,
			MinEventChars: 100,
			MaxOps:        20,
			Timeout:       60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns ~/.lattice/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".lattice", "config.yaml"), nil
}

// TranscriptRoot returns the directory session transcripts must live under.
func (c *Config) TranscriptRoot() (string, error) {
	if c.Subconscious.TranscriptDir != "" {
		return c.Subconscious.TranscriptDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".claude", "projects"), nil
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
