package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings.
type Config struct {
	// RepositoriesDir is the directory scanned for git working copies.
	RepositoriesDir string `yaml:"repositories_dir" mapstructure:"repositories_dir"`
	// DataDir holds the local database and inference cache.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Inference InferenceConfig `yaml:"inference" mapstructure:"inference"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

type StorageConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "sqlite", "postgres"
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
	LocalPath   string `yaml:"local_path" mapstructure:"local_path"`
}

type InferenceConfig struct {
	// Host is an OpenAI-compatible endpoint. Ollama exposes one at /v1.
	Host    string        `yaml:"host" mapstructure:"host"`
	Model   string        `yaml:"model" mapstructure:"model"`
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	// RatePerSecond caps calls to the collaborator; it serves a single
	// model, so requests are effectively serialized per run.
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

type AnalysisConfig struct {
	Depth        string `yaml:"depth" mapstructure:"depth"` // "full", "recent", "shallow"
	RecentDays   int    `yaml:"recent_days" mapstructure:"recent_days"`
	ShallowCount int    `yaml:"shallow_count" mapstructure:"shallow_count"`
	MaxCommits   int    `yaml:"max_commits" mapstructure:"max_commits"`
	SampleSize   int    `yaml:"sample_size" mapstructure:"sample_size"`
	MaxDiffBytes int    `yaml:"max_diff_bytes" mapstructure:"max_diff_bytes"`
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	// PRPatterns extends the merge-message patterns used for PR inference.
	// Empty means the built-in defaults.
	PRPatterns []string `yaml:"pr_patterns" mapstructure:"pr_patterns"`
}

// ScoringConfig exposes the normalization and weighting policy. Dimension
// weights and quality sub-score weights must each sum to 1.0.
type ScoringConfig struct {
	ActivityWeight  float64 `yaml:"activity_weight" mapstructure:"activity_weight"`
	HealthWeight    float64 `yaml:"health_weight" mapstructure:"health_weight"`
	QualityWeight   float64 `yaml:"quality_weight" mapstructure:"quality_weight"`
	DiversityWeight float64 `yaml:"diversity_weight" mapstructure:"diversity_weight"`

	QualityWeights QualityWeights `yaml:"quality_weights" mapstructure:"quality_weights"`

	// Baseline is the neutral score used when a population is too small to
	// normalize or a sub-score is missing.
	Baseline float64 `yaml:"baseline" mapstructure:"baseline"`
	// LLMBlend is the share of the blended quality score taken from the
	// inference collaborator when it answers.
	LLMBlend float64 `yaml:"llm_blend" mapstructure:"llm_blend"`
}

// QualityWeights weights the six quality sub-scores.
type QualityWeights struct {
	CommitMessage float64 `yaml:"commit_message" mapstructure:"commit_message"`
	Complexity    float64 `yaml:"complexity" mapstructure:"complexity"`
	Documentation float64 `yaml:"documentation" mapstructure:"documentation"`
	TestCoverage  float64 `yaml:"test_coverage" mapstructure:"test_coverage"`
	Consistency   float64 `yaml:"consistency" mapstructure:"consistency"`
	BestPractices float64 `yaml:"best_practices" mapstructure:"best_practices"`
}

type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// Default returns default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".gitpulse")
	return &Config{
		RepositoriesDir: "repositories",
		DataDir:         dataDir,
		Storage: StorageConfig{
			Type:      "sqlite",
			LocalPath: filepath.Join(dataDir, "gitpulse.db"),
		},
		Inference: InferenceConfig{
			Host:          "http://localhost:11434/v1",
			Model:         "codellama:7b",
			Timeout:       120 * time.Second,
			Enabled:       true,
			RatePerSecond: 1,
		},
		Analysis: AnalysisConfig{
			Depth:        "full",
			RecentDays:   90,
			ShallowCount: 500,
			MaxCommits:   10000,
			SampleSize:   50,
			MaxDiffBytes: 10000,
			Workers:      4,
		},
		Scoring: ScoringConfig{
			ActivityWeight:  0.25,
			HealthWeight:    0.25,
			QualityWeight:   0.30,
			DiversityWeight: 0.20,
			QualityWeights: QualityWeights{
				CommitMessage: 0.15,
				Complexity:    0.25,
				Documentation: 0.15,
				TestCoverage:  0.20,
				Consistency:   0.15,
				BestPractices: 0.10,
			},
			Baseline: 50,
			LLMBlend: 0.6,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
	}
}

// Load loads configuration from file, environment and defaults.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("repositories_dir", cfg.RepositoriesDir)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("storage", cfg.Storage)
	v.SetDefault("inference", cfg.Inference)
	v.SetDefault("analysis", cfg.Analysis)
	v.SetDefault("scoring", cfg.Scoring)
	v.SetDefault("server", cfg.Server)

	v.SetEnvPrefix("GITPULSE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".gitpulse")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".gitpulse"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Analysis.Depth {
	case "full", "recent", "shallow":
	default:
		return fmt.Errorf("invalid analysis depth %q (want full, recent or shallow)", c.Analysis.Depth)
	}

	dimSum := c.Scoring.ActivityWeight + c.Scoring.HealthWeight +
		c.Scoring.QualityWeight + c.Scoring.DiversityWeight
	if math.Abs(dimSum-1.0) > 1e-6 {
		return fmt.Errorf("dimension weights must sum to 1.0, got %.4f", dimSum)
	}

	qw := c.Scoring.QualityWeights
	qSum := qw.CommitMessage + qw.Complexity + qw.Documentation +
		qw.TestCoverage + qw.Consistency + qw.BestPractices
	if math.Abs(qSum-1.0) > 1e-6 {
		return fmt.Errorf("quality weights must sum to 1.0, got %.4f", qSum)
	}

	if c.Analysis.MaxCommits <= 0 {
		return fmt.Errorf("max_commits must be positive, got %d", c.Analysis.MaxCommits)
	}
	if c.Analysis.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Analysis.Workers)
	}
	return nil
}

// loadEnvFiles loads .env files in order of precedence.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".gitpulse", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config.
// These mirror the names the dashboard deployment scripts export.
func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("GITPULSE_REPOSITORIES_DIR"); dir != "" {
		cfg.RepositoriesDir = dir
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Storage.Type = "postgres"
		cfg.Storage.PostgresDSN = dsn
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.Inference.Host = host + "/v1"
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		cfg.Inference.Model = model
	}
	if timeout := os.Getenv("OLLAMA_TIMEOUT"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil && secs > 0 {
			cfg.Inference.Timeout = time.Duration(secs) * time.Second
		}
	}
	if depth := os.Getenv("ANALYSIS_DEPTH"); depth != "" {
		cfg.Analysis.Depth = depth
	}
	if max := os.Getenv("MAX_COMMITS_PER_REPO"); max != "" {
		if n, err := strconv.Atoi(max); err == nil && n > 0 {
			cfg.Analysis.MaxCommits = n
		}
	}
	if sample := os.Getenv("QUALITY_SAMPLE_SIZE"); sample != "" {
		if n, err := strconv.Atoi(sample); err == nil && n > 0 {
			cfg.Analysis.SampleSize = n
		}
	}
}
