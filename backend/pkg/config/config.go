package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// Embeddings (OpenAI-compatible endpoint, e.g. LiteLLM)
	EmbeddingsURL    string
	EmbeddingsAPIKey string
	EmbeddingModel   string

	// Coordination policy windows (hours)
	ProposalWindowHours int // match_found with no proposal -> expired_no_proposal
	ResponseWindowHours int // proposal_sent with no answer -> expired_no_response
	ReminderWindowHours int // upcoming meetings within this window get a reminder
	FeedbackWindowHours int // past meetings within this window get a feedback prompt

	// Sweep cadence (minutes)
	SweepIntervalMinutes int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Env:                  getEnv("ENV", "development"),
		Neo4jURI:             getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:            getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:        getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:        getEnv("NEO4J_DATABASE", ""),
		EmbeddingsURL:        getEnv("EMBEDDINGS_URL", "http://localhost:4000"),
		EmbeddingsAPIKey:     getEnv("EMBEDDINGS_API_KEY", ""),
		EmbeddingModel:       getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		ProposalWindowHours:  getEnvInt("PROPOSAL_WINDOW_HOURS", 72),
		ResponseWindowHours:  getEnvInt("RESPONSE_WINDOW_HOURS", 48),
		ReminderWindowHours:  getEnvInt("REMINDER_WINDOW_HOURS", 24),
		FeedbackWindowHours:  getEnvInt("FEEDBACK_WINDOW_HOURS", 48),
		SweepIntervalMinutes: getEnvInt("SWEEP_INTERVAL_MINUTES", 15),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.ProposalWindowHours <= 0 || c.ResponseWindowHours <= 0 {
		return fmt.Errorf("coordination windows must be positive")
	}
	// Embeddings endpoint is optional: callers may supply precomputed vectors
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
