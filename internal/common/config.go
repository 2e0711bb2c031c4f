package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	LLM        LLMConfig
	Thresholds ThresholdConfig
	Output     OutputConfig
}

// LLMConfig holds OpenAI-related configuration
type LLMConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	VisionModel  string
	TextModel    string
	Timeout      time.Duration
	MaxRetries   int
}

// ThresholdConfig holds confidence and extraction heuristics.
type ThresholdConfig struct {
	// LowConfidence and MediumConfidence partition scores into three tiers:
	// below low, [low, medium), and at or above medium.
	LowConfidence    float64
	MediumConfidence float64
	// PDFTextChars is the minimum embedded-text length for a PDF to be
	// treated as text-bearing instead of scanned. Tunable, not load-bearing.
	PDFTextChars int
}

// OutputConfig holds output and artifact locations.
type OutputConfig struct {
	Dir           string
	CSVName       string
	ArtifactDir   string
	LedgerPath    string
	WriteAttempts int
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is read first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	outputDir := getEnv("OUTPUT_DIR", "output")
	return &Config{
		LLM: LLMConfig{
			APIKey:       getEnv("OPENAI_API_KEY", ""),
			BaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			DefaultModel: getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			VisionModel:  getEnv("OPENAI_VISION_MODEL", "gpt-4o"),
			TextModel:    getEnv("OPENAI_TEXT_MODEL", "gpt-4o-mini"),
			Timeout:      getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			MaxRetries:   getEnvAsInt("OPENAI_MAX_RETRIES", 3),
		},
		Thresholds: ThresholdConfig{
			LowConfidence:    getEnvAsFloat("LOW_CONFIDENCE_THRESHOLD", 0.70),
			MediumConfidence: getEnvAsFloat("MEDIUM_CONFIDENCE_THRESHOLD", 0.85),
			PDFTextChars:     getEnvAsInt("PDF_TEXT_THRESHOLD", 50),
		},
		Output: OutputConfig{
			Dir:           outputDir,
			CSVName:       getEnv("OUTPUT_FILE", "final_output.csv"),
			ArtifactDir:   getEnv("ARTIFACT_DIR", outputDir+"/json_data"),
			LedgerPath:    getEnv("RUN_LEDGER_PATH", outputDir+"/runs.db"),
			WriteAttempts: getEnvAsInt("OUTPUT_WRITE_ATTEMPTS", 3),
		},
	}
}

// Validate checks the loaded configuration for fatal omissions.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrConfiguration)
	}
	if c.Thresholds.LowConfidence > c.Thresholds.MediumConfidence {
		return NewAppError("CONFIG_ERROR", "LOW_CONFIDENCE_THRESHOLD must not exceed MEDIUM_CONFIDENCE_THRESHOLD", ErrConfiguration)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
