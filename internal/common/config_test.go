package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_VISION_MODEL",
		"OPENAI_TEXT_MODEL", "OPENAI_TIMEOUT", "OPENAI_MAX_RETRIES",
		"LOW_CONFIDENCE_THRESHOLD", "MEDIUM_CONFIDENCE_THRESHOLD", "PDF_TEXT_THRESHOLD",
		"OUTPUT_DIR", "OUTPUT_FILE", "ARTIFACT_DIR", "RUN_LEDGER_PATH",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.DefaultModel)
	assert.Equal(t, "gpt-4o", cfg.LLM.VisionModel)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 0.70, cfg.Thresholds.LowConfidence)
	assert.Equal(t, 0.85, cfg.Thresholds.MediumConfidence)
	assert.Equal(t, 50, cfg.Thresholds.PDFTextChars)
	assert.Equal(t, "output", cfg.Output.Dir)
	assert.Equal(t, "final_output.csv", cfg.Output.CSVName)
	assert.Equal(t, "output/json_data", cfg.Output.ArtifactDir)
	assert.Equal(t, "output/runs.db", cfg.Output.LedgerPath)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("OPENAI_TIMEOUT", "90s")
	t.Setenv("PDF_TEXT_THRESHOLD", "120")
	t.Setenv("LOW_CONFIDENCE_THRESHOLD", "0.5")

	cfg := LoadConfig()

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.DefaultModel)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 120, cfg.Thresholds.PDFTextChars)
	assert.Equal(t, 0.5, cfg.Thresholds.LowConfidence)
}

func TestLoadConfigIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("OPENAI_MAX_RETRIES", "many")
	t.Setenv("OPENAI_TIMEOUT", "soon")

	cfg := LoadConfig()

	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
}

func TestValidateRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := LoadConfig()

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFIG_ERROR", appErr.Code)
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LOW_CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("MEDIUM_CONFIDENCE_THRESHOLD", "0.8")

	err := LoadConfig().Validate()
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestValidateOK(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LOW_CONFIDENCE_THRESHOLD", "")
	t.Setenv("MEDIUM_CONFIDENCE_THRESHOLD", "")

	assert.NoError(t, LoadConfig().Validate())
}
