package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeConfig_Defaults(t *testing.T) {
	clearTestEnvVars(t)
	chdir(t, t.TempDir())

	config, err := InitializeConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", config.Log.Level)
	assert.Equal(t, "text", config.Log.Format)
	assert.Equal(t, "csv", config.Output.Format)
	assert.Equal(t, ",", config.Output.Delimiter)
	assert.False(t, config.AI.Enabled)
	assert.Equal(t, "gemini-2.0-flash", config.AI.Model)
	assert.Equal(t, 30, config.AI.TimeoutSeconds)
	assert.Equal(t, 120000, config.AI.MaxPayloadChars)
	assert.Equal(t, 5, config.AI.SampleRows)
	assert.Equal(t, 5, config.Repair.MaxPasses)
	assert.Equal(t, 365, config.Validation.MaxFutureDays)
	assert.Equal(t, 50, config.Validation.MaxPastYears)
	assert.Equal(t, 15, config.Inference.DefaultDay)
	assert.Equal(t, 40.0, config.Tables.MinScore)
	assert.Equal(t, 0.5, config.Header.FuzzyThreshold)
	assert.Equal(t, 3, config.Header.MinMatches)
	assert.Equal(t, 0.5, config.Merge.MatchThreshold)
	assert.Equal(t, 0.4, config.Merge.TypeWeight)
	assert.Equal(t, 0.3, config.Merge.HeaderKeywordRatio)
	assert.Equal(t, 600, config.Institution.SniffLines)
	assert.Equal(t, "AUTO", config.Institution.Default)
	assert.Equal(t, 3, config.Learning.MinAttempts)
}

func TestDefault_MatchesInitializedDefaults(t *testing.T) {
	clearTestEnvVars(t)
	chdir(t, t.TempDir())

	initialized, err := InitializeConfig("")
	require.NoError(t, err)
	assert.Equal(t, initialized, Default())
}

func TestInitializeConfig_EnvironmentVariables(t *testing.T) {
	clearTestEnvVars(t)
	chdir(t, t.TempDir())

	testEnvVars := map[string]string{
		"BANKLYTIK_LOG_LEVEL":             "debug",
		"BANKLYTIK_LOG_FORMAT":            "json",
		"BANKLYTIK_OUTPUT_DELIMITER":      ";",
		"BANKLYTIK_AI_ENABLED":            "true",
		"BANKLYTIK_AI_MODEL":              "gemini-1.5-pro",
		"BANKLYTIK_REPAIR_MAX_PASSES":     "3",
		"BANKLYTIK_INFERENCE_DEFAULT_DAY": "10",
		"GEMINI_API_KEY":                  "test-api-key",
	}
	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}

	config, err := InitializeConfig("")
	require.NoError(t, err)

	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "json", config.Log.Format)
	assert.Equal(t, ";", config.Output.Delimiter)
	assert.True(t, config.AI.Enabled)
	assert.Equal(t, "gemini-1.5-pro", config.AI.Model)
	assert.Equal(t, 3, config.Repair.MaxPasses)
	assert.Equal(t, 10, config.Inference.DefaultDay)
	assert.Equal(t, "test-api-key", config.AI.APIKey)
}

const fileConfig = `
log:
  level: "warn"
  format: "json"
output:
  delimiter: "|"
ai:
  model: "gemini-1.0-pro"
  sample_rows: 8
merge:
  match_threshold: 0.6
validation:
  max_future_days: 30
`

func TestInitializeConfig_ConfigFile(t *testing.T) {
	clearTestEnvVars(t)
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(fileConfig), 0600))
	chdir(t, tempDir)

	config, err := InitializeConfig("")
	require.NoError(t, err)

	assert.Equal(t, "warn", config.Log.Level)
	assert.Equal(t, "json", config.Log.Format)
	assert.Equal(t, "|", config.Output.Delimiter)
	assert.Equal(t, "gemini-1.0-pro", config.AI.Model)
	assert.Equal(t, 8, config.AI.SampleRows)
	assert.Equal(t, 0.6, config.Merge.MatchThreshold)
	assert.Equal(t, 30, config.Validation.MaxFutureDays)
	// untouched keys keep their defaults
	assert.Equal(t, 50, config.Validation.MaxPastYears)
}

func TestInitializeConfig_ExplicitFile(t *testing.T) {
	clearTestEnvVars(t)
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fileConfig), 0600))

	config, err := InitializeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", config.Log.Level)

	_, err = InitializeConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestInitializeConfig_HierarchicalPrecedence(t *testing.T) {
	clearTestEnvVars(t)
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(fileConfig), 0600))
	chdir(t, tempDir)

	t.Setenv("BANKLYTIK_LOG_LEVEL", "error")
	t.Setenv("BANKLYTIK_AI_SAMPLE_ROWS", "12")
	t.Setenv("GEMINI_API_KEY", "env-api-key")

	config, err := InitializeConfig("")
	require.NoError(t, err)

	assert.Equal(t, "error", config.Log.Level)       // env var wins
	assert.Equal(t, "|", config.Output.Delimiter)    // config file value
	assert.Equal(t, 12, config.AI.SampleRows)        // env var wins
	assert.Equal(t, "env-api-key", config.AI.APIKey) // unprefixed key
}

func TestInitializeConfig_InvalidFileValues(t *testing.T) {
	clearTestEnvVars(t)
	tempDir := t.TempDir()
	content := "merge:\n  type_weight: 0.9\n"
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(content), 0600))
	chdir(t, tempDir)

	_, err := InitializeConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge weights must sum to 1.0")
}

func TestValidateConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name         string
		modifyConfig func(*Config)
		expectError  string
	}{
		{
			name:         "invalid log level",
			modifyConfig: func(c *Config) { c.Log.Level = "invalid" },
			expectError:  "invalid log level",
		},
		{
			name:         "invalid log format",
			modifyConfig: func(c *Config) { c.Log.Format = "xml" },
			expectError:  "invalid log format",
		},
		{
			name:         "invalid output format",
			modifyConfig: func(c *Config) { c.Output.Format = "pdf" },
			expectError:  "invalid output format",
		},
		{
			name:         "invalid CSV delimiter",
			modifyConfig: func(c *Config) { c.Output.Delimiter = "abc" },
			expectError:  "CSV delimiter must be a single character",
		},
		{
			name: "AI enabled without API key",
			modifyConfig: func(c *Config) {
				c.AI.Enabled = true
				c.AI.APIKey = ""
			},
			expectError: "GEMINI_API_KEY required when AI is enabled",
		},
		{
			name: "invalid timeout seconds",
			modifyConfig: func(c *Config) {
				c.AI.Enabled = true
				c.AI.APIKey = "test-key"
				c.AI.TimeoutSeconds = 0
			},
			expectError: "ai.timeout_seconds must be between 1 and 300",
		},
		{
			name:         "too many repair passes",
			modifyConfig: func(c *Config) { c.Repair.MaxPasses = 50 },
			expectError:  "repair.max_passes must be between 1 and 20",
		},
		{
			name:         "table score out of range",
			modifyConfig: func(c *Config) { c.Tables.MinScore = 120 },
			expectError:  "tables.min_score must be between 0 and 100",
		},
		{
			name:         "default day past month end",
			modifyConfig: func(c *Config) { c.Inference.DefaultDay = 31 },
			expectError:  "inference.default_day must be between 1 and 28",
		},
		{
			name:         "fuzzy threshold out of range",
			modifyConfig: func(c *Config) { c.Header.FuzzyThreshold = 1.5 },
			expectError:  "header.fuzzy_threshold must be between 0.0 and 1.0",
		},
		{
			name:         "weights do not sum to one",
			modifyConfig: func(c *Config) { c.Merge.NameWeight = 0.5 },
			expectError:  "merge weights must sum to 1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			require.NoError(t, validateConfig(config))

			tt.modifyConfig(config)
			err := validateConfig(config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestConfigureLoggingFromConfig(t *testing.T) {
	tests := []struct {
		name        string
		log         LogConfig
		expectLevel logrus.Level
		expectJSON  bool
	}{
		{name: "text format info level", log: LogConfig{Level: "info", Format: "text"}, expectLevel: logrus.InfoLevel},
		{name: "json format debug level", log: LogConfig{Level: "debug", Format: "json"}, expectLevel: logrus.DebugLevel, expectJSON: true},
		{name: "invalid level falls back", log: LogConfig{Level: "chatty", Format: "text"}, expectLevel: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := ConfigureLoggingFromConfig(&Config{Log: tt.log})
			require.NotNil(t, logger)
			assert.Equal(t, tt.expectLevel, logger.Level)
			_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.expectJSON, isJSON)
		})
	}
}

// clearTestEnvVars blanks every variable the tests touch; empty values are ignored by viper.
func clearTestEnvVars(t *testing.T) {
	t.Helper()
	envVars := []string{
		"BANKLYTIK_LOG_LEVEL",
		"BANKLYTIK_LOG_FORMAT",
		"BANKLYTIK_OUTPUT_FORMAT",
		"BANKLYTIK_OUTPUT_DELIMITER",
		"BANKLYTIK_AI_ENABLED",
		"BANKLYTIK_AI_MODEL",
		"BANKLYTIK_AI_TIMEOUT_SECONDS",
		"BANKLYTIK_AI_SAMPLE_ROWS",
		"BANKLYTIK_REPAIR_MAX_PASSES",
		"BANKLYTIK_INFERENCE_DEFAULT_DAY",
		"BANKLYTIK_MERGE_MATCH_THRESHOLD",
		"GEMINI_API_KEY",
	}
	for _, envVar := range envVars {
		t.Setenv(envVar, "")
	}
}
