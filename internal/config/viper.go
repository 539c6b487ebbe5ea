// Package config provides Viper-based hierarchical configuration management
package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by the application.
const EnvPrefix = "BANKLYTIK"

// Config represents the complete application configuration
type Config struct {
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	AI          AIConfig          `mapstructure:"ai" yaml:"ai"`
	Rules       RulesConfig       `mapstructure:"rules" yaml:"rules"`
	Learning    LearningConfig    `mapstructure:"learning" yaml:"learning"`
	Repair      RepairConfig      `mapstructure:"repair" yaml:"repair"`
	Validation  ValidationConfig  `mapstructure:"validation" yaml:"validation"`
	Inference   InferenceConfig   `mapstructure:"inference" yaml:"inference"`
	Tables      TablesConfig      `mapstructure:"tables" yaml:"tables"`
	Header      HeaderConfig      `mapstructure:"header" yaml:"header"`
	Merge       MergeConfig       `mapstructure:"merge" yaml:"merge"`
	Institution InstitutionConfig `mapstructure:"institution" yaml:"institution"`
	OCR         OCRConfig         `mapstructure:"ocr" yaml:"ocr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type OutputConfig struct {
	Format    string `mapstructure:"format" yaml:"format"`
	Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
}

type AIConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Model           string `mapstructure:"model" yaml:"model"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxPayloadChars int    `mapstructure:"max_payload_chars" yaml:"max_payload_chars"`
	SampleRows      int    `mapstructure:"sample_rows" yaml:"sample_rows"`
	SampleTables    int    `mapstructure:"sample_tables" yaml:"sample_tables"`
	APIKey          string `mapstructure:"api_key" yaml:"-"` // Never serialize API key
}

type RulesConfig struct {
	File        string `mapstructure:"file" yaml:"file"`
	VersionsDir string `mapstructure:"versions_dir" yaml:"versions_dir"`
	AuditFile   string `mapstructure:"audit_file" yaml:"audit_file"`
}

type LearningConfig struct {
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	HistoryFile string `mapstructure:"history_file" yaml:"history_file"`
	MinAttempts int    `mapstructure:"min_attempts" yaml:"min_attempts"`
}

type RepairConfig struct {
	MaxPasses int `mapstructure:"max_passes" yaml:"max_passes"`
}

type ValidationConfig struct {
	MaxFutureDays int `mapstructure:"max_future_days" yaml:"max_future_days"`
	MaxPastYears  int `mapstructure:"max_past_years" yaml:"max_past_years"`
}

type InferenceConfig struct {
	DefaultDay int `mapstructure:"default_day" yaml:"default_day"`
}

type TablesConfig struct {
	MinScore float64 `mapstructure:"min_score" yaml:"min_score"`
}

type HeaderConfig struct {
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold" yaml:"fuzzy_threshold"`
	MinMatches     int     `mapstructure:"min_matches" yaml:"min_matches"`
}

type MergeConfig struct {
	MatchThreshold     float64 `mapstructure:"match_threshold" yaml:"match_threshold"`
	TypeWeight         float64 `mapstructure:"type_weight" yaml:"type_weight"`
	NameWeight         float64 `mapstructure:"name_weight" yaml:"name_weight"`
	ContentWeight      float64 `mapstructure:"content_weight" yaml:"content_weight"`
	HeaderKeywordRatio float64 `mapstructure:"header_keyword_ratio" yaml:"header_keyword_ratio"`
}

type InstitutionConfig struct {
	Default      string `mapstructure:"default" yaml:"default"`
	ProfilesFile string `mapstructure:"profiles_file" yaml:"profiles_file"`
	SniffLines   int    `mapstructure:"sniff_lines" yaml:"sniff_lines"`
}

type OCRConfig struct {
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages"`
}

// InitializeConfig loads configuration with hierarchical precedence:
// defaults, then the config file, then environment variables.
// An empty configFile searches the standard locations.
func InitializeConfig(configFile string) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Config file locations
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.banklytik")
		v.AddConfigPath(".banklytik")
		v.AddConfigPath(".")
	}

	// 3. Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Read config file (optional unless explicitly requested)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if configFile != "" {
				return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
			}
			fmt.Printf("Warning: error reading config file %s: %v\n", v.ConfigFileUsed(), err)
		}
	}

	// 5. The Gemini key is read unprefixed, as the SDK documentation names it
	if err := v.BindEnv("ai.api_key", "GEMINI_API_KEY"); err != nil {
		fmt.Printf("Warning: failed to bind GEMINI_API_KEY environment variable: %v\n", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 6. Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// Defaults always decode.
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("output.format", "csv")
	v.SetDefault("output.delimiter", ",")

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.timeout_seconds", 30)
	v.SetDefault("ai.max_payload_chars", 120000)
	v.SetDefault("ai.sample_rows", 5)
	v.SetDefault("ai.sample_tables", 6)

	v.SetDefault("rules.file", "banklytik_knowledge/date_rules.json")
	v.SetDefault("rules.versions_dir", "banklytik_knowledge/versions")
	v.SetDefault("rules.audit_file", "banklytik_knowledge/rules_audit.jsonl")

	v.SetDefault("learning.log_file", "banklytik_knowledge/date_learning.jsonl")
	v.SetDefault("learning.history_file", "banklytik_knowledge/review_history.json")
	v.SetDefault("learning.min_attempts", 3)

	v.SetDefault("repair.max_passes", 5)

	v.SetDefault("validation.max_future_days", 365)
	v.SetDefault("validation.max_past_years", 50)

	v.SetDefault("inference.default_day", 15)

	v.SetDefault("tables.min_score", 40.0)

	v.SetDefault("header.fuzzy_threshold", 0.5)
	v.SetDefault("header.min_matches", 3)

	v.SetDefault("merge.match_threshold", 0.5)
	v.SetDefault("merge.type_weight", 0.4)
	v.SetDefault("merge.name_weight", 0.3)
	v.SetDefault("merge.content_weight", 0.3)
	v.SetDefault("merge.header_keyword_ratio", 0.3)

	v.SetDefault("institution.default", "AUTO")
	v.SetDefault("institution.profiles_file", "")
	v.SetDefault("institution.sniff_lines", 600)

	v.SetDefault("ocr.max_pages", 0)
}

func validateConfig(config *Config) error {
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}

	switch config.Output.Format {
	case "csv", "xlsx", "json":
	default:
		return fmt.Errorf("invalid output format: %s (must be 'csv', 'xlsx' or 'json')", config.Output.Format)
	}

	if len([]rune(config.Output.Delimiter)) != 1 {
		return fmt.Errorf("CSV delimiter must be a single character, got: %s", config.Output.Delimiter)
	}

	if config.AI.Enabled {
		if config.AI.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY required when AI is enabled")
		}
		if config.AI.TimeoutSeconds < 1 || config.AI.TimeoutSeconds > 300 {
			return fmt.Errorf("ai.timeout_seconds must be between 1 and 300, got: %d", config.AI.TimeoutSeconds)
		}
		if config.AI.MaxPayloadChars < 1000 {
			return fmt.Errorf("ai.max_payload_chars must be at least 1000, got: %d", config.AI.MaxPayloadChars)
		}
	}

	if config.Repair.MaxPasses < 1 || config.Repair.MaxPasses > 20 {
		return fmt.Errorf("repair.max_passes must be between 1 and 20, got: %d", config.Repair.MaxPasses)
	}

	if config.Validation.MaxFutureDays < 0 || config.Validation.MaxPastYears < 1 {
		return fmt.Errorf("validation window must be non-negative, got future=%d past=%d",
			config.Validation.MaxFutureDays, config.Validation.MaxPastYears)
	}

	if config.Tables.MinScore < 0 || config.Tables.MinScore > 100 {
		return fmt.Errorf("tables.min_score must be between 0 and 100, got: %g", config.Tables.MinScore)
	}

	if config.Inference.DefaultDay < 1 || config.Inference.DefaultDay > 28 {
		return fmt.Errorf("inference.default_day must be between 1 and 28, got: %d", config.Inference.DefaultDay)
	}

	for name, value := range map[string]float64{
		"header.fuzzy_threshold":     config.Header.FuzzyThreshold,
		"merge.match_threshold":      config.Merge.MatchThreshold,
		"merge.header_keyword_ratio": config.Merge.HeaderKeywordRatio,
	} {
		if value < 0.0 || value > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0, got: %f", name, value)
		}
	}

	weights := config.Merge.TypeWeight + config.Merge.NameWeight + config.Merge.ContentWeight
	if math.Abs(weights-1.0) > 1e-6 {
		return fmt.Errorf("merge weights must sum to 1.0, got: %f", weights)
	}

	return nil
}

// ConfigureLoggingFromConfig builds a logrus logger from the Config struct.
func ConfigureLoggingFromConfig(config *Config) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(strings.ToLower(config.Log.Level))
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", config.Log.Level)
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if strings.ToLower(config.Log.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
