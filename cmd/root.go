package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openjobs/jobmatch/internal/coordinator"
	"github.com/openjobs/jobmatch/internal/opendata"
	"github.com/openjobs/jobmatch/internal/quota"
	"github.com/openjobs/jobmatch/internal/storage"
)

const (
	app = "jobmatch"
)

type Config struct {
	// Profile is the path of the profile file.
	Profile     string          `mapstructure:"profile"`
	Location    *LocationConfig `mapstructure:"location"`
	Source      *SourceConfig   `mapstructure:"source"`
	Exclude     *ExcludeConfig  `mapstructure:"exclude"`
	ExcludeFile string          `mapstructure:"exclude-file"`
	Cache       *CacheConfig    `mapstructure:"cache"`
	AI          *AIConfig       `mapstructure:"ai"`
	Server      *ServerConfig   `mapstructure:"server"`
}

type LocationConfig struct {
	Lat float64 `mapstructure:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `mapstructure:"lon" validate:"gte=-180,lte=180"`
}

type SourceConfig struct {
	APIURL    string `mapstructure:"api-url" validate:"omitempty,url"`
	Dataset   string `mapstructure:"dataset"`
	UserAgent string `mapstructure:"user-agent"`
	// JobsFile replaces the open-data API with a local JSON dump.
	JobsFile string                 `mapstructure:"jobs-file"`
	Search   *opendata.SearchParams `mapstructure:"search"`
}

type ExcludeConfig struct {
	Employers []string `mapstructure:"employers"`
}

type CacheConfig struct {
	storage.Config `mapstructure:",squash"`
	MaxAge         time.Duration `mapstructure:"max-age"`
	Key            string        `mapstructure:"key"`
}

type AIConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Provider   string `mapstructure:"provider" validate:"omitempty,oneof=gemini"`
	DailyQuota int    `mapstructure:"daily-quota"`

	coordinator.Config `mapstructure:",squash"`

	Temperature *float32      `mapstructure:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int32         `mapstructure:"max-tokens" validate:"gte=0"`
	PromptFile  string        `mapstructure:"prompt-file"`
	Gemini      *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey        string `mapstructure:"api-key"`
	APIKeyFile    string `mapstructure:"api-key-file"`
	Model         string `mapstructure:"model"`
	MaxRetries    int    `mapstructure:"max-retries" validate:"gte=0"`
	MaxLogLength  int    `mapstructure:"max-log-length" validate:"gte=0"`
	ResponseCache bool   `mapstructure:"response-cache"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen" validate:"required"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobmatch scores open-data job offers against your profile",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	for key, env := range map[string]string{
		"ai.gemini.api-key":      "GEMINI_API_KEY",
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"profile":                "JOBMATCH_PROFILE",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobmatch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("profile", "p", "", "profile file (yaml, json or toml)")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
}

func setDefaults() {
	viper.SetDefault("source.api-url", opendata.DefaultAPIURL)
	viper.SetDefault("source.dataset", opendata.DefaultDataset)
	viper.SetDefault("source.user-agent", opendata.DefaultUserAgent)

	viper.SetDefault("cache.backend", storage.BackendMemory)
	viper.SetDefault("cache.path", app+".db")
	viper.SetDefault("cache.max-age", 24*time.Hour)

	d := coordinator.DefaultConfig()
	viper.SetDefault("ai.enabled", true)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.daily-quota", quota.DefaultLimit)
	viper.SetDefault("ai.promotion-threshold", d.PromotionThreshold)
	viper.SetDefault("ai.batch-size", d.BatchSize)
	viper.SetDefault("ai.max-jobs", d.MaxAIJobs)
	viper.SetDefault("ai.batch-delay", d.BatchDelay)
	viper.SetDefault("ai.concurrency", d.Concurrency)
	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 200)

	viper.SetDefault("server.listen", ":8080")
}

func initConfig() {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	// The default config file is optional, an explicit one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		config = &Config{}
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}
