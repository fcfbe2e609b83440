// Package config loads the retrieval core's configuration from a YAML file
// plus environment variable overrides, layered as: defaults, then an
// optional .env file via godotenv, then a config file, then environment
// variables, unmarshalled with viper/mapstructure.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all retrieval-core configuration.
type Config struct {
	App       App       `mapstructure:"app"`
	Indexes   Indexes   `mapstructure:"indexes"`
	LinkedArt LinkedArt `mapstructure:"linked_art"`
	OAI       OAI       `mapstructure:"oai"`
	Semantic  Semantic  `mapstructure:"semantic"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds process-wide settings.
type App struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
}

// Indexes locates and tunes the three read-only SQLite files.
type Indexes struct {
	VocabularyPath string `mapstructure:"vocabulary_path"`
	EmbeddingsPath string `mapstructure:"embeddings_path"`
	IconclassPath  string `mapstructure:"iconclass_path"`
	MmapSizeBytes  int64  `mapstructure:"mmap_size_bytes"`
}

// LinkedArt configures the HTTP client and response cache used by the
// Linked Art client.
type LinkedArt struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxConnsPerHost int           `mapstructure:"max_conns_per_host"`
	CacheCapacity   int           `mapstructure:"cache_capacity"`
	ObjectTTL       time.Duration `mapstructure:"object_ttl"`
	VocabTermTTL    time.Duration `mapstructure:"vocab_term_ttl"`
	ImageChainTTL   time.Duration `mapstructure:"image_chain_ttl"`
}

// OAI configures the OAI-PMH change-feed endpoint.
type OAI struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Timeout        time.Duration `mapstructure:"timeout"`
	DefaultSetSpec string        `mapstructure:"default_set_spec"`
}

// Semantic configures the semantic engine's embedding model and KNN
// tuning.
type Semantic struct {
	ModelPath            string `mapstructure:"model_path"`
	Dimensions           int    `mapstructure:"dimensions"`
	FilteredKNNThreshold int    `mapstructure:"filtered_knn_threshold"`
	PureKNNMaxK          int    `mapstructure:"pure_knn_max_k"`
	QueryPrefix          string `mapstructure:"query_prefix"`
}

// Logging configures the slog JSON handler.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads configuration from an optional .env file, an optional YAML
// config file, and environment variables (RIJKSDATA_-prefixed, with "."
// replaced by "_"), in that order of increasing precedence. Subsequent
// calls return the first successfully loaded Config.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".rijksdata")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.SetEnvPrefix("RIJKSDATA")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.data_dir", ".rijksdata-cache")
	viper.SetDefault("app.log_level", "info")

	viper.SetDefault("indexes.vocabulary_path", "vocabulary.db")
	viper.SetDefault("indexes.embeddings_path", "embeddings.db")
	viper.SetDefault("indexes.iconclass_path", "iconclass.db")
	viper.SetDefault("indexes.mmap_size_bytes", int64(3<<30))

	viper.SetDefault("linked_art.base_url", "https://id.rijksmuseum.nl")
	viper.SetDefault("linked_art.timeout", "15s")
	viper.SetDefault("linked_art.max_conns_per_host", 25)
	viper.SetDefault("linked_art.cache_capacity", 500)
	viper.SetDefault("linked_art.object_ttl", "5m")
	viper.SetDefault("linked_art.vocab_term_ttl", "60m")
	viper.SetDefault("linked_art.image_chain_ttl", "60m")

	viper.SetDefault("oai.endpoint", "https://data.rijksmuseum.nl/oai")
	viper.SetDefault("oai.timeout", "15s")
	viper.SetDefault("oai.default_set_spec", "")

	viper.SetDefault("semantic.model_path", "")
	viper.SetDefault("semantic.dimensions", 384)
	viper.SetDefault("semantic.filtered_knn_threshold", 50000)
	viper.SetDefault("semantic.pure_knn_max_k", 4096)
	viper.SetDefault("semantic.query_prefix", "query: ")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func validate(cfg *Config) error {
	if cfg.Semantic.Dimensions <= 0 {
		return fmt.Errorf("semantic.dimensions must be positive, got %d", cfg.Semantic.Dimensions)
	}
	if cfg.LinkedArt.MaxConnsPerHost <= 0 {
		return fmt.Errorf("linked_art.max_conns_per_host must be positive, got %d", cfg.LinkedArt.MaxConnsPerHost)
	}
	if cfg.Semantic.FilteredKNNThreshold <= 0 {
		return fmt.Errorf("semantic.filtered_knn_threshold must be positive, got %d", cfg.Semantic.FilteredKNNThreshold)
	}
	return nil
}

// Reset clears the cached global config, for tests that need to reload
// with different sources.
func Reset() {
	globalConfig = nil
}
