package config

import (
	"errors"
	"io/fs"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Layers   LayersConfig   `yaml:"layers" mapstructure:"layers"`
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
}

// StoreConfig configures the PostGIS connection pool.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`

	// ConnectAttempts bounds the startup ping retries.
	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port                  int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins        []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimit             float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst             int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	ReadHeaderTimeoutSecs int      `yaml:"read_header_timeout_secs" mapstructure:"read_header_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// LayersConfig names the tables backing each dataset and the default page
// size of each feature endpoint.
type LayersConfig struct {
	Points         string  `yaml:"points" mapstructure:"points"`
	PointBuffers   string  `yaml:"point_buffers" mapstructure:"point_buffers"`
	BigPoints      string  `yaml:"big_points" mapstructure:"big_points"`
	Shadows        string  `yaml:"shadows" mapstructure:"shadows"`
	ShadowValue    string  `yaml:"shadow_value" mapstructure:"shadow_value"`
	Buildings      string  `yaml:"buildings" mapstructure:"buildings"`
	BuildingRef    string  `yaml:"building_ref" mapstructure:"building_ref"`
	AddressIndex   string  `yaml:"address_index" mapstructure:"address_index"`
	BuffersLimit   int     `yaml:"buffers_limit" mapstructure:"buffers_limit"`
	PointsLimit    int     `yaml:"points_limit" mapstructure:"points_limit"`
	ShadowsLimit   int     `yaml:"shadows_limit" mapstructure:"shadows_limit"`
	BuildingsLimit int     `yaml:"buildings_limit" mapstructure:"buildings_limit"`
	DefaultBufferM float64 `yaml:"default_buffer_m" mapstructure:"default_buffer_m"`
}

// ResolverConfig configures the geometry column resolver cache.
type ResolverConfig struct {
	CacheTTLSecs int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// A .env file is optional; variables already set in the process win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.connect_attempts", 5)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 50)
	v.SetDefault("server.read_header_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("layers.points", "points")
	v.SetDefault("layers.point_buffers", "point_buffers")
	v.SetDefault("layers.big_points", "big_points")
	v.SetDefault("layers.shadows", "shadows")
	v.SetDefault("layers.shadow_value", "shadow_count")
	v.SetDefault("layers.buildings", "buildings")
	v.SetDefault("layers.building_ref", "reference")
	v.SetDefault("layers.address_index", "address_index")
	v.SetDefault("layers.buffers_limit", 1000)
	v.SetDefault("layers.points_limit", 2000)
	v.SetDefault("layers.shadows_limit", 5000)
	v.SetDefault("layers.buildings_limit", 50000)
	v.SetDefault("layers.default_buffer_m", 100.0)
	v.SetDefault("resolver.cache_ttl_secs", 600)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks the settings a command needs before it touches the
// database or binds a port. Mode is "serve" or "db".
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Server.RateLimit < 0 {
			problems = append(problems, "server.rate_limit must not be negative")
		}
	}
	for key, table := range map[string]string{
		"layers.point_buffers": c.Layers.PointBuffers,
		"layers.points":        c.Layers.Points,
		"layers.big_points":    c.Layers.BigPoints,
		"layers.shadows":       c.Layers.Shadows,
		"layers.buildings":     c.Layers.Buildings,
		"layers.address_index": c.Layers.AddressIndex,
		"layers.shadow_value":  c.Layers.ShadowValue,
		"layers.building_ref":  c.Layers.BuildingRef,
	} {
		if table == "" {
			problems = append(problems, key+" is required")
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
