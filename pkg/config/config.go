package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	ArtifactSourceDir    = "dir"
	ArtifactSourceSQLite = "sqlite"
)

type Config struct {
	Server    ServerConfig
	Artifacts ArtifactsConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

// ArtifactsConfig selects where the trained model, encoders and column list
// are loaded from at startup.
type ArtifactsConfig struct {
	Source     string
	Dir        string
	SQLitePath string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type SecurityConfig struct {
	AllowedOrigins []string
	Development    bool
	// FingerprintKey keys the HMAC used for record fingerprints in logs.
	FingerprintKey string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/readmission")

	return load(v)
}

// LoadFile reads configuration from an explicit path instead of the search paths.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("READMISSION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Artifacts.Source {
	case ArtifactSourceDir:
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("artifacts.dir is required when artifacts.source is %q", ArtifactSourceDir)
		}
	case ArtifactSourceSQLite:
		if c.Artifacts.SQLitePath == "" {
			return fmt.Errorf("artifacts.sqlitePath is required when artifacts.source is %q", ArtifactSourceSQLite)
		}
	default:
		return fmt.Errorf("unknown artifacts.source %q", c.Artifacts.Source)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 15)
	v.SetDefault("server.writeTimeout", 15)
	v.SetDefault("server.bodyLimit", 64*1024)

	v.SetDefault("artifacts.source", ArtifactSourceDir)
	v.SetDefault("artifacts.dir", "./models")
	v.SetDefault("artifacts.sqlitePath", "./data/artifacts.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("rateLimit.requestsPerMinute", 120)

	v.SetDefault("security.allowedOrigins", []string{"http://localhost:3000", "http://localhost:8501"})
	v.SetDefault("security.development", false)
	v.SetDefault("security.fingerprintKey", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
