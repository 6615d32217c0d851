package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	Log     LogConfig     `yaml:"log"`
	Feed    FeedConfig    `yaml:"feed"`
	Storage StorageConfig `yaml:"storage"`
	Redis   RedisConfig   `yaml:"redis"`
	Search  SearchConfig  `yaml:"search"`
	HTTP    HTTPConfig    `yaml:"http"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// The reference feed with districts, lines and schedules.
type FeedConfig struct {
	URL             string            `yaml:"url" env:"FEED_URL"`
	Headers         map[string]string `yaml:"headers" env:"FEED_HEADERS" env-separator:","`
	RefreshInterval time.Duration     `yaml:"refresh_interval" env:"FEED_REFRESH_INTERVAL" env-default:"12h"`
	Timeout         time.Duration     `yaml:"timeout" env:"FEED_TIMEOUT" env-default:"60s"`
	MaxSize         int               `yaml:"max_size" env:"FEED_MAX_SIZE" env-default:"52428800"`
}

type StorageConfig struct {
	// memory, sqlite or postgres
	Backend         string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"sqlite"`
	SQLiteDirectory string `yaml:"sqlite_directory" env:"STORAGE_SQLITE_DIRECTORY"`
	PostgresConn    string `yaml:"postgres_conn" env:"STORAGE_POSTGRES_CONN"`
}

// Redis backs the download cache when Addr is set. Otherwise, the
// cache lives in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// The route search service.
type SearchConfig struct {
	BaseURL      string        `yaml:"base_url" env:"SEARCH_BASE_URL" env-default:"http://localhost:3000"`
	Timeout      time.Duration `yaml:"timeout" env:"SEARCH_TIMEOUT" env-default:"10s"`
	DistrictsTTL time.Duration `yaml:"districts_ttl" env:"SEARCH_DISTRICTS_TTL" env-default:"10m"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port            int           `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"20s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

const DefaultPath = "config/local.yaml"

// MustLoad loads the config file named by path, CONFIG_PATH or
// DefaultPath, in that order.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic("cannot read the config: " + err.Error())
	}
	return cfg
}

// Load is MustLoad returning errors. Environment variables take
// precedence over the file. Only the default file may be absent, in
// which case configuration comes from the environment alone.
func Load(path string) (*Config, error) {
	path = resolvePath(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if path != DefaultPath {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}

		var cfg Config
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func resolvePath(path string) string {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}
	return path
}
