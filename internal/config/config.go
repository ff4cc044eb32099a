package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageMongo  = "mongodb"
	StorageSQLite = "sqlite"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	Storage   StorageConfig   `yaml:"storage"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Tokens    TokensConfig    `yaml:"tokens"`
	HTTP      HTTPConfig      `yaml:"http"`
	Grpc      GRPCConfig      `yaml:"grpc"`
	Media     MediaConfig     `yaml:"media"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"mongodb"`
	Path   string `yaml:"path" env:"STORAGE_PATH"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" env:"MONGODB_URI" env-default:"mongodb://localhost:27017"`
	Database string `yaml:"database" env:"MONGODB_DATABASE" env-default:"vidhub"`
}

type TokensConfig struct {
	AccessSecret  string        `yaml:"access_secret" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"ACCESS_TOKEN_EXPIRY" env-default:"15m"`
	RefreshSecret string        `yaml:"refresh_secret" env:"REFRESH_TOKEN_SECRET" env-required:"true"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" env:"REFRESH_TOKEN_EXPIRY" env-default:"240h"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port" env:"HTTP_PORT" env-default:"8000"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	InsecureCookies bool          `yaml:"insecure_cookies"`
	CookieDomain    string        `yaml:"cookie_domain"`
	UploadDir       string        `yaml:"upload_dir" env:"UPLOAD_DIR"`
}

type GRPCConfig struct {
	Port int `yaml:"port" env:"GRPC_PORT" env-default:"44044"`
}

type MediaConfig struct {
	Bucket          string `yaml:"bucket" env:"MEDIA_BUCKET"`
	Region          string `yaml:"region" env:"MEDIA_REGION" env-default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" env:"MEDIA_ENDPOINT"`
	PublicBaseURL   string `yaml:"public_base_url" env:"MEDIA_PUBLIC_BASE_URL"`
	AccessKeyID     string `yaml:"access_key_id" env:"MEDIA_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"MEDIA_SECRET_ACCESS_KEY"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests" env-default:"10"`
	Window   time.Duration `yaml:"window" env-default:"1m"`
	Burst    int           `yaml:"burst" env-default:"5"`
}

func LoadConfig(path string) *Config {
	var cfg Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file not found: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	if cfg.Storage.Driver != StorageMongo && cfg.Storage.Driver != StorageSQLite {
		panic("unknown storage driver: " + cfg.Storage.Driver)
	}

	return &cfg
}
