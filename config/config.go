package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env       string `env:"ENV" envDefault:"prod"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	Http      Http
	Hardcover Hardcover
	Redis     Redis
	Cache     Cache
	Scheduler Scheduler
}

type Http struct {
	Host            string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"HTTP_PORT" envDefault:"8000"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	BaseUrl         string        `env:"BASE_URL" envDefault:"http://localhost:8000"`
}

type Hardcover struct {
	SiteUrl        string        `env:"HARDCOVER_SITE_URL" envDefault:"https://hardcover.app"`
	GraphqlUrl     string        `env:"HARDCOVER_GRAPHQL_URL" envDefault:"https://api.hardcover.app/v1/graphql"`
	ApiToken       string        `env:"HARDCOVER_API_TOKEN" envDefault:""`
	RequestTimeout time.Duration `env:"HARDCOVER_REQUEST_TIMEOUT" envDefault:"30s"`
	ProxyUrl       string        `env:"PROXY_URL" envDefault:""`
}

type Redis struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type Cache struct {
	FreshnessWindow time.Duration `env:"CACHE_FRESHNESS_WINDOW" envDefault:"1800s"`
	MaxStaleness    time.Duration `env:"CACHE_MAX_STALENESS" envDefault:"24h"`
}

type Scheduler struct {
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"3600s"`
	SweepPacing     time.Duration `env:"SWEEP_PACING" envDefault:"1s"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
