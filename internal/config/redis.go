package config

import "github.com/caarlos0/env/v11"

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

func LoadRedis() (RedisConfig, error) {
	var cfg RedisConfig
	err := env.Parse(&cfg)
	return cfg, err
}
