package config

import "github.com/caarlos0/env/v11"

type LobbydConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8091"`
}

func LoadLobbyd() (LobbydConfig, error) {
	var cfg LobbydConfig
	err := env.Parse(&cfg)
	return cfg, err
}
