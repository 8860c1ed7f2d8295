package config

import "github.com/caarlos0/env/v11"

type ClientConfig struct {
	CatalogBaseURL string `env:"CATALOG_BASE_URL" envDefault:"https://api.spotify.com/v1"`
	TokenEndpoint  string `env:"TOKEN_ENDPOINT" envDefault:"https://accounts.spotify.com/api/token"`
	ClientID       string `env:"CLIENT_ID,required,notEmpty"`

	LobbyBaseURL string `env:"LOBBY_BASE_URL" envDefault:"http://localhost:8091"`
	LobbyWSURL   string `env:"LOBBY_WS_URL" envDefault:"ws://localhost:8091/ws"`

	Rounds int `env:"GAME_ROUNDS" envDefault:"10"`
}

func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	err := env.Parse(&cfg)
	return cfg, err
}
