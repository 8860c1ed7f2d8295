package main

import (
	"net/http"
	"time"

	"vinyl-countdown/internal/config"
	"vinyl-countdown/internal/lobbyd"
	"vinyl-countdown/internal/logging"

	"github.com/rs/zerolog/log"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadLobbyd()
	if err != nil {
		log.Fatal().Err(err).Msg("load lobbyd config failed")
	}

	srv := lobbyd.NewServer()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Str("addr", cfg.HTTPAddr).Msg("lobbyd listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("lobbyd stopped")
}
