package main

import (
	"context"
	"math/rand"
	"os"
	"time"

	"vinyl-countdown/internal/app/match"
	"vinyl-countdown/internal/config"
	"vinyl-countdown/internal/game"
	"vinyl-countdown/internal/logging"
	"vinyl-countdown/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// autoplay joins an existing game as a guest and guesses random years on
// its turns. Handy for exercising a session without a second human.
func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)

	code := getenv("GAME_CODE", "")
	if code == "" {
		log.Fatal().Msg("GAME_CODE is required")
	}
	name := getenv("BOT_NAME", "autoplay")

	redisCfg, err := config.LoadRedis()
	if err != nil {
		log.Fatal().Err(err).Msg("load redis config failed")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})

	ctx := context.Background()
	svc := match.NewService(store.NewRedis(rdb), nil)
	guest := match.NewGuest(name)
	if _, err := svc.JoinGame(ctx, code, guest); err != nil {
		log.Fatal().Err(err).Str("code", code).Msg("join failed")
	}
	log.Info().Str("code", code).Str("player", guest.ID).Msg("seated")

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for snap := range svc.Updates() {
		switch snap.Screen {
		case match.ScreenResults:
			if snap.Session != nil {
				log.Info().Interface("scores", snap.Session.Scores).Msg("game over")
			}
			return
		case match.ScreenHome:
			log.Info().Msg("session gone, leaving")
			return
		case match.ScreenGame:
		default:
			continue
		}

		gs := snap.Session
		if gs == nil || gs.CurrentSong == nil {
			continue
		}
		if gs.TurnState != game.TurnGuessing || gs.ActivePlayerID != guest.ID {
			continue
		}

		guess := 1950 + rnd.Intn(76)
		if _, err := svc.SubmitGuess(ctx, guess); err != nil {
			log.Warn().Err(err).Int("guess", guess).Msg("guess rejected")
			continue
		}
		log.Info().Int("round", gs.CurrentRound).Int("guess", guess).Msg("guessed")
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
