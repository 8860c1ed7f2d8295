package match

import (
	"context"

	"vinyl-countdown/internal/game"
)

// Screen is the presentation surface derived from a session snapshot. The
// orchestrator never renders; it only says where the UI should be.
type Screen string

const (
	ScreenHome    Screen = "home"
	ScreenLobby   Screen = "lobby"
	ScreenGame    Screen = "game"
	ScreenResults Screen = "results"
)

// Snapshot pairs a session state with the screen it implies for this client.
type Snapshot struct {
	Screen  Screen
	Session *game.Session
}

// Catalog is the music-catalog collaborator surface the orchestrator needs.
type Catalog interface {
	GetProfile(ctx context.Context) (game.Player, error)
	GetPlaylists(ctx context.Context) ([]game.Playlist, error)
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]game.Song, error)
}
