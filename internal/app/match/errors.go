package match

import "errors"

var (
	ErrNoSession   = errors.New("no_active_session")
	ErrNoPlaylist  = errors.New("no_playlist_selected")
	ErrCodeExhaust = errors.New("code_space_exhausted")
)
