package game

import "time"

type Mode string

const ModeGuessTheYear Mode = "guess_the_year"

type State string

const (
	StateWaiting    State = "waiting"
	StateInProgress State = "in_progress"
	StateFinished   State = "finished"
)

type TurnState string

const (
	TurnGuessing TurnState = "guessing"
	TurnRevealed TurnState = "revealed"
)

type Placement string

const (
	PlacementPending   Placement = "pending"
	PlacementCorrect   Placement = "correct"
	PlacementIncorrect Placement = "incorrect"
)

type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Premium   bool   `json:"premium"`
}

type Song struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Year        int    `json:"year"`
	AlbumArtURL string `json:"album_art_url,omitempty"`
	PreviewURL  string `json:"preview_url,omitempty"`
	PlayableRef string `json:"playable_ref"`
}

type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CoverURL   string `json:"cover_url,omitempty"`
	TrackCount int    `json:"track_count"`
}

type TimelineEntry struct {
	Song      Song      `json:"song"`
	Placement Placement `json:"placement"`
}

// Session is the shared game aggregate, persisted as one JSON document per
// lobby code. Pointer fields serialize as explicit null so remote readers
// can tell "no playlist yet" from a missing field.
type Session struct {
	Code            string          `json:"code"`
	Host            Player          `json:"host"`
	Players         []Player        `json:"players"`
	Playlist        *Playlist       `json:"playlist"`
	Mode            Mode            `json:"mode"`
	CurrentRound    int             `json:"current_round"`
	TotalRounds     int             `json:"total_rounds"`
	Scores          map[string]int  `json:"scores"`
	State           State           `json:"state"`
	CurrentSong     *Song           `json:"current_song"`
	Timeline        []TimelineEntry `json:"timeline"`
	Songs           []Song          `json:"songs"`
	TurnState       TurnState       `json:"turn_state"`
	LastGuessResult *string         `json:"last_guess_result"`
	TurnStartTime   *time.Time      `json:"turn_start_time"`
	ActivePlayerID  string          `json:"active_player_id,omitempty"`
}

func (s *Session) HasPlayer(id string) bool {
	for _, p := range s.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) PlayerByID(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Clone returns a deep copy. Store transforms mutate the copy so a failed
// commit never leaks partial writes into a shared snapshot.
func (s *Session) Clone() *Session {
	out := *s
	out.Players = append([]Player(nil), s.Players...)
	out.Timeline = append([]TimelineEntry(nil), s.Timeline...)
	out.Songs = append([]Song(nil), s.Songs...)
	out.Scores = make(map[string]int, len(s.Scores))
	for k, v := range s.Scores {
		out.Scores[k] = v
	}
	if s.Playlist != nil {
		pl := *s.Playlist
		out.Playlist = &pl
	}
	if s.CurrentSong != nil {
		song := *s.CurrentSong
		out.CurrentSong = &song
	}
	if s.LastGuessResult != nil {
		res := *s.LastGuessResult
		out.LastGuessResult = &res
	}
	if s.TurnStartTime != nil {
		ts := *s.TurnStartTime
		out.TurnStartTime = &ts
	}
	return &out
}
