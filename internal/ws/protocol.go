package ws

import "encoding/json"

const ProtocolVersion = "1.0"

// Wire message types the lobby backend emits. Anything else degrades to a
// Raw event; the channel never rejects a frame outright.
const (
	TypePlayerJoined = "player_joined"
	TypePlayerLeft   = "player_left"
	TypeStateChanged = "state_changed"
	TypeMessage      = "message"
)

// Message is the realtime frame shape shared with the lobby backend.
type Message struct {
	Type         string          `json:"type"`
	LobbyID      string          `json:"lobby_id,omitempty"`
	PlayerName   string          `json:"player_name,omitempty"`
	State        string          `json:"state,omitempty"`
	PlaylistName string          `json:"playlist_name,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

type EventKind string

const (
	KindPlayerJoined EventKind = "player_joined"
	KindPlayerLeft   EventKind = "player_left"
	KindStateChanged EventKind = "state_changed"
	KindMessage      EventKind = "message"
	KindRaw          EventKind = "raw"
	// KindDropped is terminal: the reconnect budget is exhausted and the
	// channel has given up until the next Connect.
	KindDropped EventKind = "dropped"
)

// Event is one delivery on the channel's event stream.
type Event struct {
	Kind         EventKind
	Type         string
	LobbyID      string
	PlayerName   string
	State        string
	PlaylistName string
	Payload      json.RawMessage
}

// parseEvent never fails: malformed frames and unknown types come back as
// Raw so one bad producer cannot take the channel down.
func parseEvent(data []byte) Event {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Event{Kind: KindRaw, Payload: append(json.RawMessage(nil), data...)}
	}
	ev := Event{
		Type:         m.Type,
		LobbyID:      m.LobbyID,
		PlayerName:   m.PlayerName,
		State:        m.State,
		PlaylistName: m.PlaylistName,
		Payload:      m.Payload,
	}
	switch m.Type {
	case TypePlayerJoined:
		ev.Kind = KindPlayerJoined
	case TypePlayerLeft:
		ev.Kind = KindPlayerLeft
	case TypeStateChanged:
		ev.Kind = KindStateChanged
	case TypeMessage:
		ev.Kind = KindMessage
	default:
		ev.Kind = KindRaw
		if ev.Payload == nil {
			ev.Payload = append(json.RawMessage(nil), data...)
		}
	}
	return ev
}
