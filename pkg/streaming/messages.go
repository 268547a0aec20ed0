package streaming

import (
	"encoding/json"

	"github.com/tivoli-arcade/gokart/pkg/core"
)

// Message type constants matching the overlay streaming protocol.
const (
	TypeStartRace = "start_race"
	TypeEndRace   = "end_race"
	TypePosition  = "position"
	TypeLap       = "lap"
	TypeResult    = "result"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartRacePayload carries the session and the track layout.
type StartRacePayload struct {
	Session *core.Session         `json:"session"`
	Track   *core.TrackDefinition `json:"track"`
}
