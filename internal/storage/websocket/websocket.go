package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tivoli-arcade/gokart/pkg/core"
	"github.com/tivoli-arcade/gokart/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams race progress over WebSocket to the overlay server.
// It implements storage.Backend but not storage.Leaderboard.
type Backend struct {
	link *link
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config) *Backend {
	return &Backend{
		link: newLink(slog.Default()),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.link.open(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.link.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// StartRace sends the session and track layout and waits for server ack.
// The frame opens the replay log used after a reconnect.
func (b *Backend) StartRace(s *core.Session, def core.TrackDefinition) error {
	data, err := marshalEnvelope(streaming.TypeStartRace, streaming.StartRacePayload{Session: s, Track: &def})
	if err != nil {
		return err
	}
	b.link.begin(data)
	return b.link.request(data, streaming.TypeStartRace, ackTimeout)
}

// EndRace sends end_race and waits for server ack.
func (b *Backend) EndRace() error {
	data, err := marshalEnvelope(streaming.TypeEndRace, nil)
	if err != nil {
		return err
	}
	b.link.forget()
	return b.link.request(data, streaming.TypeEndRace, ackTimeout)
}

// Dropped returns the number of race events discarded because the event
// buffer was full.
func (b *Backend) Dropped() uint64 {
	return b.link.dropped.Load()
}

// Coalesced returns the number of position frames superseded by a newer one
// before they were written.
func (b *Backend) Coalesced() uint64 {
	return b.link.coalesced.Load()
}

// RecordPosition streams the kart's latest state to the overlay.
func (b *Backend) RecordPosition(p *core.PositionUpdate) error {
	data, err := marshalEnvelope(streaming.TypePosition, p)
	if err != nil {
		return err
	}
	b.link.queuePosition(data)
	return nil
}

// RecordLap streams a completed lap and keeps it for reconnect replay.
func (b *Backend) RecordLap(l *core.LapCompleted) error {
	data, err := marshalEnvelope(streaming.TypeLap, l)
	if err != nil {
		return err
	}
	b.link.remember(data)
	b.link.queue(data)
	return nil
}

// RecordResult sends the final result and waits for server ack. A reconnect
// after the result does not reopen the finished race.
func (b *Backend) RecordResult(r *core.RaceResult) error {
	data, err := marshalEnvelope(streaming.TypeResult, r)
	if err != nil {
		return err
	}
	b.link.forget()
	return b.link.request(data, streaming.TypeResult, ackTimeout)
}
