// Package events defines the event vocabulary shared by every transport.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bellapacxx/bingo-live/game"
	"github.com/bellapacxx/bingo-live/models"
)

type Type string

const (
	TypeNumberDrawn        Type = "numberDrawn"
	TypeGameStateChanged   Type = "gameStateChanged"
	TypePlayerJoined       Type = "playerJoined"
	TypePlayerDisconnected Type = "playerDisconnected"
	TypeBingo              Type = "bingo"
	TypePlayerPresence     Type = "playerPresence"
	TypeHeartbeat          Type = "heartbeat"
)

// Payload is implemented by exactly one struct per event type.
type Payload interface {
	EventType() Type
}

type NumberDrawn struct {
	Number int `json:"number"`
	Seq    int `json:"seq"`
}

// GameStateChanged announces session transitions. When sent to a single
// player after a reset it also carries that player's new card. Cleared means
// no session exists any more.
type GameStateChanged struct {
	SessionID    string               `json:"sessionId,omitempty"`
	Status       models.SessionStatus `json:"status"`
	Modes        game.ModeSet         `json:"modes"`
	DrawnNumbers []int                `json:"drawnNumbers,omitempty"`
	WinnerID     string               `json:"winnerId,omitempty"`
	Reset        bool                 `json:"reset,omitempty"`
	Cleared      bool                 `json:"cleared,omitempty"`
	Card         []int                `json:"card,omitempty"`
	Markings     []bool               `json:"markings,omitempty"`
}

type PlayerJoined struct {
	PlayerID    string `json:"playerId"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
}

type PlayerDisconnected struct {
	PlayerID    string `json:"playerId,omitempty"`
	Name        string `json:"name,omitempty"`
	PlayerCount int    `json:"playerCount"`
	Wiped       bool   `json:"wiped,omitempty"`
}

type Bingo struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Pattern    string `json:"pattern"`
}

type PlayerPresence struct {
	PlayerID    string `json:"playerId"`
	Online      bool   `json:"online"`
	DeviceCount int    `json:"deviceCount"`
}

type Heartbeat struct {
	ConnectionID string `json:"connectionId,omitempty"`
}

func (NumberDrawn) EventType() Type        { return TypeNumberDrawn }
func (GameStateChanged) EventType() Type   { return TypeGameStateChanged }
func (PlayerJoined) EventType() Type       { return TypePlayerJoined }
func (PlayerDisconnected) EventType() Type { return TypePlayerDisconnected }
func (Bingo) EventType() Type              { return TypeBingo }
func (PlayerPresence) EventType() Type     { return TypePlayerPresence }
func (Heartbeat) EventType() Type          { return TypeHeartbeat }

// Event is one message on the stream. Recipients limits delivery to the
// listed player ids; empty means everyone.
type Event struct {
	Type       Type
	Payload    Payload
	Timestamp  time.Time
	Recipients []string
}

// New stamps payload with the current time.
func New(p Payload) Event {
	return Event{Type: p.EventType(), Payload: p, Timestamp: time.Now()}
}

// To returns a copy of e addressed to the given players only.
func (e Event) To(playerIDs ...string) Event {
	e.Recipients = append([]string(nil), playerIDs...)
	return e
}

type wireEvent struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// MarshalJSON writes {"type", "data", "timestamp"} with the timestamp in
// unix milliseconds. Recipients never leave the process.
func (e Event) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{Type: e.Type, Data: data, Timestamp: e.Timestamp.UnixMilli()})
}

// UnmarshalJSON decodes known types into their payload struct. Unknown
// types decode without error and leave Payload nil.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	e.Type = w.Type
	e.Timestamp = time.UnixMilli(w.Timestamp)
	e.Payload = nil

	p := newPayload(w.Type)
	if p == nil || len(w.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(w.Data, p); err != nil {
		return fmt.Errorf("decode %s payload: %w", w.Type, err)
	}
	e.Payload = deref(p)
	return nil
}

func newPayload(t Type) any {
	switch t {
	case TypeNumberDrawn:
		return &NumberDrawn{}
	case TypeGameStateChanged:
		return &GameStateChanged{}
	case TypePlayerJoined:
		return &PlayerJoined{}
	case TypePlayerDisconnected:
		return &PlayerDisconnected{}
	case TypeBingo:
		return &Bingo{}
	case TypePlayerPresence:
		return &PlayerPresence{}
	case TypeHeartbeat:
		return &Heartbeat{}
	}
	return nil
}

func deref(p any) Payload {
	switch v := p.(type) {
	case *NumberDrawn:
		return *v
	case *GameStateChanged:
		return *v
	case *PlayerJoined:
		return *v
	case *PlayerDisconnected:
		return *v
	case *Bingo:
		return *v
	case *PlayerPresence:
		return *v
	case *Heartbeat:
		return *v
	}
	return nil
}
