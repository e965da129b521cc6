package models

import (
	"time"

	"github.com/bellapacxx/bingo-live/game"
	"gorm.io/datatypes"
)

// Player is the stored record. It carries the device token, so responses
// to other participants should use a narrower view.
type Player struct {
	ID            string                    `gorm:"primaryKey;size:64" json:"id"`
	SessionID     string                    `gorm:"size:64;index" json:"sessionId"`
	Name          string                    `gorm:"size:64;not null" json:"name"`
	NameKey       string                    `gorm:"size:64;uniqueIndex;not null" json:"-"` // lowercased Name
	DeviceToken   string                    `gorm:"size:64;index" json:"deviceToken"`
	ConnectionRef string                    `gorm:"size:64" json:"connectionRef,omitempty"`
	UserAgent     string                    `gorm:"size:512" json:"userAgent,omitempty"`
	Card          datatypes.JSONSlice[int]  `json:"card"`
	Markings      datatypes.JSONSlice[bool] `json:"markings"`
	LastSeen      time.Time                 `json:"lastSeen"`
	JoinedAt      time.Time                 `json:"joinedAt"`
}

// GameCard returns the card as a game.Card.
func (p *Player) GameCard() game.Card {
	return game.Card(p.Card)
}

// Marks returns a copy of the markings with the free cell forced on.
func (p *Player) Marks() []bool {
	marks := game.NewMarks()
	copy(marks, p.Markings)
	marks[game.FreeIndex] = true
	return marks
}

// Clone returns a deep copy so stores never hand out shared slices.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	c.Card = append(datatypes.JSONSlice[int](nil), p.Card...)
	c.Markings = append(datatypes.JSONSlice[bool](nil), p.Markings...)
	return &c
}
