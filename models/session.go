package models

import (
	"time"

	"github.com/bellapacxx/bingo-live/game"
	"gorm.io/datatypes"
)

type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// Live reports whether the session still accepts play.
func (s SessionStatus) Live() bool {
	return s == StatusWaiting || s == StatusActive
}

// CanMoveTo enforces waiting -> active -> finished, plus waiting -> finished.
func (s SessionStatus) CanMoveTo(next SessionStatus) bool {
	switch s {
	case StatusWaiting:
		return next == StatusActive || next == StatusFinished
	case StatusActive:
		return next == StatusFinished
	}
	return false
}

type Session struct {
	ID         string                         `gorm:"primaryKey;size:64" json:"id"`
	Status     SessionStatus                  `gorm:"size:16;index;not null" json:"status"`
	Modes      datatypes.JSONSlice[game.Mode] `json:"modes"`
	WinnerID   *string                        `gorm:"size:64" json:"winnerId,omitempty"`
	Superseded bool                           `json:"superseded,omitempty"`
	CreatedAt  time.Time                      `gorm:"index" json:"createdAt"`
	StartedAt  *time.Time                     `json:"startedAt,omitempty"`
	FinishedAt *time.Time                     `json:"finishedAt,omitempty"`
}

// ModeSet returns the session's win conditions.
func (s *Session) ModeSet() game.ModeSet {
	return game.ModeSet(s.Modes)
}

// Clone returns a copy that shares nothing with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Modes = append(datatypes.JSONSlice[game.Mode](nil), s.Modes...)
	if s.WinnerID != nil {
		w := *s.WinnerID
		c.WinnerID = &w
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
