package services

import (
	"time"

	"github.com/bellapacxx/bingo-live/models"
)

// DrawStatus is the outcome of DrawNextNumber.
type DrawStatus int

const (
	DrawOK DrawStatus = iota
	DrawNoSession
	DrawNotActive
	DrawExhausted
	// DrawContended means every attempt collided with a concurrent draw.
	DrawContended
)

func (s DrawStatus) String() string {
	switch s {
	case DrawOK:
		return "ok"
	case DrawNoSession:
		return "no session"
	case DrawNotActive:
		return "session not active"
	case DrawExhausted:
		return "no numbers left"
	case DrawContended:
		return "draw collided, try again"
	}
	return "unknown"
}

type DrawResult struct {
	Status DrawStatus
	Number int
	Drawn  []int // numbers in draw order, including Number on success
}

// ModeStatus is the outcome of session creation and mode changes.
type ModeStatus int

const (
	ModeOK ModeStatus = iota
	ModeInvalid
	ModeNoSession
)

type SessionResult struct {
	Status  ModeStatus
	Reason  error // validation failure when Status is ModeInvalid
	Session *models.Session
}

type TransitionStatus int

const (
	TransitionOK TransitionStatus = iota
	TransitionNoSession
	TransitionInvalid
)

type TransitionResult struct {
	Status  TransitionStatus
	Session *models.Session
}

// JoinStatus is the outcome of RegisterPlayer, ClaimPlayer and Reconnect.
type JoinStatus int

const (
	JoinCreated JoinStatus = iota
	JoinReconnected
	JoinClaimed
	JoinConflict
	JoinNoSession
	JoinInvalidName
	JoinNotFound
	JoinSessionGone
)

func (s JoinStatus) String() string {
	switch s {
	case JoinCreated:
		return "created"
	case JoinReconnected:
		return "reconnected"
	case JoinClaimed:
		return "claimed"
	case JoinConflict:
		return "conflict"
	case JoinNoSession:
		return "no session"
	case JoinInvalidName:
		return "invalid name"
	case JoinNotFound:
		return "not found"
	case JoinSessionGone:
		return "session gone"
	}
	return "unknown"
}

// Conflict describes the device currently holding a name.
type Conflict struct {
	ExistingDevice   string `json:"existingDevice"`
	AlreadyConnected bool   `json:"alreadyConnected"`
}

type JoinResult struct {
	Status   JoinStatus
	Player   *models.Player
	Session  *models.Session
	Drawn    []int
	Conflict *Conflict
}

// OK reports whether the caller is now attached as Player.
func (r JoinResult) OK() bool {
	return r.Status == JoinCreated || r.Status == JoinReconnected || r.Status == JoinClaimed
}

type MarkStatus int

const (
	MarkOK MarkStatus = iota
	MarkBadPosition
	MarkFreeCell
	MarkNotFound
)

type MarkResult struct {
	Status   MarkStatus
	Markings []bool
}

type BingoStatus int

const (
	BingoChecked BingoStatus = iota
	BingoNoSession
	BingoNotFound
	BingoNotInSession
)

type BingoResult struct {
	Status     BingoStatus
	IsValid    bool
	PlayerID   string
	WinnerName string
	Pattern    string
}

// PlayerInfo is the roster view of a player shared with everyone.
type PlayerInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Online      bool      `json:"online"`
	DeviceCount int       `json:"deviceCount"`
	MarkedCount int       `json:"markedCount"`
	LastSeen    time.Time `json:"lastSeen"`
}

type Snapshot struct {
	Session       *models.Session `json:"session"`
	DrawnNumbers  []int           `json:"drawnNumbers"`
	CurrentNumber int             `json:"currentNumber,omitempty"`
	Remaining     int             `json:"remaining"`
	Players       []PlayerInfo    `json:"players"`
}
