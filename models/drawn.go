package models

import "time"

// DrawnNumber is one entry in a session's append-only draw log.
type DrawnNumber struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	SessionID string    `gorm:"size:64;not null;uniqueIndex:idx_drawn_session_number;uniqueIndex:idx_drawn_session_seq" json:"sessionId"`
	Number    int       `gorm:"not null;uniqueIndex:idx_drawn_session_number" json:"number"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_drawn_session_seq" json:"seq"`
	DrawnAt   time.Time `json:"drawnAt"`
}
