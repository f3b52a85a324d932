package model

import (
	"time"
)

// Kind names one of the four record families; each has its own table and retention.
type Kind string

const (
	KindAPI      Kind = "api"
	KindError    Kind = "error"
	KindActivity Kind = "activity"
	KindFrontend Kind = "frontend"
)

// LogBase carries the correlation fields shared by every record kind.
type LogBase struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID string    `gorm:"size:64;index" json:"sessionId,omitempty"`
	Username  string    `gorm:"size:128;index" json:"username,omitempty"`
	UserType  string    `gorm:"size:64" json:"userType,omitempty"`
	RequestID string    `gorm:"size:64;index" json:"requestId,omitempty"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	// CreatedAt is the retention basis.
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (b *LogBase) Base() *LogBase { return b }

// Record is implemented by the four persisted record kinds.
type Record interface {
	Kind() Kind
	Base() *LogBase
}

// Identity is the caller as seen by the logging path. It is never used for authorization.
type Identity struct {
	Username  string `json:"username,omitempty"`
	UserType  string `json:"userType,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func (i Identity) IsZero() bool {
	return i.Username == "" && i.UserType == "" && i.SessionID == ""
}

// Merge returns i with every empty field filled from fallback.
func (i Identity) Merge(fallback Identity) Identity {
	if i.Username == "" {
		i.Username = fallback.Username
	}
	if i.UserType == "" {
		i.UserType = fallback.UserType
	}
	if i.SessionID == "" {
		i.SessionID = fallback.SessionID
	}
	return i
}
