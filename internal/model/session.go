package model

import "time"

// Session is held by the in-memory registry only and never persisted.
type Session struct {
	SessionID               string     `json:"sessionId"`
	Username                string     `json:"username"`
	UserType                string     `json:"userType,omitempty"`
	IPAddress               string     `json:"ipAddress,omitempty"`
	UserAgent               string     `json:"userAgent,omitempty"`
	CreatedAt               time.Time  `json:"createdAt"`
	LastActivity            time.Time  `json:"lastActivity"`
	IsActive                bool       `json:"isActive"`
	LastActivityType        string     `json:"lastActivityType,omitempty"`
	LastActivityDescription string     `json:"lastActivityDescription,omitempty"`
	EndedAt                 *time.Time `json:"endedAt,omitempty"`
}

type SessionStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Expired  int `json:"expired"`
	Inactive int `json:"inactive"`
}
