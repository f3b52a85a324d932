package model

import (
	"time"

	"gorm.io/datatypes"
)

// Frontend log types. The ingestion endpoint stores unknown types as sent.
const (
	FrontendRequest       = "request"
	FrontendResponse      = "response"
	FrontendRequestError  = "request_error"
	FrontendResponseError = "response_error"
	FrontendUserActivity  = "user_activity"
	FrontendError         = "frontend_error"
)

// FrontendLog is the loosely validated record uploaded by client-side capture.
type FrontendLog struct {
	LogBase
	Type              string         `gorm:"size:32;index" json:"type"`
	Method            string         `gorm:"size:10" json:"method,omitempty"`
	URL               string         `gorm:"type:text" json:"url,omitempty"`
	Status            *int           `json:"status,omitempty"`
	StatusText        string         `gorm:"size:128" json:"statusText,omitempty"`
	Headers           datatypes.JSON `json:"headers,omitempty"`
	Data              datatypes.JSON `json:"data,omitempty"`
	ResponseTime      *int64         `json:"responseTime,omitempty"`
	Success           *bool          `json:"success,omitempty"`
	Error             datatypes.JSON `json:"error,omitempty"`
	Activity          string         `gorm:"size:64" json:"activity,omitempty"`
	Description       string         `gorm:"type:text" json:"description,omitempty"`
	Metadata          datatypes.JSON `json:"metadata,omitempty"`
	Context           datatypes.JSON `json:"context,omitempty"`
	FrontendTimestamp *time.Time     `json:"frontendTimestamp,omitempty"`
	FrontendUserAgent string         `gorm:"size:256" json:"frontendUserAgent,omitempty"`
	FrontendURL       string         `gorm:"type:text" json:"frontendUrl,omitempty"`
	FrontendReferrer  string         `gorm:"type:text" json:"frontendReferrer,omitempty"`
	ReceivedAt        time.Time      `json:"receivedAt"`
}

func (FrontendLog) TableName() string { return "frontend_logs" }

func (*FrontendLog) Kind() Kind { return KindFrontend }

// FrontendLogBatch is the upload envelope posted to the ingestion endpoint.
type FrontendLogBatch struct {
	Logs      []map[string]any `json:"logs"`
	Timestamp string           `json:"timestamp,omitempty"`
	UserAgent string           `json:"userAgent,omitempty"`
	URL       string           `json:"url,omitempty"`
	Referrer  string           `json:"referrer,omitempty"`
}
