package model

import (
	"time"

	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"gorm.io/datatypes"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

type ErrorLog struct {
	LogBase
	ErrorType         apperrors.ErrorType `gorm:"size:32;index" json:"errorType"`
	ErrorCode         string              `gorm:"size:64" json:"errorCode,omitempty"`
	ErrorName         string              `gorm:"size:64" json:"errorName,omitempty"`
	ErrorMessage      string              `gorm:"type:text" json:"errorMessage"`
	StackTrace        string              `gorm:"type:text" json:"stackTrace,omitempty"`
	Endpoint          string              `gorm:"size:512;index" json:"endpoint,omitempty"`
	Method            string              `gorm:"size:10" json:"method,omitempty"`
	StatusCode        int                 `json:"statusCode,omitempty"`
	RequestPayload    string              `gorm:"type:text" json:"requestPayload,omitempty"`
	Severity          Severity            `gorm:"size:16;index" json:"severity"`
	Resolved          bool                `gorm:"index" json:"resolved"`
	ResolvedAt        *time.Time          `json:"resolvedAt,omitempty"`
	ResolvedBy        string              `gorm:"size:128" json:"resolvedBy,omitempty"`
	ResolutionNotes   string              `gorm:"type:text" json:"resolutionNotes,omitempty"`
	Environment       string              `gorm:"size:32" json:"environment,omitempty"`
	AdditionalContext datatypes.JSON      `json:"additionalContext,omitempty"`
}

func (ErrorLog) TableName() string { return "error_logs" }

func (*ErrorLog) Kind() Kind { return KindError }
