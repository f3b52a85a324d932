package model

import (
	"net/http"

	"gorm.io/datatypes"
)

// APILog is one intercepted HTTP request/response pair.
type APILog struct {
	LogBase
	Method          string         `gorm:"size:10;index" json:"method"`
	Endpoint        string         `gorm:"size:512;index" json:"endpoint"`
	URL             string         `gorm:"type:text" json:"url"`
	UserAgent       string         `gorm:"size:256" json:"userAgent,omitempty"`
	IPAddress       string         `gorm:"size:64" json:"ipAddress,omitempty"`
	RequestHeaders  datatypes.JSON `json:"requestHeaders,omitempty"`
	RequestPayload  string         `gorm:"type:text" json:"requestPayload,omitempty"`
	ResponseStatus  int            `gorm:"index" json:"responseStatus"`
	ResponseHeaders datatypes.JSON `json:"responseHeaders,omitempty"`
	ResponsePayload string         `gorm:"type:text" json:"responsePayload,omitempty"`
	ResponseTime    int64          `json:"responseTime"` // ms
	ErrorDetails    datatypes.JSON `json:"errorDetails,omitempty"`
	Success         bool           `gorm:"index" json:"success"`
}

func (APILog) TableName() string { return "api_logs" }

func (*APILog) Kind() Kind { return KindAPI }

// IsSuccessStatus is the success rule for API records: 2xx and 3xx.
func IsSuccessStatus(status int) bool {
	return status >= 200 && status < 400
}

var httpMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// IsHTTPMethod reports whether m is one of the verbs accepted in APILog.Method.
func IsHTTPMethod(m string) bool {
	_, ok := httpMethods[m]
	return ok
}
