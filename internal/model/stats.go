package model

// PerformanceStat groups API records per endpoint and method.
type PerformanceStat struct {
	Endpoint        string  `json:"endpoint"`
	Method          string  `json:"method"`
	TotalRequests   int64   `json:"totalRequests"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	MinResponseTime int64   `json:"minResponseTime"`
	MaxResponseTime int64   `json:"maxResponseTime"`
	ErrorCount      int64   `json:"errorCount"`
	ErrorRate       float64 `json:"errorRate"`
}

type ErrorStat struct {
	ErrorType       string `json:"errorType"`
	Severity        string `json:"severity"`
	Count           int64  `json:"count"`
	UnresolvedCount int64  `json:"unresolvedCount"`
}

type ActivityStat struct {
	Activity     string `json:"activity"`
	Count        int64  `json:"count"`
	SuccessCount int64  `json:"successCount"`
	UniqueUsers  int64  `json:"uniqueUsers"`
}

type ActivityFrequency struct {
	Day      string `json:"day"`
	Activity string `json:"activity"`
	Count    int64  `json:"count"`
}

type FrontendStat struct {
	Type            string  `json:"type"`
	Count           int64   `json:"count"`
	AvgResponseTime float64 `json:"avgResponseTime"`
}

type ErrorTrend struct {
	Day           string `json:"day"`
	ErrorType     string `json:"errorType"`
	Severity      string `json:"severity"`
	Count         int64  `json:"count"`
	ResolvedCount int64  `json:"resolvedCount"`
}

// LoggingStats is the overview served by the stats endpoint.
type LoggingStats struct {
	TotalAPIRequests int64        `json:"totalApiRequests"`
	FailedRequests   int64        `json:"failedRequests"`
	ErrorRate        float64      `json:"errorRate"`
	AvgResponseTime  float64      `json:"avgResponseTime"`
	TotalErrors      int64        `json:"totalErrors"`
	UnresolvedErrors int64        `json:"unresolvedErrors"`
	CriticalErrors   int64        `json:"criticalErrors"`
	TotalActivities  int64        `json:"totalActivities"`
	FrontendLogs     int64        `json:"frontendLogs"`
	QueueDepth       int          `json:"queueDepth"`
	Sessions         SessionStats `json:"sessions"`
}
