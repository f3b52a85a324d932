package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/logger"
	"gorm.io/datatypes"
)

// IngestFrontendLogs stores one upload from client-side capture and returns how many
// records were written. Fields nested under an entry's "data" object are promoted to the
// top level when the entry does not already carry them.
func (s *LoggingService) IngestFrontendLogs(ctx context.Context, batch model.FrontendLogBatch, req *RequestContext) (int, error) {
	if len(batch.Logs) == 0 {
		return 0, nil
	}
	if req == nil {
		req = &RequestContext{}
	}
	uploader := ExtractIdentity(req.Headers.Get("Authorization")).Merge(model.Identity{SessionID: req.SessionID})
	now := s.clock.Now().UTC()
	batchTime := parseClientTime(batch.Timestamp)

	recs := make([]model.Record, 0, len(batch.Logs))
	for i, entry := range batch.Logs {
		if entry == nil {
			continue
		}
		rec, err := s.frontendRecord(entry, batch, uploader, now, batchTime, req.RequestID)
		if err != nil {
			logger.Warn("skipping frontend log entry", "index", i, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	if err := s.store.InsertMany(ctx, recs); err != nil {
		return 0, fmt.Errorf("store frontend logs: %w", err)
	}
	return len(recs), nil
}

func flattenData(entry map[string]any) map[string]any {
	out := make(map[string]any, len(entry))
	for k, v := range entry {
		out[k] = v
	}
	if data, ok := entry["data"].(map[string]any); ok {
		for k, v := range data {
			if _, exists := out[k]; !exists {
				out[k] = v
			}
		}
	}
	return out
}

func (s *LoggingService) frontendRecord(entry map[string]any, batch model.FrontendLogBatch, uploader model.Identity, now time.Time, batchTime *time.Time, requestID string) (*model.FrontendLog, error) {
	san := s.formatter.Sanitizer()
	clean, ok := san.Sanitize(flattenData(entry)).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("entry could not be sanitized")
	}

	id := model.Identity{
		Username:  stringField(clean, "username"),
		UserType:  stringField(clean, "userType"),
		SessionID: stringField(clean, "sessionId"),
	}.Merge(uploader)

	rec := &model.FrontendLog{
		LogBase: model.LogBase{
			ID:        uuid.NewString(),
			SessionID: id.SessionID,
			Username:  id.Username,
			UserType:  id.UserType,
			RequestID: firstNonEmpty(stringField(clean, "requestId"), requestID, uuid.NewString()),
			Timestamp: now,
		},
		Type:              stringField(clean, "type"),
		Method:            stringField(clean, "method"),
		URL:               stringField(clean, "url"),
		Status:            intField(clean, "status"),
		StatusText:        stringField(clean, "statusText"),
		Headers:           s.boundedJSON(clean["headers"]),
		Data:              s.boundedJSON(clean["data"]),
		ResponseTime:      int64Field(clean, "responseTime"),
		Success:           boolField(clean, "success"),
		Error:             s.boundedJSON(clean["error"]),
		Activity:          stringField(clean, "activity"),
		Description:       stringField(clean, "description"),
		Metadata:          s.boundedJSON(clean["metadata"]),
		Context:           s.boundedJSON(clean["context"]),
		FrontendTimestamp: parseClientTime(stringField(clean, "timestamp")),
		FrontendUserAgent: san.SanitizeUserAgent(batch.UserAgent),
		FrontendURL:       batch.URL,
		FrontendReferrer:  batch.Referrer,
		ReceivedAt:        now,
	}
	if rec.FrontendTimestamp == nil {
		rec.FrontendTimestamp = batchTime
	}
	if rec.Type == "" {
		rec.Type = "unknown"
	}
	return rec, nil
}

// boundedJSON stores v as JSON; oversized values are kept as a truncated JSON string.
func (s *LoggingService) boundedJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	san := s.formatter.Sanitizer()
	b, err := json.Marshal(v)
	if err != nil || len(b) > san.MaxPayloadSize() {
		b, _ = json.Marshal(san.TruncatePayload(v))
	}
	return datatypes.JSON(b)
}

func parseClientTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

func floatField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func intField(m map[string]any, key string) *int {
	f, ok := floatField(m, key)
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

func int64Field(m map[string]any, key string) *int64 {
	f, ok := floatField(m, key)
	if !ok {
		return nil
	}
	n := int64(math.Round(f))
	return &n
}

func boolField(m map[string]any, key string) *bool {
	switch v := m[key].(type) {
	case bool:
		return &v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return &b
		}
	}
	return nil
}
