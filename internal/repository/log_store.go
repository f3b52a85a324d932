package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

// Retention holds the per-kind time-to-live measured from created_at.
type Retention map[model.Kind]time.Duration

func RetentionDays(api, errs, activity, frontend int) Retention {
	day := 24 * time.Hour
	return Retention{
		model.KindAPI:      time.Duration(api) * day,
		model.KindError:    time.Duration(errs) * day,
		model.KindActivity: time.Duration(activity) * day,
		model.KindFrontend: time.Duration(frontend) * day,
	}
}

// LogStore persists and queries the four record kinds. Records past their kind's retention
// are never returned, whether or not the reaper has removed them yet.
type LogStore struct {
	db        *gorm.DB
	retention Retention
	clock     clockwork.Clock
}

func NewLogStore(db *gorm.DB, retention Retention, clock clockwork.Clock) *LogStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if retention == nil {
		retention = RetentionDays(90, 365, 90, 30)
	}
	return &LogStore{db: db, retention: retention, clock: clock}
}

func (s *LogStore) Insert(ctx context.Context, rec model.Record) error {
	if rec == nil {
		return nil
	}
	s.stamp(rec)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert %s log: %w", rec.Kind(), err)
	}
	return nil
}

// InsertMany writes all records in one transaction.
func (s *LogStore) InsertMany(ctx context.Context, recs []model.Record) error {
	if len(recs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range recs {
			if rec == nil {
				continue
			}
			s.stamp(rec)
			if err := tx.Create(rec).Error; err != nil {
				return fmt.Errorf("insert %s log: %w", rec.Kind(), err)
			}
		}
		return nil
	})
}

func (s *LogStore) stamp(rec model.Record) {
	b := rec.Base()
	now := s.clock.Now().UTC()
	if b.Timestamp.IsZero() {
		b.Timestamp = now
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
}

func (s *LogStore) cutoff(kind model.Kind) time.Time {
	return s.clock.Now().UTC().Add(-s.retention[kind])
}

// live scopes a query to records still inside the kind's retention.
func (s *LogStore) live(ctx context.Context, m any, kind model.Kind) *gorm.DB {
	q := s.db.WithContext(ctx).Model(m)
	if s.retention[kind] > 0 {
		q = q.Where("created_at >= ?", s.cutoff(kind))
	}
	return q
}

func timeRange(q *gorm.DB, r model.TimeRange) *gorm.DB {
	if r.From != nil {
		q = q.Where("timestamp >= ?", r.From.UTC())
	}
	if r.To != nil {
		q = q.Where("timestamp <= ?", r.To.UTC())
	}
	return q
}

var commonSort = map[string]string{
	"timestamp": "timestamp",
	"createdAt": "created_at",
	"username":  "username",
	"sessionId": "session_id",
}

var sortColumns = map[model.Kind]map[string]string{
	model.KindAPI: {
		"endpoint":       "endpoint",
		"method":         "method",
		"responseTime":   "response_time",
		"responseStatus": "response_status",
		"success":        "success",
	},
	model.KindError: {
		"errorType": "error_type",
		"severity":  "severity",
		"resolved":  "resolved",
		"endpoint":  "endpoint",
	},
	model.KindActivity: {
		"activity": "activity",
		"success":  "success",
		"duration": "duration",
	},
	model.KindFrontend: {
		"type":       "type",
		"receivedAt": "received_at",
	},
}

// paginate applies sort/skip/limit; unknown sort fields fall back to timestamp.
func paginate(q *gorm.DB, kind model.Kind, p model.Page) *gorm.DB {
	p = p.Normalize()
	col, ok := commonSort[p.SortField]
	if !ok {
		col, ok = sortColumns[kind][p.SortField]
	}
	if !ok {
		col = "timestamp"
	}
	return q.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: p.SortDesc}).
		Offset(p.Skip).
		Limit(p.Limit)
}

func (s *LogStore) FindAPILogs(ctx context.Context, f model.APILogFilter, p model.Page) ([]model.APILog, error) {
	q := timeRange(s.live(ctx, &model.APILog{}, model.KindAPI), f.TimeRange)
	if f.Username != "" {
		q = q.Where("username = ?", f.Username)
	}
	if f.Endpoint != "" {
		q = q.Where("endpoint = ?", f.Endpoint)
	}
	if f.Method != "" {
		q = q.Where("method = ?", f.Method)
	}
	if f.SessionID != "" {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if f.Status != 0 {
		q = q.Where("response_status = ?", f.Status)
	}
	if f.Success != nil {
		q = q.Where("success = ?", *f.Success)
	}
	var out []model.APILog
	err := paginate(q, model.KindAPI, p).Find(&out).Error
	return out, err
}

func (s *LogStore) FindErrorLogs(ctx context.Context, f model.ErrorLogFilter, p model.Page) ([]model.ErrorLog, error) {
	q := timeRange(s.live(ctx, &model.ErrorLog{}, model.KindError), f.TimeRange)
	if f.Username != "" {
		q = q.Where("username = ?", f.Username)
	}
	if f.Endpoint != "" {
		q = q.Where("endpoint = ?", f.Endpoint)
	}
	if f.SessionID != "" {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if f.ErrorType != "" {
		q = q.Where("error_type = ?", f.ErrorType)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.Resolved != nil {
		q = q.Where("resolved = ?", *f.Resolved)
	}
	var out []model.ErrorLog
	err := paginate(q, model.KindError, p).Find(&out).Error
	return out, err
}

func (s *LogStore) FindActivities(ctx context.Context, f model.ActivityFilter, p model.Page) ([]model.UserActivity, error) {
	q := timeRange(s.live(ctx, &model.UserActivity{}, model.KindActivity), f.TimeRange)
	if f.Username != "" {
		q = q.Where("username = ?", f.Username)
	}
	if f.SessionID != "" {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if f.Activity != "" {
		q = q.Where("activity = ?", f.Activity)
	}
	if f.Success != nil {
		q = q.Where("success = ?", *f.Success)
	}
	var out []model.UserActivity
	err := paginate(q, model.KindActivity, p).Find(&out).Error
	return out, err
}

func (s *LogStore) FindFrontendLogs(ctx context.Context, f model.FrontendLogFilter, p model.Page) ([]model.FrontendLog, error) {
	q := timeRange(s.live(ctx, &model.FrontendLog{}, model.KindFrontend), f.TimeRange)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Username != "" {
		q = q.Where("username = ?", f.Username)
	}
	if f.SessionID != "" {
		q = q.Where("session_id = ?", f.SessionID)
	}
	var out []model.FrontendLog
	err := paginate(q, model.KindFrontend, p).Find(&out).Error
	return out, err
}

func (s *LogStore) APILogsByUsername(ctx context.Context, username string, p model.Page) ([]model.APILog, error) {
	return s.FindAPILogs(ctx, model.APILogFilter{Username: username}, p)
}

func (s *LogStore) ErrorsBySeverity(ctx context.Context, severity model.Severity, p model.Page) ([]model.ErrorLog, error) {
	return s.FindErrorLogs(ctx, model.ErrorLogFilter{Severity: string(severity)}, p)
}

func (s *LogStore) ActivitiesBySession(ctx context.Context, sessionID string, p model.Page) ([]model.UserActivity, error) {
	return s.FindActivities(ctx, model.ActivityFilter{SessionID: sessionID}, p)
}

func (s *LogStore) UnresolvedErrors(ctx context.Context, f model.ErrorLogFilter, p model.Page) ([]model.ErrorLog, error) {
	resolved := false
	f.Resolved = &resolved
	return s.FindErrorLogs(ctx, f, p)
}

func (s *LogStore) CriticalErrors(ctx context.Context, p model.Page) ([]model.ErrorLog, error) {
	return s.ErrorsBySeverity(ctx, model.SeverityCritical, p)
}

func (s *LogStore) GetErrorLog(ctx context.Context, id string) (*model.ErrorLog, error) {
	var rec model.ErrorLog
	err := s.live(ctx, &model.ErrorLog{}, model.KindError).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkResolved overwrites the resolution fields; repeating it is harmless and the last call wins.
func (s *LogStore) MarkResolved(ctx context.Context, id, resolvedBy, notes string) (*model.ErrorLog, error) {
	now := s.clock.Now().UTC()
	res := s.live(ctx, &model.ErrorLog{}, model.KindError).
		Where("id = ?", id).
		Updates(map[string]any{
			"resolved":         true,
			"resolved_at":      now,
			"resolved_by":      resolvedBy,
			"resolution_notes": notes,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetErrorLog(ctx, id)
}

// DeleteResolvedBefore hard-deletes resolved error records created before cutoff.
func (s *LogStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("resolved = ? AND created_at < ?", true, cutoff.UTC()).
		Delete(&model.ErrorLog{})
	return res.RowsAffected, res.Error
}

func recordFor(kind model.Kind) (any, error) {
	switch kind {
	case model.KindAPI:
		return &model.APILog{}, nil
	case model.KindError:
		return &model.ErrorLog{}, nil
	case model.KindActivity:
		return &model.UserActivity{}, nil
	case model.KindFrontend:
		return &model.FrontendLog{}, nil
	}
	return nil, fmt.Errorf("unknown log kind %q", kind)
}

// Purge removes records of one kind that are past retention.
func (s *LogStore) Purge(ctx context.Context, kind model.Kind) (int64, error) {
	if s.retention[kind] <= 0 {
		return 0, nil
	}
	m, err := recordFor(kind)
	if err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Where("created_at < ?", s.cutoff(kind)).Delete(m)
	return res.RowsAffected, res.Error
}

// PurgeExpired runs Purge for every kind and reports what was removed.
func (s *LogStore) PurgeExpired(ctx context.Context) (map[model.Kind]int64, error) {
	out := make(map[model.Kind]int64, 4)
	var errs []error
	for _, kind := range []model.Kind{model.KindAPI, model.KindError, model.KindActivity, model.KindFrontend} {
		n, err := s.Purge(ctx, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", kind, err))
			continue
		}
		out[kind] = n
	}
	return out, errors.Join(errs...)
}
