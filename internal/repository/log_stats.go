package repository

import (
	"context"
	"fmt"

	"github.com/ledgerline/ledgerlog/internal/model"
	"gorm.io/gorm"
)

// dayExpr renders a UTC YYYY-MM-DD bucket for col in the store's dialect.
func (s *LogStore) dayExpr(col string) string {
	if s.db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("to_char(%s AT TIME ZONE 'UTC', 'YYYY-MM-DD')", col)
	}
	// sqlite stores times as UTC text, so the first ten characters are the day
	return fmt.Sprintf("substr(%s, 1, 10)", col)
}

func (s *LogStore) Count(ctx context.Context, kind model.Kind, r model.TimeRange) (int64, error) {
	m, err := recordFor(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	err = timeRange(s.live(ctx, m, kind), r).Count(&n).Error
	return n, err
}

func (s *LogStore) PerformanceStats(ctx context.Context, r model.TimeRange) ([]model.PerformanceStat, error) {
	var out []model.PerformanceStat
	err := timeRange(s.live(ctx, &model.APILog{}, model.KindAPI), r).
		Select(`endpoint, method,
			COUNT(*) AS total_requests,
			AVG(response_time) AS avg_response_time,
			MIN(response_time) AS min_response_time,
			MAX(response_time) AS max_response_time,
			SUM(CASE WHEN success THEN 0 ELSE 1 END) AS error_count`).
		Group("endpoint, method").
		Order("total_requests DESC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].TotalRequests > 0 {
			out[i].ErrorRate = float64(out[i].ErrorCount) / float64(out[i].TotalRequests)
		}
	}
	return out, nil
}

func (s *LogStore) ErrorStats(ctx context.Context, r model.TimeRange) ([]model.ErrorStat, error) {
	var out []model.ErrorStat
	err := timeRange(s.live(ctx, &model.ErrorLog{}, model.KindError), r).
		Select(`error_type, severity,
			COUNT(*) AS count,
			SUM(CASE WHEN resolved THEN 0 ELSE 1 END) AS unresolved_count`).
		Group("error_type, severity").
		Order("count DESC").
		Scan(&out).Error
	return out, err
}

func (s *LogStore) ActivityStats(ctx context.Context, r model.TimeRange) ([]model.ActivityStat, error) {
	var out []model.ActivityStat
	err := timeRange(s.live(ctx, &model.UserActivity{}, model.KindActivity), r).
		Select(`activity,
			COUNT(*) AS count,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS success_count,
			COUNT(DISTINCT username) AS unique_users`).
		Group("activity").
		Order("count DESC").
		Scan(&out).Error
	return out, err
}

func (s *LogStore) ActivityFrequency(ctx context.Context, r model.TimeRange) ([]model.ActivityFrequency, error) {
	day := s.dayExpr("timestamp")
	var out []model.ActivityFrequency
	err := timeRange(s.live(ctx, &model.UserActivity{}, model.KindActivity), r).
		Select(day + " AS day, activity, COUNT(*) AS count").
		Group(day + ", activity").
		Order("day ASC, count DESC").
		Scan(&out).Error
	return out, err
}

func (s *LogStore) FrontendStats(ctx context.Context, r model.TimeRange) ([]model.FrontendStat, error) {
	var out []model.FrontendStat
	err := timeRange(s.live(ctx, &model.FrontendLog{}, model.KindFrontend), r).
		Select("type, COUNT(*) AS count, COALESCE(AVG(response_time), 0) AS avg_response_time").
		Group("type").
		Order("count DESC").
		Scan(&out).Error
	return out, err
}

func (s *LogStore) ErrorTrends(ctx context.Context, r model.TimeRange) ([]model.ErrorTrend, error) {
	day := s.dayExpr("timestamp")
	var out []model.ErrorTrend
	err := timeRange(s.live(ctx, &model.ErrorLog{}, model.KindError), r).
		Select(day + ` AS day, error_type, severity,
			COUNT(*) AS count,
			SUM(CASE WHEN resolved THEN 1 ELSE 0 END) AS resolved_count`).
		Group(day + ", error_type, severity").
		Order("day ASC").
		Scan(&out).Error
	return out, err
}

// Overview fills the store-derived fields of LoggingStats.
func (s *LogStore) Overview(ctx context.Context, r model.TimeRange) (model.LoggingStats, error) {
	var st model.LoggingStats

	var api struct {
		Total           int64
		Failed          int64
		AvgResponseTime float64
	}
	err := timeRange(s.live(ctx, &model.APILog{}, model.KindAPI), r).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) AS failed,
			COALESCE(AVG(response_time), 0) AS avg_response_time`).
		Scan(&api).Error
	if err != nil {
		return st, fmt.Errorf("api overview: %w", err)
	}
	st.TotalAPIRequests = api.Total
	st.FailedRequests = api.Failed
	st.AvgResponseTime = api.AvgResponseTime
	if api.Total > 0 {
		st.ErrorRate = float64(api.Failed) / float64(api.Total)
	}

	var errs struct {
		Total      int64
		Unresolved int64
		Critical   int64
	}
	err = timeRange(s.live(ctx, &model.ErrorLog{}, model.KindError), r).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN resolved THEN 0 ELSE 1 END), 0) AS unresolved,
			COALESCE(SUM(CASE WHEN severity = ? THEN 1 ELSE 0 END), 0) AS critical`, model.SeverityCritical).
		Scan(&errs).Error
	if err != nil {
		return st, fmt.Errorf("error overview: %w", err)
	}
	st.TotalErrors = errs.Total
	st.UnresolvedErrors = errs.Unresolved
	st.CriticalErrors = errs.Critical

	if st.TotalActivities, err = s.Count(ctx, model.KindActivity, r); err != nil {
		return st, err
	}
	if st.FrontendLogs, err = s.Count(ctx, model.KindFrontend, r); err != nil {
		return st, err
	}
	return st, nil
}

// DB exposes the handle for health checks.
func (s *LogStore) DB() *gorm.DB { return s.db }
