package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeEpoch = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*LogStore, *clockwork.FakeClock) {
	t.Helper()
	db, err := Open("sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	clock := clockwork.NewFakeClockAt(storeEpoch)
	return NewLogStore(db, RetentionDays(90, 365, 90, 30), clock), clock
}

func apiLog(endpoint string, status int, rt int64, at time.Time) *model.APILog {
	return &model.APILog{
		LogBase:        model.LogBase{ID: uuid.NewString(), Username: "zain", Timestamp: at, CreatedAt: at},
		Method:         "GET",
		Endpoint:       endpoint,
		URL:            endpoint,
		ResponseStatus: status,
		ResponseTime:   rt,
		Success:        model.IsSuccessStatus(status),
	}
}

func errorLog(sev model.Severity, at time.Time) *model.ErrorLog {
	return &model.ErrorLog{
		LogBase:      model.LogBase{ID: uuid.NewString(), Timestamp: at, CreatedAt: at},
		ErrorType:    apperrors.ErrSystem,
		ErrorMessage: "boom",
		Endpoint:     "/api/orders",
		Severity:     sev,
	}
}

func TestInsertStampsTimes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec := &model.UserActivity{LogBase: model.LogBase{ID: uuid.NewString()}, Activity: model.ActivityLogin, Success: true}
	require.NoError(t, store.Insert(ctx, rec))
	assert.True(t, rec.Timestamp.Equal(storeEpoch))
	assert.True(t, rec.CreatedAt.Equal(storeEpoch))

	got, err := store.FindActivities(ctx, model.ActivityFilter{Activity: string(model.ActivityLogin)}, model.Page{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
}

func TestFindAPILogsFiltersAndSorts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	recs := []model.Record{
		apiLog("/api/customers", 200, 30, storeEpoch.Add(-3*time.Hour)),
		apiLog("/api/customers", 500, 90, storeEpoch.Add(-2*time.Hour)),
		apiLog("/api/invoices", 404, 10, storeEpoch.Add(-1*time.Hour)),
	}
	require.NoError(t, store.InsertMany(ctx, recs))

	all, err := store.FindAPILogs(ctx, model.APILogFilter{}, model.Page{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/api/invoices", all[0].Endpoint, "default sort is newest first")

	byRT, err := store.FindAPILogs(ctx, model.APILogFilter{}, model.Page{SortField: "responseTime", SortDesc: false})
	require.NoError(t, err)
	assert.Equal(t, int64(10), byRT[0].ResponseTime)

	failed := false
	onlyFailed, err := store.FindAPILogs(ctx, model.APILogFilter{Success: &failed}, model.Page{})
	require.NoError(t, err)
	assert.Len(t, onlyFailed, 2)

	paged, err := store.FindAPILogs(ctx, model.APILogFilter{Endpoint: "/api/customers"}, model.Page{Limit: 1, Skip: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, 200, paged[0].ResponseStatus)

	from := storeEpoch.Add(-150 * time.Minute)
	ranged, err := store.FindAPILogs(ctx, model.APILogFilter{TimeRange: model.TimeRange{From: &from}}, model.Page{})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}

func TestUnknownSortFallsBackToTimestamp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertMany(ctx, []model.Record{
		apiLog("/a", 200, 1, storeEpoch.Add(-2*time.Hour)),
		apiLog("/b", 200, 1, storeEpoch.Add(-1*time.Hour)),
	}))

	got, err := store.FindAPILogs(ctx, model.APILogFilter{}, model.Page{SortField: "1; DROP TABLE api_logs", SortDesc: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/b", got[0].Endpoint)
}

func TestMarkResolvedIsIdempotent(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	rec := errorLog(model.SeverityHigh, storeEpoch)
	require.NoError(t, store.Insert(ctx, rec))

	first, err := store.MarkResolved(ctx, rec.ID, "admin", "first pass")
	require.NoError(t, err)
	assert.True(t, first.Resolved)
	assert.Equal(t, "admin", first.ResolvedBy)

	clock.Advance(time.Minute)
	second, err := store.MarkResolved(ctx, rec.ID, "ops", "second pass")
	require.NoError(t, err)
	assert.True(t, second.Resolved)
	assert.Equal(t, "ops", second.ResolvedBy)
	assert.Equal(t, "second pass", second.ResolutionNotes)
	require.NotNil(t, second.ResolvedAt)
	assert.True(t, second.ResolvedAt.After(*first.ResolvedAt))

	_, err = store.MarkResolved(ctx, uuid.NewString(), "admin", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTrailQueries(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	other := apiLog("/api/ledger", 200, 12, storeEpoch.Add(-time.Hour))
	other.Username = "sara"
	act := func(session string, a model.Activity, at time.Time) model.Record {
		return &model.UserActivity{
			LogBase:  model.LogBase{ID: uuid.NewString(), SessionID: session, Username: "zain", Timestamp: at, CreatedAt: at},
			Activity: a,
			Success:  true,
		}
	}
	require.NoError(t, store.InsertMany(ctx, []model.Record{
		apiLog("/api/customers", 200, 30, storeEpoch.Add(-2*time.Hour)),
		apiLog("/api/invoices", 201, 40, storeEpoch.Add(-30*time.Minute)),
		other,
		act("s-1", model.ActivityLogin, storeEpoch.Add(-2*time.Hour)),
		act("s-1", model.ActivityViewLedger, storeEpoch.Add(-time.Hour)),
		act("s-2", model.ActivityLogin, storeEpoch.Add(-time.Hour)),
	}))

	byUser, err := store.APILogsByUsername(ctx, "zain", model.Page{})
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, "/api/invoices", byUser[0].Endpoint)

	bySession, err := store.ActivitiesBySession(ctx, "s-1", model.Page{})
	require.NoError(t, err)
	require.Len(t, bySession, 2)
	assert.Equal(t, model.ActivityViewLedger, bySession[0].Activity)
}

func TestUnresolvedAndCritical(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	crit := errorLog(model.SeverityCritical, storeEpoch.Add(-time.Hour))
	low := errorLog(model.SeverityLow, storeEpoch.Add(-time.Hour))
	require.NoError(t, store.InsertMany(ctx, []model.Record{crit, low}))
	_, err := store.MarkResolved(ctx, low.ID, "admin", "")
	require.NoError(t, err)

	open, err := store.UnresolvedErrors(ctx, model.ErrorLogFilter{}, model.Page{})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, crit.ID, open[0].ID)

	critical, err := store.CriticalErrors(ctx, model.Page{})
	require.NoError(t, err)
	assert.Len(t, critical, 1)
}

func TestDeleteResolvedBefore(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	old := errorLog(model.SeverityLow, storeEpoch.Add(-40*24*time.Hour))
	recent := errorLog(model.SeverityLow, storeEpoch.Add(-24*time.Hour))
	open := errorLog(model.SeverityLow, storeEpoch.Add(-40*24*time.Hour))
	require.NoError(t, store.InsertMany(ctx, []model.Record{old, recent, open}))
	for _, id := range []string{old.ID, recent.ID} {
		_, err := store.MarkResolved(ctx, id, "admin", "")
		require.NoError(t, err)
	}

	n, err := store.DeleteResolvedBefore(ctx, storeEpoch.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.GetErrorLog(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetErrorLog(ctx, open.ID)
	assert.NoError(t, err)
}

func TestRetentionIsPerKind(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	stale := storeEpoch.Add(-31 * 24 * time.Hour)
	front := &model.FrontendLog{
		LogBase:    model.LogBase{ID: uuid.NewString(), Timestamp: stale, CreatedAt: stale},
		Type:       model.FrontendRequest,
		ReceivedAt: stale,
	}
	api := apiLog("/api/ledger", 200, 5, stale)
	require.NoError(t, store.InsertMany(ctx, []model.Record{front, api}))

	// Read path hides the expired frontend record before any purge runs.
	fl, err := store.FindFrontendLogs(ctx, model.FrontendLogFilter{}, model.Page{})
	require.NoError(t, err)
	assert.Empty(t, fl)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged[model.KindFrontend])
	assert.Equal(t, int64(0), purged[model.KindAPI])

	var remaining int64
	require.NoError(t, store.DB().Model(&model.FrontendLog{}).Count(&remaining).Error)
	assert.Zero(t, remaining)

	apis, err := store.FindAPILogs(ctx, model.APILogFilter{}, model.Page{})
	require.NoError(t, err)
	assert.Len(t, apis, 1)
}

func TestReaperRunOnce(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, apiLog("/api/orders", 200, 5, storeEpoch)))
	clock.Advance(91 * 24 * time.Hour)

	NewReaper(store, time.Hour, clock).RunOnce(ctx)

	var n int64
	require.NoError(t, store.DB().Model(&model.APILog{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestPerformanceAndOverview(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertMany(ctx, []model.Record{
		apiLog("/api/customers", 200, 10, storeEpoch.Add(-time.Hour)),
		apiLog("/api/customers", 200, 30, storeEpoch.Add(-time.Hour)),
		apiLog("/api/customers", 500, 50, storeEpoch.Add(-time.Hour)),
		apiLog("/api/invoices", 200, 7, storeEpoch.Add(-time.Hour)),
		errorLog(model.SeverityCritical, storeEpoch.Add(-time.Hour)),
	}))

	perf, err := store.PerformanceStats(ctx, model.TimeRange{})
	require.NoError(t, err)
	require.Len(t, perf, 2)
	top := perf[0]
	assert.Equal(t, "/api/customers", top.Endpoint)
	assert.Equal(t, int64(3), top.TotalRequests)
	assert.InDelta(t, 30.0, top.AvgResponseTime, 0.001)
	assert.Equal(t, int64(10), top.MinResponseTime)
	assert.Equal(t, int64(50), top.MaxResponseTime)
	assert.Equal(t, int64(1), top.ErrorCount)
	assert.InDelta(t, 1.0/3.0, top.ErrorRate, 0.001)

	ov, err := store.Overview(ctx, model.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), ov.TotalAPIRequests)
	assert.Equal(t, int64(1), ov.FailedRequests)
	assert.Equal(t, int64(1), ov.TotalErrors)
	assert.Equal(t, int64(1), ov.UnresolvedErrors)
	assert.Equal(t, int64(1), ov.CriticalErrors)
}

func TestActivityAggregates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	day1 := time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	mk := func(user string, a model.Activity, ok bool, at time.Time) model.Record {
		return &model.UserActivity{
			LogBase:  model.LogBase{ID: uuid.NewString(), Username: user, Timestamp: at, CreatedAt: at},
			Activity: a,
			Success:  ok,
		}
	}
	require.NoError(t, store.InsertMany(ctx, []model.Record{
		mk("zain", model.ActivityLogin, true, day1),
		mk("sara", model.ActivityLogin, true, day1),
		mk("zain", model.ActivityLogin, false, day2),
		mk("zain", model.ActivityCreateInvoice, true, day2),
	}))

	stats, err := store.ActivityStats(ctx, model.TimeRange{})
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "LOGIN", stats[0].Activity)
	assert.Equal(t, int64(3), stats[0].Count)
	assert.Equal(t, int64(2), stats[0].SuccessCount)
	assert.Equal(t, int64(2), stats[0].UniqueUsers)

	freq, err := store.ActivityFrequency(ctx, model.TimeRange{})
	require.NoError(t, err)
	require.Len(t, freq, 3)
	assert.Equal(t, "2026-03-08", freq[0].Day)
	assert.Equal(t, int64(2), freq[0].Count)
}

func TestErrorTrendsByDay(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	a := errorLog(model.SeverityCritical, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	b := errorLog(model.SeverityCritical, time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC))
	c := errorLog(model.SeverityLow, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	require.NoError(t, store.InsertMany(ctx, []model.Record{a, b, c}))
	_, err := store.MarkResolved(ctx, a.ID, "admin", "")
	require.NoError(t, err)

	trends, err := store.ErrorTrends(ctx, model.TimeRange{})
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, "2026-03-01", trends[0].Day)
	assert.Equal(t, int64(2), trends[0].Count)
	assert.Equal(t, int64(1), trends[0].ResolvedCount)
}

func TestOpenRejectsUnknownDSN(t *testing.T) {
	_, err := Open("mysql://nope")
	assert.Error(t, err)
}
