package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/logger"
	"github.com/ledgerline/ledgerlog/internal/pkg/metrics"
)

// LogStore is the persistence the logging pipeline depends on.
type LogStore interface {
	Insert(ctx context.Context, rec model.Record) error
	InsertMany(ctx context.Context, recs []model.Record) error

	FindAPILogs(ctx context.Context, f model.APILogFilter, p model.Page) ([]model.APILog, error)
	FindErrorLogs(ctx context.Context, f model.ErrorLogFilter, p model.Page) ([]model.ErrorLog, error)
	FindActivities(ctx context.Context, f model.ActivityFilter, p model.Page) ([]model.UserActivity, error)
	FindFrontendLogs(ctx context.Context, f model.FrontendLogFilter, p model.Page) ([]model.FrontendLog, error)
	UnresolvedErrors(ctx context.Context, f model.ErrorLogFilter, p model.Page) ([]model.ErrorLog, error)

	MarkResolved(ctx context.Context, id, resolvedBy, notes string) (*model.ErrorLog, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Overview(ctx context.Context, r model.TimeRange) (model.LoggingStats, error)
	PerformanceStats(ctx context.Context, r model.TimeRange) ([]model.PerformanceStat, error)
	ErrorStats(ctx context.Context, r model.TimeRange) ([]model.ErrorStat, error)
	ActivityStats(ctx context.Context, r model.TimeRange) ([]model.ActivityStat, error)
	ActivityFrequency(ctx context.Context, r model.TimeRange) ([]model.ActivityFrequency, error)
	FrontendStats(ctx context.Context, r model.TimeRange) ([]model.FrontendStat, error)
	ErrorTrends(ctx context.Context, r model.TimeRange) ([]model.ErrorTrend, error)
}

type queueEntry struct {
	kind       model.Kind
	record     model.Record
	enqueuedAt time.Time
}

// LoggingService takes records from the request path and delivers them to the store
// without ever blocking or failing that path. Delivery is at most once: a failed insert
// is reported on the operator log and the record is discarded.
type LoggingService struct {
	cfg       config.LoggingConfig
	store     LogStore
	formatter *Formatter
	sessions  *SessionManager
	clock     clockwork.Clock

	excluded      []string
	tracked       map[model.Activity]struct{}
	slowThreshold time.Duration

	mu       sync.Mutex
	queue    []queueEntry
	flushing atomic.Bool
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	closed   sync.Once
	inflight sync.WaitGroup
}

func NewLoggingService(cfg *config.Config, store LogStore, formatter *Formatter, sessions *SessionManager, clock clockwork.Clock) *LoggingService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	lc := cfg.Logging
	if lc.BatchSize <= 0 {
		lc.BatchSize = 100
	}
	if lc.BatchTimeoutMs <= 0 {
		lc.BatchTimeoutMs = 5000
	}
	if lc.MaxQueueSize <= 0 {
		lc.MaxQueueSize = 10000
	}

	s := &LoggingService{
		cfg:           lc,
		store:         store,
		formatter:     formatter,
		sessions:      sessions,
		clock:         clock,
		excluded:      lc.ExcludedEndpoints,
		tracked:       make(map[model.Activity]struct{}, len(lc.TrackedActivities)),
		slowThreshold: time.Duration(cfg.Alerts.ResponseTimeMs) * time.Millisecond,
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, a := range lc.TrackedActivities {
		s.tracked[model.Activity(strings.ToUpper(a))] = struct{}{}
	}

	if lc.EnableAsync {
		go s.run()
	} else {
		close(s.done)
	}
	return s
}

func (s *LoggingService) Sessions() *SessionManager { return s.sessions }

// IsExcluded reports whether path is on the exclusion list, exactly or as a subtree.
func (s *LoggingService) IsExcluded(path string) bool {
	for _, e := range s.excluded {
		if path == e || strings.HasPrefix(path, strings.TrimSuffix(e, "/")+"/") {
			return true
		}
	}
	return false
}

func (s *LoggingService) IsTracked(activity model.Activity) bool {
	_, ok := s.tracked[activity]
	return ok
}

// LogAPIRequest records one request/response pair. Explicit identity fields win over
// whatever the bearer token carries.
func (s *LoggingService) LogAPIRequest(req *RequestContext, resp *ResponseContext, elapsed time.Duration, override model.Identity) {
	if !s.cfg.EnableAPI || req == nil || s.IsExcluded(req.Path) {
		return
	}
	defer s.guard("api")

	rec := s.formatter.FormatAPILog(req, resp, elapsed, override)
	if s.slowThreshold > 0 && elapsed > s.slowThreshold {
		logger.Warn("slow response",
			"endpoint", rec.Endpoint,
			"method", rec.Method,
			"response_time_ms", rec.ResponseTime,
			"threshold_ms", s.slowThreshold.Milliseconds(),
		)
	}
	s.submit(rec)
}

// LogError records err and returns the record it queued, or nil when error logging is off.
func (s *LoggingService) LogError(err error, req *RequestContext, extra map[string]any) *model.ErrorLog {
	if !s.cfg.EnableError || err == nil {
		return nil
	}
	defer s.guard("error")

	rec := s.formatter.FormatErrorLog(err, req, extra)
	s.submit(rec)
	return rec
}

func (s *LoggingService) LogUserActivity(activity model.Activity, description string, req *RequestContext, metadata map[string]any) {
	if !s.cfg.EnableActivity || !s.IsTracked(activity) {
		return
	}
	defer s.guard("activity")

	rec := s.formatter.FormatUserActivity(activity, description, req, metadata)
	s.submit(rec)
	if s.sessions != nil {
		s.sessions.UpdateSessionActivity(rec.SessionID, string(activity), description)
	}
}

func (s *LoggingService) guard(kind string) {
	if r := recover(); r != nil {
		logger.Error("log capture failed", "kind", kind, "panic", fmt.Sprint(r))
	}
}

func (s *LoggingService) submit(rec model.Record) {
	if s.cfg.EnableAsync {
		s.enqueue(rec)
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.persist(context.Background(), rec)
	}()
}

// enqueue appends rec, dropping the oldest entry when the queue is full. Reaching the
// batch size wakes the flusher immediately.
func (s *LoggingService) enqueue(rec model.Record) {
	s.mu.Lock()
	if len(s.queue) >= s.cfg.MaxQueueSize {
		dropped := s.queue[0]
		s.queue = s.queue[1:]
		metrics.RecordsDropped.WithLabelValues("queue_full").Inc()
		logger.Warn("log queue full, dropping oldest record", "kind", dropped.kind, "max", s.cfg.MaxQueueSize)
	}
	s.queue = append(s.queue, queueEntry{kind: rec.Kind(), record: rec, enqueuedAt: s.clock.Now()})
	n := len(s.queue)
	s.mu.Unlock()

	metrics.RecordsEnqueued.WithLabelValues(string(rec.Kind())).Inc()
	metrics.QueueDepth.Set(float64(n))
	if n >= s.cfg.BatchSize {
		s.trigger()
	}
}

func (s *LoggingService) trigger() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *LoggingService) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *LoggingService) run() {
	defer close(s.done)
	ticker := s.clock.NewTicker(s.cfg.BatchTimeout())
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.drain()
			return
		case <-ticker.Chan():
			s.ProcessQueue(context.Background())
		case <-s.wake:
			if s.ProcessQueue(context.Background()) > 0 && s.QueueDepth() >= s.cfg.BatchSize {
				s.trigger()
			}
		}
	}
}

// ProcessQueue flushes up to one batch. A call made while another flush is running
// returns 0 without touching the queue. Each record is persisted independently.
func (s *LoggingService) ProcessQueue(ctx context.Context) int {
	if !s.flushing.CompareAndSwap(false, true) {
		return 0
	}
	defer s.flushing.Store(false)

	s.mu.Lock()
	n := min(len(s.queue), s.cfg.BatchSize)
	batch := make([]queueEntry, n)
	copy(batch, s.queue[:n])
	s.queue = s.queue[n:]
	depth := len(s.queue)
	s.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	if n == 0 {
		return 0
	}

	start := time.Now()
	var wg sync.WaitGroup
	for _, entry := range batch {
		wg.Add(1)
		go func(e queueEntry) {
			defer wg.Done()
			s.persist(ctx, e.record)
		}(entry)
	}
	wg.Wait()
	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	return n
}

func (s *LoggingService) persist(ctx context.Context, rec model.Record) {
	kind := string(rec.Kind())
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordsFlushed.WithLabelValues(kind, "failed").Inc()
			logger.Error("log persist panicked", "kind", kind, "panic", fmt.Sprint(r))
		}
	}()
	if err := s.store.Insert(ctx, rec); err != nil {
		metrics.RecordsFlushed.WithLabelValues(kind, "failed").Inc()
		logger.LogError(ctx, err, "failed to persist log record", "kind", kind, "id", rec.Base().ID)
		return
	}
	metrics.RecordsFlushed.WithLabelValues(kind, "ok").Inc()
}

func (s *LoggingService) drain() {
	for {
		if s.QueueDepth() == 0 {
			return
		}
		if s.ProcessQueue(context.Background()) == 0 {
			return
		}
	}
}

// Close stops the flush timer and drains what is queued, once. Records submitted after
// Close in async mode stay queued and are lost.
func (s *LoggingService) Close() {
	s.closed.Do(func() {
		if s.cfg.EnableAsync {
			close(s.stop)
		}
		<-s.done
		s.inflight.Wait()
	})
}

func (s *LoggingService) GetAPILogs(ctx context.Context, f model.APILogFilter, p model.Page) ([]model.APILog, error) {
	return s.store.FindAPILogs(ctx, f, p)
}

func (s *LoggingService) GetErrorLogs(ctx context.Context, f model.ErrorLogFilter, p model.Page) ([]model.ErrorLog, error) {
	return s.store.FindErrorLogs(ctx, f, p)
}

func (s *LoggingService) GetUserActivities(ctx context.Context, f model.ActivityFilter, p model.Page) ([]model.UserActivity, error) {
	return s.store.FindActivities(ctx, f, p)
}

func (s *LoggingService) GetFrontendLogs(ctx context.Context, f model.FrontendLogFilter, p model.Page) ([]model.FrontendLog, error) {
	return s.store.FindFrontendLogs(ctx, f, p)
}

func (s *LoggingService) GetLoggingStats(ctx context.Context, r model.TimeRange) (model.LoggingStats, error) {
	st, err := s.store.Overview(ctx, r)
	if err != nil {
		return st, err
	}
	st.QueueDepth = s.QueueDepth()
	if s.sessions != nil {
		st.Sessions = s.sessions.GetSessionStats()
	}
	return st, nil
}

// PerformanceReport groups the per-endpoint figures with the error and frontend breakdowns.
type PerformanceReport struct {
	Endpoints []model.PerformanceStat `json:"endpoints"`
	Errors    []model.ErrorStat       `json:"errors"`
	Frontend  []model.FrontendStat    `json:"frontend"`
}

func (s *LoggingService) GetPerformanceStats(ctx context.Context, r model.TimeRange) (*PerformanceReport, error) {
	endpoints, err := s.store.PerformanceStats(ctx, r)
	if err != nil {
		return nil, err
	}
	errs, err := s.store.ErrorStats(ctx, r)
	if err != nil {
		return nil, err
	}
	frontend, err := s.store.FrontendStats(ctx, r)
	if err != nil {
		return nil, err
	}
	return &PerformanceReport{Endpoints: endpoints, Errors: errs, Frontend: frontend}, nil
}

type ActivityReport struct {
	Activities []model.ActivityStat      `json:"activities"`
	Frequency  []model.ActivityFrequency `json:"frequency"`
}

func (s *LoggingService) GetActivityStats(ctx context.Context, r model.TimeRange) (*ActivityReport, error) {
	stats, err := s.store.ActivityStats(ctx, r)
	if err != nil {
		return nil, err
	}
	freq, err := s.store.ActivityFrequency(ctx, r)
	if err != nil {
		return nil, err
	}
	return &ActivityReport{Activities: stats, Frequency: freq}, nil
}

// GetSessions lists the sessions of one user, or every active session when username is empty.
func (s *LoggingService) GetSessions(username string) []model.Session {
	if s.sessions == nil {
		return nil
	}
	if username != "" {
		return s.sessions.GetUserSessions(username)
	}
	return s.sessions.GetAllActiveSessions()
}
