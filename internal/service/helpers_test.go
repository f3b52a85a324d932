package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/sanitize"
	"github.com/ledgerline/ledgerlog/internal/repository"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Logging.EnableAsync = true
	cfg.Logging.BatchSize = 5
	cfg.Logging.BatchTimeoutMs = 1000
	return cfg
}

func newStore(t *testing.T, clock clockwork.Clock) *repository.LogStore {
	t.Helper()
	db, err := repository.Open("sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repository.NewLogStore(db, repository.RetentionDays(90, 365, 90, 30), clock)
}

func newFormatter(cfg *config.Config, clock clockwork.Clock) *Formatter {
	san := sanitize.New(sanitize.Options{
		SensitiveFields: cfg.Logging.SensitiveFields,
		MaxPayloadSize:  cfg.Logging.MaxPayloadSize,
		Enabled:         cfg.Logging.Sanitization,
	})
	return NewFormatter(san, cfg.Server.Environment, clock)
}

type fixture struct {
	cfg      *config.Config
	clock    *clockwork.FakeClock
	store    *repository.LogStore
	sessions *SessionManager
	logging  *LoggingService
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	store := newStore(t, clock)
	sessions := NewSessionManager(0, 0, 0, clock)
	logging := NewLoggingService(cfg, store, newFormatter(cfg, clock), sessions, clock)
	t.Cleanup(logging.Close)
	return &fixture{cfg: cfg, clock: clock, store: store, sessions: sessions, logging: logging}
}

func countAPI(t *testing.T, store *repository.LogStore) int64 {
	t.Helper()
	n, err := store.Count(context.Background(), model.KindAPI, model.TimeRange{})
	require.NoError(t, err)
	return n
}

func countErrors(t *testing.T, store *repository.LogStore) int64 {
	t.Helper()
	n, err := store.Count(context.Background(), model.KindError, model.TimeRange{})
	require.NoError(t, err)
	return n
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-checked"))
	require.NoError(t, err)
	return tok
}

// flakyStore fails inserts for the listed record ids.
type flakyStore struct {
	*repository.LogStore
	mu   sync.Mutex
	fail map[string]bool
}

func (f *flakyStore) Insert(ctx context.Context, rec model.Record) error {
	f.mu.Lock()
	bad := f.fail[rec.Base().ID]
	f.mu.Unlock()
	if bad {
		return errors.New("disk on fire")
	}
	return f.LogStore.Insert(ctx, rec)
}

type recordingSink struct {
	written bool
	status  int
	body    any
}

func (s *recordingSink) Written() bool { return s.written }

func (s *recordingSink) WriteJSON(status int, body any) {
	s.written = true
	s.status = status
	s.body = body
}

// flushAll persists everything queued, waiting out any flush already in flight.
func flushAll(t *testing.T, l *LoggingService) {
	t.Helper()
	require.Eventually(t, func() bool {
		l.ProcessQueue(context.Background())
		return l.QueueDepth() == 0 && !l.flushing.Load()
	}, 5*time.Second, 5*time.Millisecond)
}
