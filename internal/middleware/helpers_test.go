package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/sanitize"
	"github.com/ledgerline/ledgerlog/internal/repository"
	"github.com/ledgerline/ledgerlog/internal/service"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	cfg      *config.Config
	clock    *clockwork.FakeClock
	store    *repository.LogStore
	sessions *service.SessionManager
	logging  *service.LoggingService
	errs     *service.ErrorService
	engine   *gin.Engine
}

func newHarness(t *testing.T, tweaks ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.BatchSize = 1000
	cfg.Logging.BatchTimeoutMs = 60000
	for _, tweak := range tweaks {
		tweak(cfg)
	}

	clock := clockwork.NewFakeClockAt(testEpoch)
	db, err := repository.Open("sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	store := repository.NewLogStore(db, repository.RetentionDays(90, 365, 90, 30), clock)

	san := sanitize.New(sanitize.Options{
		SensitiveFields: cfg.Logging.SensitiveFields,
		MaxPayloadSize:  cfg.Logging.MaxPayloadSize,
		Enabled:         true,
	})
	sessions := service.NewSessionManager(0, 0, 0, clock)
	logging := service.NewLoggingService(cfg, store, service.NewFormatter(san, cfg.Server.Environment, clock), sessions, clock)
	t.Cleanup(logging.Close)
	errs := service.NewErrorService(cfg, logging, store, service.NewMemoryRateWindow(), clock)

	engine := gin.New()
	engine.Use(RequestLogger(logging, clock), ErrorHandler(errs), Recovery())
	engine.NoRoute(NotFound())

	return &harness{
		cfg:      cfg,
		clock:    clock,
		store:    store,
		sessions: sessions,
		logging:  logging,
		errs:     errs,
		engine:   engine,
	}
}

func (h *harness) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

// settle drains the queue into the store. The harness cannot be used for logging after.
func (h *harness) settle() {
	h.logging.Close()
}

func (h *harness) apiLogs(t *testing.T) []model.APILog {
	t.Helper()
	recs, err := h.store.FindAPILogs(context.Background(), model.APILogFilter{}, model.Page{})
	require.NoError(t, err)
	return recs
}

func (h *harness) errorLogs(t *testing.T) []model.ErrorLog {
	t.Helper()
	recs, err := h.store.FindErrorLogs(context.Background(), model.ErrorLogFilter{}, model.Page{})
	require.NoError(t, err)
	return recs
}

func (h *harness) activities(t *testing.T) []model.UserActivity {
	t.Helper()
	recs, err := h.store.FindActivities(context.Background(), model.ActivityFilter{}, model.Page{})
	require.NoError(t, err)
	return recs
}

func bearer(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) service.ErrorBody {
	t.Helper()
	var body service.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
