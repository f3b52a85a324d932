package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newErrorService(t *testing.T, cfg *config.Config) (*ErrorService, *fixture) {
	t.Helper()
	fx := newFixture(t, cfg)
	return NewErrorService(cfg, fx.logging, fx.store, NewMemoryRateWindow(), fx.clock), fx
}

func alertCount(t *testing.T, fx *fixture) int {
	t.Helper()
	flushAll(t, fx.logging)
	recs, err := fx.store.FindErrorLogs(context.Background(), model.ErrorLogFilter{}, model.Page{Limit: 1000})
	require.NoError(t, err)
	n := 0
	for _, r := range recs {
		if r.ErrorName == apperrors.NameRateAlert {
			assert.Equal(t, model.SeverityCritical, r.Severity)
			n++
		}
	}
	return n
}

func TestValidationErrorScenario(t *testing.T) {
	svc, fx := newErrorService(t, testConfig())
	sink := &recordingSink{}
	req := &RequestContext{Method: "POST", Path: "/api/customers", RequestID: "req-42"}

	handled := svc.HandleError(context.Background(), apperrors.NewValidation("name is required", nil), req, sink, nil)
	require.True(t, handled)
	assert.Equal(t, 422, sink.status)

	body := sink.body.(ErrorBody)
	assert.False(t, body.Success)
	assert.Equal(t, "name is required", body.Error.Message)
	assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
	assert.Equal(t, "req-42", body.Error.RequestID)
	assert.NotEmpty(t, body.Error.Timestamp)

	flushAll(t, fx.logging)
	recs, err := fx.store.FindErrorLogs(context.Background(), model.ErrorLogFilter{}, model.Page{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, apperrors.ErrValidation, recs[0].ErrorType)
	assert.Equal(t, model.SeverityLow, recs[0].Severity)
	assert.Equal(t, "req-42", recs[0].RequestID)
}

func TestProductionUsesGenericMessages(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Environment = "production"
	svc, _ := newErrorService(t, cfg)

	status, body := svc.BuildResponse(errors.New("pq: relation \"customers\" does not exist"), "r1")
	assert.Equal(t, 500, status)
	assert.Equal(t, "Internal server error", body.Error.Message)

	status, body = svc.BuildResponse(apperrors.NewPanic("boom", []byte("stack")), "r1")
	assert.Equal(t, 500, status)
	assert.Empty(t, body.Error.Stack)

	_, body = svc.BuildResponse(apperrors.NewValidation("field x", nil), "r1")
	assert.Equal(t, "Invalid input data", body.Error.Message)

	assert.Equal(t, "Service temporarily unavailable", GenericMessage(503))
	assert.Equal(t, "An error occurred", GenericMessage(418))
}

func TestDevelopmentIncludesStack(t *testing.T) {
	svc, _ := newErrorService(t, testConfig())
	_, body := svc.BuildResponse(apperrors.NewPanic("boom", []byte("goroutine 9")), "")
	assert.Equal(t, "panic recovered", body.Error.Message)
	assert.Equal(t, "goroutine 9", body.Error.Stack)
}

func TestHandleErrorNeverWritesTwice(t *testing.T) {
	svc, fx := newErrorService(t, testConfig())
	sink := &recordingSink{written: true, status: 200}

	handled := svc.HandleError(context.Background(), errors.New("late failure"), apiReq("/api/orders"), sink, nil)
	assert.False(t, handled)
	assert.Equal(t, 200, sink.status)

	flushAll(t, fx.logging)
	assert.Equal(t, int64(1), countErrors(t, fx.store))
}

func TestBurstRaisesAlert(t *testing.T) {
	svc, fx := newErrorService(t, testConfig())
	req := apiReq("/api/invoices")

	for i := 0; i < 20; i++ {
		svc.HandleError(context.Background(), errors.New("db timeout"), req, nil, nil)
		fx.clock.Advance(50 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, alertCount(t, fx), 1)
}

func TestSpreadErrorsDoNotAlert(t *testing.T) {
	svc, fx := newErrorService(t, testConfig())
	req := apiReq("/api/invoices")

	for i := 0; i < 20; i++ {
		svc.HandleError(context.Background(), errors.New("db timeout"), req, nil, nil)
		fx.clock.Advance(30 * time.Second)
	}
	assert.Equal(t, 0, alertCount(t, fx))
}

func TestAlertCooldown(t *testing.T) {
	svc, _ := newErrorService(t, testConfig())
	req := apiReq("/api/orders")

	alerts := 0
	for i := 0; i < 40; i++ {
		if svc.CheckErrorRate(context.Background(), req) {
			alerts++
		}
	}
	assert.Equal(t, 1, alerts)

	other := apiReq("/api/ledger")
	for i := 0; i < 16; i++ {
		svc.CheckErrorRate(context.Background(), other)
	}
	assert.True(t, svc.lastAlerted["/api/ledger"].Equal(testEpoch))
}

func TestMarkErrorAsResolved(t *testing.T) {
	svc, fx := newErrorService(t, testConfig())
	rec := fx.logging.LogError(errors.New("boom"), apiReq("/api/orders"), nil)
	require.NotNil(t, rec)
	flushAll(t, fx.logging)

	got, err := svc.MarkErrorAsResolved(context.Background(), rec.ID, "admin", "patched")
	require.NoError(t, err)
	assert.True(t, got.Resolved)

	again, err := svc.MarkErrorAsResolved(context.Background(), rec.ID, "ops", "re-checked")
	require.NoError(t, err)
	assert.True(t, again.Resolved)
	assert.Equal(t, "ops", again.ResolvedBy)
	assert.Equal(t, "re-checked", again.ResolutionNotes)

	_, err = svc.MarkErrorAsResolved(context.Background(), "missing", "admin", "")
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.HTTPStatus)

	open, err := svc.GetUnresolvedErrors(context.Background(), model.ErrorLogFilter{}, model.Page{})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCleanupOldResolvedErrors(t *testing.T) {
	svc, fx := newErrorService(t, testConfig())
	rec := fx.logging.LogError(errors.New("boom"), apiReq("/api/orders"), nil)
	flushAll(t, fx.logging)
	_, err := svc.MarkErrorAsResolved(context.Background(), rec.ID, "admin", "")
	require.NoError(t, err)

	n, err := svc.CleanupOldResolvedErrors(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	fx.clock.Advance(31 * 24 * time.Hour)
	n, err = svc.CleanupOldResolvedErrors(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
