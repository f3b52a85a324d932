package capture

import (
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
)

// Tracker records client-side activities and errors next to the transport's traffic.
type Tracker struct {
	uploader *Uploader
	identity func() model.Identity
	clock    clockwork.Clock
}

func NewTracker(uploader *Uploader, identity func() model.Identity, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{uploader: uploader, identity: identity, clock: clock}
}

func (t *Tracker) TrackActivity(activity model.Activity, description string, metadata map[string]any) {
	t.uploader.Add(entry(t.clock, model.FrontendUserActivity, identity(t.identity), map[string]any{
		"activity":    string(activity),
		"description": description,
		"metadata":    metadata,
	}))
}

func (t *Tracker) LogError(err error, context map[string]any) {
	if err == nil {
		return
	}
	detail := map[string]any{"message": err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		detail["name"] = appErr.Name
		detail["code"] = appErr.Code
		if appErr.Stack != "" {
			detail["stack"] = appErr.Stack
		}
	}
	t.uploader.Add(entry(t.clock, model.FrontendError, identity(t.identity), map[string]any{
		"error":   detail,
		"context": context,
		"success": false,
	}))
}
