package capture

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/model"
)

const (
	headerRequestID      = "X-Request-ID"
	headerSessionID      = "X-Session-ID"
	headerIdempotencyKey = "X-Idempotency-Key"
)

// Transport is an http.RoundTripper that records every outbound call as a request entry
// followed by a response, response_error or request_error entry.
type Transport struct {
	Base     http.RoundTripper
	Uploader *Uploader
	// Identity labels entries; it may be nil.
	Identity func() model.Identity
	Clock    clockwork.Clock
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) clock() clockwork.Clock {
	if t.Clock != nil {
		return t.Clock
	}
	return clockwork.NewRealClock()
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Uploader == nil || t.isUpload(req) {
		return t.base().RoundTrip(req)
	}

	clock := t.clock()
	id := identity(t.Identity)
	requestID := req.Header.Get(headerRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	out := req.Clone(req.Context())
	out.Header.Set(headerRequestID, requestID)
	if id.SessionID != "" && out.Header.Get(headerSessionID) == "" {
		out.Header.Set(headerSessionID, id.SessionID)
	}

	start := clock.Now()
	t.Uploader.Add(entry(clock, model.FrontendRequest, id, map[string]any{
		"requestId": requestID,
		"method":    out.Method,
		"url":       out.URL.String(),
		"headers":   flatHeaders(out.Header),
	}))

	resp, err := t.base().RoundTrip(out)
	elapsed := clock.Since(start).Milliseconds()
	if err != nil {
		t.Uploader.Add(entry(clock, model.FrontendRequestError, id, map[string]any{
			"requestId":    requestID,
			"method":       out.Method,
			"url":          out.URL.String(),
			"responseTime": elapsed,
			"success":      false,
			"error":        map[string]any{"message": err.Error()},
		}))
		return nil, err
	}

	kind := model.FrontendResponse
	fields := map[string]any{
		"requestId":    requestID,
		"method":       out.Method,
		"url":          out.URL.String(),
		"status":       resp.StatusCode,
		"statusText":   http.StatusText(resp.StatusCode),
		"headers":      flatHeaders(resp.Header),
		"responseTime": elapsed,
		"success":      resp.StatusCode < 400,
	}
	if resp.StatusCode >= 400 {
		kind = model.FrontendResponseError
		fields["error"] = map[string]any{"message": resp.Status, "status": resp.StatusCode}
	}
	t.Uploader.Add(entry(clock, kind, id, fields))
	return resp, nil
}

func (t *Transport) isUpload(req *http.Request) bool {
	ep := t.Uploader.Endpoint()
	if ep == "" {
		return false
	}
	u := req.URL.String()
	return u == ep || strings.HasPrefix(u, ep+"?")
}

// flatHeaders drops credentials; the server redacts again on ingestion.
func flatHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		switch strings.ToLower(k) {
		case "authorization", "cookie", "set-cookie":
			continue
		}
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func identity(fn func() model.Identity) model.Identity {
	if fn == nil {
		return model.Identity{}
	}
	return fn()
}

func entry(clock clockwork.Clock, kind string, id model.Identity, fields map[string]any) map[string]any {
	e := map[string]any{
		"type":      kind,
		"timestamp": clock.Now().UTC().Format(time.RFC3339Nano),
	}
	if id.Username != "" {
		e["username"] = id.Username
	}
	if id.UserType != "" {
		e["userType"] = id.UserType
	}
	if id.SessionID != "" {
		e["sessionId"] = id.SessionID
	}
	for k, v := range fields {
		e[k] = v
	}
	return e
}
