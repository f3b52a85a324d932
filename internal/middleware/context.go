package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/service"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderSessionID = "X-Session-ID"

	ContextRequestKey  = "ledgerlog.request"
	ContextIdentityKey = "ledgerlog.identity"
	ContextActivityKey = "ledgerlog.activity"
)

// maxCapturedBody bounds how much of a request or response body is kept for logging.
const maxCapturedBody = 1 << 20

// RequestContext returns the capture view of the current request, building one if the
// request logger did not run for this route.
func RequestContext(c *gin.Context) *service.RequestContext {
	if v, ok := c.Get(ContextRequestKey); ok {
		if req, ok := v.(*service.RequestContext); ok {
			return req
		}
	}
	req := newRequestContext(c, nil)
	c.Set(ContextRequestKey, req)
	return req
}

func newRequestContext(c *gin.Context, body []byte) *service.RequestContext {
	r := c.Request
	return &service.RequestContext{
		Method:    r.Method,
		Path:      r.URL.Path,
		URL:       r.URL.String(),
		Headers:   r.Header.Clone(),
		Body:      body,
		ClientIP:  c.ClientIP(),
		UserAgent: r.UserAgent(),
		RequestID: headerOrNew(c, HeaderRequestID),
		SessionID: r.Header.Get(HeaderSessionID),
	}
}

func headerOrNew(c *gin.Context, name string) string {
	if v := c.GetHeader(name); v != "" {
		return v
	}
	return uuid.NewString()
}

// SetIdentity attaches an identity known by means other than the bearer token. Fields
// set here win over the token on the API record.
func SetIdentity(c *gin.Context, id model.Identity) {
	if cur, ok := identityFrom(c); ok {
		id = id.Merge(cur)
	}
	c.Set(ContextIdentityKey, id)
}

func identityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(ContextIdentityKey)
	if !ok {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}

// readBody drains the request body and puts an identical reader back for the handler.
func readBody(c *gin.Context) []byte {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCapturedBody+1))
	if err != nil {
		return nil
	}
	rest := c.Request.Body
	c.Request.Body = readCloser{io.MultiReader(bytes.NewReader(raw), rest), rest}
	if len(raw) > maxCapturedBody {
		raw = raw[:maxCapturedBody]
	}
	return raw
}

type readCloser struct {
	io.Reader
	io.Closer
}

// bodyLogWriter copies what the handler writes so it can be logged after the fact.
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyLogWriter) Write(b []byte) (int, error) {
	w.capture(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyLogWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

func (w *bodyLogWriter) capture(b []byte) {
	if room := maxCapturedBody - w.body.Len(); room > 0 {
		if len(b) > room {
			b = b[:room]
		}
		w.body.Write(b)
	}
}
