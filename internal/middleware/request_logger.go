package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/service"
)

var staticPrefixes = []string{"/assets/", "/static/", "/public/", "/favicon"}

var staticExtensions = map[string]struct{}{
	".js": {}, ".css": {}, ".map": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".svg": {}, ".ico": {}, ".webp": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
}

func isStaticPath(p string) bool {
	for _, prefix := range staticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	_, ok := staticExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// RequestLogger captures every request/response pair into the logging pipeline and
// derives user activities from the endpoint. It never fails the request.
func RequestLogger(logging *service.LoggingService, clock clockwork.Clock) gin.HandlerFunc {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return func(c *gin.Context) {
		requestID := headerOrNew(c, HeaderRequestID)
		sessionID := headerOrNew(c, HeaderSessionID)
		c.Request.Header.Set(HeaderRequestID, requestID)
		c.Request.Header.Set(HeaderSessionID, sessionID)
		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderSessionID, sessionID)

		p := c.Request.URL.Path
		if c.Request.Method == http.MethodOptions || isStaticPath(p) || logging.IsExcluded(p) {
			c.Next()
			return
		}

		start := clock.Now()
		req := newRequestContext(c, readBody(c))
		c.Set(ContextRequestKey, req)

		blw := &bodyLogWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = blw

		c.Next()

		elapsed := clock.Since(start)
		resp := &service.ResponseContext{
			Status:  c.Writer.Status(),
			Headers: c.Writer.Header().Clone(),
			Body:    blw.body.Bytes(),
		}
		if last := c.Errors.Last(); last != nil {
			resp.Err = last.Err
		} else if err := c.Request.Context().Err(); err != nil {
			// client went away before the handler finished
			resp.Err = err
		}

		override, _ := identityFrom(c)
		logging.LogAPIRequest(req, resp, elapsed, override)
		logActivity(c, logging, req, resp, elapsed, override)
	}
}

func logActivity(c *gin.Context, logging *service.LoggingService, req *service.RequestContext, resp *service.ResponseContext, elapsed time.Duration, override model.Identity) {
	tag, ok := activityFor(c)
	if !ok {
		return
	}
	success := model.IsSuccessStatus(resp.Status) && resp.Err == nil
	identity := override.Merge(service.ExtractIdentity(req.Headers.Get("Authorization")))
	sessions := logging.Sessions()

	switch tag.activity {
	case model.ActivityLogin:
		if !success {
			tag = activityTag{activity: model.ActivityLoginFailed, description: "Login failed"}
			break
		}
		if identity.Username == "" {
			identity.Username = loginName(req.Body)
		}
		if sessions != nil {
			sessions.CreateSession(identity.Username, service.SessionInfo{
				SessionID: firstNonEmpty(identity.SessionID, req.SessionID),
				UserType:  identity.UserType,
				IPAddress: req.ClientIP,
				UserAgent: req.UserAgent,
			})
		}
	}

	metadata := map[string]any{
		"success":  success,
		"duration": elapsed.Milliseconds(),
		"method":   req.Method,
		"endpoint": req.Path,
		"status":   resp.Status,
		"identity": identity,
	}
	if id := c.Param("id"); id != "" {
		metadata["resourceId"] = id
	}
	logging.LogUserActivity(tag.activity, tag.description, req, metadata)

	if tag.activity == model.ActivityLogout && sessions != nil {
		sessions.EndSession(firstNonEmpty(identity.SessionID, req.SessionID))
	}
}

// loginName reads the username (or email) a login form was submitted with.
func loginName(body []byte) string {
	var form struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if len(body) == 0 || json.Unmarshal(body, &form) != nil {
		return ""
	}
	return firstNonEmpty(form.Username, form.Email)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
