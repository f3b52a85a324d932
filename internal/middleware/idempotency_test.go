package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyReplaysResponse(t *testing.T) {
	h := newHarness(t)
	store := NewIdempotencyStore(time.Minute, h.clock)
	calls := 0
	h.engine.POST("/api/logs/frontend", IdempotencyMiddleware(store), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"success": true, "count": calls})
	})
	key := map[string]string{HeaderIdempotencyKey: "k-1"}

	first := h.do(http.MethodPost, "/api/logs/frontend", `{}`, key)
	second := h.do(http.MethodPost, "/api/logs/frontend", `{}`, key)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	h.do(http.MethodPost, "/api/logs/frontend", `{}`, nil)
	assert.Equal(t, 2, calls)

	h.clock.Advance(2 * time.Minute)
	h.do(http.MethodPost, "/api/logs/frontend", `{}`, map[string]string{HeaderIdempotencyKey: "k-2"})
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, store.size())
}

func TestIdempotencyConflictWhileInFlight(t *testing.T) {
	h := newHarness(t)
	store := NewIdempotencyStore(time.Minute, h.clock)
	h.engine.POST("/api/logs/frontend", IdempotencyMiddleware(store), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	_, hit := store.getOrLock("192.0.2.1:k-1")
	require.False(t, hit)

	w := h.do(http.MethodPost, "/api/logs/frontend", `{}`, map[string]string{HeaderIdempotencyKey: "k-1"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", decodeError(t, w).Error.Code)
}

func TestIdempotencyFailureUnlocksKey(t *testing.T) {
	h := newHarness(t)
	store := NewIdempotencyStore(time.Minute, h.clock)
	fail := true
	h.engine.POST("/api/logs/frontend", IdempotencyMiddleware(store), func(c *gin.Context) {
		if fail {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	key := map[string]string{HeaderIdempotencyKey: "k-1"}

	require.Equal(t, http.StatusInternalServerError, h.do(http.MethodPost, "/api/logs/frontend", `{}`, key).Code)
	assert.Zero(t, store.size())

	fail = false
	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/api/logs/frontend", `{}`, key).Code)
}

func TestIdempotencyPanicUnlocksKey(t *testing.T) {
	h := newHarness(t)
	store := NewIdempotencyStore(time.Minute, h.clock)
	boom := true
	h.engine.POST("/api/logs/frontend", IdempotencyMiddleware(store), func(c *gin.Context) {
		if boom {
			panic("ledger write exploded")
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	key := map[string]string{HeaderIdempotencyKey: "k-1"}

	require.Equal(t, http.StatusInternalServerError, h.do(http.MethodPost, "/api/logs/frontend", `{}`, key).Code)
	assert.Zero(t, store.size())

	boom = false
	w := h.do(http.MethodPost, "/api/logs/frontend", `{}`, key)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.size())
}
