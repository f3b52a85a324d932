package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
)

const (
	HeaderIdempotencyKey  = "X-Idempotency-Key"
	DefaultIdempotencyTTL = 10 * time.Minute
)

type idempotencyRecord struct {
	status     int
	body       []byte
	createdAt  time.Time
	processing bool
}

// IdempotencyStore remembers the response to a keyed request so a retried upload is
// answered from memory instead of being stored twice.
type IdempotencyStore struct {
	mu        sync.Mutex
	records   map[string]*idempotencyRecord
	ttl       time.Duration
	clock     clockwork.Clock
	lastSweep time.Time
}

func NewIdempotencyStore(ttl time.Duration, clock clockwork.Clock) *IdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &IdempotencyStore{
		records:   make(map[string]*idempotencyRecord),
		ttl:       ttl,
		clock:     clock,
		lastSweep: clock.Now(),
	}
}

// getOrLock returns the stored record on a hit. On a miss the key is locked for the
// caller and nil, false is returned.
func (s *IdempotencyStore) getOrLock(key string) (*idempotencyRecord, bool) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= s.ttl {
		for k, rec := range s.records {
			if !rec.processing && now.Sub(rec.createdAt) > s.ttl {
				delete(s.records, k)
			}
		}
		s.lastSweep = now
	}

	if rec, ok := s.records[key]; ok {
		if rec.processing || now.Sub(rec.createdAt) <= s.ttl {
			cp := *rec
			return &cp, true
		}
	}
	s.records[key] = &idempotencyRecord{processing: true, createdAt: now}
	return nil, false
}

func (s *IdempotencyStore) save(key string, status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = &idempotencyRecord{status: status, body: body, createdAt: s.clock.Now()}
}

func (s *IdempotencyStore) unlock(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

func (s *IdempotencyStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// IdempotencyMiddleware replays the stored response for a repeated X-Idempotency-Key.
// Keys are scoped to the client IP. Requests without the header pass straight through,
// and a 5xx outcome unlocks the key so the client may retry.
func IdempotencyMiddleware(store *IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		fullKey := c.ClientIP() + ":" + key

		rec, hit := store.getOrLock(fullKey)
		if hit {
			if rec.processing {
				_ = c.Error(apperrors.NewConflict("A request with this idempotency key is in progress"))
				c.Abort()
				return
			}
			c.Header("Idempotent-Replay", "true")
			c.Data(rec.status, "application/json; charset=utf-8", rec.body)
			c.Abort()
			return
		}

		w := &replayWriter{ResponseWriter: c.Writer}
		c.Writer = w
		completed := false
		defer func() {
			// a panic unwinding through here must not leave the key locked
			if !completed {
				store.unlock(fullKey)
			}
		}()
		c.Next()
		completed = true

		if status := w.Status(); status < http.StatusInternalServerError && len(c.Errors) == 0 {
			store.save(fullKey, status, w.body)
		} else {
			store.unlock(fullKey)
		}
	}
}

type replayWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *replayWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}

func (w *replayWriter) WriteString(s string) (int, error) {
	w.body = append(w.body, s...)
	return w.ResponseWriter.WriteString(s)
}
