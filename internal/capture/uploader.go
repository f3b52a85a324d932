// Package capture is the client side of the frontend log pipeline: it records outbound
// HTTP traffic, activities and errors in a bounded buffer and uploads them in batches to
// the ingestion endpoint.
package capture

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/logger"
)

const (
	DefaultFlushInterval = 10 * time.Second
	DefaultBatchSize     = 50
	DefaultMaxBuffer     = 1000
)

type Options struct {
	// Endpoint is the full ingestion URL, e.g. https://erp.example.com/api/logs/frontend.
	Endpoint      string
	FlushInterval time.Duration
	BatchSize     int
	MaxBuffer     int

	// Page context sent with every batch.
	UserAgent string
	PageURL   string
	Referrer  string

	// Headers are added to every upload, typically Authorization.
	Headers http.Header
	Client  *http.Client
	Clock   clockwork.Clock
}

// Uploader buffers entries and posts them as model.FrontendLogBatch. The buffer drops
// its oldest entry when full; a failed upload puts the batch back in front.
type Uploader struct {
	opts   Options
	client *http.Client
	clock  clockwork.Clock

	mu       sync.Mutex
	buf      []map[string]any
	flushing atomic.Bool
	wake     chan struct{}
}

func NewUploader(opts Options) *Uploader {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxBuffer <= 0 {
		opts.MaxBuffer = DefaultMaxBuffer
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			Timeout: 10 * time.Second,
		}
	}
	return &Uploader{
		opts:   opts,
		client: client,
		clock:  opts.Clock,
		wake:   make(chan struct{}, 1),
	}
}

// Endpoint is the ingestion URL; the capture transport never records calls to it.
func (u *Uploader) Endpoint() string { return u.opts.Endpoint }

// Add buffers one entry. Reaching the batch size wakes Run for an early upload.
func (u *Uploader) Add(entry map[string]any) {
	if entry == nil {
		return
	}
	u.mu.Lock()
	if len(u.buf) >= u.opts.MaxBuffer {
		u.buf = u.buf[1:]
	}
	u.buf = append(u.buf, entry)
	full := len(u.buf) >= u.opts.BatchSize
	u.mu.Unlock()

	if full {
		select {
		case u.wake <- struct{}{}:
		default:
		}
	}
}

func (u *Uploader) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.buf)
}

// Flush uploads everything buffered. It is a no-op while another flush is running.
func (u *Uploader) Flush(ctx context.Context) error {
	if !u.flushing.CompareAndSwap(false, true) {
		return nil
	}
	defer u.flushing.Store(false)

	u.mu.Lock()
	batch := u.buf
	u.buf = nil
	u.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	if err := u.post(ctx, batch); err != nil {
		u.requeue(batch)
		return err
	}
	return nil
}

func (u *Uploader) requeue(batch []map[string]any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	merged := append(batch, u.buf...)
	if over := len(merged) - u.opts.MaxBuffer; over > 0 {
		merged = merged[over:]
	}
	u.buf = merged
}

func (u *Uploader) post(ctx context.Context, logs []map[string]any) error {
	key, err := batchKey(logs)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	body, err := json.Marshal(model.FrontendLogBatch{
		Logs:      logs,
		Timestamp: u.clock.Now().UTC().Format(time.RFC3339Nano),
		UserAgent: u.opts.UserAgent,
		URL:       u.opts.PageURL,
		Referrer:  u.opts.Referrer,
	})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	for k, vals := range u.opts.Headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerIdempotencyKey, key)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload logs: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload logs: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// batchKey fingerprints the entries of a batch so a retried upload of the same entries
// carries the same idempotency key.
func batchKey(logs []map[string]any) (string, error) {
	raw, err := json.Marshal(logs)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Run uploads on every interval tick and whenever a full batch is buffered. On
// cancellation it makes one last attempt with a short deadline.
func (u *Uploader) Run(ctx context.Context) {
	ticker := u.clock.NewTicker(u.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := u.Flush(final); err != nil {
				logger.Warn("final log upload failed", "error", err, "pending", u.Pending())
			}
			cancel()
			return
		case <-ticker.Chan():
			u.flushLogged(ctx)
		case <-u.wake:
			u.flushLogged(ctx)
		}
	}
}

func (u *Uploader) flushLogged(ctx context.Context) {
	if err := u.Flush(ctx); err != nil {
		logger.Warn("log upload failed", "error", err, "pending", u.Pending())
	}
}
