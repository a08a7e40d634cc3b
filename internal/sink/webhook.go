package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pickbatch/internal/metrics"
)

// EventType is sent in X-Event-Type with every webhook delivery.
const EventType = "batch.released"

const flushTimeout = 2 * time.Second

type delivery struct {
	batchID  string
	payload  []byte
	attempts int
	next     time.Time
}

// Webhook posts releases to an HTTP endpoint from a background worker.
// Publish only queues; failed deliveries are retried with exponential
// backoff until MaxAttempts is reached.
type Webhook struct {
	URL         string
	Secret      string
	HTTP        *http.Client
	MaxAttempts int
	// MaxPending bounds the queue; the oldest delivery is dropped when full.
	MaxPending int
	Interval   time.Duration

	mu      sync.Mutex
	pending []*delivery
	now     func() time.Time
}

func NewWebhook(url, secret string, maxAttempts int) *Webhook {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Webhook{
		URL:         url,
		Secret:      secret,
		HTTP:        &http.Client{Timeout: 5 * time.Second},
		MaxAttempts: maxAttempts,
		MaxPending:  1000,
		Interval:    time.Second,
		now:         time.Now,
	}
}

func (w *Webhook) Publish(_ context.Context, r Release) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.MaxPending > 0 && len(w.pending) >= w.MaxPending {
		log.Warn().Str("batch_id", w.pending[0].batchID).Msg("webhook queue full, dropping oldest delivery")
		metrics.SinkDeliveries.WithLabelValues("webhook", "dropped").Inc()
		w.pending = w.pending[1:]
	}
	w.pending = append(w.pending, &delivery{batchID: r.BatchID, payload: payload, next: w.clock()})
	return nil
}

// Pending is the number of queued deliveries.
func (w *Webhook) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Run delivers queued releases until ctx is done, then makes one final
// attempt at whatever is due.
func (w *Webhook) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

// flush makes one last delivery pass on shutdown and reports what is left.
func (w *Webhook) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	w.processOnce(ctx)
	if n := w.Pending(); n > 0 {
		log.Warn().Int("pending", n).Str("url", w.URL).Msg("webhook stopped with undelivered releases")
		metrics.SinkDeliveries.WithLabelValues("webhook", "abandoned").Add(float64(n))
	}
}

func (w *Webhook) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

// due removes and returns deliveries whose next attempt has come.
func (w *Webhook) due() []*delivery {
	now := w.clock()
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*delivery
	rest := w.pending[:0]
	for _, d := range w.pending {
		if d.next.After(now) {
			rest = append(rest, d)
			continue
		}
		out = append(out, d)
	}
	w.pending = rest
	return out
}

func (w *Webhook) processOnce(ctx context.Context) {
	for _, d := range w.due() {
		code, err := w.post(ctx, d)
		if err == nil && code >= 200 && code < 300 {
			metrics.SinkDeliveries.WithLabelValues("webhook", "delivered").Inc()
			continue
		}
		d.attempts++
		ev := log.Warn().Str("batch_id", d.batchID).Int("attempt", d.attempts).Int("status", code)
		if err != nil {
			ev = ev.Err(err)
		}
		if d.attempts >= w.MaxAttempts {
			ev.Msg("webhook delivery failed, giving up")
			metrics.SinkDeliveries.WithLabelValues("webhook", "failed").Inc()
			continue
		}
		ev.Msg("webhook delivery failed, retrying")
		metrics.SinkDeliveries.WithLabelValues("webhook", "retried").Inc()
		d.next = w.clock().Add(nextBackoff(d.attempts - 1))
		w.mu.Lock()
		w.pending = append(w.pending, d)
		w.mu.Unlock()
	}
}

func (w *Webhook) post(ctx context.Context, d *delivery) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(d.payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", EventType)
	if w.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(w.Secret, d.payload))
	}
	client := w.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	start := time.Now()
	resp, err := client.Do(req)
	code := 0
	if err == nil {
		code = resp.StatusCode
		_ = resp.Body.Close()
	}
	metrics.WebhookLatency.WithLabelValues(strconv.Itoa(code)).Observe(float64(time.Since(start).Milliseconds()))
	return code, err
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
