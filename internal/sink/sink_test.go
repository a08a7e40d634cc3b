package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pickbatch/internal/model"
)

var layout = model.Layout{MaxX: 20, MaxY: 10, MaxZ: 5}

func sampleBatch() model.Batch {
	return model.NewBatch(
		model.Order{ID: "o1", Items: []model.Item{{ID: "a", Pos: &model.Position{X: 5, Y: 6}}}},
		model.Order{ID: "o2", Items: []model.Item{{ID: "b", Pos: &model.Position{X: 11, Y: 5}}}},
	)
}

func TestNewRelease(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	r, err := NewRelease(sampleBatch(), layout, 20, start)
	require.NoError(t, err)
	require.Equal(t, 34, r.TourLength)
	require.Equal(t, 2, r.OrderCount)
	require.Equal(t, 2, r.ItemCount)
	require.Equal(t, []string{"o1", "o2"}, r.OrderIDs)
	require.Len(t, r.Sequence, 2)
	require.Equal(t, "a", r.Sequence[0].Item.ID)
	require.Equal(t, start.Add(1700*time.Millisecond), r.ArrivalAt)

	r, err = NewRelease(sampleBatch(), layout, 0, start)
	require.NoError(t, err)
	require.Equal(t, start, r.ArrivalAt)
}

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()

	require.NoError(t, b.Publish(context.Background(), Release{BatchID: "b1"}))
	select {
	case got := <-ch:
		require.Equal(t, "b1", got.BatchID)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for release")
	}

	b.Unsubscribe(ch)
	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
	b.Unsubscribe(ch)
	require.NoError(t, b.Publish(context.Background(), Release{BatchID: "b2"}))
}

func TestBrokerDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	for i := 0; i < 100; i++ {
		require.NoError(t, b.Publish(context.Background(), Release{}))
	}
	require.Len(t, ch, cap(ch))
}

type failing struct{ err error }

func (f failing) Publish(context.Context, Release) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	b := NewBroker()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	err := Multi{failing{boom}, b, Log{}}.Publish(context.Background(), Release{BatchID: "x"})
	require.ErrorIs(t, err, boom)
	require.Equal(t, "x", (<-ch).BatchID)
	require.NoError(t, Multi{b, Log{}}.Publish(context.Background(), Release{}))
}

func TestSignature(t *testing.T) {
	sig := SignHMAC("secret", []byte("body"))
	require.True(t, VerifyHMAC("secret", []byte("body"), sig))
	require.False(t, VerifyHMAC("other", []byte("body"), sig))
	require.False(t, VerifyHMAC("secret", []byte("body"), "not-hex"))
}

func TestWebhookDeliversSigned(t *testing.T) {
	var (
		mu            sync.Mutex
		gotSig, gotEv string
		body          []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotSig = r.Header.Get("X-Signature")
		gotEv = r.Header.Get("X-Event-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "secret", 3)
	w.HTTP = srv.Client()
	require.NoError(t, w.Publish(context.Background(), Release{BatchID: "b1", TourLength: 34}))
	require.Equal(t, 1, w.Pending())

	w.processOnce(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, EventType, gotEv)
	require.True(t, VerifyHMAC("secret", body, gotSig))
	var r Release
	require.NoError(t, json.Unmarshal(body, &r))
	require.Equal(t, "b1", r.BatchID)
	require.Zero(t, w.Pending())
}

func TestWebhookRetriesThenGivesUp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewWebhook(srv.URL, "", 2)
	w.HTTP = srv.Client()
	w.now = func() time.Time { return clock }
	require.NoError(t, w.Publish(context.Background(), Release{BatchID: "b1"}))

	w.processOnce(context.Background())
	require.EqualValues(t, 1, hits.Load())
	require.Equal(t, 1, w.Pending(), "failed delivery is requeued")

	w.processOnce(context.Background())
	require.EqualValues(t, 1, hits.Load(), "retry waits for backoff")

	clock = clock.Add(nextBackoff(0))
	w.processOnce(context.Background())
	require.EqualValues(t, 2, hits.Load())
	require.Zero(t, w.Pending(), "gives up after max attempts")
}

func TestWebhookDropsOldestWhenFull(t *testing.T) {
	w := NewWebhook("http://127.0.0.1:0", "", 1)
	w.MaxPending = 2
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, w.Publish(context.Background(), Release{BatchID: id}))
	}
	require.Equal(t, 2, w.Pending())
	require.Equal(t, "b", w.pending[0].batchID)
}

func TestWebhookRunStopsOnCancel(t *testing.T) {
	w := NewWebhook("http://127.0.0.1:0", "", 1)
	w.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestWebhookRunFlushesOnCancel(t *testing.T) {
	var hits, status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	run := func(w *Webhook) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, w.Run(ctx))
	}

	w := NewWebhook(srv.URL, "", 3)
	w.HTTP = srv.Client()
	w.Interval = time.Hour
	require.NoError(t, w.Publish(context.Background(), Release{BatchID: "b1"}))
	run(w)
	require.Equal(t, int32(1), hits.Load())
	require.Zero(t, w.Pending())

	status.Store(http.StatusServiceUnavailable)
	w = NewWebhook(srv.URL, "", 3)
	w.HTTP = srv.Client()
	w.Interval = time.Hour
	require.NoError(t, w.Publish(context.Background(), Release{BatchID: "b2"}))
	run(w)
	require.Equal(t, int32(2), hits.Load())
	require.Equal(t, 1, w.Pending())
}

func TestNextBackoff(t *testing.T) {
	require.Equal(t, time.Second, nextBackoff(-1))
	require.Equal(t, 4*time.Second, nextBackoff(2))
	require.Equal(t, 1024*time.Second, nextBackoff(50))
}

func TestNewRedisBrokerRejectsBadURL(t *testing.T) {
	_, err := NewRedisBroker("not-a-url", "")
	require.Error(t, err)
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	b, err := NewRedisBroker(url, "pickbatch:test")
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Ping(context.Background()))

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	require.NoError(t, b.Publish(context.Background(), Release{BatchID: "r1"}))
	select {
	case got := <-ch:
		require.Equal(t, "r1", got.BatchID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis release")
	}
}
