package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"pickbatch/internal/controller"
	"pickbatch/internal/metrics"
	"pickbatch/internal/model"
	"pickbatch/internal/sink"
	"pickbatch/internal/warehouse"
)

type fakeCtrl struct {
	mu        sync.Mutex
	submitted []model.Order
	finished  []model.Order
	available int
	err       error
	snap      controller.Snapshot
}

func (f *fakeCtrl) Submit(_ context.Context, o model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, o)
	return nil
}

func (f *fakeCtrl) Finish(_ context.Context, o model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.finished = append(f.finished, o)
	return nil
}

func (f *fakeCtrl) PickerAvailable() {
	f.mu.Lock()
	f.available++
	f.mu.Unlock()
}

func (f *fakeCtrl) Snapshot(context.Context) (controller.Snapshot, error) {
	return f.snap, f.err
}

var catalog = warehouse.NewCatalog(map[string]model.Position{
	"165": {X: 1, Y: 2},
	"228": {X: 2, Y: 8, Z: 1},
})

func newTestServer(t *testing.T) (*Server, *fakeCtrl, *sink.Broker) {
	t.Helper()
	ctrl := &fakeCtrl{}
	broker := sink.NewBroker()
	return NewServer(ctrl, catalog, broker, nil), ctrl, broker
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rr, req)
	return rr
}

func problem(t *testing.T, rr *httptest.ResponseRecorder) Problem {
	t.Helper()
	var p Problem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

func TestHealthReady(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "pickbatch", body["service"])

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestOrdersSubmit(t *testing.T) {
	s, ctrl, _ := newTestServer(t)
	h := s.Handler()

	rr := post(h, "/v1/orders", `{"orderId":"A1","items":[{"itemId":"165"},{"itemId":"228"}]}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, ctrl.submitted, 1)
	o := ctrl.submitted[0]
	require.Equal(t, "A1", o.ID)
	require.Equal(t, model.Position{X: 2, Y: 8, Z: 1}, *o.Items[1].Pos)
	require.True(t, o.ArrivedAt.IsZero(), "arrival is stamped by the controller")

	rr = post(h, "/v1/orders/last", `{"items":[{"itemId":"165"}]}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, ctrl.finished, 1)
	require.NotEmpty(t, ctrl.finished[0].ID)
}

func TestOrdersRejections(t *testing.T) {
	s, ctrl, _ := newTestServer(t)
	h := s.Handler()

	rr := post(h, "/v1/orders", `{`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "Invalid JSON", problem(t, rr).Title)

	rr = post(h, "/v1/orders", `{"orderId":"A","items":[{"itemId":"165"}],"priority":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = post(h, "/v1/orders", `{"orderId":"A","items":[]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = post(h, "/v1/orders", `{"orderId":"A","items":[{"itemId":""}]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = post(h, "/v1/orders", `{"orderId":"A","items":[{"itemId":"999"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "/v1/orders", problem(t, rr).Instance)

	ctrl.err = controller.ErrDuplicateOrder
	rr = post(h, "/v1/orders", `{"orderId":"A","items":[{"itemId":"165"}]}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	ctrl.err = controller.ErrFinished
	rr = post(h, "/v1/orders", `{"orderId":"B","items":[{"itemId":"165"}]}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	ctrl.err = controller.ErrStopped
	rr = post(h, "/v1/orders/last", `{"orderId":"C","items":[{"itemId":"165"}]}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/orders", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestOrdersRateLimited(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	h := s.Handler()

	require.Equal(t, http.StatusAccepted, post(h, "/v1/orders", `{"items":[{"itemId":"165"}]}`).Code)
	rr := post(h, "/v1/orders", `{"items":[{"itemId":"165"}]}`)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestPlanAndPicker(t *testing.T) {
	s, ctrl, _ := newTestServer(t)
	ctrl.snap = controller.Snapshot{Pending: 3, Released: 2, PickerBusy: true}
	h := s.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/plan", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var snap controller.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	require.Equal(t, 3, snap.Pending)
	require.True(t, snap.PickerBusy)

	rr = post(h, "/v1/picker/available", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 1, ctrl.available)

	ctrl.err = controller.ErrStopped
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/plan", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestILSMetricsAndPrometheus(t *testing.T) {
	metrics.RegisterDefault()
	s, _, _ := newTestServer(t)
	h := s.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/ils-metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "http_requests_total")
}

func TestReleaseStream(t *testing.T) {
	s, _, broker := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/releases/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, broker.Publish(context.Background(), sink.Release{BatchID: "b1", TourLength: 34}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var got sink.Release
	require.NoError(t, json.NewDecoder(bytes.NewReader(data)).Decode(&got))
	require.Equal(t, "b1", got.BatchID)
	require.Equal(t, 34, got.TourLength)
}

func TestReleaseStreamWithoutSink(t *testing.T) {
	s := NewServer(&fakeCtrl{}, catalog, nil, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/releases/stream", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
