package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/orderlens/internal/aggregate"
	"github.com/coachpo/orderlens/internal/orders"
	"github.com/coachpo/orderlens/internal/pipeline"
	"github.com/coachpo/orderlens/internal/poller"
)

type fakeSource struct {
	mu      sync.Mutex
	view    poller.View
	started bool
	subs    chan poller.View
	unsub   atomic.Int32
}

func (f *fakeSource) View() poller.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeSource) Refetch() bool { return f.started }

func (f *fakeSource) Subscribe() (<-chan poller.View, func()) {
	return f.subs, func() { f.unsub.Add(1) }
}

type clientCounter struct{ n atomic.Int64 }

func (c *clientCounter) StreamClient(_ context.Context, delta int64) { c.n.Add(delta) }

func sampleSource() *fakeSource {
	snap := &pipeline.Snapshot{
		Seq: 4,
		Positions: []orders.Position{
			{ID: "a", Token: "CHAOS", Side: orders.SideBuy, IsActive: true},
			{ID: "b", Token: "CHAOS", Side: orders.SideSell, IsActive: false},
			{ID: "c", Token: "LOGOS", Side: orders.SideBuy, IsActive: true},
		},
		LimitOrders: []orders.LimitOrder{
			{ID: "l1", Token: "CHAOS", Side: orders.SideSell, Status: orders.StatusOpen},
			{ID: "l2", Token: "LOGOS", Side: orders.SideBuy, Status: orders.StatusExpired},
		},
		Summaries: map[string]aggregate.TokenSummary{
			"CHAOS": {Symbol: "CHAOS", Breakdown: aggregate.Breakdown{BuyOrders: 1}},
		},
		History: map[string][]aggregate.ChartPoint{
			"CHAOS": {{Timestamp: time.Unix(1, 0), BuyOrders: 1}},
		},
	}
	return &fakeSource{
		view: poller.View{Snapshot: snap, Seq: 4, State: poller.StateIdle},
		subs: make(chan poller.View, 1),
	}
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func ids[T any](t *testing.T, raw json.RawMessage, id func(T) string) []string {
	t.Helper()
	var items []T
	require.NoError(t, json.Unmarshal(raw, &items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

func TestPositionFilters(t *testing.T) {
	h := NewHandler(sampleSource())
	posID := func(p orders.Position) string { return p.ID }

	_, body := get(t, h, "/positions")
	require.Equal(t, []string{"a", "b", "c"}, ids(t, body["positions"], posID))

	_, body = get(t, h, "/positions?token=chaos&side=buy&active=true")
	require.Equal(t, []string{"a"}, ids(t, body["positions"], posID))

	_, body = get(t, h, "/positions?active=false")
	require.Equal(t, []string{"b"}, ids(t, body["positions"], posID))

	rec, body := get(t, h, "/positions?side=hold")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `"error"`, string(body["status"]))

	rec, _ = get(t, h, "/positions?active=maybe")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLimitOrderFilters(t *testing.T) {
	h := NewHandler(sampleSource())
	orderID := func(o orders.LimitOrder) string { return o.ID }

	_, body := get(t, h, "/limit-orders?token=LOGOS")
	require.Equal(t, []string{"l2"}, ids(t, body["limitOrders"], orderID))

	_, body = get(t, h, "/limit-orders?status=open")
	require.Equal(t, []string{"l1"}, ids(t, body["limitOrders"], orderID))

	rec, _ := get(t, h, "/limit-orders?status=cancelled")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmptySnapshotServesEmptyCollections(t *testing.T) {
	h := NewHandler(&fakeSource{view: poller.View{State: poller.StateFetching, Loading: true}})

	_, body := get(t, h, "/positions")
	require.JSONEq(t, `[]`, string(body["positions"]))
	_, body = get(t, h, "/summaries")
	require.JSONEq(t, `{}`, string(body["summaries"]))
	_, body = get(t, h, "/history")
	require.JSONEq(t, `{}`, string(body["history"]))
	_, body = get(t, h, "/snapshot")
	require.JSONEq(t, `null`, string(body["snapshot"]))
	require.JSONEq(t, `true`, string(body["loading"]))
}

func TestHistoryByToken(t *testing.T) {
	h := NewHandler(sampleSource())
	_, body := get(t, h, "/history?token=chaos")
	var history map[string][]aggregate.ChartPoint
	require.NoError(t, json.Unmarshal(body["history"], &history))
	require.Len(t, history["CHAOS"], 1)

	rec, _ := get(t, h, "/history?token=SOL")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryServedFromSeries(t *testing.T) {
	hist := aggregate.NewHistory(3)
	at := time.Unix(1_700_000_000, 0).UTC()
	for i := range 4 {
		hist.Record(at.Add(time.Duration(i)*time.Minute), map[string]aggregate.TokenSummary{
			"CHAOS": {Symbol: "CHAOS", Breakdown: aggregate.Breakdown{BuyOrders: i}},
			"LOGOS": {Symbol: "LOGOS"},
		})
	}
	h := NewHandler(sampleSource(), WithHistory(hist))

	_, body := get(t, h, "/history?token=chaos")
	var history map[string][]aggregate.ChartPoint
	require.NoError(t, json.Unmarshal(body["history"], &history))
	require.Len(t, history, 1)
	require.JSONEq(t, `3`, string(body["depth"]))
	require.Len(t, history["CHAOS"], 3)
	require.Equal(t, 1, history["CHAOS"][0].BuyOrders, "oldest point was evicted")
	require.Equal(t, 3, history["CHAOS"][2].BuyOrders)

	_, body = get(t, h, "/history")
	history = nil
	require.NoError(t, json.Unmarshal(body["history"], &history))
	require.Len(t, history, 2)

	rec, _ := get(t, h, "/history?token=SOL")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type cacheFlag struct{ cleared atomic.Int32 }

func (c *cacheFlag) ClearCache() int {
	c.cleared.Add(1)
	return 3
}

func TestClearPricesFlushesCacheAndRefetches(t *testing.T) {
	src := sampleSource()
	src.started = true
	cache := &cacheFlag{}
	h := NewHandler(src, WithPriceCache(cache))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prices/clear", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"status":"cleared","dropped":3,"refetchStarted":true}`, rec.Body.String())
	require.Equal(t, int32(1), cache.cleared.Load())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/prices/clear", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	NewHandler(src).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prices/clear", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefetchReportsCoalescing(t *testing.T) {
	src := sampleSource()
	h := NewHandler(src)

	src.started = true
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refetch", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	src.started = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refetch", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","coalesced":true}`, rec.Body.String())
}

func TestMethodNotAllowedAndCORS(t *testing.T) {
	h := NewHandler(sampleSource(), WithAllowedOrigin("https://dash.example.com"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/refetch", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "POST", rec.Header().Get("Allow"))
	require.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/snapshot", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthIncludesLastError(t *testing.T) {
	src := sampleSource()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	src.view.Error = "rpc down"
	src.view.ErrorAt = &at

	rec, body := get(t, NewHandler(src), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `"rpc down"`, string(body["error"]))
	require.JSONEq(t, `4`, string(body["seq"]))
	require.JSONEq(t, `"idle"`, string(body["state"]))
}

func readView(t *testing.T, ctx context.Context, conn *websocket.Conn) poller.View {
	t.Helper()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	var view poller.View
	require.NoError(t, json.Unmarshal(data, &view))
	return view
}

func TestStreamPushesViews(t *testing.T) {
	src := sampleSource()
	counter := &clientCounter{}
	srv := httptest.NewServer(NewHandler(src, WithStreamObserver(counter)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/stream", nil)
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	first := readView(t, ctx, conn)
	require.Equal(t, uint64(4), first.Seq)
	require.Len(t, first.Snapshot.Positions, 3)
	require.Equal(t, int64(1), counter.n.Load())

	src.subs <- poller.View{Seq: 5, State: poller.StateIdle}
	second := readView(t, ctx, conn)
	require.Equal(t, uint64(5), second.Seq)

	close(src.subs)
	_, _, err = conn.Read(ctx)
	require.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	require.Eventually(t, func() bool {
		return counter.n.Load() == 0 && src.unsub.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
