// Package httpserver exposes the order dashboard snapshot over HTTP and a websocket stream.
package httpserver

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/coachpo/orderlens/internal/aggregate"
	"github.com/coachpo/orderlens/internal/orders"
	"github.com/coachpo/orderlens/internal/poller"
)

const (
	snapshotPath    = "/snapshot"
	positionsPath   = "/positions"
	limitOrdersPath = "/limit-orders"
	summariesPath   = "/summaries"
	historyPath     = "/history"
	refetchPath     = "/refetch"
	pricesClearPath = "/prices/clear"
	healthPath      = "/healthz"
	streamPath      = "/stream"
)

// Source is the poller surface the handlers read from.
type Source interface {
	View() poller.View
	Refetch() bool
	Subscribe() (<-chan poller.View, func())
}

// StreamObserver is notified when websocket clients connect (+1) or disconnect (-1).
type StreamObserver interface {
	StreamClient(ctx context.Context, delta int64)
}

// HistorySource serves chart series independently of the published snapshot.
type HistorySource interface {
	Series(symbol string) []aggregate.ChartPoint
	Symbols() []string
	Depth() int
}

// PriceCache is the quote cache the operator can flush. ClearCache reports the number of
// quotes dropped.
type PriceCache interface {
	ClearCache() int
}

type handlerFunc func(http.ResponseWriter, *http.Request)

type httpServer struct {
	source        Source
	logger        *zap.Logger
	streams       StreamObserver
	history       HistorySource
	prices        PriceCache
	allowedOrigin string
	writeTimeout  time.Duration
}

// Option customises the handler.
type Option func(*httpServer)

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *httpServer) {
		if logger != nil {
			s.logger = logger.Named("http")
		}
	}
}

// WithStreamObserver reports websocket client counts.
func WithStreamObserver(obs StreamObserver) Option {
	return func(s *httpServer) { s.streams = obs }
}

// WithHistory serves /history from h instead of the snapshot copy.
func WithHistory(h HistorySource) Option {
	return func(s *httpServer) { s.history = h }
}

// WithPriceCache enables POST /prices/clear.
func WithPriceCache(c PriceCache) Option {
	return func(s *httpServer) { s.prices = c }
}

// WithAllowedOrigin sets the CORS origin and the websocket origin pattern. "*" allows any.
func WithAllowedOrigin(origin string) Option {
	return func(s *httpServer) {
		if origin = strings.TrimSpace(origin); origin != "" {
			s.allowedOrigin = origin
		}
	}
}

// NewHandler creates the HTTP handler serving the dashboard endpoints.
func NewHandler(source Source, opts ...Option) http.Handler {
	server := &httpServer{
		source:        source,
		logger:        zap.NewNop(),
		allowedOrigin: "*",
		writeTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(server)
	}
	mux := http.NewServeMux()

	mux.Handle(snapshotPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getSnapshot,
	}))
	mux.Handle(positionsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listPositions,
	}))
	mux.Handle(limitOrdersPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listLimitOrders,
	}))
	mux.Handle(summariesPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getSummaries,
	}))
	mux.Handle(historyPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getHistory,
	}))
	mux.Handle(refetchPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodPost: server.refetch,
	}))
	if server.prices != nil {
		mux.Handle(pricesClearPath, server.methodHandlers(map[string]handlerFunc{
			http.MethodPost: server.clearPrices,
		}))
	}
	mux.Handle(healthPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.health,
	}))
	mux.Handle(streamPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.stream,
	}))

	return server.withCORS(mux)
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

func (s *httpServer) getSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.source.View())
}

type positionFilter struct {
	token  string
	side   orders.Side
	active *bool
}

func parseCommonFilter(r *http.Request) (string, orders.Side, string) {
	query := r.URL.Query()
	token := strings.ToUpper(strings.TrimSpace(query.Get("token")))
	raw := strings.TrimSpace(query.Get("side"))
	if raw == "" {
		return token, "", ""
	}
	side, ok := orders.ParseSide(raw)
	if !ok {
		return "", "", "side must be BUY or SELL"
	}
	return token, side, ""
}

func (s *httpServer) listPositions(w http.ResponseWriter, r *http.Request) {
	token, side, problem := parseCommonFilter(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	filter := positionFilter{token: token, side: side}
	if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "active must be a boolean")
			return
		}
		filter.active = &active
	}

	view := s.source.View()
	out := make([]orders.Position, 0)
	if view.Snapshot != nil {
		for _, pos := range view.Snapshot.Positions {
			if filter.token != "" && pos.Token != filter.token {
				continue
			}
			if filter.side != "" && pos.Side != filter.side {
				continue
			}
			if filter.active != nil && pos.IsActive != *filter.active {
				continue
			}
			out = append(out, pos)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": out, "seq": view.Seq})
}

func (s *httpServer) listLimitOrders(w http.ResponseWriter, r *http.Request) {
	token, side, problem := parseCommonFilter(r)
	if problem != "" {
		writeError(w, http.StatusBadRequest, problem)
		return
	}
	status := orders.Status(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
	switch status {
	case "", orders.StatusOpen, orders.StatusFilled, orders.StatusExpired:
	default:
		writeError(w, http.StatusBadRequest, "status must be open, filled or expired")
		return
	}

	view := s.source.View()
	out := make([]orders.LimitOrder, 0)
	if view.Snapshot != nil {
		for _, order := range view.Snapshot.LimitOrders {
			if token != "" && order.Token != token {
				continue
			}
			if side != "" && order.Side != side {
				continue
			}
			if status != "" && order.Status != status {
				continue
			}
			out = append(out, order)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"limitOrders": out, "seq": view.Seq})
}

func (s *httpServer) getSummaries(w http.ResponseWriter, _ *http.Request) {
	view := s.source.View()
	summaries := map[string]aggregate.TokenSummary{}
	if view.Snapshot != nil && view.Snapshot.Summaries != nil {
		summaries = view.Snapshot.Summaries
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": summaries, "seq": view.Seq})
}

func (s *httpServer) getHistory(w http.ResponseWriter, r *http.Request) {
	view := s.source.View()
	token := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("token")))
	history := s.historySeries(view, token)
	if token != "" {
		if _, ok := history[token]; !ok {
			writeError(w, http.StatusNotFound, "token not tracked")
			return
		}
	}
	body := map[string]any{"history": history, "seq": view.Seq}
	if s.history != nil {
		body["depth"] = s.history.Depth()
	}
	writeJSON(w, http.StatusOK, body)
}

// historySeries returns every series, or only token's when set.
func (s *httpServer) historySeries(view poller.View, token string) map[string][]aggregate.ChartPoint {
	out := map[string][]aggregate.ChartPoint{}
	if s.history != nil {
		symbols := s.history.Symbols()
		if token != "" {
			symbols = []string{token}
		}
		for _, symbol := range symbols {
			if series := s.history.Series(symbol); series != nil {
				out[symbol] = series
			}
		}
		return out
	}
	if view.Snapshot == nil {
		return out
	}
	for symbol, series := range view.Snapshot.History {
		if token == "" || symbol == token {
			out[symbol] = series
		}
	}
	return out
}

func (s *httpServer) refetch(w http.ResponseWriter, _ *http.Request) {
	if s.source.Refetch() {
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "coalesced": true})
}

// clearPrices drops cached quotes and schedules a pass so fresh quotes are fetched.
func (s *httpServer) clearPrices(w http.ResponseWriter, _ *http.Request) {
	dropped := s.prices.ClearCache()
	started := s.source.Refetch()
	s.logger.Info("price cache cleared", zap.Int("dropped", dropped), zap.Bool("refetchStarted", started))
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "cleared", "dropped": dropped, "refetchStarted": started})
}

func (s *httpServer) health(w http.ResponseWriter, _ *http.Request) {
	view := s.source.View()
	body := map[string]any{
		"status": "ok",
		"state":  view.State,
		"seq":    view.Seq,
	}
	if view.Snapshot != nil {
		body["updatedAt"] = view.Snapshot.UpdatedAt
	}
	if view.Error != "" {
		body["error"] = view.Error
		body["errorAt"] = view.ErrorAt
	}
	writeJSON(w, http.StatusOK, body)
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func (s *httpServer) withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
