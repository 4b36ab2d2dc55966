package aggregate

import (
	"sort"
	"sync"
	"time"
)

// DefaultHistoryDepth is the number of chart points kept per token.
const DefaultHistoryDepth = 120

// ChartPoint is one poll's volumes for a token.
type ChartPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	BuyVolume  int64     `json:"buyVolume"`
	SellVolume int64     `json:"sellVolume"`
	BuyOrders  int       `json:"buyOrders"`
	SellOrders int       `json:"sellOrders"`
}

// PointOf projects a summary onto a chart point.
func PointOf(at time.Time, s TokenSummary) ChartPoint {
	return ChartPoint{
		Timestamp:  at,
		BuyVolume:  s.BuyVolume,
		SellVolume: s.SellVolume,
		BuyOrders:  s.BuyOrders,
		SellOrders: s.SellOrders,
	}
}

// History keeps a fixed-depth ring of chart points per token. It is safe for concurrent use.
type History struct {
	mu     sync.RWMutex
	depth  int
	series map[string]*ring
}

type ring struct {
	points []ChartPoint
	next   int
	full   bool
}

// NewHistory creates a history. A non-positive depth selects DefaultHistoryDepth.
func NewHistory(depth int) *History {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &History{depth: depth, series: make(map[string]*ring)}
}

// Depth reports the per-token capacity.
func (h *History) Depth() int { return h.depth }

// Record appends one point per summary, evicting the oldest once a token is at capacity.
func (h *History) Record(at time.Time, summaries map[string]TokenSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for symbol, summary := range summaries {
		r, ok := h.series[symbol]
		if !ok {
			r = &ring{points: make([]ChartPoint, h.depth)}
			h.series[symbol] = r
		}
		r.points[r.next] = PointOf(at, summary)
		r.next = (r.next + 1) % h.depth
		if r.next == 0 {
			r.full = true
		}
	}
}

// Series returns the points for symbol, oldest first.
func (h *History) Series(symbol string) []ChartPoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.series[symbol]
	if !ok {
		return nil
	}
	return r.ordered()
}

// All returns a copy of every series keyed by symbol.
func (h *History) All() map[string][]ChartPoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string][]ChartPoint, len(h.series))
	for symbol, r := range h.series {
		out[symbol] = r.ordered()
	}
	return out
}

// Symbols lists the tracked series in order.
func (h *History) Symbols() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.series))
	for symbol := range h.series {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (r *ring) ordered() []ChartPoint {
	if !r.full {
		return append([]ChartPoint(nil), r.points[:r.next]...)
	}
	out := make([]ChartPoint, 0, len(r.points))
	out = append(out, r.points[r.next:]...)
	return append(out, r.points[:r.next]...)
}
