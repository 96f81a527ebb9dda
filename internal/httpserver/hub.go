package httpserver

import (
	"sort"
	"sync"

	"github.com/blackmichael/profile-sync/internal/domain"
)

// subscriberBuffer is the number of reports queued per stream subscriber.
// Reports beyond it are dropped for that subscriber.
const subscriberBuffer = 32

// Hub keeps the latest report per handle and fans reports out to live
// stream subscribers. It implements domain.ReportSink.
type Hub struct {
	mu          sync.RWMutex
	latest      map[string]domain.Report
	subscribers map[chan domain.Report]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		latest:      make(map[string]domain.Report),
		subscribers: make(map[chan domain.Report]struct{}),
	}
}

// Publish stores report and forwards it to every subscriber without
// blocking.
func (h *Hub) Publish(report domain.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest[report.ProfileHandle] = report
	for ch := range h.subscribers {
		select {
		case ch <- report:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it; it closes the channel.
func (h *Hub) Subscribe() (<-chan domain.Report, func()) {
	ch := make(chan domain.Report, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Latest returns the most recent report of every handle, sorted by handle.
func (h *Hub) Latest() []domain.Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.Report, 0, len(h.latest))
	for _, r := range h.latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProfileHandle < out[j].ProfileHandle
	})
	return out
}
