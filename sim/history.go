package sim

import (
	"sync"

	"github.com/runesim/kaun/models"
)

// HistoryRecord is the contact edge set of one completed tick.
type HistoryRecord struct {
	Tick  uint64               `json:"tick"`
	Edges []models.ContactEdge `json:"edges"`
}

// History retains the edge sets of the most recent ticks, bounded by size.
// A zero size keeps nothing.
type History struct {
	mutex   sync.RWMutex
	size    int
	records []HistoryRecord
}

func NewHistory(size int) *History {
	return &History{size: size}
}

func (h *History) Push(tick uint64, edges []models.ContactEdge) {
	if h.size <= 0 {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.records = append(h.records, HistoryRecord{Tick: tick, Edges: edges})
	if len(h.records) > h.size {
		h.records = append(h.records[:0:0], h.records[len(h.records)-h.size:]...)
	}
}

// Recent returns up to n of the most recent records, oldest first.
func (h *History) Recent(n int) []HistoryRecord {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if n > len(h.records) {
		n = len(h.records)
	}

	records := make([]HistoryRecord, n)
	copy(records, h.records[len(h.records)-n:])
	return records
}

// EdgesAt returns the edge set retained for the given tick.
func (h *History) EdgesAt(tick uint64) ([]models.ContactEdge, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].Tick == tick {
			return h.records[i].Edges, true
		}
	}
	return nil, false
}

func (h *History) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.records)
}
