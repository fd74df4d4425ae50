package report

import (
	"sync"
	"time"

	"github.com/privaudit/privaudit/internal/analysis"
)

// Holder keeps the most recent report for the HTTP API. It is serving
// infrastructure only; audit runs never read from it.
type Holder struct {
	mu        sync.RWMutex
	latest    *analysis.Report
	updatedAt time.Time
}

func NewHolder() *Holder {
	return &Holder{}
}

func (h *Holder) Set(rep analysis.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = &rep
	h.updatedAt = time.Now().UTC()
}

// Latest returns the stored report and when it was stored. ok is false
// until the first Set.
func (h *Holder) Latest() (analysis.Report, time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return analysis.Report{}, time.Time{}, false
	}
	return *h.latest, h.updatedAt, true
}
