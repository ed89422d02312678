// Package meter implements the session-scoped token and cost recorder.
// Wrappers around every provider call Record; the orchestrator reads
// Stats at any time to embed running totals in iteration events, and the
// session store serializes the meter to tokens.json on completion.
package meter

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/easel-ai/easel/pkg/models"
)

// Stats is the aggregated view over all recorded usage.
type Stats struct {
	Total       int            `json:"total"`
	Records     int            `json:"records"`
	ByProvider  map[string]int `json:"byProvider"`
	ByOperation map[string]int `json:"byOperation"`
	ByIteration map[int]int    `json:"byIteration"`
}

// Meter accumulates usage records. Safe for concurrent use: the worker
// records while the orchestrator and the HTTP boundary read.
type Meter struct {
	mu      sync.RWMutex
	records []models.Usage
}

// New returns an empty meter.
func New() *Meter {
	return &Meter{}
}

// Record appends one usage record. A zero timestamp is stamped with the
// current time so callers can omit it.
func (m *Meter) Record(u models.Usage) {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.records = append(m.records, u)
	m.mu.Unlock()
}

// Records returns a copy of all recorded usage in record order.
func (m *Meter) Records() []models.Usage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Usage, len(m.records))
	copy(out, m.records)
	return out
}

// Stats aggregates totals, per-provider and per-operation splits, and a
// per-iteration breakdown for records that carry an iteration.
func (m *Meter) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Total:       lo.SumBy(m.records, func(u models.Usage) int { return u.Tokens }),
		Records:     len(m.records),
		ByProvider:  make(map[string]int),
		ByOperation: make(map[string]int),
		ByIteration: make(map[int]int),
	}
	for _, u := range m.records {
		stats.ByProvider[u.Provider] += u.Tokens
		stats.ByOperation[u.Operation] += u.Tokens
		if u.Metadata.Iteration != nil {
			stats.ByIteration[*u.Metadata.Iteration] += u.Tokens
		}
	}
	return stats
}

// snapshot is the JSON wire form of a meter.
type snapshot struct {
	Records []models.Usage `json:"records"`
}

// MarshalJSON serializes the full record list, the tokens.json format.
func (m *Meter) MarshalJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(snapshot{Records: m.records})
}

// UnmarshalJSON restores a meter from its serialized form. Existing
// records are replaced.
func (m *Meter) UnmarshalJSON(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	m.mu.Lock()
	m.records = s.Records
	m.mu.Unlock()
	return nil
}
