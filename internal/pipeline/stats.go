package pipeline

import (
	"sync/atomic"
	"time"
)

// RunStats accumulates counters for one pipeline run. Fields are updated
// atomically by the analysis workers.
type RunStats struct {
	Discovered int64 `json:"discovered"`
	NewRecords int64 `json:"new_records"`
	Duplicates int64 `json:"duplicates"`
	Analyzed   int64 `json:"analyzed"`
	Failed     int64 `json:"failed"`
	Skipped    int64 `json:"skipped"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (s *RunStats) addDiscovered(n int64) { atomic.AddInt64(&s.Discovered, n) }
func (s *RunStats) addNew(n int64)        { atomic.AddInt64(&s.NewRecords, n) }
func (s *RunStats) addDuplicate(n int64)  { atomic.AddInt64(&s.Duplicates, n) }
func (s *RunStats) addAnalyzed(n int64)   { atomic.AddInt64(&s.Analyzed, n) }
func (s *RunStats) addFailed(n int64)     { atomic.AddInt64(&s.Failed, n) }
func (s *RunStats) addSkipped(n int64)    { atomic.AddInt64(&s.Skipped, n) }
