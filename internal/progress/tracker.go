// Package progress tracks in-memory run state for the ingestion pipeline.
// State is process-wide, reset at startup, and consumed read-only by the
// monitoring API. Each run kind has its own state and its own lock, so a
// fetch run never blocks a snapshot of a retry sweep.
package progress

import (
	"sync"
	"time"
)

// RunKind identifies one of the pipeline's mutually exclusive run kinds.
type RunKind string

const (
	RunFetch       RunKind = "fetch"
	RunRetry       RunKind = "retry"
	RunRemoteFetch RunKind = "remote-fetch"
)

// Kinds lists all run kinds in display order.
func Kinds() []RunKind {
	return []RunKind{RunFetch, RunRetry, RunRemoteFetch}
}

// LogRingCapacity bounds the per-run log ring. Overflow silently evicts the
// oldest entry; this is best-effort diagnostics, not an audit log.
const LogRingCapacity = 100

// LogEntry is one line in a run's bounded log ring.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Snapshot is a consistent read-only copy of one run kind's state.
type Snapshot struct {
	Kind       RunKind    `json:"kind"`
	Phase      string     `json:"phase"`
	Running    bool       `json:"running"`
	TotalItems int        `json:"total_items"`
	DoneItems  int        `json:"done_items"`
	ErrorCount int        `json:"error_count"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	Logs       []LogEntry `json:"logs"`
}

// runState holds the mutable state for one run kind.
type runState struct {
	mu         sync.Mutex
	phase      string
	running    bool
	totalItems int
	doneItems  int
	errorCount int
	startedAt  time.Time
	logs       []LogEntry // ring buffer, oldest first
}

func (s *runState) addLogLocked(message string) {
	s.logs = append(s.logs, LogEntry{Time: time.Now().UTC(), Message: message})
	if len(s.logs) > LogRingCapacity {
		s.logs = s.logs[len(s.logs)-LogRingCapacity:]
	}
}

// Tracker is the process-wide progress tracker. The zero value is not usable;
// construct with NewTracker.
type Tracker struct {
	states map[RunKind]*runState
}

// NewTracker creates a tracker with empty state for every run kind.
func NewTracker() *Tracker {
	states := make(map[RunKind]*runState, 3)
	for _, kind := range Kinds() {
		states[kind] = &runState{phase: "idle"}
	}
	return &Tracker{states: states}
}

func (t *Tracker) state(kind RunKind) *runState {
	if s, ok := t.states[kind]; ok {
		return s
	}
	// Unknown kinds get the fetch state rather than a nil deref; callers
	// always use the RunKind constants.
	return t.states[RunFetch]
}

// BeginRun resets the run kind's state and marks it running.
// Parameters:
//   - kind: run kind being started.
//   - phase: human-readable phase label.
//   - total: expected item count, 0 when unknown up front.
func (t *Tracker) BeginRun(kind RunKind, phase string, total int) {
	s := t.state(kind)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	s.running = true
	s.totalItems = total
	s.doneItems = 0
	s.errorCount = 0
	s.startedAt = time.Now().UTC()
	s.logs = nil
	s.addLogLocked("run started: " + phase)
}

// SetTotal updates the expected item count once fetching has discovered it.
func (t *Tracker) SetTotal(kind RunKind, total int) {
	s := t.state(kind)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalItems = total
}

// SetPhase updates the current phase label.
func (t *Tracker) SetPhase(kind RunKind, phase string) {
	s := t.state(kind)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	s.addLogLocked("phase: " + phase)
}

// Advance increments the done counter and appends a log line when message is
// non-empty.
func (t *Tracker) Advance(kind RunKind, delta int, message string) {
	s := t.state(kind)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doneItems += delta
	if message != "" {
		s.addLogLocked(message)
	}
}

// Log appends a log line without advancing the counter.
func (t *Tracker) Log(kind RunKind, message string) {
	s := t.state(kind)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLogLocked(message)
}

// Error appends an error log line and increments the error counter.
func (t *Tracker) Error(kind RunKind, message string) {
	s := t.state(kind)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
	s.addLogLocked("error: " + message)
}

// EndRun marks the run finished. The counters and logs stay readable until
// the next BeginRun for the same kind.
func (t *Tracker) EndRun(kind RunKind, message string) {
	s := t.state(kind)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.phase = "idle"
	if message != "" {
		s.addLogLocked(message)
	}
}

// SnapshotOf returns a consistent copy of one run kind's state.
func (t *Tracker) SnapshotOf(kind RunKind) Snapshot {
	s := t.state(kind)
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Kind:       kind,
		Phase:      s.phase,
		Running:    s.running,
		TotalItems: s.totalItems,
		DoneItems:  s.doneItems,
		ErrorCount: s.errorCount,
		Logs:       make([]LogEntry, len(s.logs)),
	}
	copy(snap.Logs, s.logs)
	if !s.startedAt.IsZero() {
		startedAt := s.startedAt
		snap.StartedAt = &startedAt
	}
	return snap
}

// SnapshotAll returns snapshots for every run kind.
func (t *Tracker) SnapshotAll() []Snapshot {
	kinds := Kinds()
	snaps := make([]Snapshot, 0, len(kinds))
	for _, kind := range kinds {
		snaps = append(snaps, t.SnapshotOf(kind))
	}
	return snaps
}
