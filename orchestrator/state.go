package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// State is a stage of the run state machine
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateFiltering  State = "filtering"
	StateRanking    State = "ranking"
	StateGenerating State = "generating"
	StateComposing  State = "composing"
	StatePublishing State = "publishing"
	StateComplete   State = "complete"
	StateError      State = "error"
)

const maxLogs = 50

// LogEntry is a single log line with timestamp
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Counts summarizes what the current run has produced so far
type Counts struct {
	Fetched        int `json:"fetched"`
	SourceErrors   int `json:"source_errors"`
	Candidates     int `json:"candidates"`
	Selected       int `json:"selected"`
	Fallbacks      int `json:"fallbacks"`
	Threads        int `json:"threads"`
	PublishedPosts int `json:"published_posts"`
}

// StatusResponse is the JSON response for GET /api/status
type StatusResponse struct {
	State      State      `json:"state"`
	RunDate    string     `json:"run_date,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Counts     Counts     `json:"counts"`
	Degraded   bool       `json:"degraded"`
	Logs       []LogEntry `json:"logs"`
	Error      string     `json:"error,omitempty"`
}

// Manager holds the orchestrator status with thread-safe access
type Manager struct {
	mu sync.RWMutex

	currentState State
	runDate      string
	startedAt    *time.Time
	finishedAt   *time.Time
	counts       Counts
	degraded     bool

	// ring buffer
	logs    []LogEntry
	lastErr error

	now func() time.Time
}

// NewManager creates an idle manager
func NewManager() *Manager {
	return &Manager{
		currentState: StateIdle,
		logs:         make([]LogEntry, 0, maxLogs),
		now:          time.Now,
	}
}

// busy reports whether a run is in progress (must hold lock)
func (m *Manager) busy() bool {
	switch m.currentState {
	case StateIdle, StateComplete, StateError:
		return false
	}
	return true
}

// Busy reports whether a run is in progress
func (m *Manager) Busy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.busy()
}

// TryStart moves an idle manager into the fetching state for runDate. It
// returns false if another run is in progress.
func (m *Manager) TryStart(runDate string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy() {
		return false
	}
	now := m.now()
	m.currentState = StateFetching
	m.runDate = runDate
	m.startedAt = &now
	m.finishedAt = nil
	m.counts = Counts{}
	m.degraded = false
	m.lastErr = nil
	m.appendLog(fmt.Sprintf("Run started for %s", displayDate(runDate)))
	return true
}

// AddLog adds a log entry
func (m *Manager) AddLog(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLog(message)
}

// appendLog must hold lock
func (m *Manager) appendLog(message string) {
	m.logs = append(m.logs, LogEntry{Timestamp: m.now(), Message: message})
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// SetState sets the current stage
func (m *Manager) SetState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentState = state
}

// GetState gets the current stage
func (m *Manager) GetState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentState
}

// UpdateCounts applies fn to the run counters
func (m *Manager) UpdateCounts(fn func(c *Counts)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.counts)
}

// MarkDegraded flags the current run as degraded
func (m *Manager) MarkDegraded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded = true
}

// SetComplete finishes the run successfully
func (m *Manager) SetComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.currentState = StateComplete
	m.finishedAt = &now
	m.appendLog("Run complete")
}

// SetError finishes the run with err
func (m *Manager) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.currentState = StateError
	m.finishedAt = &now
	m.lastErr = err
	m.appendLog(fmt.Sprintf("Error: %v", err))
}

// GetStatus returns a snapshot of the current status
func (m *Manager) GetStatus() StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()

	resp := StatusResponse{
		State:      m.currentState,
		RunDate:    m.runDate,
		StartedAt:  m.startedAt,
		FinishedAt: m.finishedAt,
		Counts:     m.counts,
		Degraded:   m.degraded,
		Logs:       append([]LogEntry{}, m.logs...),
	}
	if m.lastErr != nil {
		resp.Error = m.lastErr.Error()
	}
	return resp
}

func displayDate(runDate string) string {
	if runDate == "" {
		return "today"
	}
	return runDate
}
