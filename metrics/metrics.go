package metrics

import (
	"sync"
	"time"
)

// Collector defines the interface for collecting frame metrics
type Collector interface {
	// Gauges - current state
	SetPhotoCount(count int)
	SetHistoryDepth(depth int)

	// Counters - event tracking
	IncRotations(op, result string)
	IncRenders(result string)
	IncDroppedCommands()

	// Histograms - duration tracking
	ObserveRenderDuration(d time.Duration)

	// Query methods for testing and monitoring
	GetPhotoCount() int
	GetHistoryDepth() int
	GetRotations(op, result string) int64
	GetRenders(result string) int64
	GetDroppedCommands() int64
}

// Rotation op and result labels.
const (
	OpAdvance = "advance"
	OpRetreat = "retreat"
	OpJumpTo  = "jump_to"

	ResultOK           = "ok"
	ResultNoCandidates = "no_candidates"
	ResultNotFound     = "not_found"
	ResultRejected     = "rejected"
)

// NoOpCollector is a collector that does nothing
type NoOpCollector struct{}

func NewNoOpCollector() *NoOpCollector {
	return &NoOpCollector{}
}

func (m *NoOpCollector) SetPhotoCount(count int)                 {}
func (m *NoOpCollector) SetHistoryDepth(depth int)               {}
func (m *NoOpCollector) IncRotations(op, result string)          {}
func (m *NoOpCollector) IncRenders(result string)                {}
func (m *NoOpCollector) IncDroppedCommands()                     {}
func (m *NoOpCollector) ObserveRenderDuration(d time.Duration)   {}
func (m *NoOpCollector) GetPhotoCount() int                      { return 0 }
func (m *NoOpCollector) GetHistoryDepth() int                    { return 0 }
func (m *NoOpCollector) GetRotations(op, result string) int64    { return 0 }
func (m *NoOpCollector) GetRenders(result string) int64          { return 0 }
func (m *NoOpCollector) GetDroppedCommands() int64               { return 0 }

// InMemoryCollector is a simple in-memory collector for testing and basic monitoring
type InMemoryCollector struct {
	mu sync.RWMutex

	// Gauges
	photoCount   int
	historyDepth int

	// Counters - using map with composite key
	rotations       map[string]int64 // key: "op:result"
	renders         map[string]int64 // key: result
	droppedCommands int64

	// Histograms - storing observations
	renderDurations []time.Duration
}

func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		rotations: make(map[string]int64),
		renders:   make(map[string]int64),
	}
}

func (m *InMemoryCollector) SetPhotoCount(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photoCount = count
}

func (m *InMemoryCollector) SetHistoryDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyDepth = depth
}

func (m *InMemoryCollector) IncRotations(op, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotations[op+":"+result]++
}

func (m *InMemoryCollector) IncRenders(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renders[result]++
}

func (m *InMemoryCollector) IncDroppedCommands() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.droppedCommands++
}

func (m *InMemoryCollector) ObserveRenderDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renderDurations = append(m.renderDurations, d)
}

func (m *InMemoryCollector) GetPhotoCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.photoCount
}

func (m *InMemoryCollector) GetHistoryDepth() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.historyDepth
}

func (m *InMemoryCollector) GetRotations(op, result string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rotations[op+":"+result]
}

func (m *InMemoryCollector) GetRenders(result string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.renders[result]
}

func (m *InMemoryCollector) GetDroppedCommands() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.droppedCommands
}
