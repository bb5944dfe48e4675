// Package monitor implements the log ingestion surface described in
// SPEC_FULL.md's supplemented features, adapted from blades/monitor in
// the original sources: blades POST their log records here and an
// in-memory aggregate state tree is exposed for polling.
package monitor

import (
	"sync"
	"time"

	"github.com/exorde-labs/swarm-orchestrator/pkg/metrics"
)

// LogRecord is one ingested `POST /logs` body.
type LogRecord struct {
	Host        string    `json:"host"`
	Level       int       `json:"level"` // 1 (debug) .. 4 (critical), per the monitor surface
	Timestamp   time.Time `json:"timestamp"`
	FullMessage string    `json:"full_message"`
	Details     string    `json:"_details"` // opaque JSON-encoded extra fields
}

// logSubscriber is a buffered channel fed by Broker.broadcast; the
// aggregator is the only subscriber today, but the shape leaves room for
// a future fan-out listener without touching ingestion.
type logSubscriber chan LogRecord

// Broker distributes ingested log records to subscribers, the same
// subscribe/broadcast shape the teacher repository used for cluster
// events, repurposed here for log fan-out instead of service/task/node
// lifecycle events.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[logSubscriber]bool
	recordCh    chan LogRecord
	stopCh      chan struct{}
}

func newBroker() *Broker {
	return &Broker{
		subscribers: make(map[logSubscriber]bool),
		recordCh:    make(chan LogRecord, 256),
		stopCh:      make(chan struct{}),
	}
}

func (b *Broker) start() { go b.run() }

func (b *Broker) stop() { close(b.stopCh) }

func (b *Broker) subscribe() logSubscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(logSubscriber, 64)
	b.subscribers[sub] = true
	return sub
}

func (b *Broker) publish(r LogRecord) {
	select {
	case b.recordCh <- r:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case r := <-b.recordCh:
			b.broadcast(r)
		case <-b.stopCh:
			b.mu.Lock()
			for sub := range b.subscribers {
				close(sub)
				delete(b.subscribers, sub)
			}
			b.mu.Unlock()
			return
		}
	}
}

func (b *Broker) broadcast(r LogRecord) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- r:
		default:
		}
	}
}

// HostState is the per-host slice of the aggregated state tree.
type HostState struct {
	LastSeen    time.Time `json:"last_seen"`
	LevelCounts map[int]int `json:"level_counts"`
	RecentLogs  []LogRecord `json:"recent_logs"`
}

// maxRecentPerHost bounds memory use of the aggregated state tree.
const maxRecentPerHost = 50

// Monitor ingests log records and maintains the aggregated state exposed
// by GET /state.
type Monitor struct {
	broker *Broker

	mu    sync.RWMutex
	hosts map[string]*HostState
}

// New builds a Monitor and starts its internal aggregation goroutine.
func New() *Monitor {
	m := &Monitor{
		broker: newBroker(),
		hosts:  make(map[string]*HostState),
	}
	m.broker.start()
	sub := m.broker.subscribe()
	go m.aggregate(sub)
	return m
}

// Close stops the monitor's background goroutines.
func (m *Monitor) Close() {
	m.broker.stop()
}

// Ingest records one log line, per POST /logs.
func (m *Monitor) Ingest(r LogRecord) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	metrics.MonitorLogsIngestedTotal.WithLabelValues(r.Host, levelName(r.Level)).Inc()
	m.broker.publish(r)
}

func (m *Monitor) aggregate(sub logSubscriber) {
	for r := range sub {
		m.mu.Lock()
		state, ok := m.hosts[r.Host]
		if !ok {
			state = &HostState{LevelCounts: make(map[int]int)}
			m.hosts[r.Host] = state
		}
		state.LastSeen = r.Timestamp
		state.LevelCounts[r.Level]++
		state.RecentLogs = append(state.RecentLogs, r)
		if len(state.RecentLogs) > maxRecentPerHost {
			state.RecentLogs = state.RecentLogs[len(state.RecentLogs)-maxRecentPerHost:]
		}
		m.mu.Unlock()
	}
}

// State returns a snapshot of the aggregated state tree, for GET /state.
func (m *Monitor) State() map[string]HostState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]HostState, len(m.hosts))
	for host, s := range m.hosts {
		snapshot[host] = *s
	}
	return snapshot
}

func levelName(level int) string {
	switch level {
	case 1:
		return "debug"
	case 2:
		return "info"
	case 3:
		return "warning"
	case 4:
		return "critical"
	default:
		return "unknown"
	}
}
