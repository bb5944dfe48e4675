package monitor

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func waitForHost(t *testing.T, m *Monitor, host string) HostState {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s, ok := m.State()[host]; ok {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("host %q never appeared in aggregated state", host)
	return HostState{}
}

func TestIngest_AggregatesByHost(t *testing.T) {
	m := New()
	defer m.Close()

	m.Ingest(LogRecord{Host: "scraper-1", Level: 2, FullMessage: "started"})
	m.Ingest(LogRecord{Host: "scraper-1", Level: 4, FullMessage: "crashed"})

	state := waitForHost(t, m, "scraper-1")
	if state.LevelCounts[2] != 1 || state.LevelCounts[4] != 1 {
		t.Fatalf("unexpected level counts: %+v", state.LevelCounts)
	}
	if len(state.RecentLogs) != 2 {
		t.Fatalf("expected 2 recent logs, got %d", len(state.RecentLogs))
	}
}

func TestIngest_StampsTimestampWhenMissing(t *testing.T) {
	m := New()
	defer m.Close()

	m.Ingest(LogRecord{Host: "scraper-2", Level: 1, FullMessage: "debug line"})

	state := waitForHost(t, m, "scraper-2")
	if state.RecentLogs[0].Timestamp.IsZero() {
		t.Fatal("expected a non-zero timestamp to be stamped on ingestion")
	}
}

func TestRecentLogsCappedAtMax(t *testing.T) {
	m := New()
	defer m.Close()

	for i := 0; i < maxRecentPerHost+10; i++ {
		m.Ingest(LogRecord{Host: "scraper-3", Level: 2, FullMessage: "line"})
	}

	deadline := time.Now().Add(2 * time.Second)
	var state HostState
	for time.Now().Before(deadline) {
		state = m.State()["scraper-3"]
		if state.LevelCounts[2] == maxRecentPerHost+10 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(state.RecentLogs) != maxRecentPerHost {
		t.Fatalf("expected RecentLogs capped at %d, got %d", maxRecentPerHost, len(state.RecentLogs))
	}
}

func TestHandleLogs_MalformedBodyRejected(t *testing.T) {
	m := New()
	defer m.Close()

	req := httptest.NewRequest(http.MethodPost, "/logs", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleLogs_ValidBodyIngested(t *testing.T) {
	m := New()
	defer m.Close()

	record := LogRecord{Host: "scraper-4", Level: 3, FullMessage: "warn"}
	body, _ := json.Marshal(record)

	req := httptest.NewRequest(http.MethodPost, "/logs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	waitForHost(t, m, "scraper-4")
}

func TestHandleState_ReturnsSnapshot(t *testing.T) {
	m := New()
	defer m.Close()

	m.Ingest(LogRecord{Host: "scraper-5", Level: 2, FullMessage: "hi"})
	waitForHost(t, m, "scraper-5")

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snapshot map[string]HostState
	if err := json.NewDecoder(w.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if _, ok := snapshot["scraper-5"]; !ok {
		t.Fatal("expected scraper-5 in the state snapshot")
	}
}

func TestLevelName(t *testing.T) {
	cases := map[int]string{1: "debug", 2: "info", 3: "warning", 4: "critical", 99: "unknown"}
	for level, want := range cases {
		if got := levelName(level); got != want {
			t.Errorf("levelName(%d) = %q, want %q", level, got, want)
		}
	}
}
