package log

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestInit_JSONOutputWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	WithComponent("chooser").Info().Msg("tick complete")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "chooser" {
		t.Fatalf("expected component field, got %+v", entry)
	}
	if entry["message"] != "tick complete" {
		t.Fatalf("expected message field, got %+v", entry)
	}
}

func TestInit_OVHHookStampsFieldsWhenAPIKeySet(t *testing.T) {
	os.Setenv("OVH_LOG_API_KEY", "test-key")
	defer os.Unsetenv("OVH_LOG_API_KEY")

	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf, Host: "10.0.0.3:9300"})

	WithBlade("scraper-1").Warn().Msg("swallowed failure")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON, got %q: %v", buf.String(), err)
	}
	if entry["X-OVH-TOKEN"] != "test-key" {
		t.Fatalf("expected X-OVH-TOKEN stamped, got %+v", entry)
	}
	if entry["version"] != "1.1" {
		t.Fatalf("expected version stamped, got %+v", entry)
	}
	if entry["host"] != "10.0.0.3:9300" {
		t.Fatalf("expected host stamped from Config.Host, got %+v", entry)
	}
}

func TestInit_NoOVHHookWhenAPIKeyUnset(t *testing.T) {
	os.Unsetenv("OVH_LOG_API_KEY")

	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	Info("plain event")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON, got %q: %v", buf.String(), err)
	}
	if _, ok := entry["X-OVH-TOKEN"]; ok {
		t.Fatal("expected no X-OVH-TOKEN field when OVH_LOG_API_KEY is unset")
	}
}
