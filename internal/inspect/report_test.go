package inspect

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dtrlanz/markhor/internal/config"
	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/manifest"
	"github.com/dtrlanz/markhor/internal/queue"
)

func geminiPlugin() *manifest.Plugin {
	return &manifest.Plugin{
		Name:        "gemini-chat",
		Version:     "1.0.0",
		Description: "Chat via the Gemini API",
		Path:        "/opt/plugins/gemini-chat",
		Entrypoint:  "/opt/plugins/gemini-chat/gemini-chat",
		Methods:     []string{"chat", "count_tokens"},
		Env:         []string{"MARKHOR_INSPECT_PROBE_SET", "MARKHOR_INSPECT_PROBE_UNSET"},
	}
}

func TestBuildPluginReportRendersDetail(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Plugins["gemini-chat"] = config.PluginConf{
		Env: map[string]string{"MARKHOR_INSPECT_PROBE_SET": "value"},
	}

	out := BuildPluginReport(cfg, geminiPlugin())

	for _, needle := range []string{
		"Plugin Report",
		"gemini-chat",
		"Chat via the Gemini API",
		"Enabled     : yes",
		"Timeout     : 1m0s",
		"- chat",
		"- count_tokens",
		"MARKHOR_INSPECT_PROBE_SET (set)",
		"MARKHOR_INSPECT_PROBE_UNSET (unset)",
	} {
		if !strings.Contains(out, needle) {
			t.Fatalf("output missing %q:\n%s", needle, out)
		}
	}
}

func TestBuildPluginReportDisabled(t *testing.T) {
	t.Parallel()

	disabled := false
	cfg := config.Defaults()
	cfg.Plugins["gemini-chat"] = config.PluginConf{Enabled: &disabled}

	out := BuildPluginReport(cfg, geminiPlugin())
	if !strings.Contains(out, "Enabled     : no") {
		t.Fatalf("expected disabled marker, got:\n%s", out)
	}
}

func TestBuildJSONPluginReport(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Plugins["gemini-chat"] = config.PluginConf{Timeout: 90 * time.Second}

	out, err := BuildJSONPluginReport(cfg, geminiPlugin())
	if err != nil {
		t.Fatalf("BuildJSONPluginReport: %v", err)
	}

	var report PluginReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("failed to unmarshal JSON output: %v", err)
	}

	if report.Name != "gemini-chat" {
		t.Errorf("name = %s, want gemini-chat", report.Name)
	}
	if report.Timeout != "1m30s" {
		t.Errorf("timeout = %s, want 1m30s", report.Timeout)
	}
	if len(report.Env) != 2 {
		t.Errorf("expected 2 env vars, got %d", len(report.Env))
	}
}

func openJournal(t *testing.T) (*journal.Journal, *queue.Queue) {
	t.Helper()
	j, err := journal.Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j, queue.New(j.DB())
}

func TestBuildExchangeReportSyncCall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, q := openJournal(t)

	id, err := j.Record(ctx, journal.Entry{
		Plugin:   "echo",
		Method:   "echo",
		Status:   "succeeded",
		ExitCode: 0,
		Duration: 152 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	out, err := BuildExchangeReport(ctx, j, q, id)
	if err != nil {
		t.Fatalf("BuildExchangeReport: %v", err)
	}

	for _, needle := range []string{
		"Exchange Report",
		id,
		"Plugin      : echo",
		"Status      : succeeded",
		"Duration    : 152ms",
		"Message     : <none>",
	} {
		if !strings.Contains(out, needle) {
			t.Fatalf("output missing %q:\n%s", needle, out)
		}
	}
	if strings.Contains(out, "Queued Call") {
		t.Fatalf("sync exchange should have no queued call section:\n%s", out)
	}
}

func TestBuildExchangeReportWithQueuedCall(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, q := openJournal(t)

	callID, err := q.Enqueue(ctx, queue.EnqueueRequest{
		Plugin: "gemini-chat",
		Method: "chat",
		Params: json.RawMessage(`{"model":"gemini-2.0-flash-lite"}`),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if err := q.Complete(ctx, callID, queue.StatusSucceeded, []byte(`{"reply":"hello"}`), nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := j.Record(ctx, journal.Entry{
		ID:       callID,
		Plugin:   "gemini-chat",
		Method:   "chat",
		Status:   "succeeded",
		Duration: 1200 * time.Millisecond,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	out, err := BuildExchangeReport(ctx, j, q, callID)
	if err != nil {
		t.Fatalf("BuildExchangeReport: %v", err)
	}

	for _, needle := range []string{
		"Queued Call",
		"gemini-2.0-flash-lite",
		`"reply": "hello"`,
		"Completed At",
	} {
		if !strings.Contains(out, needle) {
			t.Fatalf("output missing %q:\n%s", needle, out)
		}
	}
}

func TestBuildJSONExchangeReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, q := openJournal(t)

	id, err := j.Record(ctx, journal.Entry{
		Plugin:   "echo",
		Method:   "echo",
		Status:   "plugin_error",
		ExitCode: 1,
		Duration: time.Second,
		Message:  "model unavailable",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	out, err := BuildJSONExchangeReport(ctx, j, q, id)
	if err != nil {
		t.Fatalf("BuildJSONExchangeReport: %v", err)
	}

	var report ExchangeReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("failed to unmarshal JSON output: %v", err)
	}

	if report.ExchangeID != id {
		t.Errorf("exchange_id = %s, want %s", report.ExchangeID, id)
	}
	if report.Status != "plugin_error" {
		t.Errorf("status = %s, want plugin_error", report.Status)
	}
	if report.Message != "model unavailable" {
		t.Errorf("message = %s, want model unavailable", report.Message)
	}
	if report.Call != nil {
		t.Error("expected no call detail for a sync exchange")
	}
}

func TestBuildExchangeReportNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j, q := openJournal(t)

	_, err := BuildExchangeReport(ctx, j, q, "no-such-exchange")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got: %v", err)
	}
}
