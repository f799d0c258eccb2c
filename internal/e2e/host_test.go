package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dtrlanz/markhor/internal/config"
	"github.com/dtrlanz/markhor/internal/dispatch"
	"github.com/dtrlanz/markhor/internal/events"
	"github.com/dtrlanz/markhor/internal/inspect"
	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/manifest"
	"github.com/dtrlanz/markhor/internal/queue"
)

// TestEndToEndQueuedCalls drives the whole serve path short of HTTP: calls
// land in the queue, the worker spawns real script plugins, outcomes are
// written back to the queue, journaled, published on the event hub, and
// finally rendered by the exchange inspector.
func TestEndToEndQueuedCalls(t *testing.T) {
	// 1. Setup Environment
	tmpDir := t.TempDir()
	pluginsDir := filepath.Join(tmpDir, "plugins")
	if err := os.MkdirAll(pluginsDir, 0755); err != nil {
		t.Fatalf("failed to create plugins dir: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	j, err := journal.Open(ctx, filepath.Join(tmpDir, "data", "journal.db"))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()

	q := queue.New(j.DB())

	// 2. Create Real Script Plugins
	// greeter: proves params travel host -> plugin and results travel back.
	greeterScript := `#!/bin/sh
input=$(cat)
name=$(echo "$input" | sed -n 's/.*"name":"\([^"]*\)".*/\1/p')
echo "{\"status\":\"success\",\"result\":{\"greeting\":\"hello $name\"}}"
`
	createPlugin(t, pluginsDir, "greeter", greeterScript)

	// flaky: structured error plus non-zero exit, the plugin-error contract.
	flakyScript := `#!/bin/sh
read input
echo '{"status":"error","message":"backend unavailable"}'
exit 1
`
	createPlugin(t, pluginsDir, "flaky", flakyScript)

	// sleeper: outlives its per-plugin timeout.
	sleeperScript := `#!/bin/sh
read input
sleep 5
echo '{"status":"success","result":{}}'
`
	createPlugin(t, pluginsDir, "sleeper", sleeperScript)

	// 3. Discover and Wire
	registry, err := manifest.Discover(pluginsDir, nil)
	if err != nil {
		t.Fatalf("failed to discover plugins: %v", err)
	}

	cfg := config.Defaults()
	cfg.PluginsDir = pluginsDir
	cfg.Plugins = map[string]config.PluginConf{
		"sleeper": {Timeout: 300 * time.Millisecond},
	}

	hub := events.NewHub(16)
	eventCh, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	worker := dispatch.NewWorker(q, j, registry, cfg, hub)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go worker.Start(workerCtx)

	// 4. Enqueue Calls
	greetID, err := q.Enqueue(ctx, queue.EnqueueRequest{
		Plugin: "greeter", Method: "echo", Params: json.RawMessage(`{"name":"ada"}`),
	})
	if err != nil {
		t.Fatalf("failed to enqueue greeter: %v", err)
	}
	flakyID, err := q.Enqueue(ctx, queue.EnqueueRequest{Plugin: "flaky", Method: "echo"})
	if err != nil {
		t.Fatalf("failed to enqueue flaky: %v", err)
	}
	sleeperID, err := q.Enqueue(ctx, queue.EnqueueRequest{Plugin: "sleeper", Method: "echo"})
	if err != nil {
		t.Fatalf("failed to enqueue sleeper: %v", err)
	}
	ghostID, err := q.Enqueue(ctx, queue.EnqueueRequest{Plugin: "ghost", Method: "echo"})
	if err != nil {
		t.Fatalf("failed to enqueue ghost: %v", err)
	}

	// 5. Wait for the worker to finish all four
	finished := map[string]bool{}
	for len(finished) < 4 {
		select {
		case ev := <-eventCh:
			if ev.Type != events.TypeCallFinished {
				continue
			}
			var data struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				t.Fatalf("bad event payload: %v", err)
			}
			finished[data.ID] = true
		case <-ctx.Done():
			t.Fatalf("timed out waiting for calls to finish (%d done)", len(finished))
		}
	}
	stopWorker()

	// 6. Assert Queue Outcomes
	greet, err := q.Get(ctx, greetID)
	if err != nil {
		t.Fatalf("failed to get greeter call: %v", err)
	}
	if greet.Status != queue.StatusSucceeded {
		t.Fatalf("greeter call = %s (error: %v)", greet.Status, greet.Error)
	}
	var result map[string]any
	if err := json.Unmarshal(greet.Result, &result); err != nil {
		t.Fatalf("greeter result is not JSON: %v", err)
	}
	if result["greeting"] != "hello ada" {
		t.Errorf("params did not round-trip, result: %v", result)
	}

	flakyCall, _ := q.Get(ctx, flakyID)
	if flakyCall.Status != queue.StatusFailed {
		t.Errorf("flaky call = %s, want failed", flakyCall.Status)
	}
	if flakyCall.Error == nil || *flakyCall.Error != "backend unavailable" {
		t.Errorf("flaky error = %v, want plugin message", flakyCall.Error)
	}

	sleeperCall, _ := q.Get(ctx, sleeperID)
	if sleeperCall.Status != queue.StatusTimedOut {
		t.Errorf("sleeper call = %s, want timed_out", sleeperCall.Status)
	}

	ghostCall, _ := q.Get(ctx, ghostID)
	if ghostCall.Status != queue.StatusFailed {
		t.Errorf("ghost call = %s, want failed", ghostCall.Status)
	}
	if ghostCall.Error == nil || !strings.Contains(*ghostCall.Error, "not found") {
		t.Errorf("ghost error = %v, want not-found message", ghostCall.Error)
	}

	// 7. Assert Journal Rows
	var succeeded int
	j.DB().QueryRow("SELECT COUNT(*) FROM exchanges WHERE status = 'succeeded'").Scan(&succeeded)
	if succeeded != 1 {
		t.Errorf("expected 1 succeeded exchange, got %d", succeeded)
	}

	var timedOut string
	j.DB().QueryRow("SELECT status FROM exchanges WHERE id = ?", sleeperID).Scan(&timedOut)
	if timedOut != "timed_out" {
		t.Errorf("sleeper journal status = %q", timedOut)
	}

	entries, err := j.List(ctx, journal.Filter{Limit: 10})
	if err != nil {
		t.Fatalf("failed to list journal: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("expected 4 journal entries, got %d", len(entries))
	}

	// 8. The inspector stitches queue and journal together
	report, err := inspect.BuildExchangeReport(ctx, j, q, greetID)
	if err != nil {
		t.Fatalf("failed to build exchange report: %v", err)
	}
	for _, want := range []string{"greeter", "succeeded", "hello ada"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

// TestEndToEndDisabledPlugin covers the config gate: the worker refuses
// disabled plugins without spawning them.
func TestEndToEndDisabledPlugin(t *testing.T) {
	tmpDir := t.TempDir()
	pluginsDir := filepath.Join(tmpDir, "plugins")
	if err := os.MkdirAll(pluginsDir, 0755); err != nil {
		t.Fatalf("failed to create plugins dir: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// A plugin that would leave a marker file if it ever ran.
	createPlugin(t, pluginsDir, "muted", `#!/bin/sh
read input
touch ran.marker
echo '{"status":"success","result":{}}'
`)

	j, err := journal.Open(ctx, filepath.Join(tmpDir, "data", "journal.db"))
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	defer j.Close()
	q := queue.New(j.DB())

	registry, err := manifest.Discover(pluginsDir, nil)
	if err != nil {
		t.Fatalf("failed to discover plugins: %v", err)
	}

	disabled := false
	cfg := config.Defaults()
	cfg.PluginsDir = pluginsDir
	cfg.Plugins = map[string]config.PluginConf{"muted": {Enabled: &disabled}}

	hub := events.NewHub(16)
	eventCh, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go dispatch.NewWorker(q, j, registry, cfg, hub).Start(workerCtx)

	id, err := q.Enqueue(ctx, queue.EnqueueRequest{Plugin: "muted", Method: "echo"})
	if err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

waitLoop:
	for {
		select {
		case ev := <-eventCh:
			if ev.Type == events.TypeCallFinished {
				break waitLoop
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for call to finish")
		}
	}
	stopWorker()

	call, err := q.Get(ctx, id)
	if err != nil {
		t.Fatalf("failed to get call: %v", err)
	}
	if call.Status != queue.StatusFailed {
		t.Errorf("call = %s, want failed", call.Status)
	}
	if call.Error == nil || !strings.Contains(*call.Error, "disabled") {
		t.Errorf("error = %v, want disabled message", call.Error)
	}
	if _, err := os.Stat(filepath.Join(pluginsDir, "muted", "ran.marker")); !os.IsNotExist(err) {
		t.Error("disabled plugin was spawned")
	}
}

func createPlugin(t *testing.T, dir, name, script string) {
	t.Helper()

	pDir := filepath.Join(dir, name)
	if err := os.MkdirAll(pDir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}
	doc := fmt.Sprintf("name: %s\nversion: 1.0.0\nentrypoint: run.sh\nmethods: [echo]\n", name)
	if err := os.WriteFile(filepath.Join(pDir, "manifest.yaml"), []byte(doc), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pDir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
}
