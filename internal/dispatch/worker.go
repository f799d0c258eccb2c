package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dtrlanz/markhor/internal/config"
	"github.com/dtrlanz/markhor/internal/events"
	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/log"
	"github.com/dtrlanz/markhor/internal/manifest"
	"github.com/dtrlanz/markhor/internal/queue"
)

// Worker drains the call queue serially, executing each call through the
// Caller and recording the exchange in the journal.
type Worker struct {
	queue    *queue.Queue
	journal  *journal.Journal
	registry *manifest.Registry
	cfg      *config.Config
	caller   *Caller
	hub      *events.Hub
	logger   *slog.Logger
}

// NewWorker creates a new Worker.
func NewWorker(q *queue.Queue, j *journal.Journal, reg *manifest.Registry, cfg *config.Config, hub *events.Hub) *Worker {
	return &Worker{
		queue:    q,
		journal:  j,
		registry: reg,
		cfg:      cfg,
		caller:   NewCaller(),
		hub:      hub,
		logger:   log.WithComponent("worker"),
	}
}

// Start runs the drain loop. Calls execute one at a time in queue order.
// This is a blocking call that runs until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker loop started")
	defer w.logger.Info("worker loop stopped")

	ticker := time.NewTicker(1 * time.Second) // Poll queue every second
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				w.logger.Error("failed to process call", "error", err)
				// Keep the loop alive - individual call errors are not fatal
			}
		}
	}
}

// drain executes queued calls until the queue is empty.
func (w *Worker) drain(ctx context.Context) error {
	for {
		done, err := w.processNextCall(ctx)
		if err != nil || done {
			return err
		}
	}
}

// processNextCall claims the next queued call and executes it. It returns
// done=true when the queue is empty.
func (w *Worker) processNextCall(ctx context.Context) (bool, error) {
	call, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if call == nil {
		return true, nil
	}

	w.executeCall(ctx, call)
	return false, nil
}

// executeCall runs a single queued call end to end: resolve the plugin,
// spawn the exchange, persist the result, and notify live observers.
func (w *Worker) executeCall(ctx context.Context, call *queue.Call) {
	callLogger := log.WithExchange(call.ID).With("plugin", call.Plugin, "method", call.Method)
	callLogger.Info("executing call")

	w.hub.Publish(events.TypeCallStarted, callEvent(call.ID, call.Plugin, call.Method, string(queue.StatusRunning)))

	plug, ok := w.registry.Get(call.Plugin)
	if !ok {
		w.finish(ctx, call, callLogger, rejected(fmt.Errorf("plugin %q not found", call.Plugin)))
		return
	}
	if !w.cfg.PluginEnabled(call.Plugin) {
		w.finish(ctx, call, callLogger, rejected(fmt.Errorf("plugin %q is disabled", call.Plugin)))
		return
	}

	var params map[string]any
	if len(call.Params) > 0 {
		if err := json.Unmarshal(call.Params, &params); err != nil {
			w.finish(ctx, call, callLogger, rejected(fmt.Errorf("invalid params: %v", err)))
			return
		}
	}

	outcome := w.caller.Call(ctx, NewInvocation(w.cfg, plug, call.Method, params))
	w.finish(ctx, call, callLogger, outcome)
}

// rejected builds the outcome for a call that never reached a subprocess.
func rejected(err error) Outcome {
	return Outcome{Disposition: DispositionSpawnFailed, ExitCode: -1, Err: err}
}

// finish persists the outcome to the queue and journal and publishes the
// terminal event.
func (w *Worker) finish(ctx context.Context, call *queue.Call, logger *slog.Logger, outcome Outcome) {
	status := queueStatus(outcome.Disposition)

	var result []byte
	if outcome.Succeeded() && outcome.Response != nil {
		if data, err := json.Marshal(outcome.Response.Result); err == nil {
			result = data
		}
	}

	var errMsg *string
	if msg := outcome.Message(); msg != "" {
		errMsg = &msg
	}

	if err := w.queue.Complete(ctx, call.ID, status, result, errMsg); err != nil && !errors.Is(err, queue.ErrCallNotFound) {
		logger.Error("failed to complete call", "error", err)
	}

	if _, err := w.journal.Record(ctx, journal.Entry{
		ID:       call.ID,
		Plugin:   call.Plugin,
		Method:   call.Method,
		Status:   string(outcome.Disposition),
		ExitCode: outcome.ExitCode,
		Duration: outcome.Duration,
		Message:  outcome.Message(),
	}); err != nil {
		logger.Error("failed to record exchange", "error", err)
	}

	if outcome.Succeeded() {
		logger.Info("call completed", "status", status, "duration", outcome.Duration)
	} else {
		logger.Warn("call failed", "status", status, "message", outcome.Message())
		if outcome.Stderr != "" {
			logger.Debug("plugin stderr", "stderr", outcome.Stderr)
		}
	}

	w.hub.Publish(events.TypeCallFinished, callEvent(call.ID, call.Plugin, call.Method, string(status)))
}

// queueStatus maps an exchange disposition onto the queue lifecycle.
func queueStatus(d Disposition) queue.Status {
	switch d {
	case DispositionSucceeded:
		return queue.StatusSucceeded
	case DispositionTimedOut:
		return queue.StatusTimedOut
	default:
		return queue.StatusFailed
	}
}

func callEvent(id, plugin, method, status string) map[string]any {
	return map[string]any{
		"id":     id,
		"plugin": plugin,
		"method": method,
		"status": status,
	}
}
