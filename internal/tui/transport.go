package tui

import (
	"context"
	"errors"

	"github.com/dtrlanz/markhor/internal/config"
	"github.com/dtrlanz/markhor/internal/dispatch"
	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/log"
	"github.com/dtrlanz/markhor/internal/manifest"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks github.com/dtrlanz/markhor/internal/tui Transport,HistoryLister

// Transport runs one plugin method call and returns its result.
type Transport interface {
	Call(ctx context.Context, method string, params map[string]any) (map[string]any, error)
}

// HistoryLister reads recorded exchanges for the watch board.
type HistoryLister interface {
	List(ctx context.Context, f journal.Filter) ([]journal.Entry, error)
}

// DispatchTransport drives calls through the spawn-per-call dispatcher and
// journals each exchange, same as the serve path.
type DispatchTransport struct {
	cfg     *config.Config
	plugin  *manifest.Plugin
	caller  *dispatch.Caller
	journal *journal.Journal
}

// NewDispatchTransport builds a transport bound to one plugin. A nil journal
// skips exchange recording.
func NewDispatchTransport(cfg *config.Config, plugin *manifest.Plugin, j *journal.Journal) *DispatchTransport {
	return &DispatchTransport{
		cfg:     cfg,
		plugin:  plugin,
		caller:  dispatch.NewCaller(),
		journal: j,
	}
}

func (t *DispatchTransport) Call(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
	outcome := t.caller.Call(ctx, dispatch.NewInvocation(t.cfg, t.plugin, method, params))

	if t.journal != nil {
		_, err := t.journal.Record(ctx, journal.Entry{
			Plugin:   t.plugin.Name,
			Method:   method,
			Status:   string(outcome.Disposition),
			ExitCode: outcome.ExitCode,
			Duration: outcome.Duration,
			Message:  outcome.Message(),
		})
		if err != nil {
			log.WithComponent("chat").Warn("failed to record exchange", "error", err.Error())
		}
	}

	if !outcome.Succeeded() {
		return nil, errors.New(outcome.Message())
	}
	return outcome.Response.Result, nil
}
