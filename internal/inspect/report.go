// Package inspect renders detail reports for plugins and recorded exchanges,
// in both terminal and JSON form.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dtrlanz/markhor/internal/config"
	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/manifest"
	"github.com/dtrlanz/markhor/internal/queue"
)

// PluginReport is the structured JSON representation of a plugin detail view.
type PluginReport struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
	Path        string   `json:"path"`
	Entrypoint  string   `json:"entrypoint"`
	Timeout     string   `json:"timeout"`
	Methods     []string `json:"methods"`
	Env         []EnvVar `json:"env,omitempty"`
}

// EnvVar reports a declared environment variable and whether a value is
// available to pass through.
type EnvVar struct {
	Name string `json:"name"`
	Set  bool   `json:"set"`
}

// ExchangeReport is the structured JSON representation of one recorded
// exchange, enriched with the queued call when the exchange came through the
// queue.
type ExchangeReport struct {
	ExchangeID string      `json:"exchange_id"`
	Plugin     string      `json:"plugin"`
	Method     string      `json:"method"`
	Status     string      `json:"status"`
	ExitCode   int         `json:"exit_code"`
	Duration   string      `json:"duration"`
	Message    string      `json:"message,omitempty"`
	CreatedAt  string      `json:"created_at"`
	Call       *CallDetail `json:"call,omitempty"`
}

// CallDetail carries the queue-side view of an exchange.
type CallDetail struct {
	Status      string          `json:"status"`
	Params      json.RawMessage `json:"params"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   string          `json:"created_at"`
	StartedAt   string          `json:"started_at,omitempty"`
	CompletedAt string          `json:"completed_at,omitempty"`
}

// BuildPluginReport renders a terminal-friendly plugin detail view.
func BuildPluginReport(cfg *config.Config, p *manifest.Plugin) string {
	report := gatherPluginData(cfg, p)

	var out strings.Builder
	fmt.Fprintf(&out, "Plugin Report\n")
	fmt.Fprintf(&out, "Name        : %s\n", report.Name)
	fmt.Fprintf(&out, "Version     : %s\n", renderUnset(report.Version, "<unset>"))
	fmt.Fprintf(&out, "Description : %s\n", renderUnset(report.Description, "<none>"))
	fmt.Fprintf(&out, "Enabled     : %s\n", yesNo(report.Enabled))
	fmt.Fprintf(&out, "Path        : %s\n", report.Path)
	fmt.Fprintf(&out, "Entrypoint  : %s\n", report.Entrypoint)
	fmt.Fprintf(&out, "Timeout     : %s\n", report.Timeout)

	fmt.Fprintf(&out, "Methods     :\n")
	for _, m := range report.Methods {
		fmt.Fprintf(&out, "  - %s\n", m)
	}

	if len(report.Env) == 0 {
		fmt.Fprintf(&out, "Env         : <none>\n")
	} else {
		fmt.Fprintf(&out, "Env         :\n")
		for _, e := range report.Env {
			if e.Set {
				fmt.Fprintf(&out, "  - %s (set)\n", e.Name)
			} else {
				fmt.Fprintf(&out, "  - %s (unset)\n", e.Name)
			}
		}
	}

	return out.String()
}

// BuildJSONPluginReport returns the machine-readable plugin detail view.
func BuildJSONPluginReport(cfg *config.Config, p *manifest.Plugin) (string, error) {
	report := gatherPluginData(cfg, p)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal plugin report: %w", err)
	}
	return string(data), nil
}

func gatherPluginData(cfg *config.Config, p *manifest.Plugin) *PluginReport {
	report := &PluginReport{
		Name:        p.Name,
		Version:     p.Version,
		Description: p.Description,
		Enabled:     cfg.PluginEnabled(p.Name),
		Path:        p.Path,
		Entrypoint:  p.Entrypoint,
		Timeout:     cfg.CallTimeout(p.Name, p.Timeout).String(),
		Methods:     p.Methods,
	}

	configured := cfg.Plugins[p.Name].Env
	for _, name := range p.Env {
		_, inConfig := configured[name]
		report.Env = append(report.Env, EnvVar{
			Name: name,
			Set:  inConfig || os.Getenv(name) != "",
		})
	}

	return report
}

// BuildExchangeReport renders a terminal-friendly view of one exchange. When
// the exchange was driven by the queue, the call's params and result are
// included.
func BuildExchangeReport(ctx context.Context, j *journal.Journal, q *queue.Queue, exchangeID string) (string, error) {
	report, err := gatherExchangeData(ctx, j, q, exchangeID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Exchange Report\n")
	fmt.Fprintf(&out, "Exchange ID : %s\n", report.ExchangeID)
	fmt.Fprintf(&out, "Plugin      : %s\n", report.Plugin)
	fmt.Fprintf(&out, "Method      : %s\n", report.Method)
	fmt.Fprintf(&out, "Status      : %s\n", report.Status)
	fmt.Fprintf(&out, "Exit Code   : %d\n", report.ExitCode)
	fmt.Fprintf(&out, "Duration    : %s\n", report.Duration)
	fmt.Fprintf(&out, "Created At  : %s\n", report.CreatedAt)
	fmt.Fprintf(&out, "Message     : %s\n", renderUnset(report.Message, "<none>"))

	if report.Call != nil {
		fmt.Fprintf(&out, "\nQueued Call\n")
		fmt.Fprintf(&out, "Status       : %s\n", report.Call.Status)
		fmt.Fprintf(&out, "Created At   : %s\n", report.Call.CreatedAt)
		fmt.Fprintf(&out, "Started At   : %s\n", renderUnset(report.Call.StartedAt, "<never>"))
		fmt.Fprintf(&out, "Completed At : %s\n", renderUnset(report.Call.CompletedAt, "<never>"))

		fmt.Fprintf(&out, "Params       :\n")
		writeIndentedJSON(&out, report.Call.Params)
		if len(report.Call.Result) > 0 {
			fmt.Fprintf(&out, "Result       :\n")
			writeIndentedJSON(&out, report.Call.Result)
		}
		if report.Call.Error != "" {
			fmt.Fprintf(&out, "Error        : %s\n", report.Call.Error)
		}
	}

	return out.String(), nil
}

// BuildJSONExchangeReport returns the machine-readable exchange view.
func BuildJSONExchangeReport(ctx context.Context, j *journal.Journal, q *queue.Queue, exchangeID string) (string, error) {
	report, err := gatherExchangeData(ctx, j, q, exchangeID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal exchange report: %w", err)
	}
	return string(data), nil
}

func gatherExchangeData(ctx context.Context, j *journal.Journal, q *queue.Queue, exchangeID string) (*ExchangeReport, error) {
	if strings.TrimSpace(exchangeID) == "" {
		return nil, fmt.Errorf("exchange id is required")
	}

	entry, err := j.Get(ctx, exchangeID)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			return nil, fmt.Errorf("exchange %q not found", exchangeID)
		}
		return nil, fmt.Errorf("load exchange %q: %w", exchangeID, err)
	}

	report := &ExchangeReport{
		ExchangeID: entry.ID,
		Plugin:     entry.Plugin,
		Method:     entry.Method,
		Status:     entry.Status,
		ExitCode:   entry.ExitCode,
		Duration:   entry.Duration.String(),
		Message:    entry.Message,
		CreatedAt:  entry.CreatedAt.UTC().Format(time.RFC3339),
	}

	// Worker-driven exchanges share their ID with the queue row.
	if q != nil {
		call, err := q.Get(ctx, exchangeID)
		if err != nil && !errors.Is(err, queue.ErrCallNotFound) {
			return nil, fmt.Errorf("load call %q: %w", exchangeID, err)
		}
		if call != nil {
			report.Call = callDetail(call)
		}
	}

	return report, nil
}

func callDetail(call *queue.Call) *CallDetail {
	d := &CallDetail{
		Status:    string(call.Status),
		Params:    call.Params,
		Result:    call.Result,
		CreatedAt: call.CreatedAt.UTC().Format(time.RFC3339),
	}
	if call.StartedAt != nil {
		d.StartedAt = call.StartedAt.UTC().Format(time.RFC3339)
	}
	if call.CompletedAt != nil {
		d.CompletedAt = call.CompletedAt.UTC().Format(time.RFC3339)
	}
	if call.Error != nil {
		d.Error = *call.Error
	}
	return d
}

func writeIndentedJSON(out *strings.Builder, raw json.RawMessage) {
	pretty := prettyJSON(raw)
	for _, line := range strings.Split(strings.TrimSpace(pretty), "\n") {
		fmt.Fprintf(out, "  %s\n", line)
	}
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
