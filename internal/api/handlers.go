package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dtrlanz/markhor/internal/dispatch"
	"github.com/dtrlanz/markhor/internal/events"
	"github.com/dtrlanz/markhor/internal/journal"
	"github.com/dtrlanz/markhor/internal/manifest"
	"github.com/dtrlanz/markhor/internal/queue"
)

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.queue.Depth(r.Context())
	if err != nil {
		s.logger.Error("failed to compute queue depth", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute queue depth")
		return
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		QueueDepth:    depth,
		PluginsLoaded: len(s.registry.All()),
	})
}

// handleCall handles POST /v1/call/{plugin}/{method}.
// The plugin runs in-request; the response reports the classified outcome.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	pluginName := chi.URLParam(r, "plugin")
	method := chi.URLParam(r, "method")

	plug, ok := s.lookupPlugin(w, pluginName)
	if !ok {
		return
	}

	params, err := decodeParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("synchronous call via API", "plugin", pluginName, "method", method)

	outcome := s.caller.Call(r.Context(), dispatch.NewInvocation(s.cfg, plug, method, params))

	exchangeID, err := s.journal.Record(r.Context(), journal.Entry{
		Plugin:   pluginName,
		Method:   method,
		Status:   string(outcome.Disposition),
		ExitCode: outcome.ExitCode,
		Duration: outcome.Duration,
		Message:  outcome.Message(),
	})
	if err != nil {
		s.logger.Error("failed to record exchange", "error", err)
	}

	resp := CallResponse{
		ExchangeID: exchangeID,
		Status:     string(outcome.Disposition),
		ExitCode:   outcome.ExitCode,
		DurationMs: outcome.Duration.Milliseconds(),
	}

	if outcome.Succeeded() {
		resp.Result = outcome.Response.Result
		respondJSON(w, http.StatusOK, resp)
		return
	}

	resp.Message = outcome.Message()
	respondJSON(w, dispositionStatusCode(outcome.Disposition), resp)
}

// handleEnqueue handles POST /v1/queue/{plugin}/{method}.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	pluginName := chi.URLParam(r, "plugin")
	method := chi.URLParam(r, "method")

	if _, ok := s.lookupPlugin(w, pluginName); !ok {
		return
	}

	var req CallRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if len(req.Params) > 0 {
		var params map[string]any
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.writeError(w, http.StatusBadRequest, "params must be a JSON object")
			return
		}
	}

	callID, err := s.queue.Enqueue(r.Context(), queue.EnqueueRequest{
		Plugin: pluginName,
		Method: method,
		Params: req.Params,
	})
	if err != nil {
		s.logger.Error("failed to enqueue call", "plugin", pluginName, "method", method, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to enqueue call")
		return
	}

	s.events.Publish(events.TypeCallQueued, map[string]any{
		"id":     callID,
		"plugin": pluginName,
		"method": method,
		"status": string(queue.StatusQueued),
	})

	s.logger.Info("call enqueued via API", "call_id", callID, "plugin", pluginName, "method", method)

	respondJSON(w, http.StatusAccepted, QueuedResponse{
		CallID: callID,
		Status: string(queue.StatusQueued),
		Plugin: pluginName,
		Method: method,
	})
}

// handleGetCall handles GET /v1/queue/{callID}.
func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	call, err := s.queue.Get(r.Context(), callID)
	if err != nil {
		if errors.Is(err, queue.ErrCallNotFound) {
			s.writeError(w, http.StatusNotFound, "call not found")
			return
		}
		s.logger.Error("failed to retrieve call", "call_id", callID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve call")
		return
	}

	respondJSON(w, http.StatusOK, CallStatusResponse{
		CallID:      call.ID,
		Plugin:      call.Plugin,
		Method:      call.Method,
		Status:      string(call.Status),
		Result:      call.Result,
		Error:       call.Error,
		CreatedAt:   call.CreatedAt,
		StartedAt:   call.StartedAt,
		CompletedAt: call.CompletedAt,
	})
}

// handleHistory handles GET /v1/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter := journal.Filter{
		Plugin: r.URL.Query().Get("plugin"),
		Status: r.URL.Query().Get("status"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}

	entries, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	resp := HistoryResponse{Exchanges: make([]ExchangeData, 0, len(entries))}
	for _, e := range entries {
		resp.Exchanges = append(resp.Exchanges, ExchangeData{
			ID:         e.ID,
			Plugin:     e.Plugin,
			Method:     e.Method,
			Status:     e.Status,
			ExitCode:   e.ExitCode,
			DurationMs: e.Duration.Milliseconds(),
			Message:    e.Message,
			CreatedAt:  e.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleListPlugins handles GET /v1/plugins.
func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	plugins := s.registry.All()
	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := PluginListResponse{Plugins: make([]PluginSummary, 0, len(names))}
	for _, name := range names {
		p := plugins[name]
		resp.Plugins = append(resp.Plugins, PluginSummary{
			Name:        p.Name,
			Version:     p.Version,
			Description: p.Description,
			Methods:     append([]string(nil), p.Methods...),
			Enabled:     s.cfg.PluginEnabled(name),
		})
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleGetPlugin handles GET /v1/plugins/{plugin}.
func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	pluginName := chi.URLParam(r, "plugin")

	p, ok := s.registry.Get(pluginName)
	if !ok {
		s.writeError(w, http.StatusNotFound, "plugin not found")
		return
	}

	respondJSON(w, http.StatusOK, PluginDetailResponse{
		Name:        p.Name,
		Version:     p.Version,
		Description: p.Description,
		Path:        p.Path,
		Entrypoint:  p.Entrypoint,
		Methods:     append([]string(nil), p.Methods...),
		Env:         append([]string(nil), p.Env...),
		Timeout:     s.cfg.CallTimeout(p.Name, p.Timeout).String(),
		Enabled:     s.cfg.PluginEnabled(pluginName),
	})
}

// lookupPlugin resolves a plugin for call endpoints, writing the error
// response itself when the plugin is unknown or disabled.
func (s *Server) lookupPlugin(w http.ResponseWriter, name string) (*manifest.Plugin, bool) {
	plug, ok := s.registry.Get(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "plugin not found")
		return nil, false
	}
	if !s.cfg.PluginEnabled(name) {
		s.writeError(w, http.StatusForbidden, "plugin is disabled")
		return nil, false
	}
	return plug, true
}

// decodeParams parses the optional request body into call params.
func decodeParams(r *http.Request) (map[string]any, error) {
	if r.ContentLength == 0 {
		return nil, nil
	}

	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}
	if len(req.Params) == 0 {
		return nil, nil
	}

	var params map[string]any
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, fmt.Errorf("params must be a JSON object")
	}
	return params, nil
}

// dispositionStatusCode maps a failed exchange onto an HTTP status.
func dispositionStatusCode(d dispatch.Disposition) int {
	switch d {
	case dispatch.DispositionPluginError:
		return http.StatusUnprocessableEntity
	case dispatch.DispositionTimedOut:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
