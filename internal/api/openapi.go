package api

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/dtrlanz/markhor/internal/manifest"
)

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.registry.All()))
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document covering every method the
// discovered plugins declare.
func buildOpenAPIDoc(plugins map[string]*manifest.Plugin) map[string]any {
	paths := map[string]any{}

	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for path, item := range buildPluginPaths(name, plugins[name]) {
			paths[path] = item
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Markhor Plugin Host",
			"version": "1.0",
		},
		"paths": paths,
	}
}

// buildPluginPaths builds OpenAPI path items for a single plugin. Each
// declared method gets a synchronous and an asynchronous operation.
func buildPluginPaths(name string, p *manifest.Plugin) map[string]any {
	paths := map[string]any{}

	requestBody := map[string]any{
		"required": false,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"params": map[string]any{"type": "object"},
					},
				},
			},
		},
	}

	for _, method := range p.Methods {
		summary := fmt.Sprintf("%s: %s", name, method)

		paths[fmt.Sprintf("/v1/call/%s/%s", name, method)] = map[string]any{
			"post": map[string]any{
				"operationId": fmt.Sprintf("call__%s__%s", name, method),
				"summary":     summary,
				"tags":        []string{name},
				"requestBody": requestBody,
				"responses": map[string]any{
					"200": map[string]any{"description": "Exchange succeeded"},
					"400": map[string]any{"description": "Bad request"},
					"422": map[string]any{"description": "Plugin reported an error"},
					"504": map[string]any{"description": "Plugin timed out"},
				},
			},
		}

		paths[fmt.Sprintf("/v1/queue/%s/%s", name, method)] = map[string]any{
			"post": map[string]any{
				"operationId": fmt.Sprintf("queue__%s__%s", name, method),
				"summary":     summary + " (async)",
				"tags":        []string{name},
				"requestBody": requestBody,
				"responses": map[string]any{
					"202": map[string]any{"description": "Call queued"},
					"400": map[string]any{"description": "Bad request"},
				},
			},
		}
	}

	return paths
}
