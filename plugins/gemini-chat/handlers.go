package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dtrlanz/markhor/plugin"
)

// geminiPlugin binds the method handlers to one client and the settings they
// were built from.
type geminiPlugin struct {
	settings settings
	client   *geminiClient
	logger   *slog.Logger
}

func (p *geminiPlugin) handleChat(params plugin.Params) (any, error) {
	if p.settings.APIKey == "" {
		return nil, errors.New("API key not configured.")
	}

	messages, ok := params["messages"].([]any)
	if !ok || len(messages) == 0 {
		return nil, errors.New("Invalid 'messages' structure or last message not from user.")
	}
	last, ok := messages[len(messages)-1].(map[string]any)
	if !ok || !isUserRole(last["role"]) {
		return nil, errors.New("Invalid 'messages' structure or last message not from user.")
	}
	lastContent, _ := last["content"].(string)
	if strings.TrimSpace(lastContent) == "" {
		return nil, errors.New("Last message content is empty.")
	}

	model, _ := params["model"].(string)
	if model == "" {
		return nil, errors.New("Missing 'model' parameter for chat.")
	}

	genCfg, err := parseGenerationConfig(params["config"])
	if err != nil {
		return nil, err
	}

	contents := p.convertHistory(messages[:len(messages)-1])
	contents = append(contents, content{Role: "user", Parts: []part{{Text: lastContent}}})

	p.logger.Info("starting chat", "model", model, "history_len", len(contents)-1)
	resp, err := p.client.generateContent(model, generateRequest{
		Contents:         contents,
		GenerationConfig: genCfg,
	})
	if err != nil {
		return nil, err
	}

	text, err := candidateText(resp)
	if err != nil {
		return nil, err
	}

	p.logger.Info("received chat response", "content_len", len(text))
	return map[string]any{
		"response": map[string]any{"role": "model", "content": text},
		"usage":    usageResult(resp.UsageMetadata),
	}, nil
}

func (p *geminiPlugin) handleCountTokens(params plugin.Params) (any, error) {
	if p.settings.APIKey == "" {
		return nil, errors.New("API key not configured.")
	}

	text, _ := params["text"].(string)
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("Missing 'text' parameter for count_tokens.")
	}

	model, _ := params["model"].(string)
	if model == "" {
		model = p.settings.Model
	}

	p.logger.Info("counting tokens", "model", model, "text_len", len(text))
	n, err := p.client.countTokens(model, text)
	if err != nil {
		return nil, err
	}
	return map[string]any{"token_count": n}, nil
}

// convertHistory maps prior turns onto the wire roles. The API knows only
// user and model, so anything that is not user becomes model. Turns missing
// a role or content are skipped with a warning.
func (p *geminiPlugin) convertHistory(messages []any) []content {
	history := make([]content, 0, len(messages)+1)
	for i, item := range messages {
		m, ok := item.(map[string]any)
		if !ok {
			p.logger.Warn("skipping malformed history entry", "index", i)
			continue
		}
		role, _ := m["role"].(string)
		text, _ := m["content"].(string)
		if strings.TrimSpace(role) == "" || text == "" {
			p.logger.Warn("skipping history entry without role or content", "index", i)
			continue
		}
		wireRole := "model"
		if isUserRole(role) {
			wireRole = "user"
		}
		history = append(history, content{Role: wireRole, Parts: []part{{Text: text}}})
	}
	return history
}

func isUserRole(v any) bool {
	role, _ := v.(string)
	return strings.EqualFold(strings.TrimSpace(role), "user")
}

// parseGenerationConfig filters the optional config object down to the four
// supported generation knobs. Unknown keys are dropped; a supported key with
// the wrong value type is an error.
func parseGenerationConfig(raw any) (*generationConfig, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("Invalid generation config: expected an object, got %T", raw)
	}

	var cfg generationConfig
	present := false

	if v, ok := m["temperature"]; ok {
		f, ok := v.(float64)
		if !ok {
			return nil, errors.New("Invalid generation config: temperature must be a number")
		}
		cfg.Temperature = &f
		present = true
	}
	if v, ok := m["top_p"]; ok {
		f, ok := v.(float64)
		if !ok {
			return nil, errors.New("Invalid generation config: top_p must be a number")
		}
		cfg.TopP = &f
		present = true
	}
	if v, ok := m["top_k"]; ok {
		n, ok := intValue(v)
		if !ok {
			return nil, errors.New("Invalid generation config: top_k must be an integer")
		}
		cfg.TopK = &n
		present = true
	}
	if v, ok := m["max_output_tokens"]; ok {
		n, ok := intValue(v)
		if !ok {
			return nil, errors.New("Invalid generation config: max_output_tokens must be an integer")
		}
		cfg.MaxOutputTokens = &n
		present = true
	}

	if !present {
		return nil, nil
	}
	return &cfg, nil
}

// intValue accepts JSON numbers that are whole. 3 and 3.0 both decode to
// float64(3); 3.5 is rejected.
func intValue(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// candidateText flattens the first candidate's parts. A 200 reply with no
// candidates happens when everything was safety-filtered.
func candidateText(resp *generateResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", errors.New("Gemini API returned no candidates (the response may have been filtered).")
	}
	var b strings.Builder
	for _, pt := range resp.Candidates[0].Content.Parts {
		b.WriteString(pt.Text)
	}
	if b.Len() == 0 {
		return "", errors.New("Gemini API returned an empty candidate.")
	}
	return b.String(), nil
}

// usageResult keeps the result shape stable whether or not the API included
// usage metadata: absent metadata becomes an empty object, never null.
func usageResult(u *usageMetadata) map[string]any {
	if u == nil {
		return map[string]any{}
	}
	return map[string]any{
		"prompt_token_count":     u.PromptTokenCount,
		"candidates_token_count": u.CandidatesTokenCount,
		"total_token_count":      u.TotalTokenCount,
	}
}
