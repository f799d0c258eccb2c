package tui

import (
	"context"
	"fmt"
)

// ChatMessage is one turn of the conversation, in the wire shape chat
// plugins accept.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage mirrors the token accounting a chat plugin reports.
type Usage struct {
	PromptTokens   int
	ResponseTokens int
	TotalTokens    int
}

// Session accumulates a conversation and sends it whole on every turn. Each
// call spawns a fresh plugin process, so the full context travels with every
// request.
type Session struct {
	transport Transport
	method    string
	model     string
	config    map[string]any
	messages  []ChatMessage
	usage     Usage
}

// NewSession builds a chat session. Model and config are optional and passed
// through to the plugin when set.
func NewSession(transport Transport, model string, config map[string]any) *Session {
	return &Session{
		transport: transport,
		method:    "chat",
		model:     model,
		config:    config,
	}
}

// Send appends the user turn, invokes the plugin, and returns the reply
// content. On any failure the user turn is rolled back so a retry re-sends a
// consistent history.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	s.messages = append(s.messages, ChatMessage{Role: "user", Content: text})

	params := map[string]any{"messages": wireMessages(s.messages)}
	if s.model != "" {
		params["model"] = s.model
	}
	if len(s.config) > 0 {
		params["config"] = s.config
	}

	result, err := s.transport.Call(ctx, s.method, params)
	if err != nil {
		s.messages = s.messages[:len(s.messages)-1]
		return "", err
	}

	reply, err := parseReply(result)
	if err != nil {
		s.messages = s.messages[:len(s.messages)-1]
		return "", err
	}

	s.messages = append(s.messages, reply)
	s.usage = parseUsage(result)
	return reply.Content, nil
}

// Messages returns the conversation so far.
func (s *Session) Messages() []ChatMessage {
	return s.messages
}

// LastUsage returns the token counts from the most recent reply.
func (s *Session) LastUsage() Usage {
	return s.usage
}

func wireMessages(msgs []ChatMessage) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]any{"role": m.Role, "content": m.Content})
	}
	return out
}

func parseReply(result map[string]any) (ChatMessage, error) {
	resp, ok := result["response"].(map[string]any)
	if !ok {
		return ChatMessage{}, fmt.Errorf("plugin result has no response object")
	}
	content, ok := resp["content"].(string)
	if !ok {
		return ChatMessage{}, fmt.Errorf("plugin response has no content")
	}
	role, _ := resp["role"].(string)
	if role == "" {
		role = "model"
	}
	return ChatMessage{Role: role, Content: content}, nil
}

func parseUsage(result map[string]any) Usage {
	raw, ok := result["usage"].(map[string]any)
	if !ok {
		return Usage{}
	}
	return Usage{
		PromptTokens:   intField(raw, "prompt_token_count"),
		ResponseTokens: intField(raw, "candidates_token_count"),
		TotalTokens:    intField(raw, "total_token_count"),
	}
}

func intField(m map[string]any, key string) int {
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return 0
}
