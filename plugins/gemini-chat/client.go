package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes caps how much of an API reply is read. Replies near this
// size do not occur in practice; the cap bounds memory on a misbehaving
// endpoint.
const maxResponseBytes = 4 << 20

// Wire types for the generativelanguage REST API. Field names are camelCase
// on the wire.

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type countRequest struct {
	Contents []content `json:"contents"`
}

type countResponse struct {
	TotalTokens int `json:"totalTokens"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// geminiClient talks to the generativelanguage endpoints over plain HTTP.
// The process serves a single exchange, so one client is built per run.
type geminiClient struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

func newGeminiClient(apiKey, baseURL string, logger *slog.Logger) *geminiClient {
	return &geminiClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 2 * time.Minute},
		logger:  logger,
	}
}

func (c *geminiClient) generateContent(model string, req generateRequest) (*generateResponse, error) {
	var resp generateResponse
	if err := c.post(model, "generateContent", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *geminiClient) countTokens(model, text string) (int, error) {
	req := countRequest{Contents: []content{{Parts: []part{{Text: text}}}}}
	var resp countResponse
	if err := c.post(model, "countTokens", req, &resp); err != nil {
		return 0, err
	}
	return resp.TotalTokens, nil
}

// post sends one API call and decodes the reply into out. Non-2xx statuses
// are mapped to the operator-facing errors the host relays verbatim.
func (c *geminiClient) post(model, action string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	url := fmt.Sprintf("%s/%s:%s", c.baseURL, model, action)
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	c.logger.Info("calling gemini", "model", model, "action", action)
	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("Gemini API request failed: %v", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read Gemini API response: %v", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return c.apiError(model, httpResp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("Gemini API returned unparseable JSON: %v", err)
	}
	return nil
}

// apiError converts a non-2xx reply into the message an operator sees. The
// upstream message is carried through so quota and safety details survive.
func (c *geminiClient) apiError(model string, status int, raw []byte) error {
	detail := strings.TrimSpace(string(raw))
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		detail = body.Error.Message
	}

	c.logger.Warn("gemini api error", "http_status", status, "detail", detail)

	switch {
	case status == http.StatusBadRequest:
		return fmt.Errorf("Invalid request to Gemini API: %s", detail)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("Gemini API Key is invalid or lacks permissions: %s", detail)
	case status == http.StatusNotFound:
		return fmt.Errorf("Unknown Gemini model %q: %s", model, detail)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("Gemini API rate limit exceeded: %s", detail)
	case status >= 500:
		return fmt.Errorf("Gemini API server error (HTTP %d): %s", status, detail)
	default:
		return fmt.Errorf("Gemini API error (HTTP %d): %s", status, detail)
	}
}
