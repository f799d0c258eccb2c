// Command gemini-chat is a chat completion plugin backed by the Gemini REST
// API. It answers two methods:
//
//	chat          messages + model (+ optional generation config) -> reply + usage
//	count_tokens  text (+ optional model) -> token_count
//
// Configuration comes from the environment; the host passes the declared
// variables through per manifest.yaml:
//
//	GOOGLE_API_KEY   required for every call (startup succeeds without it,
//	                 the handlers refuse to run)
//	GEMINI_API_BASE  endpoint override, mainly for tests
//	GEMINI_MODEL     default model for count_tokens
//
// Install by building the binary next to its manifest under the plugins dir:
//
//	go build -o <plugins_dir>/gemini-chat/gemini-chat ./plugins/gemini-chat
//	cp plugins/gemini-chat/manifest.yaml <plugins_dir>/gemini-chat/
package main

import (
	"fmt"

	"github.com/dtrlanz/markhor/internal/log"
	"github.com/dtrlanz/markhor/plugin"
	"github.com/joeshaw/envdecode"
)

type settings struct {
	APIKey  string `env:"GOOGLE_API_KEY"`
	BaseURL string `env:"GEMINI_API_BASE,default=https://generativelanguage.googleapis.com/v1beta/models"`
	Model   string `env:"GEMINI_MODEL,default=gemini-2.0-flash-lite"`
}

func main() {
	plugin.Main(newRegistry)
}

func newRegistry() (*plugin.Registry, error) {
	var s settings
	if err := envdecode.Decode(&s); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	logger := log.WithComponent("gemini")
	if s.APIKey == "" {
		// Calls will fail; startup must not.
		logger.Warn("GOOGLE_API_KEY environment variable not set")
	}

	p := &geminiPlugin{
		settings: s,
		client:   newGeminiClient(s.APIKey, s.BaseURL, logger),
		logger:   logger,
	}

	reg := plugin.NewRegistry()
	reg.Register("chat", p.handleChat)
	reg.Register("count_tokens", p.handleCountTokens)
	return reg, nil
}
