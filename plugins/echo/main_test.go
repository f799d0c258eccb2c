package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dtrlanz/markhor/internal/log"
	"github.com/dtrlanz/markhor/plugin"
)

func TestMain(m *testing.M) {
	log.Setup("error", "text")
	m.Run()
}

func runEcho(t *testing.T, input string) (int, map[string]any) {
	t.Helper()
	var out bytes.Buffer
	code := plugin.Run(newRegistry, strings.NewReader(input), &out)

	var resp map[string]any
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("stdout is not valid JSON: %v (output=%q)", err, out.String())
	}
	return code, resp
}

func TestEchoReturnsParams(t *testing.T) {
	code, resp := runEcho(t, `{"method":"echo","params":{"text":"hello","n":3}}`)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if resp["status"] != "success" {
		t.Fatalf("status = %v, want success", resp["status"])
	}

	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("result is %T, want object", resp["result"])
	}
	if result["text"] != "hello" {
		t.Errorf("result.text = %v, want hello", result["text"])
	}
	if result["n"] != float64(3) {
		t.Errorf("result.n = %v, want 3", result["n"])
	}
}

func TestEchoWithoutParams(t *testing.T) {
	code, resp := runEcho(t, `{"method":"echo"}`)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("result is %T, want object", resp["result"])
	}
	if len(result) != 0 {
		t.Errorf("result = %v, want empty object", result)
	}
}

func TestEchoUnknownMethod(t *testing.T) {
	code, resp := runEcho(t, `{"method":"reverse"}`)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if resp["status"] != "error" {
		t.Fatalf("status = %v, want error", resp["status"])
	}
	msg, _ := resp["message"].(string)
	if !strings.Contains(msg, "Unsupported method 'reverse'") {
		t.Errorf("message = %q, want unsupported method report", msg)
	}
}
