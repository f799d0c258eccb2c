package protocol

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind DecodeKind
		wantErr  bool
		checkFn  func(t *testing.T, req Request)
	}{
		{
			name:    "valid request",
			input:   `{"method":"chat","params":{"model":"gemini-2.0-flash-lite","n":2}}`,
			wantErr: false,
			checkFn: func(t *testing.T, req Request) {
				if req.Method != "chat" {
					t.Errorf("want method=chat, got %s", req.Method)
				}
				if req.Params["model"] != "gemini-2.0-flash-lite" {
					t.Error("params not parsed correctly")
				}
			},
		},
		{
			name:    "params absent defaults to empty object",
			input:   `{"method":"echo"}`,
			wantErr: false,
			checkFn: func(t *testing.T, req Request) {
				if req.Params == nil {
					t.Fatal("params should default to an empty map, got nil")
				}
				if len(req.Params) != 0 {
					t.Errorf("want empty params, got %v", req.Params)
				}
			},
		},
		{
			name:    "params empty object",
			input:   `{"method":"echo","params":{}}`,
			wantErr: false,
			checkFn: func(t *testing.T, req Request) {
				if len(req.Params) != 0 {
					t.Errorf("want empty params, got %v", req.Params)
				}
			},
		},
		{
			name:    "unknown envelope fields are ignored",
			input:   `{"method":"echo","params":{"x":1},"id":"req-7"}`,
			wantErr: false,
			checkFn: func(t *testing.T, req Request) {
				if req.Method != "echo" {
					t.Errorf("want method=echo, got %s", req.Method)
				}
			},
		},
		{
			name:     "empty input",
			input:    "",
			wantErr:  true,
			wantKind: KindNoInput,
		},
		{
			name:     "whitespace only is invalid JSON, not empty input",
			input:    "   ",
			wantErr:  true,
			wantKind: KindInvalidJSON,
		},
		{
			name:     "not JSON",
			input:    "not json",
			wantErr:  true,
			wantKind: KindInvalidJSON,
		},
		{
			name:     "truncated JSON",
			input:    `{"method":"ec`,
			wantErr:  true,
			wantKind: KindInvalidJSON,
		},
		{
			name:     "top-level array",
			input:    `[{"method":"echo"}]`,
			wantErr:  true,
			wantKind: KindBadStructure,
		},
		{
			name:     "top-level string",
			input:    `"echo"`,
			wantErr:  true,
			wantKind: KindBadStructure,
		},
		{
			name:     "top-level null",
			input:    `null`,
			wantErr:  true,
			wantKind: KindBadStructure,
		},
		{
			name:     "missing method",
			input:    `{"params":{}}`,
			wantErr:  true,
			wantKind: KindBadStructure,
		},
		{
			name:     "empty method",
			input:    `{"method":"","params":{}}`,
			wantErr:  true,
			wantKind: KindBadStructure,
		},
		{
			name:     "method not a string",
			input:    `{"method":42}`,
			wantErr:  true,
			wantKind: KindBadStructure,
		},
		{
			name:     "params not an object",
			input:    `{"method":"echo","params":[1,2]}`,
			wantErr:  true,
			wantKind: KindBadStructure,
		},
		{
			name:     "params null",
			input:    `{"method":"echo","params":null}`,
			wantErr:  true,
			wantKind: KindBadStructure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeRequest([]byte(tt.input))

			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeRequest() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr {
				var decodeErr *DecodeError
				if !errors.As(err, &decodeErr) {
					t.Fatalf("error is not a *DecodeError: %v", err)
				}
				if decodeErr.Kind != tt.wantKind {
					t.Errorf("want kind %d, got %d (detail %q)", tt.wantKind, decodeErr.Kind, decodeErr.Detail)
				}
				return
			}

			if tt.checkFn != nil {
				tt.checkFn(t, req)
			}
		})
	}
}

func TestEncodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		resp    Response
		wantErr bool
		checkFn func(t *testing.T, output string)
	}{
		{
			name:    "success with result",
			resp:    Success(map[string]any{"x": 1}),
			wantErr: false,
			checkFn: func(t *testing.T, output string) {
				if strings.TrimSpace(output) != `{"status":"success","result":{"x":1}}` {
					t.Errorf("unexpected output: %s", output)
				}
			},
		},
		{
			name:    "success with nil result emits empty object",
			resp:    Success(nil),
			wantErr: false,
			checkFn: func(t *testing.T, output string) {
				if strings.TrimSpace(output) != `{"status":"success","result":{}}` {
					t.Errorf("unexpected output: %s", output)
				}
			},
		},
		{
			name:    "error with message",
			resp:    Failure("No input received."),
			wantErr: false,
			checkFn: func(t *testing.T, output string) {
				if strings.TrimSpace(output) != `{"status":"error","message":"No input received."}` {
					t.Errorf("unexpected output: %s", output)
				}
			},
		},
		{
			name:    "unserializable result degrades to error response",
			resp:    Success(map[string]any{"ch": make(chan int)}),
			wantErr: true,
			checkFn: func(t *testing.T, output string) {
				if !strings.Contains(output, `"status":"error"`) {
					t.Errorf("fallback is not an error response: %s", output)
				}
				if !strings.Contains(output, "Failed to serialize response") {
					t.Errorf("fallback message missing: %s", output)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeResponse(tt.resp)

			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(data) == 0 || data[len(data)-1] != '\n' {
				t.Fatal("output must be newline-terminated")
			}
			// On every path the bytes must decode as a valid response.
			if _, derr := DecodeResponse(data); derr != nil {
				t.Fatalf("emitted bytes do not decode: %v", derr)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, string(data))
			}
		})
	}
}

func TestRequestRoundTrip(t *testing.T) {
	input := `{"method":"echo","params":{"x":1,"nested":{"s":"v"},"list":[1,2,3]}}`

	first, err := DecodeRequest([]byte(input))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	encoded, err := EncodeRequest(first)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	second, err := DecodeRequest(encoded)
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}

	if first.Method != second.Method {
		t.Errorf("method changed across round trip: %q vs %q", first.Method, second.Method)
	}
	if !reflect.DeepEqual(first.Params, second.Params) {
		t.Errorf("params changed across round trip:\n  %#v\n  %#v", first.Params, second.Params)
	}
}

func TestEncodeRequestRejectsEmptyMethod(t *testing.T) {
	if _, err := EncodeRequest(Request{Params: map[string]any{}}); err == nil {
		t.Fatal("expected error for empty method")
	}
}

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, resp Response)
	}{
		{
			name:    "valid success response",
			input:   `{"status":"success","result":{"x":1}}`,
			wantErr: false,
			checkFn: func(t *testing.T, resp Response) {
				if !resp.Succeeded() {
					t.Errorf("want success, got %s", resp.Status)
				}
				if resp.Result["x"] != float64(1) {
					t.Error("result not parsed correctly")
				}
			},
		},
		{
			name:    "valid error response",
			input:   `{"status":"error","message":"Unsupported method 'nope' in this plugin."}`,
			wantErr: false,
			checkFn: func(t *testing.T, resp Response) {
				if resp.Succeeded() {
					t.Error("want error status")
				}
				if !strings.Contains(resp.Message, "nope") {
					t.Errorf("message lost: %q", resp.Message)
				}
			},
		},
		{
			name:    "success without result normalizes to empty object",
			input:   `{"status":"success"}`,
			wantErr: false,
			checkFn: func(t *testing.T, resp Response) {
				if resp.Result == nil {
					t.Error("result should normalize to an empty map")
				}
			},
		},
		{
			name:    "trailing newline tolerated",
			input:   "{\"status\":\"success\",\"result\":{}}\n",
			wantErr: false,
		},
		{
			name:    "empty output",
			input:   "",
			wantErr: true,
		},
		{
			name:    "not JSON",
			input:   "Traceback (most recent call last):",
			wantErr: true,
		},
		{
			name:    "missing status",
			input:   `{"result":{}}`,
			wantErr: true,
		},
		{
			name:    "unknown status value",
			input:   `{"status":"ok"}`,
			wantErr: true,
		},
		{
			name:    "error without message",
			input:   `{"status":"error"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeResponse([]byte(tt.input))

			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.checkFn != nil {
				tt.checkFn(t, resp)
			}
		})
	}
}
