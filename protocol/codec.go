package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeKind classifies request decode failures. Every kind collapses to the
// same wire shape; kinds exist so the dispatcher can pick the right
// diagnostic message.
type DecodeKind int

const (
	// KindNoInput reports an empty input (zero bytes).
	KindNoInput DecodeKind = iota
	// KindInvalidJSON reports input that is not valid JSON.
	KindInvalidJSON
	// KindBadStructure reports valid JSON with the wrong shape: a non-object
	// top level, a missing or non-string method, or non-object params.
	KindBadStructure
)

// DecodeError reports why a request could not be decoded.
type DecodeError struct {
	Kind   DecodeKind
	Detail string
	err    error
}

func (e *DecodeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.err)
	}
	return e.Detail
}

func (e *DecodeError) Unwrap() error {
	return e.err
}

// DecodeRequest parses one request envelope from raw input bytes. The
// returned error, when non-nil, is always a *DecodeError. Params defaults to
// an empty object when absent.
func DecodeRequest(data []byte) (Request, error) {
	if len(data) == 0 {
		return Request{}, &DecodeError{Kind: KindNoInput, Detail: "no input"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			return Request{}, &DecodeError{Kind: KindBadStructure, Detail: "input must be a JSON object", err: err}
		}
		return Request{}, &DecodeError{Kind: KindInvalidJSON, Detail: "invalid JSON", err: err}
	}
	if fields == nil {
		// JSON null unmarshals into a nil map without an error.
		return Request{}, &DecodeError{Kind: KindBadStructure, Detail: "input must be a JSON object"}
	}

	rawMethod, ok := fields["method"]
	if !ok {
		return Request{}, &DecodeError{Kind: KindBadStructure, Detail: "missing 'method' field"}
	}
	var method string
	if err := json.Unmarshal(rawMethod, &method); err != nil {
		return Request{}, &DecodeError{Kind: KindBadStructure, Detail: "'method' must be a string", err: err}
	}
	if method == "" {
		return Request{}, &DecodeError{Kind: KindBadStructure, Detail: "missing 'method' field"}
	}

	params := map[string]any{}
	if rawParams, ok := fields["params"]; ok {
		var p map[string]any
		if err := json.Unmarshal(rawParams, &p); err != nil {
			return Request{}, &DecodeError{Kind: KindBadStructure, Detail: "'params' must be an object", err: err}
		}
		if p == nil {
			return Request{}, &DecodeError{Kind: KindBadStructure, Detail: "'params' must be an object"}
		}
		params = p
	}

	return Request{Method: method, Params: params}, nil
}

// EncodeRequest serializes a request envelope, newline-terminated.
func EncodeRequest(req Request) ([]byte, error) {
	if req.Method == "" {
		return nil, fmt.Errorf("request method is empty")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return append(data, '\n'), nil
}

// EncodeResponse serializes a response envelope, newline-terminated. The
// returned bytes are always valid JSON: if resp cannot be marshaled (a
// handler smuggled an unserializable value into its result), a minimal error
// response describing the failure is returned instead, together with the
// marshal error so the caller can fail the exchange.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err == nil {
		return append(data, '\n'), nil
	}

	// A response carrying only a string message always marshals.
	fallback, _ := json.Marshal(Failure(fmt.Sprintf("Internal plugin error: Failed to serialize response - %v", err)))
	return append(fallback, '\n'), err
}

// DecodeResponse parses the bytes a plugin wrote to stdout. It is strict
// about the response contract: status is required and must be one of the two
// known values, and an error response must carry a message. A missing result
// on success normalizes to an empty object.
func DecodeResponse(data []byte) (Response, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Response{}, fmt.Errorf("plugin produced no output on stdout")
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("plugin output is not valid JSON: %w", err)
	}

	if resp.Status == "" {
		return Response{}, fmt.Errorf("response missing required field: status")
	}
	if resp.Status != StatusSuccess && resp.Status != StatusError {
		return Response{}, fmt.Errorf("invalid status value: %q (must be %q or %q)", resp.Status, StatusSuccess, StatusError)
	}
	if resp.Status == StatusError && resp.Message == "" {
		return Response{}, fmt.Errorf("response has status=error but no message")
	}
	if resp.Status == StatusSuccess && resp.Result == nil {
		resp.Result = map[string]any{}
	}

	return resp, nil
}
