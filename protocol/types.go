// Package protocol defines the wire envelope exchanged between a host and a
// plugin process: one JSON request on the child's stdin, one JSON response
// on its stdout. Stderr is never part of the protocol.
package protocol

import "encoding/json"

// Request is the envelope a host writes to a plugin's stdin.
type Request struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// Status discriminates the two response shapes.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Response is the envelope a plugin writes to its stdout. Result is set on
// success, Message on error.
type Response struct {
	Status  Status         `json:"status"`
	Result  map[string]any `json:"result,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Success builds a success response. A nil result becomes an empty object:
// result is always an object on the wire, never null.
func Success(result map[string]any) Response {
	if result == nil {
		result = map[string]any{}
	}
	return Response{Status: StatusSuccess, Result: result}
}

// Failure builds an error response.
func Failure(message string) Response {
	return Response{Status: StatusError, Message: message}
}

// Succeeded reports whether the response carries a success status.
func (r Response) Succeeded() bool {
	return r.Status == StatusSuccess
}

// MarshalJSON emits exactly the wire shape: status plus result (always an
// object) on success, status plus message otherwise.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Status == StatusSuccess {
		result := r.Result
		if result == nil {
			result = map[string]any{}
		}
		return json.Marshal(struct {
			Status Status         `json:"status"`
			Result map[string]any `json:"result"`
		}{r.Status, result})
	}
	return json.Marshal(struct {
		Status  Status `json:"status"`
		Message string `json:"message"`
	}{r.Status, r.Message})
}
