// Package dispatch handles plugin subprocess spawning, wire protocol I/O, and timeout enforcement.
//
// Every call is one short-lived subprocess: the host writes a single JSON
// request line to the plugin's stdin, collects stdout and stderr, and waits
// for the process to exit. The Caller performs one exchange; the Worker
// drains the durable call queue through the same path, one call at a time,
// recording every exchange in the journal and publishing lifecycle events.
//
// Key features:
//   - Spawn-per-call subprocess execution
//   - Serial FIFO queue drain (one call at a time)
//   - Timeout enforcement with SIGTERM → 5s grace → SIGKILL
//   - One-shot JSON request/response over stdin/stdout
//   - Stderr capture (capped at 64KB)
//
// Outcome classification (in precedence order):
//   - Spawn, pipe, or wait fault → spawn_failed
//   - Timeout expired → timed_out
//   - Structured error response on stdout → plugin_error (any exit code)
//   - Non-zero exit without a structured error → process_failed
//   - Exit 0 but stdout unparseable → malformed_response
//   - Exit 0 with a success response → succeeded
//
// A structured error response is authoritative regardless of exit status.
// A success response paired with a non-zero exit is a contract violation and
// classified process_failed.
package dispatch
