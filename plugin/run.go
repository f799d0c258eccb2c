package plugin

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dtrlanz/markhor/internal/log"
	"github.com/dtrlanz/markhor/protocol"
)

// Main runs a plugin process end to end: it builds the registry via factory,
// serves exactly one exchange on stdin/stdout, and exits. The exit code is 0
// iff the response written to stdout has status "success".
func Main(factory Factory) {
	os.Exit(Run(factory, os.Stdin, os.Stdout))
}

// Run is Main without the process exit, for callers that own the streams.
// It writes exactly one response to out on every path and returns the exit
// code for the invocation.
func Run(factory Factory, in io.Reader, out io.Writer) int {
	logger := log.WithComponent("plugin")

	reg, err := buildRegistry(factory)
	if err != nil {
		logger.Error("plugin initialization failed", "error", err)
		return writeResponse(out, logger, protocol.Failure(fmt.Sprintf("Failed to initialize plugin: %v", err)))
	}

	d := &dispatcher{reg: reg, in: in, out: out, logger: logger}
	return d.run()
}

// buildRegistry runs the factory inside its own recovery boundary:
// construction faults must surface as an initialization failure response,
// never as a crash before any output is written.
func buildRegistry(factory Factory) (reg *Registry, err error) {
	defer func() {
		if r := recover(); r != nil {
			reg, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	reg, err = factory()
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, fmt.Errorf("factory returned no registry")
	}
	return reg, nil
}

// dispatcher drives one read-decode-dispatch-encode-write cycle.
type dispatcher struct {
	reg    *Registry
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

func (d *dispatcher) run() int {
	raw, err := io.ReadAll(d.in)
	if err != nil {
		d.logger.Error("reading stdin failed", "error", err)
		return writeResponse(d.out, d.logger, protocol.Failure(fmt.Sprintf("Error processing input: %v", err)))
	}
	d.logger.Info("request received", "bytes", len(raw))

	req, err := protocol.DecodeRequest(raw)
	if err != nil {
		return writeResponse(d.out, d.logger, d.decodeFailure(err))
	}

	handler, ok := d.reg.Lookup(req.Method)
	if !ok {
		d.logger.Error("no handler for method", "method", req.Method, "registered", d.reg.Methods())
		return writeResponse(d.out, d.logger, protocol.Failure(fmt.Sprintf("Unsupported method '%s' in this plugin.", req.Method)))
	}

	d.logger.Info("dispatching", "method", req.Method)
	resp := dispatch(req.Method, handler, Params(req.Params), d.logger)
	return writeResponse(d.out, d.logger, resp)
}

// decodeFailure maps decode error kinds to the wire messages hosts see.
func (d *dispatcher) decodeFailure(err error) protocol.Response {
	var decodeErr *protocol.DecodeError
	if !errors.As(err, &decodeErr) {
		d.logger.Error("request decode failed", "error", err)
		return protocol.Failure(fmt.Sprintf("Error processing input: %v", err))
	}

	switch decodeErr.Kind {
	case protocol.KindNoInput:
		d.logger.Error("received empty input on stdin")
		return protocol.Failure("No input received.")
	case protocol.KindInvalidJSON:
		d.logger.Error("request is not valid JSON", "error", decodeErr)
		return protocol.Failure("Invalid JSON input.")
	default:
		d.logger.Error("request has invalid structure", "error", decodeErr)
		return protocol.Failure(fmt.Sprintf("Invalid input structure: %s", decodeErr.Detail))
	}
}

// dispatch invokes the handler and converts any fault (returned error,
// panic, or a non-object result) into an error response. This is the only
// boundary that catches handler faults.
func dispatch(method string, handler Handler, params Params, logger *slog.Logger) protocol.Response {
	value, err := invoke(handler, params)
	if err != nil {
		logger.Error("handler failed", "method", method, "error", err)
		return protocol.Failure(fmt.Sprintf("Error executing method '%s': %v", method, err))
	}

	result, ok := asResult(value)
	if !ok {
		err := fmt.Errorf("handler for method '%s' must return a map[string]any, got %T", method, value)
		logger.Error("handler broke the result contract", "method", method, "error", err)
		return protocol.Failure(fmt.Sprintf("Error executing method '%s': %v", method, err))
	}
	return protocol.Success(result)
}

// invoke is the recover boundary around exactly the handler call.
func invoke(handler Handler, params Params) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(params)
}

func asResult(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case Params:
		return map[string]any(v), true
	default:
		return nil, false
	}
}

// writeResponse encodes resp (degrading to a minimal error response if the
// result cannot be serialized), writes it to out, and flushes. It returns
// the process exit code: 0 only for a success response that was encoded and
// written intact.
func writeResponse(out io.Writer, logger *slog.Logger, resp protocol.Response) int {
	data, encErr := protocol.EncodeResponse(resp)
	if encErr != nil {
		logger.Error("response serialization failed", "error", encErr)
	}

	if _, err := out.Write(data); err != nil {
		// Nothing more can reach the host; the exit code is all that's left.
		logger.Error("writing response failed", "error", err)
		return 1
	}
	if f, ok := out.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			logger.Error("flushing response failed", "error", err)
			return 1
		}
	}

	if resp.Succeeded() && encErr == nil {
		return 0
	}
	return 1
}
