// Package plugin implements the plugin side of the markhor stdio protocol.
//
// A plugin is a standalone executable. The host spawns it for a single
// exchange: it writes one JSON request to the plugin's stdin, closes the
// stream, reads one JSON response from the plugin's stdout, and inspects the
// exit code. Stderr carries free-form diagnostics only and is never parsed.
//
// Lifecycle per invocation:
//  1. The registry factory runs first, before any input is read. A factory
//     error (or panic) is reported as an initialization failure response.
//  2. Stdin is read to EOF and decoded. Empty input, invalid JSON, and
//     structurally invalid requests each produce an error response.
//  3. The method is looked up in the registry; unknown methods produce an
//     error response naming the method.
//  4. The handler runs inside a single recovery boundary: a returned error,
//     a panic, or a result that is not a map[string]any all become an error
//     response embedding the method name.
//  5. Exactly one response is written to stdout, newline-terminated and
//     flushed. The process exits 0 iff that response has status "success".
//
// A minimal plugin:
//
//	func main() {
//		plugin.Main(func() (*plugin.Registry, error) {
//			reg := plugin.NewRegistry()
//			reg.Register("echo", func(params plugin.Params) (any, error) {
//				return map[string]any(params), nil
//			})
//			return reg, nil
//		})
//	}
//
// Handlers own all domain validation: the core places no constraints on
// params or result content beyond "JSON object".
package plugin
