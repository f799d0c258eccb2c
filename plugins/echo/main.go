// Command echo is the smallest useful plugin: it answers the echo method by
// returning its params unchanged. It doubles as a template for new plugins
// and as a fixture for exercising a host end to end.
//
// Install by building the binary next to its manifest under the plugins dir:
//
//	go build -o <plugins_dir>/echo/echo ./plugins/echo
//	cp plugins/echo/manifest.yaml <plugins_dir>/echo/
package main

import "github.com/dtrlanz/markhor/plugin"

func main() {
	plugin.Main(newRegistry)
}

func newRegistry() (*plugin.Registry, error) {
	reg := plugin.NewRegistry()
	reg.Register("echo", echo)
	return reg, nil
}

func echo(params plugin.Params) (any, error) {
	return map[string]any(params), nil
}
