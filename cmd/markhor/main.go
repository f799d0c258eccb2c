// Command markhor is the plugin host CLI: it invokes plugins directly,
// runs the long-lived host service, and inspects configuration, discovered
// plugins, and recorded exchanges.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
