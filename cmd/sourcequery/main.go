// Command sourcequery queries Source and GoldSource game servers with the
// A2S_INFO protocol, either once from the command line or continuously as a
// monitoring service with history, a REST API, Prometheus metrics and MQTT.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
