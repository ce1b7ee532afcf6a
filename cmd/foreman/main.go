// foreman: coordination daemon for AI coding agents.
//
// One daemon per project root. UIs connect over the websocket event
// channel, agents over the MCP tool channel, both on the same port.
//
// Usage:
//
//	foreman init          # initialize a project root
//	foreman start         # run the daemon in the foreground
//	foreman stop          # stop a running daemon
//	foreman status        # show daemon state and endpoints
package main

import (
	"os"

	"github.com/HendryAvila/foreman/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
