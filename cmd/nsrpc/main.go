// Command nsrpc calls methods of a namespaced JSON-RPC 2.0 server.
//
// The server and the method schema are configured with NSRPC_* environment
// variables, optionally read from a .env file:
//
//	NSRPC_HOST=media.local NSRPC_PORT=8080 NSRPC_SCHEMA=kodi.yaml \
//	    nsrpc call Player.GetActivePlayers
//	nsrpc call Application.SetVolume '[50]'
//	nsrpc list
//	nsrpc ping
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
