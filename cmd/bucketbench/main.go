// Command bucketbench runs a synthetic load generator against a bucketcache
// Cache and exposes its live stats over an admin HTTP server.
package main

import (
	"os"

	"github.com/marmos91/bucketcache/cmd/bucketbench/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
