// CLI entry point for tariffwise.
package main

import (
	"github.com/turtacn/tariffwise/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
}

func main() {
	cli.Execute()
}
