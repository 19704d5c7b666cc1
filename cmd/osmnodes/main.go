// Command osmnodes fetches OpenStreetMap nodes inside a bounding box from an
// Overpass interpreter.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/NERVsystems/osmnodes/cmd/osmnodes/commands"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the exit code so deferred cleanup runs before the process exits
func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return commands.ExecuteContext(ctx, args)
}
