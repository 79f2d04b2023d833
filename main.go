// ./main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/lancet/cmd"
)

// main is the entry point for the Lancet CLI application.
func main() {
	// Interrupt signals cancel the context so an in-flight scan winds down
	// instead of being killed mid-file.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
