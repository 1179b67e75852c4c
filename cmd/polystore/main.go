// Command polystore compiles portable entity queries for several stores and
// runs them against a local SQLite store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/polystore/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	os.Exit(cli.GetExitCode(err))
}
