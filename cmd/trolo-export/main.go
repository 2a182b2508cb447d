package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/trolo/export/pkg/cli"
	"github.com/trolo/export/pkg/util/console"
)

func main() {
	cmd, err := cli.NewRootCommand()
	if err != nil {
		console.Fatalf("%s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err = cmd.ExecuteContext(ctx); err != nil {
		console.Fatalf("%s", err)
	}
}
