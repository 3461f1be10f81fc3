package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/cytoguard/internal/client"
	"github.com/dmitrijs2005/cytoguard/internal/client/cli"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp(cli.DialGRPC, os.Stdout, client.TerminalWidth(os.Stdout))
	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}

}
