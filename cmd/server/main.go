package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/cytoguard/internal/metrics"
	"github.com/dmitrijs2005/cytoguard/internal/server"
	"github.com/dmitrijs2005/cytoguard/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	metrics.RegisterRuntime()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
