package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/tacticallink/internal/server"
	"github.com/dmitrijs2005/tacticallink/internal/server/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app := server.NewApp(cfg)
	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("server: %v", err)
	}
}
