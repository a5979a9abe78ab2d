package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/scrimx/scrims/common/config"
	"github.com/scrimx/scrims/common/utils"
	"github.com/scrimx/scrims/services/scrims-service/app"
)

func main() {
	configPath := flag.String("config", os.Getenv("SCRIMX_CONFIG_PATH"), "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	application, appErr := app.New(ctx, cfg)
	if appErr != nil {
		log.Fatalf("Failed to initialize application: %v", appErr)
	}

	if appErr := application.Start(ctx); appErr != nil {
		application.Stop()
		log.Fatalf("Failed to start application: %v", appErr)
	}

	utils.WaitForGracefulShutdown(ctx, application.Logger())

	application.Stop()
}
