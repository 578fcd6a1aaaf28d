package main

import (
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"kstu-mobile/internal/config"
	"kstu-mobile/internal/devserver"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[MAIN] No .env file found, relying on system env vars")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	srv := devserver.NewServer(config.Load(), logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("dev server failed", zap.Error(err))
	}
}
