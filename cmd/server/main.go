package main

import (
	"github.com/AgenticFinLab/FinMycelium/internal/config"
	"github.com/AgenticFinLab/FinMycelium/internal/server"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger"
	"github.com/AgenticFinLab/FinMycelium/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{})
		logger.Init(consoleLogger)
		logger.Fatal("Invalid configuration", "err", err)
	}

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
	})
	logger.Init(consoleLogger)

	server.Init(cfg)
}
