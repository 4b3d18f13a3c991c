package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/Trove/internal"
	"github.com/hbomb79/Trove/pkg/logger"
)

var log = logger.Get("Bootstrap")

// main is the entry point to the program, from here we load the users
// Trove configuration, applying environment overrides, and run Trove
// until it is interrupted
func main() {
	configPath := flag.String("config", os.Getenv("TROVE_CONFIG"), "path to a YAML configuration file")
	flag.Parse()

	config := internal.TroveConfig{}
	if err := config.LoadFromFile(*configPath); err != nil {
		log.Fatalf("Failed to load configuration: %v\n", err)
	}
	logger.SetMinLoggingLevel(logger.ParseLevel(config.LogLevel).Level())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Trove stopped unexpectedly: %v\n", err)
		cancel()
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Trove shutdown complete\n")
}
