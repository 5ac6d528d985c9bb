package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/hbomb79/Aria/internal"
	"github.com/hbomb79/Aria/pkg/logger"
)

var log = logger.Get("Main")

// main is the entry point to the program. The users Aria configuration
// is loaded (YAML file with environment overrides) and the server is
// run until an interrupt/termination signal arrives.
func main() {
	configPath := flag.String("config", "aria.yaml", "path to the YAML configuration file")
	flag.Parse()

	config := internal.AriaConfig{}
	if err := config.LoadFromFile(*configPath); err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Aria stopped with error: %v\n", err)
		return
	}

	log.Emit(logger.STOP, "Aria stopped\n")
}
