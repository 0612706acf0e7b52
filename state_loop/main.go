package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/Raudi1/opendbc/utils"
)

func main() {
	var (
		cfgPath  = flag.String("config", "config/state_loop.json", "Path to state loop config JSON")
		logLevel = flag.String("log", "", "trace|debug|info|warn|error|critical (overrides config)")
	)
	flag.Parse()

	cfg, err := LoadConfig(*cfgPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: config " + *cfgPath + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log, err := utils.NewFileLogger(cfg.LogFile, utils.ParseLevel(cfg.LogLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + cfg.LogFile + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop, err := NewLoop(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer loop.Close()

	if err := loop.Run(ctx); !isShutdown(err) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}
