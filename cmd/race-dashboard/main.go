package main

import (
	"fmt"
	"os"

	"github.com/radieske/race-odds-monitor/internal/shared/config"
	"github.com/radieske/race-odds-monitor/internal/shared/logger"
)

func main() {
	if _, ok := os.LookupEnv("SERVICE_NAME"); !ok {
		_ = os.Setenv("SERVICE_NAME", "race-dashboard")
	}
	cfg := config.Load()
	level := cfg.LogLevel
	if level == "" {
		level = "warn" // a tela é a saída principal
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, level)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	root := newRootCmd(cfg, log, os.Stdin, os.Stdout)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
