package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"peerchat/internal/app"
	"peerchat/pkg/config"
	"peerchat/pkg/logger"
	"peerchat/pkg/shutdown"
)

func main() {
	// build metadata, set via ldflags during release
	var version = "dev"

	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Init()
		shutdown.Abort("failed to load config", err, "", 0)
	}

	// explicit flags win over config file and env values
	if setFlags["db"] || cfg.Client.DBPath == "" {
		cfg.Client.DBPath = dbVal
	}
	if setFlags["addr"] {
		host, port, ok := strings.Cut(addrVal, ":")
		if ok {
			cfg.API.Address = host
			if p, err := strconv.Atoi(port); err == nil {
				cfg.API.Port = p
			}
		}
	}

	logger.InitWithLevel(cfg.Logging.Level)

	a, err := app.New(cfg, version)
	if err != nil {
		shutdown.Abort("failed to initialize client", err, cfg.Client.DBPath, 0)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		a.Close()
		shutdown.Abort("client exited with error", err, cfg.Client.DBPath, 0)
	}

	logger.Info("shutting_down")
	a.Close()
	logger.Info("shutdown_complete")
}
