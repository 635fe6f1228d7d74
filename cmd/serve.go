package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/deepgram/glmchat/internal/config"
	"github.com/deepgram/glmchat/internal/connections"
	"github.com/deepgram/glmchat/internal/logger"
	"github.com/deepgram/glmchat/internal/services"
)

const serveUsage = `Usage:
  glmchat serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file
  --port   int      Override the API port`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprintln(os.Stderr, serveUsage) }

	var cfgPath string
	var port int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&port, "port", 0, "override API port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	settings, err := loadSettings(cfgPath, port, 0)
	if err != nil {
		return err
	}

	svc, err := services.InitializeServices(ctx, settings)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := warmUp(ctx, svc); err != nil {
		return err
	}

	manager := connections.NewManager(connections.DefaultTimeouts)
	srv := newHTTPServer(settings.Server.Host, settings.Server.Port, setupRouter(svc, manager), settings.Server.WriteTimeout)

	return runServer(ctx, srv, func() {
		if n := manager.CloseAll(); n > 0 {
			logger.For(logger.APP).Info().Int("connections", n).Msg("Closed open stream connections")
		}
	})
}

// warmUp builds the shared model and checks the runtime answers, so a
// misconfigured runtime stops the process instead of failing every request.
func warmUp(ctx context.Context, svc *services.Services) error {
	if _, err := svc.GetChatFactory().GetModel(); err != nil {
		return fmt.Errorf("initialize model: %w", err)
	}
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("runtime unavailable at %s: %w", svc.GetSettings().Runtime.BaseURL, err)
	}
	logger.For(logger.APP).Info().
		Str("runtime", svc.GetSettings().Runtime.BaseURL).
		Str("model", svc.GetSettings().Runtime.Model).
		Msg("Model ready")
	return nil
}

// loadSettings reads configuration and applies non-zero port overrides.
func loadSettings(path string, apiPort, uiPort int) (config.Settings, error) {
	settings, err := config.Load(path)
	if err != nil {
		return config.Settings{}, err
	}
	if apiPort != 0 {
		settings.Server.Port = apiPort
	}
	if uiPort != 0 {
		settings.Server.UIPort = uiPort
	}
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}
