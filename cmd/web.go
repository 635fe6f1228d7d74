package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/deepgram/glmchat/internal/logger"
	"github.com/deepgram/glmchat/internal/services"
	"github.com/deepgram/glmchat/internal/ui"
)

const webUsage = `Usage:
  glmchat web [--config <path>] [--host <addr>] [--port <port>] [--api <url> | --in-process] [--allow-api-override]

Flags:
  --config              string   Path to YAML configuration file
  --host                string   Override the UI bind address (default 127.0.0.1)
  --port                int      Override the UI port
  --api                 string   Chat API address (default http://127.0.0.1:<API port>)
  --in-process                   Run the model in this process instead of calling the API
  --allow-api-override           Let the page choose the chat API address. The UI server
                                 will then call any address a browser sends it`

func web(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("web", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprintln(os.Stderr, webUsage) }

	var cfgPath, host, apiURL string
	var port int
	var inProcess, allowOverride bool
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&host, "host", "", "override UI bind address")
	fs.IntVar(&port, "port", 0, "override UI port")
	fs.StringVar(&apiURL, "api", "", "chat API address")
	fs.BoolVar(&inProcess, "in-process", false, "run the model in this process")
	fs.BoolVar(&allowOverride, "allow-api-override", false, "let the page choose the chat API address")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse web flags: %w", err)
	}
	if inProcess && apiURL != "" {
		return errors.New("--api and --in-process are mutually exclusive")
	}

	settings, err := loadSettings(cfgPath, 0, port)
	if err != nil {
		return err
	}
	if host != "" {
		settings.Server.UIHost = host
	}

	opts := ui.ServerOptions{Sampling: samplingFrom(settings), AllowAPIOverride: allowOverride}
	if allowOverride {
		logger.For(logger.UI).Warn().Msg("Web UI will call any chat API address a browser sends")
	}

	var server *ui.Server
	if inProcess {
		svc, err := services.InitializeServices(ctx, settings)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := warmUp(ctx, svc); err != nil {
			return err
		}
		server = ui.NewServer(ui.NewLocal(svc.ModelFor), opts)
	} else {
		if apiURL == "" {
			apiURL = fmt.Sprintf("http://127.0.0.1:%d", settings.Server.Port)
		}
		opts.APIURL = apiURL
		server = ui.NewRemoteServer(opts)
		logger.For(logger.UI).Info().Str("api", apiURL).Msg("Web UI will call the chat API")
	}

	srv := newHTTPServer(settings.Server.UIHost, settings.Server.UIPort, server.Handler(), settings.Server.WriteTimeout)
	return runServer(ctx, srv, nil)
}
