package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/deepgram/glmchat/internal/apiclient"
	"github.com/deepgram/glmchat/internal/cli"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/services"
	"github.com/deepgram/glmchat/internal/ui"
)

const cliUsage = `Usage:
  glmchat cli [--config <path>] [--api <url>] [--top-p <f>] [--temperature <f>]

Flags:
  --config      string   Path to YAML configuration file
  --api         string   Chat API address; the model runs in this process when empty
  --name        string   Name shown before replies (default ChatGLM3-6B)
  --top-p       float    Top-p sampling (default 1)
  --temperature float    Sampling temperature (default 0.01)`

func runCLI(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprintln(os.Stderr, cliUsage) }

	var cfgPath, apiURL, name string
	var topP, temperature float64
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&apiURL, "api", "", "chat API address")
	fs.StringVar(&name, "name", "", "name shown before replies")
	fs.Float64Var(&topP, "top-p", float64(cli.DefaultSampling.TopP), "top-p sampling")
	fs.Float64Var(&temperature, "temperature", float64(cli.DefaultSampling.Temperature), "sampling temperature")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse cli flags: %w", err)
	}

	sampling := models.SamplingParameters{TopP: float32(topP), Temperature: float32(temperature)}
	if sampling.TopP < 0 || sampling.TopP > 1 || sampling.Temperature <= 0 {
		return fmt.Errorf("--top-p must be within [0, 1] and --temperature above 0")
	}

	var replier ui.Replier
	if apiURL != "" {
		replier = apiclient.New(apiURL)
	} else {
		settings, err := loadSettings(cfgPath, 0, 0)
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
		replier = ui.NewLocal(svc.ModelFor)
	}

	reader := cli.NewLineReader()
	defer reader.Close()

	session := cli.NewSession(replier, reader, os.Stdout, cli.Options{
		ModelName: name,
		Sampling:  sampling,
	})
	return session.Run(ctx)
}
