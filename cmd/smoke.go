package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/deepgram/glmchat/internal/config"
	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/logger"
	"github.com/deepgram/glmchat/internal/services"
	"github.com/deepgram/glmchat/internal/ui"
)

const smokeUsage = `Usage:
  glmchat smoke [--config <path>]

Asks two fixed questions in one conversation and prints each answer with the
time it took.`

var smokeQuestions = []string{"Hello!", "When is Christmas?"}

func smoke(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("smoke", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprintln(os.Stderr, smokeUsage) }

	var cfgPath string
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse smoke flags: %w", err)
	}

	settings, err := loadSettings(cfgPath, 0, 0)
	if err != nil {
		return err
	}

	svc, err := services.InitializeServices(ctx, settings)
	if err != nil {
		return err
	}
	defer svc.Close()

	if _, err := svc.GetChatFactory().GetModel(); err != nil {
		return fmt.Errorf("initialize model: %w", err)
	}

	return runSmoke(ctx, ui.NewLocal(svc.ModelFor), samplingFrom(settings), smokeQuestions, os.Stdout)
}

func runSmoke(ctx context.Context, replier ui.Replier, params models.SamplingParameters, questions []string, out io.Writer) error {
	l := logger.For(logger.APP)

	var history []models.ConversationTurn
	for _, question := range questions {
		start := time.Now()
		fmt.Fprintf(out, "Q: %s\n", question)

		history = append(history, models.NewTurn(question))
		answer, err := replier.Chat(ctx, history, params)
		if err != nil {
			return fmt.Errorf("ask %q: %w", question, err)
		}
		history[len(history)-1] = history[len(history)-1].WithModel(answer)

		elapsed := time.Since(start).Seconds()
		fmt.Fprintf(out, "A: %s\n", answer)
		fmt.Fprintf(out, "Took: %.2fs\n\n", elapsed)
		l.Info().Str("question", question).Float64("seconds", elapsed).Msg("Smoke question answered")
	}
	return nil
}

func samplingFrom(settings config.Settings) models.SamplingParameters {
	return models.SamplingParameters{
		TopP:        settings.Sampling.TopP,
		Temperature: settings.Sampling.Temperature,
	}
}
