package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/mux"

	"github.com/deepgram/glmchat/internal/api/routes"
	"github.com/deepgram/glmchat/internal/config"
	"github.com/deepgram/glmchat/internal/connections"
	"github.com/deepgram/glmchat/internal/logger"
	"github.com/deepgram/glmchat/internal/services"
)

const usage = `glmchat serves and talks to ChatGLM3 / Qwen chat models.

Usage:
  glmchat <command> [flags]

Commands:
  serve    Start the chat HTTP API
  web      Start the browser chat UI
  cli      Chat in the terminal
  smoke    Ask two fixed questions and time the answers
  help     Show this help message

Run "glmchat <command> -h" for command flags.`

func main() {
	config.LoadDotEnv()
	logger.Init()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "shutdown requested, exiting")
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "web":
		return web(ctx, args[1:])
	case "cli":
		return runCLI(ctx, args[1:])
	case "smoke":
		return smoke(ctx, args[1:])
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}

func setupRouter(svc *services.Services, manager *connections.Manager) *mux.Router {
	r := mux.NewRouter()
	routes.RegisterRoutes(r, svc, manager)
	return r
}
