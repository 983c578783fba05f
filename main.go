package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ollama/tokfixtures/cmd"
	"github.com/ollama/tokfixtures/envconfig"
)

func main() {
	if err := cmd.LoadDotEnv(".env"); err != nil {
		log.Fatal(err)
	}

	// pick up values from .env
	envconfig.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cobra.CheckErr(cmd.NewCLI().ExecuteContext(ctx))
}
