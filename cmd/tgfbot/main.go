package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/tgfilter/internal/config"
	"github.com/matheus3301/tgfilter/internal/delivery"
	"github.com/matheus3301/tgfilter/internal/instance"
	"go.uber.org/fx"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	configFlag := flag.String("config", instance.ConfigPath(), "config file path")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Bot.Token == "" {
		fmt.Fprintln(os.Stderr, "error: bot.token is not set (config or TGF_BOT__TOKEN)")
		os.Exit(1)
	}
	name := instance.ResolveWith(*instanceFlag, *configFlag)
	if err := instance.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		delivery.Module(delivery.Params{Instance: name, Config: cfg}),
	)

	app.Run()
}
