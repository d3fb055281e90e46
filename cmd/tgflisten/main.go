package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/tgfilter/internal/config"
	"github.com/matheus3301/tgfilter/internal/ingest"
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
	if cfg.Listener.Token == "" {
		fmt.Fprintln(os.Stderr, "error: listener.token is not set (config or TGF_LISTENER__TOKEN)")
		os.Exit(1)
	}
	if cfg.Listener.ChannelID == 0 {
		fmt.Fprintln(os.Stderr, "warning: listener.channel_id is not set, posts from every channel are ingested")
	}
	name := instance.ResolveWith(*instanceFlag, *configFlag)
	if err := instance.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		ingest.Module(ingest.Params{Instance: name, Config: cfg}),
	)

	app.Run()
}
