package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/stentorlabs/stentor/pkg/cli"
	"github.com/stentorlabs/stentor/pkg/runtime"
)

// ChatCmd talks to the gateway core from the terminal, no HTTP server
// in between. Useful for trying out routing rules and provider
// cascades before deploying a config.
type ChatCmd struct {
	zeroConfigFlags

	Session string `help:"Resume an existing session id."`
	NoMeta  bool   `help:"Hide the strategy line printed under each answer."`
}

func (c *ChatCmd) Run(root *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, loader, err := loadGatewayConfig(root, c.zeroConfigFlags)
	if err != nil {
		return err
	}

	core, err := runtime.New(ctx, runtime.Options{Config: cfg, Loader: loader})
	if err != nil {
		if loader != nil {
			loader.Stop()
		}
		return fmt.Errorf("starting runtime: %w", err)
	}

	repl := cli.New(core, cli.Options{
		SessionID: c.Session,
		ShowMeta:  !c.NoMeta,
		Color:     term.IsTerminal(int(os.Stdout.Fd())),
	})

	err = repl.Run(ctx)
	if closeErr := core.Close(context.Background()); err == nil {
		err = closeErr
	}
	return err
}
