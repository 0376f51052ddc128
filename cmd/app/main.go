// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"codeberg.org/synchro/synchroweb/internal/config"
	"codeberg.org/synchro/synchroweb/internal/server"
)

func main() {
	cmd := &cli.Command{
		Name:   "synchroweb",
		Usage:  "Run the Synchro account site",
		Flags:  config.Flags(),
		Action: server.Run,
		Commands: []*cli.Command{
			{
				Name:  "cull",
				Usage: "Delete unverified accounts once and exit",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Minimum account age, overrides --cull-max-age",
					},
				},
				Action: server.Cull,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
