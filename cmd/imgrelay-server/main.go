package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"imgrelay-server-go/internal/bootstrap"
)

func main() {
	app := cli.App{
		Name:  "imgrelay-server",
		Usage: "on-demand image relay that re-encodes images to save bandwidth",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file (default ./config.yaml when present)",
				EnvVars: []string{"IMGRELAY_CONFIG_FILE"},
			},
			&cli.BoolFlag{
				Name:  "dotenv",
				Usage: "load variables from .env before reading config",
				Value: true,
			},
			&cli.StringSliceFlag{
				Name:  "dotenv-file",
				Usage: "explicit .env files to load",
			},
		},
		Action: func(ctx *cli.Context) error {
			fmt.Printf("[%s] [INFO] [BOOT] starting imgrelay-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
			return bootstrap.Run(ctx.Context, bootstrap.Options{
				ConfigPath: ctx.String("config"),
				DotEnv:     ctx.Bool("dotenv"),
				DotEnvFile: ctx.StringSlice("dotenv-file"),
			})
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "imgrelay-server failed: %v\n", err)
		os.Exit(1)
	}
}
