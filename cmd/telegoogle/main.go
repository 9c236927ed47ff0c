// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "telegoogle",
		Usage: "Semantic search over marketplace channels",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (default: ./config.yaml if present)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "crawl",
				Usage:  "Watch every registered source and index new listings",
				Action: crawlCommand,
			},
			{
				Name:   "backfill",
				Usage:  "Index the history of one or all registered sources",
				Action: backfillCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "Source to backfill (default: every registered source)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum messages per source (0 for no limit)",
						Value: 500,
					},
					&cli.Int64Flag{
						Name:  "min-id",
						Usage: "Only fetch messages with a higher ID",
						Value: 0,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search indexed listings",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   5,
					},
				},
			},
			{
				Name:      "valuate",
				Usage:     "Estimate the market price of an item",
				ArgsUsage: "<query>",
				Action:    valuateCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "currency",
						Usage: "Only use prices in this currency",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP query API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (default: server.addr from config)",
					},
				},
			},
			{
				Name:  "sources",
				Usage: "Manage the monitored sources",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List registered sources",
						Action: sourcesListCommand,
					},
					{
						Name:      "add",
						Usage:     "Register sources",
						ArgsUsage: "<source>...",
						Action:    sourcesAddCommand,
					},
					{
						Name:      "remove",
						Usage:     "Unregister sources",
						ArgsUsage: "<source>...",
						Action:    sourcesRemoveCommand,
					},
					{
						Name:   "stats",
						Usage:  "Show indexing statistics per source",
						Action: sourcesStatsCommand,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format := strings.ToLower(c.String("log-format")); format {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", format)
	}
	slog.SetDefault(slog.New(handler))

	return nil
}
