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
	"time"

	"github.com/poiesic/lexrag"
	"github.com/poiesic/lexrag/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newApp builds the command tree. opts are passed to every Service the
// commands open.
func newApp(opts ...lexrag.Option) *cli.App {
	open := func(c *cli.Context) (*lexrag.Service, error) {
		return openService(c, opts...)
	}
	sourceFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "selector",
			Usage: "CSS selector for the main content region",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "URL substring that is never fetched (repeatable)",
		},
	}

	return &cli.App{
		Name:  "lexrag",
		Usage: "Index legal documents from government websites and search them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				Value:   "lexrag.yaml",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "Index directory (overrides the configuration)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the ingestion scheduler until interrupted",
				Action: func(c *cli.Context) error { return serveCommand(c, open) },
			},
			{
				Name:   "ingest",
				Usage:  "Run one ingestion now over configured sources, or over the given URLs and files",
				Action: func(c *cli.Context) error { return ingestCommand(c, open) },
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "url",
						Usage: "Ad-hoc source as name=url (repeatable)",
					},
					&cli.StringSliceFlag{
						Name:  "file",
						Usage: "PDF, text or markdown file to ingest (repeatable)",
					},
				},
			},
			{
				Name:   "preview",
				Usage:  "Fetch, extract and chunk without indexing",
				Action: func(c *cli.Context) error { return previewCommand(c, open) },
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "url",
						Usage: "Source to preview as name=url (repeatable); defaults to configured sources",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find the chunks most similar to a query",
				ArgsUsage: "<query>",
				Action:    func(c *cli.Context) error { return searchCommand(c, open) },
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Maximum number of results (0 uses the configured default)",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity score in [0, 1] (negative uses the configured default)",
						Value: -1,
					},
					&cli.BoolFlag{
						Name:  "trace",
						Usage: "Log timing of each search stage",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the indexed documents",
				ArgsUsage: "<question>",
				Action:    func(c *cli.Context) error { return askCommand(c, open) },
			},
			{
				Name:  "sources",
				Usage: "Manage configured websites",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List configured sources",
						Action: func(c *cli.Context) error { return sourcesListCommand(c, open) },
					},
					{
						Name:      "add",
						Usage:     "Add a source",
						ArgsUsage: "<name> <url>",
						Flags:     sourceFlags,
						Action:    func(c *cli.Context) error { return sourcesAddCommand(c, open) },
					},
					{
						Name:      "update",
						Usage:     "Replace the URL, selector and exclude patterns of a source",
						ArgsUsage: "<name> <url>",
						Flags:     sourceFlags,
						Action:    func(c *cli.Context) error { return sourcesUpdateCommand(c, open) },
					},
					{
						Name:      "remove",
						Usage:     "Remove a source; its indexed documents are kept",
						ArgsUsage: "<name>",
						Action:    func(c *cli.Context) error { return sourcesRemoveCommand(c, open) },
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show scheduler status",
				Action: func(c *cli.Context) error { return statusCommand(c, open) },
			},
			{
				Name:   "health",
				Usage:  "Show index health",
				Action: func(c *cli.Context) error { return healthCommand(c, open) },
			},
			{
				Name:   "runs",
				Usage:  "Show recent ingestion runs",
				Action: func(c *cli.Context) error { return runsCommand(c, open) },
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to show",
						Value: 10,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed every indexed chunk with the configured embedding model",
				Action: func(c *cli.Context) error { return reembedCommand(c, open) },
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

// openService loads the configuration named by the global flags and opens
// the index.
func openService(c *cli.Context, opts ...lexrag.Option) (*lexrag.Service, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	opts = append([]lexrag.Option{lexrag.WithLogger(slog.Default())}, opts...)
	svc, err := lexrag.NewService(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", cfg.DataDir, err)
	}
	return svc, nil
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
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

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
