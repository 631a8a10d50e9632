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
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/docrag"
	"github.com/poiesic/docrag/ai"
	"github.com/poiesic/docrag/config"
	"github.com/urfave/cli/v2"
)

// newProvider builds the AI provider of every command.
var newProvider = docrag.NewProvider

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "docrag",
		Usage:     "Ask questions about your documents",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (default from DOCRAG_DB, then docrag.db)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load settings from this .env file if it exists",
				Value: ".env",
			},
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
				Name:  "backend",
				Usage: "AI backend (openai, service)",
			},
			&cli.StringFlag{
				Name:  "ai-host",
				Usage: "Host of both the embedding and generation services",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
			},
			&cli.StringFlag{
				Name:  "generation-model",
				Usage: "Generation model name",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			serveCommand(),
			ingestCommand(),
			embedCommand(),
			listCommand(),
			searchCommand(),
			askCommand(),
			statsCommand(),
			reembedCommand(),
		},
	}
}

// loadConfig reads the env file and applies the global flags over it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, err
	}

	if db := c.String("db"); db != "" {
		cfg.DatabasePath = db
	}
	if backend := c.String("backend"); backend != "" {
		cfg.AI.Backend = backend
	}
	if host := c.String("ai-host"); host != "" {
		cfg.AI.EmbeddingHost = host
		cfg.AI.GenerationHost = host
	}
	if model := c.String("embedding-model"); model != "" {
		cfg.AI.EmbeddingModel = model
	}
	if model := c.String("generation-model"); model != "" {
		cfg.AI.GenerationModel = model
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openDatabase(c *cli.Context, opts ...docrag.DatabaseOption) (*docrag.Database, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	provider, err := newProvider(cfg.AI)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AI provider: %w", err)
	}

	opts = append([]docrag.DatabaseOption{
		docrag.WithConfig(cfg),
		docrag.WithProvider(provider),
		docrag.WithLogger(slog.Default()),
	}, opts...)
	db, err := docrag.NewDatabase(cfg.DatabasePath, opts...)
	if err != nil {
		provider.Close()
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, cfg, nil
}

// describeAI prints where embeddings and answers come from.
func describeAI(w io.Writer, cfg *ai.Config) {
	fmt.Fprintf(w, "Backend: %s\n", cfg.Backend)
	fmt.Fprintf(w, "Embedding: %s (%s)\n", cfg.EmbeddingHost, cfg.EmbeddingModel)
	fmt.Fprintf(w, "Generation: %s (%s)\n", cfg.GenerationHost, cfg.GenerationModel)
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
		return fmt.Errorf("invalid log format %q: must be text or json", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func shortDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
