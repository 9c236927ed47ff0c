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


// Command seeder indexes exported posts from a JSON Lines file, one
// {"source", "id", "text", "date"} object per line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	telegoogle "github.com/shaxb/tele-google"
	"github.com/shaxb/tele-google/config"
	"github.com/shaxb/tele-google/core"
	"github.com/shaxb/tele-google/ingestion"
	"github.com/urfave/cli/v2"
)

// record is one exported post.
type record struct {
	Source   string    `json:"source"`
	ID       int64     `json:"id"`
	Text     string    `json:"text"`
	Date     time.Time `json:"date"`
	HasMedia bool      `json:"has_media"`
}

func main() {
	app := &cli.App{
		Name:  "seeder",
		Usage: "Index exported posts from a JSON Lines file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "JSON Lines file of posts",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
			},
		},
		Action: seed,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func seed(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(c.String("file"))
	if err != nil {
		return err
	}
	defer f.Close()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	svc, err := telegoogle.OpenService(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer svc.Close()

	pipeline, err := svc.NewPipeline(cfg.Pipeline.Options()...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	inserted, err := ingest(ctx, pipeline, records(f))
	pipeline.Wait()
	slog.Info("seeding complete", "processed", inserted)
	return err
}

// records returns an iterator over the posts in r. Malformed lines are
// logged and skipped.
func records(r io.Reader) iter.Seq[record] {
	return func(yield func(record) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			var rec record
			if err := json.Unmarshal([]byte(text), &rec); err != nil {
				slog.Warn("skipping malformed line", "line", line, "err", err)
				continue
			}
			if !yield(rec) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Error("error reading input", "err", err)
		}
	}
}

// ingest runs every record with a source and text through the pipeline and
// returns how many were processed.
func ingest(ctx context.Context, pipeline *ingestion.Pipeline, source iter.Seq[record]) (int, error) {
	processed := 0
	for rec := range source {
		if rec.Source == "" || strings.TrimSpace(rec.Text) == "" {
			continue
		}
		msg := core.Message{
			ID:       rec.ID,
			Text:     rec.Text,
			Date:     rec.Date,
			HasMedia: rec.HasMedia,
		}
		if err := pipeline.Process(ctx, msg, core.NormalizeSourceID(rec.Source)); err != nil {
			if ctx.Err() != nil {
				return processed, ctx.Err()
			}
			continue
		}
		processed++
	}
	return processed, nil
}
