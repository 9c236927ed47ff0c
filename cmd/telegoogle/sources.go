package main

import (
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	telegoogle "github.com/shaxb/tele-google"
	"github.com/shaxb/tele-google/config"
	"github.com/shaxb/tele-google/registry"
	"github.com/urfave/cli/v2"
)

func openRegistry(c *cli.Context) (registry.Editor, func() error, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	reg, closeRegistry, err := telegoogle.OpenRegistry(c.Context, cfg.Registry, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open registry: %w", err)
	}
	return reg, closeRegistry, nil
}

func sourcesListCommand(c *cli.Context) error {
	reg, closeRegistry, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer closeRegistry()

	ids, err := reg.Load(c.Context)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(c.App.Writer, id)
	}
	return nil
}

func sourcesAddCommand(c *cli.Context) error {
	return editSources(c, "added", func(reg registry.Editor, id string) (bool, error) {
		return reg.Add(c.Context, id)
	})
}

func sourcesRemoveCommand(c *cli.Context) error {
	return editSources(c, "removed", func(reg registry.Editor, id string) (bool, error) {
		return reg.Remove(c.Context, id)
	})
}

func editSources(c *cli.Context, verb string, edit func(registry.Editor, string) (bool, error)) error {
	if c.NArg() == 0 {
		return errors.New("at least one source is required")
	}

	reg, closeRegistry, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer closeRegistry()

	for _, arg := range c.Args().Slice() {
		changed, err := edit(reg, arg)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		if changed {
			fmt.Fprintf(c.App.Writer, "%s %s\n", verb, arg)
		} else {
			fmt.Fprintf(c.App.Writer, "%s unchanged\n", arg)
		}
	}
	return nil
}

func sourcesStatsCommand(c *cli.Context) error {
	e, err := openEnv(c.Context, c)
	if err != nil {
		return err
	}
	defer e.svc.Close()

	stats, err := e.svc.Store().ListSourceStats(c.Context)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tINDEXED\tLAST MESSAGE\tLAST SCRAPED")
	var total int64
	for _, s := range stats {
		total += s.TotalIndexed
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			s.SourceID, humanize.Comma(s.TotalIndexed), s.LastMessageID, humanize.Time(s.LastScrapedAt))
	}
	fmt.Fprintf(tw, "total\t%s\t\t\n", humanize.Comma(total))
	return tw.Flush()
}
