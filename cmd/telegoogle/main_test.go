package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findCommand(t *testing.T, cmds []*cli.Command, name string) *cli.Command {
	t.Helper()
	for _, cmd := range cmds {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func TestAppCommands(t *testing.T) {
	app := newApp()

	for _, name := range []string{"crawl", "backfill", "search", "valuate", "serve", "sources"} {
		findCommand(t, app.Commands, name)
	}

	sources := findCommand(t, app.Commands, "sources")
	for _, name := range []string{"list", "add", "remove", "stats"} {
		findCommand(t, sources.Subcommands, name)
	}
}

func TestBackfillCommandFlags(t *testing.T) {
	cmd := findCommand(t, newApp().Commands, "backfill")

	t.Run("limit has default value", func(t *testing.T) {
		var limitFlag *cli.IntFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.IntFlag); ok && f.Name == "limit" {
				limitFlag = f
				break
			}
		}
		require.NotNil(t, limitFlag)
		assert.Equal(t, 500, limitFlag.Value)
	})

	t.Run("source is optional", func(t *testing.T) {
		var sourceFlag *cli.StringFlag
		for _, flag := range cmd.Flags {
			if f, ok := flag.(*cli.StringFlag); ok && f.Name == "source" {
				sourceFlag = f
				break
			}
		}
		require.NotNil(t, sourceFlag)
		assert.False(t, sourceFlag.Required)
		assert.Empty(t, sourceFlag.Value)
	})
}

func TestSetupLogger(t *testing.T) {
	newTestApp := func() *cli.App {
		return &cli.App{
			Name: "test",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Value: "info"},
				&cli.StringFlag{Name: "log-format", Value: "text"},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error {
				return nil
			},
		}
	}

	t.Run("valid log levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "WaRn"} {
			t.Run(level, func(t *testing.T) {
				err := newTestApp().Run([]string{"test", "--log-level", level})
				require.NoError(t, err)
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		err := newTestApp().Run([]string{"test", "--log-level", "verbose"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
		assert.Contains(t, err.Error(), "verbose")
	})

	t.Run("json format", func(t *testing.T) {
		err := newTestApp().Run([]string{"test", "--log-format", "json"})
		require.NoError(t, err)
	})

	t.Run("invalid log format returns error", func(t *testing.T) {
		err := newTestApp().Run([]string{"test", "--log-format", "xml"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log format")
	})
}

func TestQueryCommandsRequireQuery(t *testing.T) {
	for _, name := range []string{"search", "valuate"} {
		t.Run(name, func(t *testing.T) {
			err := newApp().Run([]string{"telegoogle", name})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "query is required")
		})
	}
}

func TestSourcesCommands(t *testing.T) {
	dir := t.TempDir()
	registryPath := filepath.Join(dir, "channels.txt")
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(
		"registry:\n  driver: file\n  path: "+registryPath+"\n"), 0o644))

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		app := newApp()
		app.Writer = &out
		err := app.Run(append([]string{"telegoogle", "--config", configPath, "sources"}, args...))
		return out.String(), err
	}

	out, err := run("add", "https://t.me/phones_market", "@cars_uz")
	require.NoError(t, err)
	assert.Contains(t, out, "added https://t.me/phones_market")
	assert.Contains(t, out, "added @cars_uz")

	out, err = run("add", "cars_uz")
	require.NoError(t, err)
	assert.Contains(t, out, "cars_uz unchanged")

	out, err = run("list")
	require.NoError(t, err)
	assert.Equal(t, "@phones_market\n@cars_uz\n", out)

	out, err = run("remove", "@phones_market")
	require.NoError(t, err)
	assert.Contains(t, out, "removed @phones_market")

	out, err = run("list")
	require.NoError(t, err)
	assert.Equal(t, "@cars_uz\n", out)

	_, err = run("add")
	require.Error(t, err)

	_, err = run("add", "not a channel!")
	require.Error(t, err)
}
