package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/cnosuke/feed-audit/app"
	"github.com/cnosuke/feed-audit/config"
	"github.com/cnosuke/feed-audit/server"
)

var (
	// Version and Revision are replaced when building.
	// To set specific version, edit Makefile.
	Version  = "0.0.1"
	Revision = "xxx"

	Name  = "feed-audit"
	Usage = "Audit e-commerce product feeds and alert on broken offers"
)

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = Name
	cliApp.Version = fmt.Sprintf("%s (%s)", Version, Revision)
	cliApp.Usage = Usage
	cliApp.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "config.yml",
			Usage:   "path to the configuration file",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "override log.level (debug, info, warn, error)",
		},
	}
	cliApp.Action = runCommand
	cliApp.Commands = []*cli.Command{
		{
			Name:   "run",
			Usage:  "audit every configured feed once and update today's stats",
			Action: runCommand,
		},
		{
			Name:      "check",
			Usage:     "audit a single feed and print its issues as JSON",
			ArgsUsage: "<url>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "owner", Usage: "owner name used in the report"},
				&cli.BoolFlag{Name: "deliver", Usage: "also send alerts to the console, log file and Telegram"},
			},
			Action: checkCommand,
		},
		{
			Name:   "summary",
			Usage:  "send the summary of today's stats",
			Action: summaryCommand,
		},
		{
			Name:   "serve",
			Usage:  "serve the audit tools over MCP stdio",
			Action: serveCommand,
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, func(), error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load configuration")
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	undo := zap.ReplaceGlobals(logger)
	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Log.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	// stdout carries alerts, and the MCP protocol when serving.
	zapCfg.OutputPaths = []string{"stderr"}

	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", cfg.Log.Level)
	}
	zapCfg.Level = level

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create logger")
	}
	return logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCommand(c *cli.Context) error {
	cfg, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	_, err = a.RunOnce(ctx)
	return err
}

func checkCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("check expects exactly one feed URL")
	}
	cfg, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	check := a.Check
	if c.Bool("deliver") {
		check = a.CheckAndDeliver
	}
	res, collector, err := check(ctx, c.String("owner"), c.Args().First())
	if err != nil {
		return err
	}

	out := struct {
		Result   any `json:"result"`
		Failures any `json:"failures"`
		Reports  any `json:"reports"`
	}{res, collector.Failures(), collector.Reports()}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return errors.Wrap(err, "failed to write result")
	}

	if res.HasErrors() {
		return cli.Exit("", 2)
	}
	return nil
}

func summaryCommand(c *cli.Context) error {
	cfg, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	_, err = a.SendSummary(c.Context)
	return err
}

func serveCommand(c *cli.Context) error {
	cfg, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()

	return server.Run(cfg, Name, Version, Revision)
}
