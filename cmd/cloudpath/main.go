package main

import (
	"context"
	"fmt"
	"os"

	"github.com/andresuchdata/cloudpath/internal/config"
	"github.com/andresuchdata/cloudpath/internal/journal"
	"github.com/andresuchdata/cloudpath/internal/plan"
	"github.com/andresuchdata/cloudpath/internal/service"
	"github.com/andresuchdata/cloudpath/pkg/logger"
	"github.com/urfave/cli/v2"
)

type sessionKey struct{}

// session is what Before builds for every command.
type session struct {
	svc     *service.FileService
	journal journal.Store
	format  plan.Format
}

func fromContext(c *cli.Context) *session {
	s, _ := c.Context.Value(sessionKey{}).(*session)
	return s
}

func openSession(c *cli.Context) error {
	cfg := config.Load()

	level := cfg.Log.Level
	if c.IsSet("log-level") {
		level = c.String("log-level")
	}
	logger.SetLevel(level)

	format, err := plan.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}

	backend, err := service.OpenBackend(c.Context, c.String("backend"), cfg)
	if err != nil {
		return fmt.Errorf("failed to open backend: %w", err)
	}

	driver := cfg.Journal.Driver
	if c.IsSet("journal") {
		driver = c.String("journal")
	}
	j, err := journal.Open(c.Context, driver, cfg)
	if err != nil {
		backend.Close()
		return fmt.Errorf("failed to open journal: %w", err)
	}

	s := &session{svc: service.New(backend, j), journal: j, format: format}
	c.Context = context.WithValue(c.Context, sessionKey{}, s)
	return nil
}

func closeSession(c *cli.Context) error {
	s := fromContext(c)
	if s == nil {
		return nil
	}
	err := s.svc.Close()
	if s.journal != nil {
		if jerr := s.journal.Close(); err == nil {
			err = jerr
		}
	}
	return err
}

func main() {
	app := &cli.App{
		Name:  "cloudpath",
		Usage: "Path-oriented file operations over S3 and Google Drive",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Storage backend (s3 or drive)",
				Value:   "s3",
				EnvVars: []string{"CLOUDPATH_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "journal",
				Usage:   "Plan journal (none, badger, postgres or redis)",
				EnvVars: []string{"JOURNAL_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output format (text, json or yaml)",
				Value:   "text",
			},
		},
		Commands: commands(),
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("cloudpath failed")
	}
}
