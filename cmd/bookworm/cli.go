package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bookworm-app/bookworm/internal/config"
	"github.com/bookworm-app/bookworm/internal/logger"
	"github.com/bookworm-app/bookworm/internal/scheduler"
	"github.com/bookworm-app/bookworm/internal/server"
)

// setup loads the configuration, initializes logging and wires the app.
func setup(c *cli.Context) (*app, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if format := c.String("log-format"); format != "" {
		cfg.Logging.Format = format
	}

	// one-shot commands print results on stdout
	out := os.Stdout
	if c.Command.Name != "serve" {
		out = os.Stderr
	}
	logger.Setup(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     logger.ParseLogFormat(cfg.Logging.Format),
		Output:     out,
		TimeFormat: time.RFC3339,
	})
	log := logger.Get()

	log.Info("Starting bookworm", map[string]interface{}{
		"version":    version,
		"command":    c.Command.Name,
		"log_level":  log.GetLevel().String(),
		"log_format": cfg.Logging.Format,
		"database":   cfg.Database.Type,
		"indexers":   len(cfg.Searchers.Newznab.Indexers),
	})

	return newApp(cfg, log)
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func serve(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(c)
	defer stop()

	if path := c.String("config"); c.Bool("watch") && path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := a.settings.WatchFile(path); err != nil {
				a.log.Warn("Config file changes will not be picked up", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	srv := server.New(":"+a.cfg.Server.Port, a.db, a.scheduler, a.log)
	srv.SetShutdownTimeout(a.cfg.Server.ShutdownTimeout)
	a.scheduler.Add(srv)

	a.log.Info("Scheduler started", map[string]interface{}{
		"search_interval":      a.scheduler.Interval(scheduler.JobSearch).String(),
		"postprocess_interval": a.scheduler.Interval(scheduler.JobPostProcess).String(),
		"refresh_interval":     a.scheduler.Interval(scheduler.JobRefresh).String(),
	})

	if err := a.scheduler.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("Shutdown complete", nil)
	return nil
}

// runJob runs one scheduler job to completion.
func runJob(name string) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := setup(c)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signalContext(c)
		defer stop()
		return a.scheduler.RunNow(ctx, name)
	}
}

var (
	searchOnce      = runJob(scheduler.JobSearch)
	postProcessOnce = runJob(scheduler.JobPostProcess)
	refreshOnce     = runJob(scheduler.JobRefresh)
)

func addAuthor(c *cli.Context) error {
	name := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if name == "" {
		return cli.Exit("add-author needs an author name", 2)
	}

	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(c)
	defer stop()

	author, err := a.engine.AddAuthor(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to add author: %w", err)
	}
	books, err := a.engine.RefreshAuthor(ctx, author)
	if err != nil {
		return fmt.Errorf("failed to import books: %w", err)
	}
	author.Books = books
	return printJSON(author)
}

func discover(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return cli.Exit("discover needs a query", 2)
	}

	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(c)
	defer stop()

	books, err := a.engine.DiscoverBooks(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to discover books: %w", err)
	}
	return printJSON(books)
}

func printJSON(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
