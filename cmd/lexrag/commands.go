package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/poiesic/lexrag"
	"github.com/poiesic/lexrag/core"
	"github.com/poiesic/lexrag/ingestion"
	"github.com/poiesic/lexrag/reembed"
	"github.com/poiesic/lexrag/search"
	"github.com/urfave/cli/v2"
)

type opener func(c *cli.Context) (*lexrag.Service, error)

func serveCommand(c *cli.Context, open opener) error {
	svc, err := open(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	status := svc.SchedulerStatus()
	slog.Info("serving", "scheduler_enabled", status.Enabled, "interval", status.Interval, "next_run", status.NextRunAt)

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func ingestCommand(c *cli.Context, open opener) error {
	sources, err := parseNamedURLs(c.StringSlice("url"))
	if err != nil {
		return err
	}
	var files []ingestion.FileInput
	for _, path := range c.StringSlice("file") {
		f, err := ingestion.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		files = append(files, f)
	}

	svc, err := open(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.RunIngestion(c.Context, lexrag.IngestionRequest{Sources: sources, Files: files})
	if report != nil {
		printReport(c.App.Writer, report)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	if report.Status == core.RunStatusFailure {
		return errors.New("ingestion failed: no unit was ingested successfully")
	}
	return nil
}

func previewCommand(c *cli.Context, open opener) error {
	sources, err := parseNamedURLs(c.StringSlice("url"))
	if err != nil {
		return err
	}

	svc, err := open(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	docs, err := svc.Preview(c.Context, sources...)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}
	printPreview(c.App.Writer, docs)
	return nil
}

func searchCommand(c *cli.Context, open opener) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("a query is required")
	}

	svc, err := open(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	var monitor search.SearchMonitor
	if c.Bool("trace") {
		monitor = &search.LogMonitor{Logger: slog.Default()}
	}
	results, err := svc.SearchWithMonitor(c.Context, query, c.Int("top-k"), float32(c.Float64("threshold")), monitor)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	printResults(c.App.Writer, results)
	return nil
}

func askCommand(c *cli.Context, open opener) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a question is required")
	}

	svc, err := open(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	answer, err := svc.Answer(c.Context, question)
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}
	printAnswer(c.App.Writer, answer)
	return nil
}

func sourcesListCommand(c *cli.Context, open opener) error {
	svc, err := open(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	sources, err := svc.ListSources(c.Context)
	if err != nil {
		return err
	}
	printSources(c.App.Writer, sources)
	return nil
}

func sourcesAddCommand(c *cli.Context, open opener) error {
	source, err := sourceFromArgs(c)
	if err != nil {
		return err
	}
	return withService(c, open, func(ctx context.Context, svc *lexrag.Service) error {
		added, err := svc.AddSource(ctx, source)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Added source %q (%s)\n", added.Name, added.URL)
		return nil
	})
}

func sourcesUpdateCommand(c *cli.Context, open opener) error {
	source, err := sourceFromArgs(c)
	if err != nil {
		return err
	}
	return withService(c, open, func(ctx context.Context, svc *lexrag.Service) error {
		updated, err := svc.UpdateSource(ctx, source)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Updated source %q (%s)\n", updated.Name, updated.URL)
		return nil
	})
}

func sourcesRemoveCommand(c *cli.Context, open opener) error {
	if c.NArg() != 1 {
		return errors.New("usage: sources remove <name>")
	}
	name := c.Args().First()
	return withService(c, open, func(ctx context.Context, svc *lexrag.Service) error {
		if err := svc.RemoveSource(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Removed source %q\n", name)
		return nil
	})
}

func statusCommand(c *cli.Context, open opener) error {
	return withService(c, open, func(ctx context.Context, svc *lexrag.Service) error {
		printStatus(c.App.Writer, svc.SchedulerStatus())
		return nil
	})
}

func healthCommand(c *cli.Context, open opener) error {
	return withService(c, open, func(ctx context.Context, svc *lexrag.Service) error {
		health, err := svc.StoreHealth(ctx)
		if err != nil {
			return err
		}
		printHealth(c.App.Writer, health)
		return nil
	})
}

func runsCommand(c *cli.Context, open opener) error {
	limit := c.Int("limit")
	if limit <= 0 {
		return fmt.Errorf("limit must be greater than 0")
	}
	return withService(c, open, func(ctx context.Context, svc *lexrag.Service) error {
		runs, err := svc.RecentRuns(ctx, limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(c.App.Writer, "No ingestion runs recorded")
			return nil
		}
		for _, run := range runs {
			printReport(c.App.Writer, run)
		}
		return nil
	})
}

func reembedCommand(c *cli.Context, open opener) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	return withService(c, open, func(ctx context.Context, svc *lexrag.Service) error {
		health, err := svc.StoreHealth(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.ErrWriter, "Index: %s\n", health.Path)
		fmt.Fprintf(c.App.ErrWriter, "Collection: %s\n", health.Collection)
		fmt.Fprintln(c.App.ErrWriter)

		if _, err := svc.Reembed(ctx, reembedConfig, c.App.ErrWriter); err != nil {
			return fmt.Errorf("reembedding failed: %w", err)
		}
		return nil
	})
}

func withService(c *cli.Context, open opener, fn func(ctx context.Context, svc *lexrag.Service) error) error {
	svc, err := open(c)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(c.Context, svc)
}

func sourceFromArgs(c *cli.Context) (*core.Source, error) {
	if c.NArg() != 2 {
		return nil, fmt.Errorf("usage: sources %s <name> <url>", c.Command.Name)
	}
	return &core.Source{
		Name:            c.Args().Get(0),
		URL:             c.Args().Get(1),
		Selector:        c.String("selector"),
		ExcludePatterns: c.StringSlice("exclude"),
	}, nil
}

// parseNamedURLs turns name=url pairs into sources. A bare URL is named
// after itself.
func parseNamedURLs(values []string) ([]*core.Source, error) {
	sources := make([]*core.Source, 0, len(values))
	for _, v := range values {
		name, url, ok := strings.Cut(v, "=")
		if !ok || strings.Contains(name, "://") {
			name, url = v, v
		}
		source := &core.Source{Name: strings.TrimSpace(name), URL: strings.TrimSpace(url)}
		if err := core.ValidateSource(source); err != nil {
			return nil, fmt.Errorf("--url %q: %w", v, err)
		}
		sources = append(sources, source)
	}
	return sources, nil
}
