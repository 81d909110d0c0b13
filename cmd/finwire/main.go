package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	"FinWire/internal/app"
	"FinWire/internal/config"
	"FinWire/internal/domain"
	"FinWire/internal/usecase"
)

type options struct {
	Run     runCommand     `command:"run" description:"Execute one pipeline pass"`
	Requeue requeueCommand `command:"requeue" description:"Reset a parked item at a stage"`
	Status  statusCommand  `command:"status" description:"Show per-stage progress"`
}

type runCommand struct {
	MaxItems      int  `long:"max-items" description:"Cap items processed per stage"`
	SkipIngest    bool `long:"skip-ingest" description:"Skip the feed ingestion stage"`
	SkipFilter    bool `long:"skip-filter" description:"Skip the relevance filter stage"`
	SkipSummarize bool `long:"skip-summarize" description:"Skip the summarization stage"`
	SkipPublish   bool `long:"skip-publish" description:"Skip the publication stage"`
	SkipDigest    bool `long:"skip-digest" description:"Skip digest generation"`
}

func (c *runCommand) Execute(args []string) error {
	cfg := config.Load()
	if c.MaxItems > 0 {
		cfg.Pipeline.MaxItemsPerStage = c.MaxItems
	}

	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := application.Run(ctx, usecase.RunOptions{
		SkipIngest:    c.SkipIngest,
		SkipFilter:    c.SkipFilter,
		SkipSummarize: c.SkipSummarize,
		SkipPublish:   c.SkipPublish,
		SkipDigest:    c.SkipDigest,
	})

	fmt.Printf("ingested=%d filtered=%d summarized=%d published=%d errors=%d duration=%s\n",
		stats.Ingested, stats.Filtered, stats.Summarized, stats.Published,
		stats.Errors, stats.Duration.Round(0))
	if stats.Errors > 0 {
		return fmt.Errorf("%d stage(s) failed", stats.Errors)
	}
	return nil
}

type requeueCommand struct {
	Args struct {
		ItemID string `positional-arg-name:"item-id" required:"yes"`
		Stage  string `positional-arg-name:"stage" required:"yes"`
	} `positional-args:"yes"`
}

func (c *requeueCommand) Execute(args []string) error {
	stage := domain.Stage(c.Args.Stage)
	valid := false
	for _, s := range domain.Stages() {
		if s == stage {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown stage %q (expected one of %v)", c.Args.Stage, domain.Stages())
	}

	application, err := app.New(config.Load())
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Ledger.Requeue(context.Background(), c.Args.ItemID, stage); err != nil {
		return err
	}
	fmt.Printf("item %s requeued at stage %s\n", c.Args.ItemID, stage)
	return nil
}

type statusCommand struct{}

func (c *statusCommand) Execute(args []string) error {
	application, err := app.New(config.Load())
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := context.Background()

	counts, err := application.Ledger.StageCounts(ctx)
	if err != nil {
		return err
	}
	for _, stage := range domain.Stages() {
		fmt.Printf("%-12s %d\n", stage, counts[stage])
	}

	digests, err := application.Digests.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-12s %d\n", "digests", digests)

	for _, stage := range domain.Stages() {
		failed, err := application.Ledger.FailedItems(ctx, stage)
		if err != nil {
			return err
		}
		for _, event := range failed {
			fmt.Printf("parked %s at %s: %s\n", event.ItemID, event.Stage, event.ErrorDetail)
		}
	}
	return nil
}

func main() {
	parser := flags.NewParser(&options{}, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
