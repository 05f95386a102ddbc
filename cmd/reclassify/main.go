package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"thirdcoast.systems/scanwatch/internal/application"
	"thirdcoast.systems/scanwatch/internal/config"
	"thirdcoast.systems/scanwatch/internal/llm"
	"thirdcoast.systems/scanwatch/internal/recording"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "reclassify",
		Short: "Re-run classification for incidents still labelled unknown",
		Long: `Re-run classification for incidents whose label is still unknown.

Only rows with a real transcript of more than five words are sent to the
classifier. A row that already carries a label is never overwritten.`,
		Example: `  # Preview today's changes
  reclassify --bucket today --dry-run

  # Reclassify everything in small batches
  reclassify --batch-size 20`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReclassify(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Bucket, "bucket", "", `Day bucket (YYYY-MM-DD or "today"); empty means every bucket`)
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 50, "Rows fetched per page")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Stop after this many rows (0 = no limit)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print the new labels without writing them")

	return cmd
}

func runReclassify(cmd *cobra.Command, opts options) error {
	ctx := cmd.Context()
	conf, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	application.SetupLogging(conf.LogLevel, conf.LogFormat, "reclassify")

	bucket, err := resolveBucket(opts.Bucket, conf)
	if err != nil {
		return err
	}
	opts.Bucket = bucket

	dbc, err := application.OpenStore(ctx, *conf)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer dbc.Close()
	if err := dbc.CheckSchema(ctx); err != nil {
		return err
	}

	chat := llm.NewClient(llm.Config{
		APIURL:            conf.Services.LLMAPIURL,
		APIKey:            conf.Services.LLMAPIKey,
		RequestsPerSecond: conf.Services.RequestsPerSec,
	})
	cls := llm.NewClassifier(chat, conf.Services.LLMClassifyModel)

	start := time.Now()
	s, err := reclassify(ctx, dbc, cls, opts, cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "scanned %s, relabelled %s, unchanged %s, skipped %s, failed %s in %s\n",
		humanize.Comma(int64(s.Scanned)), humanize.Comma(int64(s.Relabelled)), humanize.Comma(int64(s.Unchanged)),
		humanize.Comma(int64(s.Skipped)), humanize.Comma(int64(s.Failed)), time.Since(start).Round(time.Millisecond))
	return err
}

func resolveBucket(raw string, conf *config.Config) (string, error) {
	switch raw {
	case "":
		return "", nil
	case "today":
		loc, err := conf.Location()
		if err != nil {
			return "", err
		}
		return recording.BucketOf(time.Now(), loc), nil
	}
	if _, err := time.Parse(recording.BucketLayout, raw); err != nil {
		return "", fmt.Errorf("invalid --bucket %q: want YYYY-MM-DD or today", raw)
	}
	return raw, nil
}
