// Command infinity is a thin CLI over the Infinity client library: submit
// parameterized batches, poll or await them, and download artifacts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/toinfinity/infinity-go/internal/api"
	"github.com/toinfinity/infinity-go/internal/batch"
	"github.com/toinfinity/infinity-go/internal/config"
	"github.com/toinfinity/infinity-go/internal/model"
	"github.com/toinfinity/infinity-go/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg.Log.Level)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	if cfg.API.Token == "" {
		log.Fatal().Msg("no API token configured (set INFINITY_TOKEN)")
	}
	client := api.NewClient(&cfg.API, log)

	ctx := context.Background()
	switch os.Args[1] {
	case "submit":
		err = runSubmit(ctx, client, cfg, log, os.Args[2:])
	case "status":
		err = runStatus(ctx, client, log, os.Args[2:])
	case "await":
		err = runAwait(ctx, client, log, os.Args[2:])
	case "download":
		err = runDownload(ctx, client, log, os.Args[2:])
	case "batches":
		err = runBatches(ctx, client, os.Args[2:])
	case "usage":
		err = runUsage(ctx, client, os.Args[2:])
	case "generators":
		err = runGenerators(ctx, client)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: infinity <command> [flags]

commands:
  submit      submit a batch of job specs from a JSON params file
  status      poll a batch once and print job states
  await       poll a batch until completion or timeout
  download    download artifacts of succeeded jobs
  batches     list batches submitted in the last N days
  usage       show per-generator job counts for the last N days
  generators  list available generators and their parameter schemas`)
}

func runSubmit(ctx context.Context, client *api.Client, cfg *config.Config, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	generator := fs.String("generator", "", "target generator name")
	paramsFile := fs.String("params", "", "path to a JSON file holding an array of job parameter maps")
	preview := fs.Bool("preview", false, "submit preview jobs instead of standard ones")
	name := fs.String("name", "", "display name for the batch")
	random := fs.Bool("random", false, "fill unspecified parameters with random samples instead of defaults")
	fs.Parse(args)

	if *generator == "" || *paramsFile == "" {
		return fmt.Errorf("submit requires -generator and -params")
	}
	data, err := os.ReadFile(*paramsFile)
	if err != nil {
		return fmt.Errorf("failed to read params file: %w", err)
	}
	var params []model.JobParams
	if err := json.Unmarshal(data, &params); err != nil {
		return fmt.Errorf("failed to parse params file: %w", err)
	}

	sess, err := session.New(ctx, client, *generator, cfg.Storage.Dir, log)
	if err != nil {
		return err
	}
	kind := model.JobKindStandard
	if *preview {
		kind = model.JobKindPreview
	}
	b, err := sess.Submit(ctx, &session.SubmitRequest{
		Params:     params,
		Kind:       kind,
		Name:       *name,
		FillRandom: *random,
	})
	if err != nil {
		return err
	}
	fmt.Printf("submitted batch %s (%d jobs)\nsnapshot: %s\n", b.ID, len(b.Jobs), b.SnapshotPath)
	return nil
}

// loadBatch resolves a batch from either a snapshot file or a remote ID.
func loadBatch(ctx context.Context, client *api.Client, log zerolog.Logger, snapshot, batchID string) (*batch.Batch, error) {
	switch {
	case snapshot != "":
		return batch.LoadSnapshot(snapshot, client, log)
	case batchID != "":
		return batch.FromRemote(ctx, client, log, batchID, "")
	default:
		return nil, fmt.Errorf("specify -snapshot or -batch")
	}
}

func runStatus(ctx context.Context, client *api.Client, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	snapshot := fs.String("snapshot", "", "path to a batch snapshot file")
	batchID := fs.String("batch", "", "remote batch ID")
	fs.Parse(args)

	b, err := loadBatch(ctx, client, log, *snapshot, *batchID)
	if err != nil {
		return err
	}
	if err := b.Poll(ctx); err != nil {
		return err
	}
	return printJobs(b)
}

func printJobs(b *batch.Batch) error {
	out, err := json.MarshalIndent(b.Jobs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("batch %s (%s): %d jobs, %d remaining\n%s\n", b.ID, b.Name, len(b.Jobs), b.NumRemaining(), out)
	return nil
}

func runAwait(ctx context.Context, client *api.Client, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("await", flag.ExitOnError)
	snapshot := fs.String("snapshot", "", "path to a batch snapshot file")
	batchID := fs.String("batch", "", "remote batch ID")
	interval := fs.Duration("interval", 10*time.Second, "polling interval")
	timeout := fs.Duration("timeout", 30*time.Minute, "maximum time to wait")
	fs.Parse(args)

	b, err := loadBatch(ctx, client, log, *snapshot, *batchID)
	if err != nil {
		return err
	}
	if err := b.AwaitCompletion(ctx, *interval, *timeout); err != nil {
		return err
	}
	return printJobs(b)
}

func runDownload(ctx context.Context, client *api.Client, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	snapshot := fs.String("snapshot", "", "path to a batch snapshot file")
	batchID := fs.String("batch", "", "remote batch ID")
	out := fs.String("out", "", "destination directory")
	fs.Parse(args)

	if *out == "" {
		return fmt.Errorf("download requires -out")
	}
	b, err := loadBatch(ctx, client, log, *snapshot, *batchID)
	if err != nil {
		return err
	}
	if err := b.Poll(ctx); err != nil {
		return err
	}
	report, err := b.Download(ctx, *out)
	if report != nil {
		fmt.Printf("downloaded: %d, skipped pending: %d, skipped failed: %d, errors: %d\n",
			len(report.Downloaded), len(report.SkippedPending), len(report.SkippedFailed), len(report.Failed))
	}
	return err
}

func runBatches(ctx context.Context, client *api.Client, args []string) error {
	fs := flag.NewFlagSet("batches", flag.ExitOnError)
	days := fs.Int("days", 7, "how many days back to list")
	fs.Parse(args)

	end := time.Now()
	entries, err := client.ListBatches(ctx, end.AddDate(0, 0, -*days), end)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s  %-24s  %3d jobs  %s\n", e.ID, e.Name, e.JobCount, e.Created.Format(time.RFC3339))
	}
	return nil
}

func runUsage(ctx context.Context, client *api.Client, args []string) error {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	days := fs.Int("days", 30, "how many days back to count")
	fs.Parse(args)

	stats, err := client.GetUsageLastNDays(ctx, *days)
	if err != nil {
		return err
	}
	for generator, n := range stats.Counts {
		fmt.Printf("%-24s %d\n", generator, n)
	}
	fmt.Printf("total: %d\n", stats.Total)
	return nil
}

func runGenerators(ctx context.Context, client *api.Client) error {
	infos, err := client.GetGenerators(ctx)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
