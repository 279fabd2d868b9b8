package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"go-blur-halo/pkg/comm"
	"go-blur-halo/pkg/coordinator"
	"go-blur-halo/pkg/filter"
	"go-blur-halo/pkg/partition"
	"go-blur-halo/pkg/processor"
	"go-blur-halo/pkg/queue"
	"go-blur-halo/pkg/stats"
)

type options struct {
	transport string
	workers   int
	rank      int
	size      int
	redisAddr string
	runID     string
	compress  bool
	reportDir string
	verbose   bool
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "service <input-path> <output-path> <filter-name>",
		Short: "Apply a pixel filter to a PPM image across a group of workers",
		Long: fmt.Sprintf("Apply a pixel filter to an image split row-wise across a group of workers.\n\n"+
			"Filters: %v", filter.Names()),
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := coordinator.Config{
				Input:  args[0],
				Output: args[1],
				Filter: args[2],
				Logger: log.Default(),
			}
			switch opts.transport {
			case "local":
				return runLocal(ctx, opts, cfg)
			case "redis":
				return runRedis(ctx, opts, cfg)
			default:
				return fmt.Errorf("invalid transport %q: use local or redis", opts.transport)
			}
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.transport, "transport", "local", "Transport: local or redis")
	f.IntVarP(&opts.workers, "workers", "n", 4, "Number of in-process workers (local transport)")
	f.IntVar(&opts.rank, "rank", 0, "Rank of this process (redis transport)")
	f.IntVar(&opts.size, "size", 1, "Number of processes in the group (redis transport)")
	f.BoolVar(&opts.compress, "compress", false, "Compress payloads with zstd (redis transport)")
	f.StringVar(&opts.reportDir, "report-dir", stats.DefaultDir, "Directory for run summaries, empty to disable")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Log every worker, not just the coordinator")
	addRedisFlags(cmd, opts)

	cmd.AddCommand(newStatusCommand())
	return cmd
}

func addRedisFlags(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVar(&opts.redisAddr, "redis", "localhost:6379", "Redis address")
	cmd.Flags().StringVar(&opts.runID, "run", "", "Run ID shared by every process of the group")
}

func runLocal(ctx context.Context, opts *options, cfg coordinator.Config) error {
	log.Printf("Starting distributed filter service")
	log.Printf("Transport: local, Workers: %d", opts.workers)

	pool := processor.NewWorkerPool(opts.workers, cfg).Verbose(opts.verbose)
	res, err := pool.Run(ctx)
	if err != nil {
		log.Printf("Run failed: %v", err)
		return err
	}
	return report(opts, cfg, "local", opts.workers, res)
}

func runRedis(ctx context.Context, opts *options, cfg coordinator.Config) error {
	if opts.runID == "" {
		return fmt.Errorf("--run is required with the redis transport")
	}

	log.Printf("Starting distributed filter service")
	log.Printf("Transport: redis %s, Run: %s, Rank: %d/%d", opts.redisAddr, opts.runID, opts.rank, opts.size)

	rc, err := queue.NewRedisClient(ctx, queue.Options{
		Addr:     opts.redisAddr,
		RunID:    opts.runID,
		Compress: opts.compress,
	}, opts.rank)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		return err
	}
	if err := rc.JoinRun(ctx); err != nil {
		rc.Close()
		log.Printf("Failed to join run: %v", err)
		return err
	}
	c, err := comm.New(opts.rank, opts.size, rc)
	if err != nil {
		rc.Close()
		return err
	}
	defer c.Close()

	root := opts.rank == coordinator.Root
	if !root {
		cfg.Input, cfg.Output = "", ""
		if !opts.verbose {
			cfg.Logger = nil
		}
	}

	info := &queue.RunInfo{
		RunID:     opts.runID,
		Input:     cfg.Input,
		Output:    cfg.Output,
		Filter:    cfg.Filter,
		Workers:   opts.size,
		StartTime: time.Now(),
	}
	if root {
		if err := rc.StoreRunInfo(ctx, info); err != nil {
			log.Printf("Failed to store run info: %v", err)
		}
	}

	res, err := coordinator.NewWorker(c, cfg).Run(ctx)
	if err != nil {
		log.Printf("Run failed: %v", err)
		return err
	}
	if !root {
		return nil
	}

	info.Width, info.Height, info.Channels = res.Header.Width, res.Header.Height, res.Header.Channels
	info.Filter = res.Header.Filter
	info.Digest = res.Digest
	info.Elapsed = res.Elapsed.Seconds()
	if err := rc.StoreRunInfo(ctx, info); err != nil {
		log.Printf("Failed to store run info: %v", err)
	}
	if err := rc.MarkRunCompleted(ctx); err != nil {
		log.Printf("Failed to mark run completed: %v", err)
	}
	return report(opts, cfg, "redis", opts.size, res)
}

func report(opts *options, cfg coordinator.Config, transport string, workers int, res *coordinator.Result) error {
	if opts.reportDir == "" || res == nil {
		return nil
	}

	hdr := res.Header
	plan, err := partition.Plan(hdr.Width, hdr.Height, hdr.Channels, workers)
	if err != nil {
		return err
	}

	path, err := stats.WriteRunSummary(opts.reportDir, stats.RunSummary{
		RunID:     opts.runID,
		Filter:    hdr.Filter,
		Transport: transport,
		Workers:   workers,
		Width:     hdr.Width,
		Height:    hdr.Height,
		Channels:  hdr.Channels,
		Elapsed:   res.Elapsed,
		Digest:    res.Digest,
		Input:     cfg.Input,
		Output:    cfg.Output,
		Timestamp: time.Now(),
		Rows:      lo.Map(plan, func(p partition.Partition, _ int) int { return p.RowCount }),
	})
	if err != nil {
		log.Printf("Failed to write run summary: %v", err)
		return nil
	}
	log.Printf("Run summary written to %s", path)
	return nil
}

func newStatusCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "status",
		Short:        "Print the stored metadata of a redis run",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.runID == "" {
				return fmt.Errorf("--run is required")
			}
			ctx := cmd.Context()

			rc, err := queue.NewRedisClient(ctx, queue.Options{Addr: opts.redisAddr, RunID: opts.runID}, coordinator.Root)
			if err != nil {
				return err
			}
			defer rc.Close()

			info, err := rc.GetRunInfo(ctx)
			if err != nil {
				return fmt.Errorf("run %s: %w", opts.runID, err)
			}
			done, err := rc.IsRunCompleted(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run: %s\n", info.RunID)
			fmt.Fprintf(out, "Completed: %t\n", done)
			fmt.Fprintf(out, "Filter: %s\n", info.Filter)
			fmt.Fprintf(out, "Workers: %d\n", info.Workers)
			fmt.Fprintf(out, "Started: %s\n", info.StartTime.Format("2006-01-02 15:04:05"))
			if done {
				fmt.Fprintf(out, "Image: %dx%d, %d channels\n", info.Width, info.Height, info.Channels)
				fmt.Fprintf(out, "Processing time: %.6fs\n", info.Elapsed)
				fmt.Fprintf(out, "Output digest: %016x\n", info.Digest)
			}
			fmt.Fprintf(out, "Input: %s\nOutput: %s\n", info.Input, info.Output)
			return nil
		},
	}
	addRedisFlags(cmd, opts)
	return cmd
}
