package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NamiraNet/matchcounter/internal/cli"
	"github.com/NamiraNet/matchcounter/internal/logger"
	"github.com/NamiraNet/matchcounter/internal/search"
	workerpool "github.com/NamiraNet/matchcounter/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type searchFlags struct {
	root           string
	keyword        string
	followSymlinks bool
	maxOpenFiles   int64
	outputFormat   string
	outputFile     string
	showProgress   bool
}

func newSearchCmd() *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "search [root] [keyword]",
		Short: "Count files under root that contain keyword",
		Long: `Search every regular file below root for keyword and print how many contain it.
Missing values are prompted for on stdin. Unreadable files and directories are reported but do not stop the search.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				flags.root = args[0]
			}
			if len(args) > 1 {
				flags.keyword = args[1]
			}
			return runSearch(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.root, "root", "r", cfg.Search.Root, "Base directory to search")
	cmd.Flags().StringVarP(&flags.keyword, "keyword", "k", cfg.Search.Keyword, "Keyword to look for (case-sensitive)")
	cmd.Flags().BoolVar(&flags.followSymlinks, "follow-symlinks", cfg.Search.FollowSymlinks, "Descend into linked directories and read linked files")
	cmd.Flags().Int64Var(&flags.maxOpenFiles, "max-open-files", cfg.Search.MaxOpenFiles, "Concurrent file reads (0 derives it from the descriptor limit)")
	cmd.Flags().StringVarP(&flags.outputFormat, "format", "f", "table", "Output format: table, json, csv")
	cmd.Flags().StringVarP(&flags.outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&flags.showProgress, "progress", true, "Show progress while searching")

	return cmd
}

func runSearch(cmd *cobra.Command, flags searchFlags) error {
	log, err := logger.InitForCLI(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	reader := cli.NewInputReader(cmd.InOrStdin(), cmd.ErrOrStderr())
	root, keyword, err := reader.Resolve(flags.root, flags.keyword)
	if err != nil {
		return err
	}

	pool := workerpool.NewWorkerPool(workerpool.WorkerPoolConfig{
		MaxWorkers:  cfg.Worker.MaxWorkers,
		IdleTimeout: cfg.Worker.IdleTimeout,
	}, workerpool.WithLogger(log))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pool.Stop(ctx); err != nil {
			log.Warn("worker pool did not stop cleanly", zap.Error(err))
		}
	}()

	var progress *cli.Progress
	observers := []search.Observer{}
	if flags.showProgress {
		progress = cli.NewProgress(cmd.ErrOrStderr(), 100*time.Millisecond)
		observers = append(observers, progress)
	}

	searcher := search.NewSearcher(pool, search.Options{
		FollowSymlinks: flags.followSymlinks,
		MaxOpenFiles:   flags.maxOpenFiles,
		MaxLineBytes:   cfg.Search.MaxLineBytes,
		Logger:         log,
		Observer:       search.MultiObserver(observers...),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := searcher.Search(ctx, root, keyword)
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		return err
	}

	log.Info("search completed",
		zap.String("root", report.Root),
		zap.String("keyword", report.Keyword),
		zap.Int("count", report.Count),
		zap.Int("errors", len(report.Errors)),
		zap.Int("largest_pool_size", report.PeakWorkers))

	out := cmd.OutOrStdout()
	outputOptions := cli.OutputOptions{
		Format:   flags.outputFormat,
		Filename: flags.outputFile,
	}
	if err := cli.NewOutputManager(out).Output(report, outputOptions); err != nil {
		return fmt.Errorf("failed to output results: %w", err)
	}

	if flags.outputFormat == "json" && flags.outputFile == "" {
		// Keep stdout parseable; the human summary goes to stderr.
		cli.NewSummaryPrinter(cmd.ErrOrStderr()).PrintSummary(report)
		return nil
	}

	fmt.Fprintf(out, "%d matching files.\n", report.Count)
	fmt.Fprintf(out, "largest pool size=%d\n", report.PeakWorkers)
	cli.NewSummaryPrinter(out).PrintSummary(report)
	return nil
}
