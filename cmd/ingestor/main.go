package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"ingestor/internal/config"
	"ingestor/internal/fetcher"
	"ingestor/internal/ingest"
	"ingestor/internal/metrics"
	"ingestor/internal/model"
	"ingestor/internal/notify"
	"ingestor/internal/scheduler"
	"ingestor/internal/source"
	"ingestor/internal/storage"
	"ingestor/internal/topics"
)

var envFile string

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ingestor",
		Short:         "Collect papers, newsletters and blog posts into the dashboard database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load env file: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	var seedFile string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Create or update sources from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				path := seedFile
				if path == "" {
					path = a.cfg.SourcesFile
				}
				if path == "" {
					return errors.New("no sources file: pass --file or set SOURCES_FILE")
				}
				return a.seed(cmd.Context(), path)
			})
		},
	}
	seed.Flags().StringVar(&seedFile, "file", "", "sources YAML file (default $SOURCES_FILE)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run ingestion cycles until interrupted",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(a *app) error {
					sched, err := a.newScheduler(cmd.Context())
					if err != nil {
						return err
					}
					a.log.Info("starting ingestor", "interval", a.cfg.Interval, "schedule", a.cfg.Schedule)
					sched.Run(cmd.Context())
					a.log.Info("ingestor stopped")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "once",
			Short: "Run a single ingestion cycle and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, func(a *app) error {
					sched, err := a.newScheduler(cmd.Context())
					if err != nil {
						return err
					}
					res, err := sched.RunOnce(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "ingested %d items\n", res.Total())
					return nil
				})
			},
		},
		seed,
		newListCmd(),
		&cobra.Command{
			Use:   "like <user-id> <item-id> <score>",
			Short: "Record a user's score (-1, 0 or 1) for an item",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				score, err := strconv.Atoi(args[2])
				if err != nil {
					return fmt.Errorf("parse score: %w", err)
				}
				if err := model.ValidateScore(score); err != nil {
					return err
				}
				return withApp(cmd, func(a *app) error {
					if _, err := a.store.GetItem(cmd.Context(), args[1]); err != nil {
						return fmt.Errorf("get item %s: %w", args[1], err)
					}
					return a.store.SetItemLike(cmd.Context(), args[0], args[1], score)
				})
			},
		},
	)
	return root
}

// app holds the wired components for one command invocation.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store *storage.SQLite
}

func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		return err
	}
	log := newLogger(cfg.LogLevel)

	a, err := newApp(cfg, log)
	if err != nil {
		log.Error("start", "error", err)
		return err
	}
	defer func() { _ = a.store.Close() }()

	if err := fn(a); err != nil {
		log.Error(cmd.Name(), "error", err)
		return err
	}
	return nil
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	return &app{cfg: cfg, log: log, store: store}, nil
}

// newScheduler applies SOURCES_FILE and wires the ingestion pipeline.
func (a *app) newScheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	cfg := a.cfg
	if cfg.SourcesFile != "" {
		if err := a.seed(ctx, cfg.SourcesFile); err != nil {
			return nil, err
		}
	}

	f := fetcher.New(&http.Client{},
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithTimeout(cfg.FetchTimeout),
		fetcher.WithRetries(cfg.FetchRetries),
	)
	d := source.NewDispatcher(a.log)
	d.Register(model.KindArxiv, source.NewArxiv(f, cfg.ArxivQuery, a.log))
	d.Register(model.KindRSS, source.NewFeed(f, a.log))

	runnerOpts := []ingest.Option{ingest.WithConcurrency(cfg.Concurrency)}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		runnerOpts = append(runnerOpts, ingest.WithMetrics(metrics.New(reg)))
		go serveMetrics(ctx, cfg.MetricsAddr, reg, a.log)
	}
	runner := ingest.NewRunner(a.store, d, topics.New(topics.DefaultRules), a.log, runnerOpts...)

	schedOpts := []scheduler.Option{scheduler.WithInterval(cfg.Interval)}
	if cfg.Schedule != "" {
		schedOpts = append(schedOpts, scheduler.WithCron(cfg.Schedule))
	}
	if cfg.NotifyEnabled() {
		tg, err := notify.New(cfg.TelegramBotToken, cfg.TelegramChatID, a.log)
		if err != nil {
			return nil, err
		}
		schedOpts = append(schedOpts, scheduler.WithReporter(tg))
	}
	return scheduler.New(runner, a.log, schedOpts...)
}

func (a *app) seed(ctx context.Context, path string) error {
	entries, err := config.LoadSources(path)
	if err != nil {
		return err
	}
	if err := config.ApplySources(ctx, a.store, entries, a.log); err != nil {
		return err
	}
	a.log.Info("sources applied", "file", path, "count", len(entries))
	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
