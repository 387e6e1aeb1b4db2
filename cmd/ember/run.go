package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.starlark.net/starlark"

	"github.com/musher-dev/ember/internal/arbiter"
	"github.com/musher-dev/ember/internal/config"
	"github.com/musher-dev/ember/internal/history"
	"github.com/musher-dev/ember/internal/loop"
	"github.com/musher-dev/ember/internal/observability"
	"github.com/musher-dev/ember/internal/paths"
	"github.com/musher-dev/ember/internal/repl"
)

const defaultTick = time.Minute

// runFlags are the root command's session flags.
type runFlags struct {
	async       bool
	tick        time.Duration
	startup     []string
	promptStyle string
	noPager     bool
	title       string
	noHistory   bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.async, "async", false, "Run the session as a task of a host scheduler")
	cmd.Flags().DurationVar(&f.tick, "tick", defaultTick, "Background ticker interval with --async (0 disables)")
	cmd.Flags().StringArrayVar(&f.startup, "startup", nil, "Starlark file to run before the first prompt (repeatable)")
	cmd.Flags().StringVar(&f.promptStyle, "prompt-style", "", "Prompt style: classic, ipython")
	cmd.Flags().BoolVar(&f.noPager, "no-pager", false, "Print long results without paging")
	cmd.Flags().StringVar(&f.title, "title", "", "Terminal title while prompting")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not record submissions for this session")
}

// options turns flags into session options. Flags override the config file.
func (f *runFlags) options(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) []repl.Option {
	opts := []repl.Option{
		repl.WithConfig(cfg),
		repl.WithLogger(logger),
	}

	startup := append(defaultStartupFiles(), f.startup...)
	if len(startup) > 0 {
		opts = append(opts, repl.WithStartupFiles(startup...))
	}

	if f.promptStyle != "" {
		opts = append(opts, repl.WithPromptStyle(f.promptStyle))
	}

	if f.noPager {
		opts = append(opts, repl.WithPager(false))
	}

	if cmd.Flags().Changed("title") {
		opts = append(opts, repl.WithTitle(f.title))
	}

	return opts
}

// defaultStartupFiles returns startup.star from the config root when it exists.
func defaultStartupFiles() []string {
	path, err := paths.StartupFile()
	if err != nil {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil
	}

	return []string{path}
}

func runREPL(cmd *cobra.Command, flags *runFlags) error {
	ctx := cmd.Context()
	logger := observability.FromContext(ctx)
	cfg := config.Load()

	opts := flags.options(cmd, cfg, logger)

	if !flags.noHistory && cfg.HistoryEnabled() {
		dir, err := history.DefaultDir()
		if err != nil {
			logger.Warn("history disabled for this session", slog.String("error", err.Error()))
		} else if store := openHistory(cfg, dir, logger); store != nil {
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("history close failed", slog.String("error", err.Error()))
				}
			}()

			opts = append(opts, repl.WithHistory(store))
		}
	}

	ns := starlark.StringDict{}

	if !flags.async {
		return repl.Embed(ctx, ns, opts...)
	}

	arb := arbiter.New(os.Stdout, arbiter.WithLogger(logger))
	defer func() {
		if err := arb.Close(); err != nil {
			logger.Debug("arbiter close failed", slog.String("error", err.Error()))
		}
	}()

	hostLogger := observability.WithTerminal(logger, arb.Writer(), slog.LevelInfo)

	return runHosted(ctx, ns, flags.tick, hostLogger, append(opts, repl.WithArbiter(arb)))
}

// openHistory opens a store for a new session seeded with recent inputs of
// earlier sessions. Failures only disable recording.
func openHistory(cfg *config.Config, dir string, logger *slog.Logger) *history.Store {
	seed, err := history.LoadRecent(dir, cfg.HistoryRecall())
	if err != nil {
		logger.Warn("history recall unavailable", slog.String("error", err.Error()))
	}

	store, err := history.NewStore(history.StoreOptions{
		SessionID:  uuid.NewString(),
		Dir:        dir,
		MaxEntries: cfg.HistoryMaxEntries(),
		Seed:       seed,
	})
	if err != nil {
		logger.Warn("history disabled for this session", slog.String("error", err.Error()))
		return nil
	}

	logger.Debug("history session opened", slog.String("history.session", store.SessionID()))

	return store
}

// runHosted drives a host loop whose tasks are the session and, when tick is
// positive, a ticker that logs through hostLogger. The ticks() builtin reports
// how often the ticker has fired.
func runHosted(ctx context.Context, ns starlark.StringDict, tick time.Duration, hostLogger *slog.Logger, opts []repl.Option) error {
	var ticks atomic.Int64

	ns["ticks"] = starlark.NewBuiltin("ticks", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}

		return starlark.MakeInt64(ticks.Load()), nil
	})

	return loop.New().Run(ctx, func(ctx context.Context) error {
		session := repl.EmbedAsync(ctx, ns, opts...)

		if tick > 0 {
			tickCtx, stop := context.WithCancel(ctx)
			defer stop()

			loop.Spawn(tickCtx, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, runTicker(ctx, tick, hostLogger, &ticks)
			})
		}

		_, err := session.Await(ctx)

		return err
	})
}

func runTicker(ctx context.Context, every time.Duration, logger *slog.Logger, ticks *atomic.Int64) error {
	for {
		if err := loop.Sleep(ctx, every); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}

			return err
		}

		n := ticks.Add(1)
		logger.Info("host tick", slog.Int64("tick", n))
	}
}
