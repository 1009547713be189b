// Command viddup finds duplicate scenes across a video library by
// fingerprinting brightness extrema and searching the resulting
// vectors with a pluggable approximate-nearest-neighbor backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Eierkopp/viddup/internal/ann"
	"github.com/Eierkopp/viddup/internal/config"
	"github.com/Eierkopp/viddup/internal/frame"
	"github.com/Eierkopp/viddup/internal/importer"
	"github.com/Eierkopp/viddup/internal/logging"
	"github.com/Eierkopp/viddup/internal/maintenance"
	"github.com/Eierkopp/viddup/internal/resultio"
	"github.com/Eierkopp/viddup/internal/review"
	"github.com/Eierkopp/viddup/internal/search"
	"github.com/Eierkopp/viddup/internal/store"
	"github.com/Eierkopp/viddup/internal/window"
)

func main() {
	logger := logging.NewLogger(os.Stderr, slog.LevelInfo)
	slog.SetDefault(logger)

	cfg := config.Defaults()
	var configPath string

	root := &cobra.Command{
		Use:   "viddup",
		Short: "Find duplicate scenes across a video library",
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.FileName, "config file path")
	root.PersistentFlags().StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "store driver")
	root.PersistentFlags().StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "store connection string")
	root.PersistentFlags().IntVar(&cfg.IndexLength, "indexlength", cfg.IndexLength, "window dimension L")
	root.PersistentFlags().Float64Var(&cfg.SceneLength, "scenelength", cfg.SceneLength, "per-window time budget in seconds")
	root.PersistentFlags().Float64Var(&cfg.Radius, "radius", cfg.Radius, "L2 distance cutoff")
	root.PersistentFlags().IntVar(&cfg.Step, "step", cfg.Step, "query stride over windows")
	root.PersistentFlags().Float64Var(&cfg.IgnoreStart, "ignore_start", cfg.IgnoreStart, "seconds trimmed from the front of each file")
	root.PersistentFlags().Float64Var(&cfg.IgnoreEnd, "ignore_end", cfg.IgnoreEnd, "seconds trimmed from the back of each file")
	root.PersistentFlags().BoolVar(&cfg.FixSpeed, "fixspeed", cfg.FixSpeed, "enable speed-normalization")
	root.PersistentFlags().StringVar(&cfg.KNNLib, "knnlib", cfg.KNNLib, "ANN backend (forest|kdtree|hnsw)")
	root.PersistentFlags().StringVar(&cfg.VidExt, "vidext", cfg.VidExt, "comma list of considered extensions")
	root.PersistentFlags().IntVar(&cfg.Nice, "nice", cfg.Nice, "process nice level")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("%w: load config: %v", errInvalidInput, err)
		}
		flagCfg := cfg
		cfg = fileCfg
		cfg.ApplyFlags(flagCfg, func(field string) bool { return cmd.Flags().Changed(field) })
		applyNice(cfg.Nice, logger)
		return nil
	}

	root.AddCommand(
		importCmd(&cfg, logger),
		searchCmd(&cfg, logger),
		purgeCmd(&cfg, logger),
		renameCmd(&cfg, logger),
		fixrenamesCmd(&cfg, logger),
		whitelistCmd(&cfg, logger),
		migrateCmd(&cfg, logger),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

var errInvalidInput = errors.New("invalid input")

// applyNice sets the process nice level once at startup. Failure is
// logged, not fatal — the tool still runs at whatever priority it got.
func applyNice(level int, logger *slog.Logger) {
	if err := syscall.Setpriority(syscall.PRIO_PROCESS, 0, level); err != nil {
		logger.Warn("failed to set nice level", "level", level, "err", err)
	}
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.Open(cfg.DBDSN)
}

func videoExtensions(cfg *config.Config) []string {
	parts := strings.Split(cfg.VidExt, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, "."+strings.ToLower(p))
	}
	return out
}

func importCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var dir, glob string
	var refresh bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import videos into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" && glob == "" {
				return fmt.Errorf("%w: one of --dir or --file is required", errInvalidInput)
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			coord := &importer.Coordinator{
				Store:      st,
				Source:     frame.NewFFmpegSource(),
				Extensions: videoExtensions(cfg),
				Logger:     logger,
			}

			ctx, stop := withInterruptWatchdog(coord)
			defer stop()

			if dir != "" {
				if err := coord.ImportDir(ctx, dir, refresh); err != nil && !isInterrupted(err) {
					return err
				}
			}
			if glob != "" {
				matches, err := filepath.Glob(glob)
				if err != nil {
					return fmt.Errorf("%w: bad glob %q: %v", errInvalidInput, glob, err)
				}
				for _, path := range matches {
					if err := coord.ImportFile(ctx, path, refresh); err != nil {
						if isInterrupted(err) {
							break
						}
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "import all videos beneath this path (recursive)")
	cmd.Flags().StringVar(&glob, "file", "", "import files matching a glob")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-import existing paths, preserving whitelist")
	return cmd
}

func searchCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var ui bool
	var searchres string
	var loadres string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search for duplicate scenes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			var groups []search.Group
			if loadres != "" {
				groups, err = loadSearchResults(ctx, st, loadres)
				if err != nil {
					return err
				}
			} else {
				items, err := window.Build(ctx, st, window.Config{
					IndexLength:    cfg.IndexLength,
					SceneLength:    cfg.SceneLength,
					IgnoreStart:    cfg.IgnoreStart,
					IgnoreEnd:      cfg.IgnoreEnd,
					SpeedNormalize: cfg.FixSpeed,
				})
				if err != nil {
					return err
				}

				idx, err := ann.Open(cfg.KNNLib)
				if err != nil {
					return err
				}
				vectors := make([][]float32, len(items))
				for i, it := range items {
					vectors[i] = it.Vector
				}
				if err := idx.Build(vectors); err != nil {
					return err
				}

				groups, err = search.Run(ctx, st, idx, items, cfg.Step, float32(cfg.Radius), logger)
				if err != nil {
					return err
				}
			}

			if searchres != "" {
				f, err := os.Create(searchres)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := resultio.Write(f, groups); err != nil {
					return err
				}
			}

			if ui {
				p := tea.NewProgram(review.New(groups), tea.WithAltScreen())
				final, err := p.Run()
				if err != nil {
					return err
				}
				if m, ok := final.(review.Model); ok {
					for _, g := range m.Marked() {
						paths := make([]string, 0, len(g))
						for _, d := range g {
							paths = append(paths, d.FileInfo.Name)
						}
						if _, err := maintenance.Whitelist(ctx, st, paths); err != nil {
							return err
						}
					}
				}
				return nil
			}

			printGroups(groups)
			return nil
		},
	}
	cmd.Flags().BoolVar(&ui, "ui", false, "after search, invoke the review UI with the result set")
	cmd.Flags().StringVar(&searchres, "searchres", "", "write serialized duplicate groups to this file")
	cmd.Flags().StringVar(&loadres, "loadres", "", "load duplicate groups from a --searchres file instead of recomputing, dropping unreadable files and newly-whitelisted pairs")
	return cmd
}

// loadSearchResults reads a previously written --searchres file and
// drops whatever has gone stale since then: files no longer readable
// and pairs whitelisted after the file was written.
func loadSearchResults(ctx context.Context, st *store.SQLiteStore, path string) ([]search.Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	groups, err := resultio.Read(f)
	if err != nil {
		return nil, err
	}
	return resultio.Filter(ctx, st, groups)
}

func printGroups(groups []search.Group) {
	for _, g := range groups {
		for _, d := range g {
			fmt.Printf("ffplay -ss %s '%s'\n", formatTimestamp(d.Offset), d.FileInfo.Name)
		}
	}
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	h, rem := total/3600, total%3600
	m, s := rem/60, rem%60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func purgeCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var del bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Report (or delete) files that are no longer readable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			reports, err := maintenance.Purge(ctx, st, !del)
			if err != nil {
				return err
			}
			for _, r := range reports {
				logger.Info("unreadable file", "fid", r.Fid, "path", r.Path, "deleted", del)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&del, "delete", false, "actually delete rows for unreadable files")
	return cmd
}

func renameCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a file on disk and update the store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			return maintenance.Rename(ctx, st, args[0], args[1])
		},
	}
}

func fixrenamesCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "fixrenames",
		Short: "Reconcile moved files within a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				return fmt.Errorf("%w: --dir is required", errInvalidInput)
			}
			ctx := context.Background()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			updated, err := maintenance.FixMoved(ctx, st, dir, 2*time.Second)
			if err != nil {
				return err
			}
			logger.Info("fixrenames complete", "updated", updated)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to reconcile")
	return cmd
}

func whitelistCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "whitelist PATH...",
		Short: "Whitelist all pairs among the given files",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			report, err := maintenance.Whitelist(ctx, st, args)
			if err != nil {
				return err
			}
			for _, p := range report.Unknown {
				logger.Warn("whitelist: unknown path", "path", p)
			}
			return nil
		},
	}
}

func migrateCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Backfill hashes for files that only got as far as brightness",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			migrated, err := maintenance.Migrate(ctx, st)
			if err != nil {
				return err
			}
			logger.Info("migrate complete", "migrated", migrated)
			return nil
		},
	}
}

// withInterruptWatchdog returns a context cancelled on SIGINT/SIGTERM,
// backed by a hard-exit goroutine, plus a stop func that disarms that
// goroutine: ffmpeg decode is a blocking subprocess call that Go's
// scheduler can't preempt, so a Ctrl+C forces an exit if the current
// file doesn't finish within a one-second grace period.
func withInterruptWatchdog(coord *importer.Coordinator) (context.Context, func()) {
	ctx, stop := signalNotifyContext()
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
			coord.Stop()
			select {
			case <-done:
				return
			case <-time.After(time.Second):
				fmt.Fprintln(os.Stderr, "viddup: exiting.")
				os.Exit(130)
			}
		}
	}()
	return ctx, func() {
		close(done)
		stop()
	}
}

func signalNotifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
