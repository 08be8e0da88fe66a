package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"pedsim.ai/internal/persistence/archive"
	"pedsim.ai/internal/scenario"
	"pedsim.ai/internal/sim/scene"
	"pedsim.ai/internal/transport/observer"
)

var (
	serveScenarioPath string
	serveAddr         string
	serveSeed         int64
	serveDisableDB    bool
)

const reloadDebounce = 200 * time.Millisecond

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Spawn a scenario, serve observers and re-spawn on file changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		out, err := openSinks(dataDir, serveDisableDB)
		if err != nil {
			return err
		}
		defer func() {
			if err := out.Close(); err != nil {
				log.Warn("close sinks", "err", err)
			}
		}()

		cfg := runConfig{
			ScenarioPath: serveScenarioPath,
			TuningPath:   tuningPath,
			DataDir:      dataDir,
			Seed:         serveSeed,
			SeedSet:      cmd.Flags().Changed("seed"),
		}
		return serve(cmd.Context(), cfg, serveAddr, out, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveScenarioPath, "scenario", "", "Scenario file (yaml or json)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")
	serveCmd.Flags().Int64Var(&serveSeed, "seed", 0, "Override the scenario seed")
	serveCmd.Flags().BoolVar(&serveDisableDB, "disable_db", false, "Disable the SQLite index")
	_ = serveCmd.MarkFlagRequired("scenario")
}

func serve(ctx context.Context, cfg runConfig, addr string, out *sinks, log *slog.Logger) error {
	obs := observer.NewServer(log)
	sc := scene.New()
	r := &reloader{cfg: cfg, scene: sc, obs: obs, out: out, log: log}

	// Clusters are built, mutated and dissolved only on this goroutine.
	if err := r.spawn(ctx); err != nil {
		return err
	}
	defer r.detach()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	target := filepath.Clean(cfg.ScenarioPath)
	// Watch the directory: editors often replace the file instead of writing it.
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           obs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Serve(ln) }()
	log.Info("observer listening", "addr", ln.Addr().String())

	var (
		debounce *time.Timer
		fire     <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-srvErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
			} else {
				debounce.Reset(reloadDebounce)
			}
			fire = debounce.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("scenario watch error", "err", err)
		case <-fire:
			fire = nil
			if err := r.respawn(ctx); err != nil {
				log.Error("re-spawn failed; keeping previous scene", "scenario", target, "err", err)
			}
		}
	}
}

// reloader re-spawns the scenario into a new scene and keeps the observer
// attached to the current cluster set.
type reloader struct {
	cfg   runConfig
	scene *scene.Scene
	obs   *observer.Server
	out   *sinks
	log   *slog.Logger

	detachFn func()
	last     *runResult
	gen      int
}

func (r *reloader) spawn(ctx context.Context) error {
	res, err := spawnScenario(ctx, r.cfg, r.scene, r.out, r.log, func(b *scenario.Built) {
		r.detach()
		r.detachFn = r.obs.Attach(b.Name, b.Seed, r.scene, b.Clusters)
	})
	if err != nil {
		return err
	}
	r.last = res
	return nil
}

// respawn builds and dissolves the scenario into a fresh scene and swaps it
// in only once the new snapshot is committed. On error the live scene, the
// observers and the archive generation are left untouched.
func (r *reloader) respawn(ctx context.Context) error {
	built, rs, err := prepareScenario(r.cfg, r.log)
	if err != nil {
		return err
	}
	next := scene.New()
	batches, err := dissolveScenario(ctx, built, rs, next, r.out, r.log)
	if err != nil {
		return err
	}

	gen := r.gen + 1
	archived := false
	res, err := commitSnapshot(r.cfg, built, next, r.out, func() {
		archived = r.archiveLast(gen)
	})
	if err != nil {
		return err
	}
	res.Batches = batches
	if archived {
		r.gen = gen
	}

	r.detach()
	r.scene = next
	r.detachFn = r.obs.Replace(built.Name, built.Seed, next, built.Clusters)
	r.last = res
	r.log.Info("scenario re-spawned",
		"scenario", built.Name,
		"batches", len(batches),
		"agents", next.Len(),
		"snapshot", res.SnapshotPath,
	)
	return nil
}

func (r *reloader) archiveLast(gen int) bool {
	if r.last == nil {
		return false
	}
	dst, err := archive.ArchiveSnapshot(r.cfg.DataDir, r.last.SnapshotPath, gen, r.last.Snapshot)
	if err != nil {
		r.log.Warn("archive previous snapshot", "err", err)
		return false
	}
	r.log.Debug("previous snapshot archived", "path", dst, "generation", gen)
	return true
}

func (r *reloader) detach() {
	if r.detachFn != nil {
		r.detachFn()
		r.detachFn = nil
	}
}
