package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/coffersTech/nanodiscover/internal/config"
	"github.com/coffersTech/nanodiscover/internal/docsource"
	"github.com/coffersTech/nanodiscover/internal/engine"
	"github.com/coffersTech/nanodiscover/internal/library"
	"github.com/coffersTech/nanodiscover/internal/livetail"
	"github.com/coffersTech/nanodiscover/internal/metrics"
	"github.com/coffersTech/nanodiscover/internal/model"
	"github.com/coffersTech/nanodiscover/internal/server"
	"github.com/coffersTech/nanodiscover/internal/storage"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the discovery server",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "override server.addr")
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("nanodiscover starting", "addr", cfg.Server.Addr)

	table := engine.NewDocumentTable(cfg.Engine.MaxDocuments)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, func() float64 { return float64(table.Len()) })

	eng := engine.New(table, engine.Config{
		SnapshotPath:  cfg.Snapshot.Path,
		Writer:        storage.WriteSnapshot,
		Retention:     cfg.Engine.Retention,
		DefaultLimit:  cfg.Engine.DefaultLimit,
		BucketMinutes: cfg.Engine.BucketMinutes,
		Recorder:      m,
		Logger:        log,
	})

	var source *docsource.Source
	if len(cfg.Sources.Paths) > 0 {
		source = docsource.New(cfg.Sources.Paths, docsource.Options{Debounce: cfg.Sources.Debounce, Logger: log})
		docs, err := source.Load()
		if err != nil {
			return err
		}
		table.Replace(docs)
		log.Info("documents loaded", "count", len(docs), "patterns", cfg.Sources.Paths)
	} else if cfg.Snapshot.Path != "" {
		docs, err := storage.ReadSnapshot(cfg.Snapshot.Path)
		switch {
		case err == nil:
			table.Replace(docs)
			log.Info("snapshot restored", "path", cfg.Snapshot.Path, "documents", len(docs))
		case errors.Is(err, os.ErrNotExist):
		default:
			log.Warn("snapshot not restored", "path", cfg.Snapshot.Path, "error", err)
		}
	}

	lib := library.NewStore(cfg.Library.Path)
	libLoaded := true
	if err := lib.Load(); err != nil {
		libLoaded = false
		log.Warn("library not loaded, starting empty", "path", cfg.Library.Path, "error", err)
	}

	srv := server.New(server.Options{
		Engine:       eng,
		Library:      lib,
		Metrics:      m,
		Gatherer:     reg,
		AuthTokens:   cfg.Server.AuthTokens,
		IngestRate:   cfg.Server.IngestRate,
		IngestBurst:  cfg.Server.IngestBurst,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       log,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.ListenAndServe(cfg.Server.Addr) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		table.RunStatsTicker(ctx, time.Second)
		return nil
	})
	g.Go(func() error {
		eng.RunCleaner(ctx, cfg.Engine.CleanInterval)
		return nil
	})

	if cfg.Snapshot.Path != "" && cfg.Snapshot.Interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Snapshot.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := eng.Flush(); err != nil {
						log.Error("periodic flush failed", "error", err)
					}
				}
			}
		})
	}

	if source != nil && cfg.Sources.Watch {
		g.Go(func() error {
			return source.Watch(ctx, func(docs []model.Document) {
				table.Replace(docs)
				log.Info("documents reloaded", "count", len(docs))
			})
		})
	}

	if cfg.LiveTail.Enabled {
		g.Go(func() error {
			return followLiveTail(ctx, cfg.LiveTail, srv.Hub(), m, log)
		})
	}

	err := g.Wait()

	log.Info("flushing documents to disk")
	if ferr := eng.Flush(); ferr != nil {
		log.Error("final flush failed", "error", ferr)
	}
	// a library file that failed to load is left for the operator to fix
	if libLoaded {
		if perr := lib.Persist(); perr != nil {
			log.Error("library persist failed", "error", perr)
		}
	}
	log.Info("nanodiscover exited")
	return err
}

// followLiveTail subscribes to an upstream stream and ingests every frame
// until ctx is done.
func followLiveTail(ctx context.Context, cfg config.LiveTailConfig, hub *server.Hub, m *metrics.Metrics, log *slog.Logger) error {
	stream := livetail.New(livetail.Options{
		BaseURL:           cfg.BaseURL,
		WebsocketURL:      cfg.WebsocketURL,
		TenantID:          cfg.TenantID,
		ReconnectInterval: cfg.ReconnectInterval,
		Metrics:           m,
		Logger:            log,
	})
	sub, err := stream.Subscribe(ctx, livetail.Query{Query: cfg.Query, Limit: cfg.Limit})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	log.Info("live tail subscribed", "url", sub.URL())

	for ev := range sub.Events() {
		switch ev.Type {
		case livetail.EventFrame:
			hub.Ingest(ev.Frame.Documents()...)
		case livetail.EventError:
			log.Warn("live tail", "error", ev.Err)
		case livetail.EventState:
			log.Debug("live tail state", "state", ev.State)
		}
	}
	return nil
}
