package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mhutchins/gridkeeper/internal/config"
	"github.com/mhutchins/gridkeeper/internal/keeperbuilder"
	"github.com/mhutchins/gridkeeper/internal/obslog"
	"github.com/mhutchins/gridkeeper/internal/scrapefeed"
	"github.com/mhutchins/gridkeeper/pkg/feeddto"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx := context.Background()
	deps, err := keeperbuilder.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init failed", zap.Error(err))
	}

	admin := startAdmin(cfg.MetricsAddr, deps, logger)

	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.FeedToken != "" {
			h["X-Feed-Token"] = cfg.FeedToken
		}
		return h
	}

	// Batches apply in arrival order through a single worker; the seen
	// cache and the conditional upsert make any WS/poll overlap safe.
	shutdownCh := make(chan struct{})
	batches := make(chan *feeddto.FragmentBatch, 64)
	enqueue := func(b *feeddto.FragmentBatch) {
		select {
		case batches <- b:
		case <-shutdownCh:
		}
	}

	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		for batch := range batches {
			if _, err := deps.Pipeline.ProcessBatch(ctx, batch); err != nil {
				logger.Error("batch processing failed", zap.Error(err))
			}
		}
	}()

	var sub *scrapefeed.Subscriber
	if cfg.FeedWSURL != "" {
		sub = scrapefeed.NewSubscriber(cfg.FeedWSURL, 10, time.Second)
		sub.SetHeaderProvider(headers)
		sub.OnStateChange(func(state scrapefeed.ConnState) {
			logger.Info("feed stream state", zap.Stringer("state", state))
		})
		sub.OnBatch(enqueue)

		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := sub.Connect(cctx)
		cancel()
		if err != nil {
			logger.Warn("feed stream connect failed, retrying in background", zap.Error(err))
		}
	}

	var pollers sync.WaitGroup
	if cfg.FeedBaseURL != "" {
		client := scrapefeed.NewClient(cfg.FeedBaseURL, scrapefeed.WithHeaderProvider(headers))
		if err := client.Health(ctx); err != nil {
			logger.Warn("feed api health check failed", zap.Error(err))
		}
		pollers.Add(1)
		go func() {
			defer pollers.Done()
			pollLoop(ctx, cfg, deps, client, enqueue, shutdownCh, logger)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	close(shutdownCh)
	pollers.Wait()
	if sub != nil {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := sub.Close(cctx); err != nil {
			logger.Warn("feed stream close", zap.Error(err))
		}
		cancel()
	}
	close(batches)
	workers.Wait()

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := admin.Shutdown(cctx); err != nil {
		logger.Warn("admin server shutdown", zap.Error(err))
	}
	cancel()

	if err := deps.Cache.Close(); err != nil {
		logger.Warn("ingest cache close", zap.Error(err))
	}
	if err := deps.Store.Close(); err != nil {
		logger.Warn("ledger close", zap.Error(err))
	}
}

// pollLoop fetches each league's next page every interval, resuming
// from the cursor saved by the previous successful batch.
func pollLoop(ctx context.Context, cfg *config.AppConfig, deps *keeperbuilder.Deps, client *scrapefeed.Client, enqueue func(*feeddto.FragmentBatch), stop <-chan struct{}, logger *zap.Logger) {
	interval := time.Duration(cfg.PollIntervalSec) * time.Second
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		pollOnce(ctx, cfg, deps, client, enqueue, logger)
		select {
		case <-stop:
			return
		case <-t.C:
		}
	}
}

func pollOnce(ctx context.Context, cfg *config.AppConfig, deps *keeperbuilder.Deps, client *scrapefeed.Client, enqueue func(*feeddto.FragmentBatch), logger *zap.Logger) {
	for _, roster := range deps.Directory.Rosters() {
		cursor, err := deps.Cache.Cursor(ctx, roster.LeagueID)
		if err != nil {
			logger.Warn("cursor load failed, polling from the start",
				zap.Int("league_id", roster.LeagueID),
				zap.Error(err))
			cursor = ""
		}
		batch, err := client.FetchBatch(ctx, roster.LeagueID, cursor, cfg.BatchLimit)
		if err != nil {
			logger.Warn("feed poll failed",
				zap.Int("league_id", roster.LeagueID),
				zap.Error(err))
			continue
		}
		if batch.LeagueID == 0 {
			batch.LeagueID = roster.LeagueID
		}
		if len(batch.Fragments) == 0 && (batch.Cursor == "" || batch.Cursor == cursor) {
			continue
		}
		enqueue(batch)
	}
}

func startAdmin(addr string, deps *keeperbuilder.Deps, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", deps.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("admin listener started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin listener failed", zap.Error(err))
		}
	}()
	return srv
}
