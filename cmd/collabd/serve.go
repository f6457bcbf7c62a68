package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/collabmesh/collabd/internal/metrics"
	"github.com/collabmesh/collabd/internal/room"
	"github.com/collabmesh/collabd/internal/session"
	"github.com/collabmesh/collabd/internal/store"
	"github.com/collabmesh/collabd/internal/store/badger"
	"github.com/collabmesh/collabd/internal/transport"
	"github.com/collabmesh/collabd/internal/wal"
	"github.com/collabmesh/collabd/internal/wire"
	"github.com/collabmesh/collabd/pkg/config"
	"github.com/collabmesh/collabd/pkg/logging"
)

// storeRecorder adapts *metrics.Metrics onto store.Recorder, whose
// operation names are plain strings so the store package need not import
// the metrics package's typed StoreOp constants.
type storeRecorder struct{ m *metrics.Metrics }

func (r storeRecorder) ObserveStoreOp(op string, err error) {
	r.m.ObserveStoreOpString(op, err)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the collaboration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   parseLevel(cfg.Logging.Level),
		Service: "collabd",
		JSON:    cfg.Logging.JSON,
		LogFile: cfg.Logging.LogFile,
	})

	var recorder room.Recorder
	var storeOpts []store.Option
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		recorder = m
		storeOpts = append(storeOpts, store.WithRecorder(storeRecorder{m}))
	}

	st, err := store.Open(badger.Config{
		Path:              cfg.Storage.Dir,
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
	}, storeOpts...)
	if err != nil {
		return err
	}
	defer st.Close()

	walLog := wal.Open(st.NextWALSequence(), wal.Config{
		FlushEntries: cfg.WAL.FlushEntries,
		FlushBytes:   cfg.WAL.FlushBytes,
		SyncInterval: cfg.WAL.SyncInterval,
	})

	rooms := room.NewManager(cfg.Room.PeerBufferSize, recorder)
	engine := session.NewEngine(rooms, st, walLog, logger)

	if err := engine.PreloadAll(ctx); err != nil {
		return fmt.Errorf("preload documents: %w", err)
	}

	flushCtx, stopFlush := context.WithCancel(context.Background())
	defer stopFlush()
	go runWALFlushLoop(flushCtx, engine, walLog, cfg.WAL.SyncInterval, m)

	if m != nil && cfg.Metrics.ListenAddr != "" {
		go serveMetrics(cfg.Metrics.ListenAddr, logger)
	}

	upgrader := transport.NewUpgrader(transport.Config{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		WriteTimeout:    cfg.Server.WriteTimeout,
		PongTimeout:     cfg.Server.PongTimeout,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(engine, upgrader, logger))

	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	select {
	case <-sigCtx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}
	engine.Close(shutdownCtx)
	return nil
}

// wsHandler upgrades one HTTP request into a session's connection loop: it
// reads envelopes until the connection closes, handing each to the engine,
// and always calls Leave once the loop ends so the peer's room slot and
// replica reference are released.
func wsHandler(engine *session.Engine, upgrader *transport.Upgrader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r)
		if err != nil {
			logger.Warn("upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		peerID := peerIDFromRequest(r)
		displayName := r.URL.Query().Get("display_name")
		if displayName == "" {
			displayName = peerID.String()
		}

		sess := engine.NewSession(peerID, displayName, conn)
		ctx := r.Context()

		for {
			env, err := conn.Recv()
			if err != nil {
				if errors.Is(err, wire.ErrMalformedFrame) || errors.Is(err, wire.ErrPayloadTooLarge) {
					logger.Warn("malformed frame dropped", "peer_id", peerID, "error", err)
					continue
				}
				if !errors.Is(err, io.EOF) {
					logger.Debug("connection read ended", "peer_id", peerID, "error", err)
				}
				break
			}
			// A malformed or out-of-state envelope is noise the protocol
			// tolerates: log it and keep reading rather than tearing down
			// the connection over one bad message.
			if err := sess.HandleEnvelope(ctx, env); err != nil {
				logger.Warn("envelope rejected", "peer_id", peerID, "error", err)
			}
		}

		leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sess.Leave(leaveCtx); err != nil {
			logger.Warn("session leave failed", "peer_id", peerID, "error", err)
		}
	}
}

func peerIDFromRequest(r *http.Request) uuid.UUID {
	if raw := r.URL.Query().Get("peer_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id
		}
	}
	return uuid.New()
}

// runWALFlushLoop periodically flushes the write-ahead log buffer even
// when the shared buffer never crosses its entry/byte flush threshold —
// SyncInterval bounds how long an entry can sit unflushed during a quiet
// period.
func runWALFlushLoop(ctx context.Context, engine *session.Engine, walLog *wal.Log, interval time.Duration, m *metrics.Metrics) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if walLog.NeedsSync() {
				pending := walLog.PendingCount()
				engine.FlushWAL(ctx)
				if m != nil && pending > 0 {
					m.ObserveWALFlush(pending, 0)
				}
			}
		}
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server error", "error", err)
	}
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
