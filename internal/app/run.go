// Package app wires the pieces into a running peer: identity, signaling
// store, media manager, call engine, config watcher and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/avdwoude/callbox/internal/api"
	"github.com/avdwoude/callbox/internal/call"
	"github.com/avdwoude/callbox/internal/config"
	"github.com/avdwoude/callbox/internal/docstore"
	"github.com/avdwoude/callbox/internal/identity"
	"github.com/avdwoude/callbox/internal/media"
	"github.com/avdwoude/callbox/internal/signal"
	"github.com/avdwoude/callbox/internal/util"
)

type Options struct {
	// Dir is the peer data directory: identity key, sqlite database and
	// config all live under it.
	Dir     string
	CfgPath string
	Cfg     config.Config
}

func Run(ctx context.Context, opt Options) error {
	cfg := opt.Cfg

	logBuf := api.NewLogBuffer(800)
	log.SetOutput(io.MultiWriter(os.Stderr, logBuf))

	logBanner(opt.Dir, opt.CfgPath)

	// ── Identity
	keyFile := util.ResolvePath(opt.Dir, cfg.Identity.KeyFile)
	selfID, created, err := identity.LoadOrCreate(keyFile)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if created {
		log.Printf("Generated new identity: %s", selfID)
	} else {
		log.Printf("Loaded identity: %s", selfID)
	}

	// ── Signaling store
	store, err := openStore(ctx, opt.Dir, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	defer store.Close()

	// ── Call engine
	devices := media.NewManager()
	eng, err := call.New(call.Options{
		SelfID:      selfID,
		Signaler:    signal.NewTransport(store),
		Devices:     devices,
		ICEServers:  cfg.ICE.Servers,
		RingTimeout: time.Duration(cfg.Call.RingTimeoutSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("call engine: %w", err)
	}
	defer eng.Close()

	// ── Config hot-reload (ICE servers only; everything else needs a
	// restart)
	watcher, err := config.NewWatcher(opt.CfgPath, func(next config.Config) {
		eng.UpdateICEServers(next.ICE.Servers)
	})
	if err != nil {
		log.Printf("CONFIG: hot-reload disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	// ── HTTP API (localhost only — the API has no auth of its own)
	listenAddr, apiURL, _ := NormalizeLocalAPI(cfg.API.HTTPAddr)
	mux := http.NewServeMux()
	api.RegisterCall(mux, eng, devices, selfID)
	api.RegisterLogs(mux, logBuf)

	srv := &http.Server{
		Addr:        listenAddr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No write timeout: /api/call/events streams for the lifetime of
		// the browser tab.
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), util.ShortTimeout)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Printf("API listening on %s", apiURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, dir string, sc config.Store) (docstore.Store, error) {
	switch sc.Backend {
	case "memory":
		return docstore.NewMemory(), nil
	case "sqlite":
		return docstore.OpenSQLite(filepath.Join(dir, "data"))
	case "redis":
		r := docstore.NewRedis(docstore.RedisOptions{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, util.DefaultPublishTimeout)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			r.Close()
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", sc.Backend)
	}
}

func logBanner(dir, cfgPath string) {
	log.Printf("────────────────────────────────────────")
	log.Printf(" callbox peer")
	log.Printf(" dir:    %s", dir)
	log.Printf(" config: %s", cfgPath)
	log.Printf("────────────────────────────────────────")
}
