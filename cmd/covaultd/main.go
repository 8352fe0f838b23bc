// Package main runs the covault service: the shared-account engine behind a
// JSON HTTP API, with an optional webhook notifier for committed events.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hbeckert/covault/internal/notify"
	"github.com/hbeckert/covault/internal/platform/config"
	"github.com/hbeckert/covault/internal/platform/logger"
	"github.com/hbeckert/covault/internal/storage"
	bboltstore "github.com/hbeckert/covault/internal/storage/bbolt"
	"github.com/hbeckert/covault/internal/storage/memory"
	"github.com/hbeckert/covault/internal/transport/httpapi"
	"github.com/hbeckert/covault/internal/vault/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var port int
	var dataPath string
	flag.IntVar(&port, "port", 0, "HTTP listen port (overrides PORT)")
	flag.StringVar(&dataPath, "db-path", "", "path to bbolt database (overrides DATA_PATH; empty = in-memory)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}
	if dataPath != "" {
		cfg.DataPath = dataPath
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stores, idempotency, closeStore, err := openStores(cfg.DataPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error("close store", "error", err)
		}
	}()

	engine := service.New(stores.Stores, log)
	server := httpapi.New(engine, idempotency, log)

	var wg sync.WaitGroup
	if cfg.WebhookURL != "" {
		notifier := notify.New(stores.Events, stores.Watermarks, notify.Config{
			URL:    cfg.WebhookURL,
			Secret: cfg.WebhookSecret,
		}, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			notifier.Run(ctx)
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("http server listening", "port", cfg.Port)
		errChan <- server.Listen(cfg.Port)
	}()

	select {
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	cancel()
	if err := server.Shutdown(); err != nil {
		log.Error("shutdown http server", "error", err)
	}
	wg.Wait()
	return nil
}

// vaultStores bundles the engine stores with the notifier's event feed.
type vaultStores struct {
	storage.Stores
	Watermarks storage.WatermarkStore
}

func openStores(dataPath string, log *logger.Logger) (vaultStores, storage.IdempotencyStore, func() error, error) {
	if dataPath == "" {
		log.Warn("DATA_PATH is empty, running on the in-memory store; state is lost on restart")
		store := memory.New()
		stores := vaultStores{
			Stores:     storage.Stores{Accounts: store, Withdrawals: store, Events: store},
			Watermarks: store,
		}
		return stores, store, func() error { return nil }, nil
	}

	store, err := bboltstore.Open(dataPath)
	if err != nil {
		return vaultStores{}, nil, nil, fmt.Errorf("open store: %w", err)
	}
	log.Info("bbolt store opened", "path", dataPath)
	stores := vaultStores{
		Stores:     storage.Stores{Accounts: store, Withdrawals: store, Events: store},
		Watermarks: store,
	}
	return stores, store, store.Close, nil
}
