// ABOUTME: Wires config into the store, provider, notifier, reconciler, and worker service
// ABOUTME: One app per CLI invocation; Close releases the store

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/2389/coven-cloudworker/internal/config"
	"github.com/2389/coven-cloudworker/internal/notify"
	"github.com/2389/coven-cloudworker/internal/provider"
	"github.com/2389/coven-cloudworker/internal/provider/jules"
	"github.com/2389/coven-cloudworker/internal/pubsub"
	"github.com/2389/coven-cloudworker/internal/reconcile"
	"github.com/2389/coven-cloudworker/internal/store"
	"github.com/2389/coven-cloudworker/internal/worker"
)

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    store.Store
	provider provider.Provider
	events   *pubsub.Broker[reconcile.Transition]
	rec      *reconcile.Reconciler
	service  *worker.Service
}

// newApp builds every component from cfg. Notifications go to out.
func newApp(cfg *config.Config, logger *slog.Logger, out io.Writer) (*app, error) {
	st, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	p, err := newProvider(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	events := pubsub.NewBroker[reconcile.Transition]()
	rec := reconcile.NewReconciler(p, st, reconcile.ReconcilerOptions{
		Notifier: newNotifier(cfg.Notify, logger, out),
		Events:   events,
		Logger:   logger,
	})
	svc := worker.NewService(worker.Config{
		Provider:        p,
		Store:           st,
		Reconciler:      rec,
		MaxReviewRounds: cfg.Sessions.MaxReviewRounds,
		Logger:          logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		provider: p,
		events:   events,
		rec:      rec,
		service:  svc,
	}, nil
}

func (a *app) Close() error {
	a.events.Shutdown()
	return a.store.Close()
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	case config.DriverSQLite:
		st, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("opening session store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newProvider(cfg *config.Config, logger *slog.Logger) (provider.Provider, error) {
	switch cfg.Provider {
	case jules.ProviderName:
		client := jules.NewClient(jules.ClientConfig{
			APIKey:            cfg.Jules.APIKey,
			BaseURL:           cfg.Jules.BaseURL,
			APIVersion:        cfg.Jules.APIVersion,
			Timeout:           cfg.Jules.Timeout,
			RequestsPerSecond: cfg.Jules.RequestsPerSecond,
			Logger:            logger,
		})
		return jules.NewProvider(client, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger, out io.Writer) notify.Notifier {
	switch cfg.Sink {
	case config.SinkLog:
		return notify.NewLogNotifier(logger)
	default:
		return notify.NewTerminalNotifier(out)
	}
}
