package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/bakerline/qtour/internal/checklist"
	"github.com/bakerline/qtour/internal/queue"
	"github.com/bakerline/qtour/internal/remote"
	"github.com/bakerline/qtour/internal/resilience"
	"github.com/bakerline/qtour/internal/tour"
)

// tourEnv holds the initialized store, remote client and tour service
// used by the commands. Callers should defer env.Close().
type tourEnv struct {
	Store queue.Store
	Tour  *tour.Service
	Defs  checklist.Set
}

func (e *tourEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (queue.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return queue.NewSQLite(cfg.Store.Path)
	case "postgres":
		return queue.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initTour sets up the durable store, the remote service client and the
// tour service for the given tour id.
func initTour(ctx context.Context, tourID string) (*tourEnv, error) {
	if tourID == "" {
		return nil, eris.New("tour id is required")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	defs, err := checklist.Load(cfg.Checklist.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	svc := remote.NewClient(remote.Options{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: time.Duration(cfg.Remote.TimeoutSecs) * time.Second,
		Rate:    rate.Limit(cfg.Remote.RatePerSec),
		Burst:   cfg.Remote.Burst,
		Retry: resilience.RetryConfig{
			MaxAttempts:    cfg.Sync.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Sync.BackoffMillis) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.Sync.MaxBackoffSecs) * time.Second,
		},
	}, remote.StaticToken(cfg.Remote.Token))

	return &tourEnv{
		Store: st,
		Tour:  tour.New(tourID, defs, st, svc),
		Defs:  defs,
	}, nil
}
