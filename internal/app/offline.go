package app

import (
	"context"
	"fmt"
	"sort"

	"raidbot/internal/config"
	"raidbot/internal/raid"
	"raidbot/internal/storage"
	logx "raidbot/pkg/logx"
)

// CheckConfig loads and validates the config file without starting anything.
func CheckConfig(path string) (*config.Config, error) {
	cfg, err := config.NewConfigManager(path).Load()
	if err != nil {
		return nil, err
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StoredEvents reads the events table straight from the configured storage,
// earliest first.
// It is safe to run next to a live bot only for the file and network
// drivers; bolt holds an exclusive lock.
func StoredEvents(ctx context.Context, path string, log logx.Logger) ([]*raid.Event, raid.RenderOptions, error) {
	cfg, err := CheckConfig(path)
	if err != nil {
		return nil, raid.RenderOptions{}, err
	}
	rcfg, err := mapRaidConfig(cfg)
	if err != nil {
		return nil, raid.RenderOptions{}, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, raid.RenderOptions{}, err
	}
	st, err := storage.Open(ctx, sc, log)
	if err != nil {
		return nil, raid.RenderOptions{}, fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = st.Close() }()

	evs, err := raid.NewTablePersister(st).LoadEvents(ctx)
	if err != nil {
		return nil, raid.RenderOptions{}, err
	}
	sort.Slice(evs, func(i, j int) bool { return evs[i].ScheduledAt.Before(evs[j].ScheduledAt) })
	return evs, raid.RenderOptions{Location: rcfg.Location, Roles: rcfg.Roles}, nil
}
