package raid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"raidbot/internal/storage"
)

const EventsTable = "events"

// TablePersister stores events as one record per event in a storage table.
type TablePersister struct {
	Store storage.Store
	Table string
}

func NewTablePersister(st storage.Store) *TablePersister {
	return &TablePersister{Store: st, Table: EventsTable}
}

func (p *TablePersister) LoadEvents(ctx context.Context) ([]*Event, error) {
	recs, err := p.Store.LoadTable(ctx, p.Table)
	if err != nil {
		return nil, err
	}
	out := make([]*Event, 0, len(recs))
	for _, r := range recs {
		var ev Event
		if err := json.Unmarshal(r.Value, &ev); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", r.Key, err)
		}
		if ev.ID == "" {
			ev.ID = r.Key
		}
		out = append(out, &ev)
	}
	return out, nil
}

func (p *TablePersister) SaveEvents(ctx context.Context, events []*Event) error {
	recs := make([]storage.Record, 0, len(events))
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
		recs = append(recs, storage.Record{Key: ev.ID, Value: b})
	}
	return p.Store.SaveTable(ctx, p.Table, recs)
}

// MemoryPersister keeps the last saved snapshot in memory. Fail makes the
// next saves return an error.
type MemoryPersister struct {
	mu    sync.Mutex
	data  []byte
	Saves int
	Fail  error
}

func (m *MemoryPersister) LoadEvents(_ context.Context) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return nil, nil
	}
	var out []*Event
	if err := json.Unmarshal(m.data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MemoryPersister) SaveEvents(_ context.Context, events []*Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	b, err := json.Marshal(events)
	if err != nil {
		return err
	}
	m.data = b
	m.Saves++
	return nil
}

func (m *MemoryPersister) SetFail(err error) {
	m.mu.Lock()
	m.Fail = err
	m.mu.Unlock()
}
