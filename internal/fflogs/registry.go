package fflogs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"raidbot/internal/metrics"
	"raidbot/internal/storage"
)

const CharactersTable = "characters"

// Registry maps chat users to their FFLogs characters. The first character
// of a user is their primary one.
type Registry struct {
	st storage.Store

	mu     sync.RWMutex
	byUser map[int64][]Character
}

func NewRegistry(st storage.Store) *Registry {
	return &Registry{st: st, byUser: map[int64][]Character{}}
}

func (r *Registry) Load(ctx context.Context) (int, error) {
	recs, err := r.st.LoadTable(ctx, CharactersTable)
	if err != nil {
		return 0, fmt.Errorf("load characters: %w", err)
	}
	m := make(map[int64][]Character, len(recs))
	for _, rec := range recs {
		uid, err := strconv.ParseInt(rec.Key, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("characters: bad key %q", rec.Key)
		}
		var list []Character
		if err := json.Unmarshal(rec.Value, &list); err != nil {
			return 0, fmt.Errorf("characters %s: %w", rec.Key, err)
		}
		m[uid] = list
	}
	r.mu.Lock()
	r.byUser = m
	r.mu.Unlock()
	return len(m), nil
}

// Upsert stores ch for userID, replacing an entry with the same id and
// server. The table is persisted before the change becomes visible.
func (r *Registry) Upsert(ctx context.Context, userID int64, ch Character) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := append([]Character(nil), r.byUser[userID]...)
	replaced := false
	for i, c := range list {
		if c.ID == ch.ID && c.Server == ch.Server {
			list[i] = ch
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, ch)
	}

	next := make(map[int64][]Character, len(r.byUser)+1)
	for k, v := range r.byUser {
		next[k] = v
	}
	next[userID] = list

	recs := make([]storage.Record, 0, len(next))
	for uid, l := range next {
		b, err := json.Marshal(l)
		if err != nil {
			return err
		}
		recs = append(recs, storage.Record{Key: strconv.FormatInt(uid, 10), Value: b})
	}
	if err := r.st.SaveTable(ctx, CharactersTable, recs); err != nil {
		metrics.PersistFailures.WithLabelValues(CharactersTable).Inc()
		return fmt.Errorf("save characters: %w", err)
	}
	r.byUser = next
	return nil
}

// Primary returns the first registered character of userID.
func (r *Registry) Primary(userID int64) (Character, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l := r.byUser[userID]
	if len(l) == 0 {
		return Character{}, false
	}
	return l[0], true
}

func (r *Registry) List(userID int64) []Character {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Character(nil), r.byUser[userID]...)
}
