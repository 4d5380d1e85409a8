package raid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "raidbot/pkg/logx"
)

func TestConcurrentSignupsRespectCapacity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := &MemoryPersister{}
	s := NewStore(p, logx.Nop())
	ev := &Event{ID: "e1", Name: "Savage", ScheduledAt: time.Now().Add(time.Hour), Capacity: map[string]int{"Tank": 2}}
	require.NoError(t, s.Insert(ctx, ev))

	r := Roster{Roles: testRoles}
	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(pid int64) {
			defer wg.Done()
			_, err := s.Mutate(ctx, "e1", func(ev *Event) (bool, error) {
				return r.SignUp(ev, pid, "p", "Tank").Changed(), nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, ok := s.Get("e1")
	require.True(t, ok)
	assert.Len(t, got.Participants, 2)
	assert.Len(t, got.Waitlist, 48)

	loaded, err := p.LoadEvents(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Len(t, loaded[0].Waitlist, 48)
}

func TestMutateWithoutChangeSkipsPersist(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := &MemoryPersister{}
	s := NewStore(p, logx.Nop())
	require.NoError(t, s.Insert(ctx, &Event{ID: "e1", Name: "x"}))
	saves := p.Saves

	_, err := s.Mutate(ctx, "e1", func(*Event) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.Equal(t, saves, p.Saves)

	_, err = s.Mutate(ctx, "missing", func(*Event) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore(&MemoryPersister{}, logx.Nop())
	require.NoError(t, s.Insert(ctx, &Event{ID: "e1", Name: "x", Capacity: map[string]int{"Tank": 1}}))

	ev, _ := s.Get("e1")
	ev.Capacity["Tank"] = 9
	ev.Name = "changed"

	again, _ := s.Get("e1")
	assert.Equal(t, 1, again.Capacity["Tank"])
	assert.Equal(t, "x", again.Name)
	assert.Error(t, s.Insert(ctx, &Event{ID: "e1"}))
}
