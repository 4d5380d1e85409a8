package raid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "raidbot/pkg/logx"
)

func TestAutoSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)
	_, err := NewAutoScheduler(h.ctrl, []AutoJob{{Template: Template{ID: "raid1"}, Spec: "every tuesday"}}, time.UTC, logx.Nop())
	assert.ErrorContains(t, err, "raid1")
}

func TestAutoSchedulerRunSkipsExisting(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)
	job := AutoJob{
		Template: Template{ID: "raid1", Name: "Weekly Static Run", Days: []time.Weekday{time.Monday, time.Thursday}, Hour: 20},
		Spec:     "@weekly",
		Channel:  "-100",
	}
	a, err := NewAutoScheduler(h.ctrl, []AutoJob{job}, time.UTC, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len())

	a.run(job)
	assert.Equal(t, 8, h.store.Len())
	a.run(job)
	assert.Equal(t, 8, h.store.Len())

	a.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a.Stop(ctx)
}

func TestKVFields(t *testing.T) {
	t.Parallel()
	fields := kvFields([]interface{}{"next run", 1, 2, "x", "dangling"})
	assert.Len(t, fields, 2)
}
