package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raidbot/internal/eventbus"
	kit "raidbot/internal/transport"
	logx "raidbot/pkg/logx"
)

type fakeSender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []string
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return kit.MessageRef{}, errors.New("telegram: 502")
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.calls}, nil
}

func (f *fakeSender) snapshot() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]string(nil), f.sent...)
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		QueueSize:     8,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		DedupWindow:   time.Minute,
	}
}

func startService(t *testing.T, cfg Config, s Sender, bus eventbus.Bus) *Service {
	t.Helper()
	svc := New(cfg, s, logx.Nop(), bus)
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return svc
}

func note(text string) kit.Notification {
	return kit.Notification{Channel: "reminder", Target: kit.ChatTarget{ChatID: -100}, Text: text}
}

func TestNotifyDeliversAndRecordsHistory(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, "notifier.")
	defer unsub()

	fs := &fakeSender{}
	svc := startService(t, testConfig(), fs, bus)
	require.NoError(t, svc.Notify(context.Background(), note("raid in 1h")))

	select {
	case ev := <-events:
		assert.Equal(t, eventbus.NotifySent, ev.Type)
		data, ok := ev.Data.(NotificationEvent)
		require.True(t, ok)
		assert.Equal(t, int64(-100), data.ChatID)
	case <-time.After(2 * time.Second):
		t.Fatal("no notifier event")
	}
	_, sent := fs.snapshot()
	assert.Equal(t, []string{"raid in 1h"}, sent)
	hist := svc.Snapshot()
	require.Len(t, hist, 1)
	assert.Equal(t, "reminder", hist[0].Channel)
}

func TestNotifyRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, eventbus.NotifySent)
	defer unsub()

	fs := &fakeSender{failures: 2}
	svc := startService(t, testConfig(), fs, bus)
	require.NoError(t, svc.Notify(context.Background(), note("report")))

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
	calls, sent := fs.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"report"}, sent)
}

func TestNotifyGivesUpAfterRetries(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4, eventbus.NotifyFailed)
	defer unsub()

	fs := &fakeSender{failures: 10}
	svc := startService(t, testConfig(), fs, bus)
	require.NoError(t, svc.Notify(context.Background(), note("lost")))

	select {
	case ev := <-events:
		data := ev.Data.(NotificationEvent)
		assert.Contains(t, data.Error, "502")
	case <-time.After(2 * time.Second):
		t.Fatal("no failure event")
	}
	calls, _ := fs.snapshot()
	assert.Equal(t, 3, calls)
	assert.Empty(t, svc.Snapshot())
}

func TestNotifyDedupsWithinWindow(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	svc := New(testConfig(), fs, logx.Nop(), nil)
	svc.Start(context.Background())

	ctx := context.Background()
	require.NoError(t, svc.Notify(ctx, note("ping")))
	require.NoError(t, svc.Notify(ctx, note("ping")))
	other := note("ping")
	other.Target.ThreadID = 7
	require.NoError(t, svc.Notify(ctx, other))

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	svc.Stop(stopCtx)

	calls, _ := fs.snapshot()
	assert.Equal(t, 2, calls)
}

func TestNotifyRejectsWhenDisabledOrStopped(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Enabled = false
	disabled := New(cfg, &fakeSender{}, logx.Nop(), nil)
	disabled.Start(context.Background())
	assert.ErrorIs(t, disabled.Notify(context.Background(), note("x")), ErrDisabled)

	svc := New(testConfig(), &fakeSender{}, logx.Nop(), nil)
	assert.ErrorIs(t, svc.Notify(context.Background(), note("x")), ErrStopped)
	assert.False(t, svc.Running())
}

func TestRetryDelayBounded(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestDedupAllowEvictsOldest(t *testing.T) {
	t.Parallel()
	s := New(testConfig(), nil, logx.Nop(), nil)
	assert.True(t, s.dedupAllow("a", time.Minute, 2))
	assert.True(t, s.dedupAllow("b", 2*time.Minute, 2))
	assert.True(t, s.dedupAllow("c", 3*time.Minute, 2))
	s.dmu.Lock()
	_, hasA := s.dedup["a"]
	n := len(s.dedup)
	s.dmu.Unlock()
	assert.False(t, hasA)
	assert.Equal(t, 2, n)
}
