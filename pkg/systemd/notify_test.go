package systemd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	logx "raidbot/pkg/logx"
)

func TestNotifyWithoutSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	assert.NotPanics(t, func() { Notify(logx.Nop(), Ready) })
}

func TestWatchdogLoopReturnsWhenDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	done := make(chan struct{})
	go func() {
		WatchdogLoop(context.Background(), logx.Nop(), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog loop should return when disabled")
	}
}
