package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
telegram:
  token: "${RAIDBOT_TEST_TOKEN}"
logging:
  level: debug
  console: true
scheduler:
  timezone: UTC
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	t.Setenv("RAIDBOT_TEST_TOKEN", "abc:123")
	p := writeFile(t, t.TempDir(), "config.yaml", minimalYAML)

	cfg, err := NewConfigManager(p).Load()
	require.NoError(t, err)

	assert.Equal(t, "abc:123", cfg.Telegram.Token)
	assert.Equal(t, DefaultRoles, cfg.Raid.Roles)
	assert.Equal(t, 2, cfg.Raid.DefaultComposition["Tank"])
	assert.Len(t, cfg.Raid.Reminders, 3)
	assert.Equal(t, "30m", cfg.Raid.FetchDelay)
	assert.Equal(t, 4, cfg.Raid.HorizonWeeks)
	assert.Contains(t, cfg.Templates, "raid1")
	assert.Equal(t, "na", cfg.FFLogs.Region)
	assert.Equal(t, "file", cfg.Storage.Driver)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"telegram":{"token":"x"},"bogus":1}`)
	_, err := NewConfigManager(p).Parse()
	require.Error(t, err)
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"telegram":{"token":"x"}}{}`)
	_, err := NewConfigManager(p).Parse()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		c := &Config{Telegram: TelegramConfig{Token: "t"}}
		ApplyDefaults(c)
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, false},
		{"postgres needs dsn", func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres"} }, false},
		{"redis ok", func(c *Config) { c.Storage = &StorageConfig{Driver: "redis", Addr: "localhost:6379"} }, true},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, false},
		{"composition unknown role", func(c *Config) { c.Raid.DefaultComposition["Bard"] = 1 }, false},
		{"duplicate reminder label", func(c *Config) {
			c.Raid.Reminders = append(c.Raid.Reminders, ReminderConfig{Label: "1 hour", Offset: "2h"})
		}, false},
		{"zero reminder offset", func(c *Config) { c.Raid.Reminders[0].Offset = "0s" }, false},
		{"bad template day", func(c *Config) {
			c.Templates["x"] = TemplateConfig{Name: "X", Days: []string{"Funday"}, Time: "20:00"}
		}, false},
		{"bad template time", func(c *Config) {
			c.Templates["x"] = TemplateConfig{Name: "X", Days: []string{"Mon"}, Time: "25:00"}
		}, false},
		{"auto without chat", func(c *Config) {
			c.Templates["x"] = TemplateConfig{Name: "X", Days: []string{"Mon"}, Time: "20:00", Auto: "0 3 * * *"}
		}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base()
			tt.mutate(c)
			err := Validate(c)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseWeekdayAndClock(t *testing.T) {
	t.Parallel()
	d, ok := ParseWeekday("thu")
	require.True(t, ok)
	assert.Equal(t, time.Thursday, d)
	d, ok = ParseWeekday("Monday")
	require.True(t, ok)
	assert.Equal(t, time.Monday, d)
	_, ok = ParseWeekday("mo")
	assert.False(t, ok)

	h, m, err := ParseClock("20:05")
	require.NoError(t, err)
	assert.Equal(t, 20, h)
	assert.Equal(t, 5, m)
}

func TestSummarizeConfigChangeNeverLogsSecrets(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Telegram: TelegramConfig{Token: "old"}}
	newCfg := &Config{Telegram: TelegramConfig{Token: "new"}, FFLogs: FFLogsConfig{ClientSecret: "s3cr3t"}}

	changed, attrs, _ := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"fflogs", "telegram"}, changed)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"fflogs", "telegram"}, RestartRequired(changed))
}

func TestReloadPublishesOnlyOnChange(t *testing.T) {
	t.Setenv("RAIDBOT_TEST_TOKEN", "abc")
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", minimalYAML)

	m := NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	require.NoError(t, m.Reload(context.Background()))
	assert.Len(t, ch, 0)

	writeFile(t, dir, "config.yaml", minimalYAML+"  poll_interval: 10s\n")
	require.NoError(t, m.Reload(context.Background()))
	require.Len(t, ch, 1)
	got := <-ch
	assert.Equal(t, "10s", got.Scheduler.PollInterval)
	assert.Same(t, got, m.Get())
}
