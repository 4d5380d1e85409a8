package fflogs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raidbot/internal/raid"
	"raidbot/internal/storage"
	logx "raidbot/pkg/logx"
)

type fakeAPI struct {
	tokens   atomic.Int32
	requests atomic.Int32
	// characters by lower-case name
	characters map[string]apiCharacter
	// reports by character id; missing ids return a GraphQL error
	reports map[int64][]apiReport
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/api/v2/client", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if name, ok := req.Variables["name"].(string); ok {
			ch, found := f.characters[strings.ToLower(name)]
			var payload any
			if found {
				payload = ch
			}
			writeData(w, map[string]any{"characterData": map[string]any{"character": payload}})
			return
		}
		id := int64(req.Variables["id"].(float64))
		reps, ok := f.reports[id]
		if !ok {
			_, _ = w.Write([]byte(`{"errors":[{"message":"boom"}]}`))
			return
		}
		writeData(w, map[string]any{"characterData": map[string]any{"character": map[string]any{
			"name":          fmt.Sprintf("char%d", id),
			"server":        map[string]any{"name": "Gilgamesh", "region": map[string]any{"name": "NA"}},
			"recentReports": map[string]any{"data": reps},
		}}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeData(w http.ResponseWriter, data any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func newTestService(t *testing.T, api *fakeAPI) *Service {
	t.Helper()
	srv := api.server(t)
	client := NewClient(context.Background(), Config{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/oauth/token",
		APIURL:       srv.URL + "/api/v2/client",
		Region:       "na",
	}, logx.Nop())

	st, err := storage.Open(context.Background(), storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewService(client, NewRegistry(st), logx.Nop())
}

func wol() apiCharacter {
	ch := apiCharacter{ID: 42, Name: "Warrior of Light", LodestoneID: 7}
	ch.Server.Name = "Gilgamesh"
	ch.Server.Region.Name = "NA"
	return ch
}

func TestRegisterUpsertsCharacter(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{characters: map[string]apiCharacter{"warrior of light": wol()}}
	svc := newTestService(t, api)
	ctx := context.Background()

	msg, err := svc.Register(ctx, 1, "Warrior of Light", "Gilgamesh", "")
	require.NoError(t, err)
	assert.Equal(t, `Successfully registered character "Warrior of Light" on "Gilgamesh"`, msg)

	_, err = svc.Register(ctx, 1, "warrior of light", "Gilgamesh", "na")
	require.NoError(t, err)
	assert.Len(t, svc.Registry().List(1), 1)

	primary, ok := svc.Registry().Primary(1)
	require.True(t, ok)
	assert.Equal(t, int64(42), primary.ID)
	assert.Equal(t, int32(1), api.tokens.Load())

	reloaded := NewRegistry(svc.Registry().st)
	n, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, svc.Registry().List(1), reloaded.List(1))
}

func TestRegisterUnknownCharacter(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, &fakeAPI{})

	msg, err := svc.Register(context.Background(), 1, "Nobody", "Gilgamesh", "eu")
	require.NoError(t, err)
	assert.Equal(t, `Character "Nobody" not found on server "Gilgamesh" (EU)`, msg)
	_, ok := svc.Registry().Primary(1)
	assert.False(t, ok)
}

func TestRecentReportsSummaries(t *testing.T) {
	t.Parallel()
	start := time.Date(2025, 3, 3, 20, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		characters: map[string]apiCharacter{"warrior of light": wol()},
		reports: map[int64][]apiReport{42: {{
			Code:      "abc",
			Title:     "Prog",
			StartTime: start.UnixMilli(),
			EndTime:   start.Add(time.Hour + 2*time.Minute + 3*time.Second).UnixMilli(),
			Zone:      &apiZone{Name: "Arcadion"},
			Fights:    []apiFight{{Kill: false, FightPercentage: 63.2}, {Kill: false, FightPercentage: 12.5}, {Kill: true}},
		}}},
	}
	svc := newTestService(t, api)
	ctx := context.Background()

	_, ok, err := svc.Recent(ctx, 1, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Register(ctx, 1, "Warrior of Light", "Gilgamesh", "")
	require.NoError(t, err)
	logs, ok, err := svc.Recent(ctx, 1, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, logs.Reports, 1)

	r := logs.Reports[0]
	assert.Equal(t, 3, r.Pulls)
	assert.Equal(t, 1, r.Kills)
	assert.True(t, r.HasBestPull)
	assert.InDelta(t, 87.5, r.BestPull, 0.001)
	assert.Equal(t, "https://www.fflogs.com/reports/abc", r.URL)

	out := FormatRecent(logs)
	assert.Contains(t, out, "Duration: 1:02:03")
	assert.Contains(t, out, "Pulls: 3 | Kills: 1 | Best Pull: 87.5%")
}

func TestStaticPerformanceSkipsFailedMembers(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{
		reports: map[int64][]apiReport{
			1: {
				{Code: "a", Zone: &apiZone{Name: "Z"}, Fights: []apiFight{{Kill: true}, {FightPercentage: 40}}},
			},
			2: {
				{Code: "b", Zone: &apiZone{Name: "Z"}, Fights: []apiFight{{FightPercentage: 10}}},
			},
		},
	}
	svc := newTestService(t, api)
	ctx := context.Background()
	reg := svc.Registry()
	require.NoError(t, reg.Upsert(ctx, 10, Character{ID: 1, Name: "One", Server: "S"}))
	require.NoError(t, reg.Upsert(ctx, 20, Character{ID: 2, Name: "Two", Server: "S"}))
	require.NoError(t, reg.Upsert(ctx, 30, Character{ID: 99, Name: "Broken", Server: "S"}))

	ev := &raid.Event{ID: "e", Name: "Savage", Participants: map[int64]raid.Participant{
		10: {Role: "Tank"}, 20: {Role: "Caster DPS"}, 30: {Role: "Flex"}, 40: {Role: "Flex"},
	}}
	st, err := svc.StaticPerformance(ctx, ev)
	require.NoError(t, err)
	require.Len(t, st.Members, 2)
	require.Len(t, st.Zones, 1)

	z := st.Zones[0]
	assert.Equal(t, 3, z.Pulls)
	assert.Equal(t, 1, z.Kills)
	assert.Equal(t, 2, z.Participation)
	assert.InDelta(t, 90, z.BestPull, 0.001)
	assert.Equal(t, "33.3%", z.KillRatio())

	report, err := svc.EventReport(ctx, ev)
	require.NoError(t, err)
	assert.Contains(t, report, "Raid Performance Report")
	assert.Contains(t, report, "One (S) - Tank")
	assert.NotContains(t, report, "Broken")
}

func TestEventReportEmptyWithoutData(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, &fakeAPI{})
	report, err := svc.EventReport(context.Background(), &raid.Event{ID: "e", Participants: map[int64]raid.Participant{1: {Role: "Tank"}}})
	require.NoError(t, err)
	assert.Empty(t, report)
}

func TestClientNotConfigured(t *testing.T) {
	t.Parallel()
	c := NewClient(context.Background(), Config{}, logx.Nop())
	assert.False(t, c.Enabled())
	_, err := c.FindCharacter(context.Background(), "a", "b", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{59 * time.Second, "0:59"},
		{9*time.Minute + 5*time.Second, "9:05"},
		{time.Hour, "1:00:00"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2:03:04"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}
