package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "raidbot/internal/transport"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		prefix, action, payload string
		want                    string
	}{
		{"raid", "join", "abc:2", "raid:join:abc:2"},
		{"raid", "cancel", "abc", "raid:cancel:abc"},
		{" raid ", "pf", "", "raid:pf"},
	}
	for _, tt := range tests {
		got := Data(tt.prefix, tt.action, tt.payload)
		assert.Equal(t, tt.want, got)
		p, a, pl, ok := Parse(got)
		require.True(t, ok)
		assert.Equal(t, strings.TrimSpace(tt.prefix), p)
		assert.Equal(t, tt.action, a)
		assert.Equal(t, tt.payload, pl)
	}
}

func TestParseRejectsIncomplete(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "raid", ":join", "raid:"} {
		_, _, _, ok := Parse(in)
		assert.False(t, ok, in)
	}
}

func TestFitKeepsRunesWhole(t *testing.T) {
	t.Parallel()
	s := "raid:pf:" + strings.Repeat("é", 40)
	require.Error(t, Check(s))
	got := Fit(s)
	assert.LessOrEqual(t, len(got), MaxCallbackDataLen)
	assert.NoError(t, Check(got))
	assert.True(t, strings.HasPrefix(s, got))
	assert.Equal(t, "short", Fit("short"))
}

func TestGrid(t *testing.T) {
	t.Parallel()
	btns := []kit.Button{{Text: "a"}, {Text: "b"}, {Text: "c"}}
	rows := Grid(btns, 2)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 2)
	assert.Equal(t, "c", rows[1][0].Text)
	assert.Nil(t, Grid(nil, 2))
	assert.Len(t, Grid(btns, 0), 3)
}
