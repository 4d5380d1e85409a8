package adapter

import (
	"strings"
	"testing"

	kit "raidbot/internal/transport"
)

func TestSplitTextShortInputIsSingleChunk(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitText(s, 10, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2: %q", len(got), got)
	}
	if got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("unexpected chunks: %q", got)
	}
}

func TestSplitTextAvoidsCuttingTags(t *testing.T) {
	t.Parallel()
	s := "abcdef<b>bold</b>"
	got := splitText(s, 8, "HTML")
	for _, c := range got {
		if strings.Count(c, "<") != strings.Count(c, ">") {
			t.Fatalf("chunk cuts a tag: %q (all=%q)", c, got)
		}
	}
	if strings.Join(got, "") != s {
		t.Fatalf("chunks lost content: %q", got)
	}
}

func TestInlineMarkupSkipsEmptyButtons(t *testing.T) {
	t.Parallel()
	if inlineMarkup(nil) != nil {
		t.Fatal("nil rows should produce nil markup")
	}
	rm := inlineMarkup([][]kit.Button{
		{{Text: "Tank", Data: "raid:join:x:0"}, {Text: ""}},
		{{Text: ""}},
	})
	if rm == nil || len(rm.InlineKeyboard) != 1 || len(rm.InlineKeyboard[0]) != 1 {
		t.Fatalf("unexpected markup: %+v", rm)
	}
	if rm.InlineKeyboard[0][0].Data != "raid:join:x:0" {
		t.Fatalf("data = %q", rm.InlineKeyboard[0][0].Data)
	}
}
