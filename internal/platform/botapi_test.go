package platform

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage_Short(t *testing.T) {
	chunks := splitMessage("short message", 100)
	if len(chunks) != 1 || chunks[0] != "short message" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestSplitMessage_Empty(t *testing.T) {
	chunks := splitMessage("", 100)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk for empty, got %d", len(chunks))
	}
}

func TestSplitMessage_PrefersNewline(t *testing.T) {
	text := strings.Repeat("x", 80) + "\n" + strings.Repeat("y", 80)
	chunks := splitMessage(text, 100)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "x") {
		t.Errorf("first chunk should end at the newline cut: %q", chunks[0][len(chunks[0])-5:])
	}
	if strings.HasPrefix(chunks[1], "\n") {
		t.Error("second chunk should not start with the consumed newline")
	}
}

func TestSplitMessage_RespectsLimit(t *testing.T) {
	long := strings.Repeat("word ", 500)
	for i, c := range splitMessage(long, 64) {
		if len(c) > 64 {
			t.Errorf("chunk %d too long: %d bytes", i, len(c))
		}
	}
}

func TestSplitMessage_RuneBoundary(t *testing.T) {
	// Persian text is 2 bytes per rune; an odd byte limit would land
	// mid-rune without the boundary scan.
	text := strings.Repeat("سلامخوبی", 40)
	for i, c := range splitMessage(text, 33) {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d split mid-rune", i)
		}
	}
}

func TestSplitMessage_Reassembles(t *testing.T) {
	// No newlines, so every cut is a hard cut and nothing is dropped.
	text := strings.Repeat("abcdefgh", 300)
	joined := strings.Join(splitMessage(text, 50), "")
	if joined != text {
		t.Error("joined chunks differ from input")
	}
}

func TestSplitMessage_NewlineCutConsumesSeparator(t *testing.T) {
	// Every cut point lands on a newline, which is consumed instead of
	// leaking into the next chunk as a leading blank line.
	text := strings.Repeat("abc\ndef\n", 300)
	chunks := splitMessage(text, 50)
	for i, c := range chunks {
		if strings.HasPrefix(c, "\n") {
			t.Errorf("chunk %d starts with a blank line", i)
		}
	}
	if joined := strings.Join(chunks, "\n"); joined != text {
		t.Error("chunks plus cut newlines differ from input")
	}
}
