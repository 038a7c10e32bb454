package chunk

import (
	"strings"
	"testing"
)

func TestSplit_Empty(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "\n\t  \n"} {
		if got := Split(in, 100, 10); got != nil {
			t.Errorf("Split(%q) = %v, want nil", in, got)
		}
	}
}

func TestSplit_SingleSentenceFits(t *testing.T) {
	t.Parallel()

	got := Split("The quick brown fox jumps.", 100, 10)
	if len(got) != 1 || got[0] != "The quick brown fox jumps." {
		t.Errorf("Split = %v, want single trimmed sentence", got)
	}
}

func TestSplit_PacksSentencesUpToSize(t *testing.T) {
	t.Parallel()

	got := Split("One. Two. Three.", 10, 0)
	want := []string{"One. Two.", "Three."}
	if len(got) != len(want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplit_OverlapCarriesTail(t *testing.T) {
	t.Parallel()

	got := Split("One. Two. Three.", 10, 3)
	if len(got) != 2 {
		t.Fatalf("Split = %v, want 2 chunks", got)
	}
	// Second chunk starts with the last characters of the first.
	tail := got[0][len(got[0])-3:]
	if !strings.HasPrefix(got[1], tail) {
		t.Errorf("chunk[1] = %q does not start with overlap tail %q", got[1], tail)
	}
}

func TestSplit_NoChunkExceedsSize(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("Sentences of a modest width flow here. ", 80)
	for _, overlap := range []int{0, 50, 199} {
		for _, c := range Split(text, 200, overlap) {
			if n := len([]rune(c)); n > 200 {
				t.Errorf("overlap %d: chunk length %d exceeds size 200", overlap, n)
			}
			if strings.TrimSpace(c) == "" {
				t.Errorf("overlap %d: emitted empty chunk", overlap)
			}
		}
	}
}

func TestSplit_HardSplitsLongSentence(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 25) // no punctuation: one oversized sentence
	got := Split(long, 10, 2)
	if len(got) != 3 {
		t.Fatalf("Split = %v, want 3 hard-split pieces", got)
	}
	// Stride is size-overlap, so consecutive pieces share two characters.
	if got[0] != strings.Repeat("x", 10) {
		t.Errorf("piece[0] = %q", got[0])
	}
	if len(got[2]) != 9 { // runes 16..25
		t.Errorf("piece[2] length = %d, want 9", len(got[2]))
	}
}

func TestSplit_Deterministic(t *testing.T) {
	t.Parallel()

	text := "Alpha beta gamma. Delta epsilon? Zeta eta theta! Iota kappa."
	a := Split(text, 30, 8)
	b := Split(text, 30, 8)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk[%d] differs: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestSplit_UnterminatedTailKept(t *testing.T) {
	t.Parallel()

	got := Split("Complete sentence. trailing fragment without punctuation", 100, 0)
	joined := strings.Join(got, " ")
	if !strings.Contains(joined, "trailing fragment without punctuation") {
		t.Errorf("unterminated tail lost: %v", got)
	}
}

func TestSplit_DefaultsApplied(t *testing.T) {
	t.Parallel()

	// size <= 0 falls back to DefaultSize; must not panic or loop.
	got := Split("A sentence. Another sentence.", 0, -1)
	if len(got) != 1 {
		t.Errorf("Split with defaults = %v, want one merged chunk", got)
	}
}

func TestMake_AssignsIndices(t *testing.T) {
	t.Parallel()

	chunks := Make("guide.pdf", []string{"a", "b", "c"})
	if len(chunks) != 3 {
		t.Fatalf("Make returned %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk[%d].Index = %d", i, c.Index)
		}
		if c.SourceID != "guide.pdf" {
			t.Errorf("chunk[%d].SourceID = %q", i, c.SourceID)
		}
	}
}
