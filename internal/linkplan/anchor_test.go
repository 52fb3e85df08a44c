package linkplan

import (
	"strings"
	"testing"
)

func TestSelectAnchors_PrefersTopicOverlap(t *testing.T) {
	t.Parallel()

	plain := "Solar panels cut energy bills for homeowners. Many households also add batteries."
	target := Target{
		Title:    "Solar energy guide",
		Keywords: "solar, energy",
	}

	picks := SelectAnchors(plain, "en", target, Span{}, nil, testConfig())
	if len(picks) == 0 {
		t.Fatalf("expected anchor picks")
	}

	top := picks[0]
	lower := strings.ToLower(top.Text)
	if !strings.Contains(lower, "solar") || !strings.Contains(lower, "energy") {
		t.Fatalf("top pick %q should cover both topic terms", top.Text)
	}
	words := len(strings.Fields(top.Text))
	if words < 3 || words > 7 {
		t.Fatalf("pick %q violates word bounds", top.Text)
	}
	if got := string([]rune(plain)[top.Start:top.End]); got != top.Text {
		t.Fatalf("offsets disagree with text: %q vs %q", got, top.Text)
	}
}

func TestSelectAnchors_NeverCrossesSentenceBoundary(t *testing.T) {
	t.Parallel()

	plain := "Wind turbines rise. Solar farms spread fast across valleys."
	target := Target{Keywords: "turbines, solar, farms"}

	picks := SelectAnchors(plain, "en", target, Span{}, nil, testConfig())
	for _, p := range picks {
		if strings.Contains(p.Text, ".") {
			t.Fatalf("pick %q crosses a sentence boundary", p.Text)
		}
		if strings.Contains(strings.ToLower(p.Text), "rise") && strings.Contains(strings.ToLower(p.Text), "solar") {
			t.Fatalf("pick %q spans two sentences", p.Text)
		}
	}
}

func TestSelectAnchors_RejectsStopwordDominated(t *testing.T) {
	t.Parallel()

	plain := "It is the only solar option there is for them in the end."
	target := Target{Keywords: "solar"}

	picks := SelectAnchors(plain, "en", target, Span{}, nil, testConfig())
	stop := StopwordsFor("en")
	for _, p := range picks {
		words := strings.Fields(strings.ToLower(p.Text))
		stops := 0
		for _, w := range words {
			if stop[strings.Trim(w, ".,")] {
				stops++
			}
		}
		if stops*2 > len(words) {
			t.Fatalf("pick %q is stop-word dominated", p.Text)
		}
	}
}

func TestSelectAnchors_SkipsUsedAnchors(t *testing.T) {
	t.Parallel()

	plain := "Solar panels cut energy bills for homeowners."
	target := Target{Keywords: "solar, energy"}

	all := SelectAnchors(plain, "en", target, Span{}, nil, testConfig())
	if len(all) == 0 {
		t.Fatalf("expected picks")
	}

	used := map[string]bool{strings.ToLower(all[0].Text): true}
	remaining := SelectAnchors(plain, "en", target, Span{}, used, testConfig())
	for _, p := range remaining {
		if strings.EqualFold(p.Text, all[0].Text) {
			t.Fatalf("used anchor %q was offered again", p.Text)
		}
	}
}

func TestSelectAnchors_NoTopicOverlapMeansNoPicks(t *testing.T) {
	t.Parallel()

	plain := "Solar panels cut energy bills for homeowners."
	target := Target{Keywords: "quantum, cryptography"}

	picks := SelectAnchors(plain, "en", target, Span{}, nil, testConfig())
	if len(picks) != 0 {
		t.Fatalf("expected no picks without topic overlap, got %d", len(picks))
	}
}

func TestCountOccurrencesBefore(t *testing.T) {
	t.Parallel()

	plain := "solar power beats old solar power plants using solar power"
	if got := countOccurrencesBefore(plain, "solar power", 0); got != 0 {
		t.Fatalf("first occurrence ordinal: want 0, got %d", got)
	}
	if got := countOccurrencesBefore(plain, "solar power", 22); got != 1 {
		t.Fatalf("second occurrence ordinal: want 1, got %d", got)
	}
	if got := countOccurrencesBefore(plain, "solar power", 47); got != 2 {
		t.Fatalf("third occurrence ordinal: want 2, got %d", got)
	}
}

func TestTokenizeWords_Offsets(t *testing.T) {
	t.Parallel()

	plain := "Alpha beta-gamma, delta."
	words := tokenizeWords(plain)
	if len(words) != 3 {
		t.Fatalf("expected 3 words, got %d", len(words))
	}
	if words[1].text != "beta-gamma" {
		t.Fatalf("hyphenated word split: %q", words[1].text)
	}
	runes := []rune(plain)
	for _, w := range words {
		if string(runes[w.start:w.end]) != w.text {
			t.Fatalf("offsets disagree for %q", w.text)
		}
	}
	if words[2].gapBreak {
		t.Fatalf("comma must not mark a sentence break")
	}
}
