package linkplan

import (
	"sort"
	"strings"
	"unicode"
)

// AnchorPick is one admissible anchor span, addressed in plain-text rune
// offsets. Ordinal counts earlier occurrences of the same text so the HTML
// mapper can locate the identical occurrence.
type AnchorPick struct {
	Text    string
	Start   int
	End     int
	Ordinal int
	Score   float64
}

type word struct {
	text  string
	lower string
	start int
	end   int
	// gapBreak marks a sentence or line boundary between this word and the
	// previous one; anchor windows never span such a break.
	gapBreak bool
}

// SelectAnchors scans the source plain text for word windows of
// cfg.AnchorMinWords..cfg.AnchorMaxWords that read as natural anchors for
// the target: within one sentence, not stop-word-dominated, and overlapping
// the target's keywords, title or representative chunk text. Results are
// ordered best score first; ties prefer earlier spans. A window whose text
// appears in usedAnchors is skipped so one anchor never serves two targets.
func SelectAnchors(plain, lang string, target Target, span Span, usedAnchors map[string]bool, cfg Config) []AnchorPick {
	words := tokenizeWords(plain)
	if len(words) == 0 {
		return nil
	}
	stop := StopwordsFor(lang)
	topic := topicTerms(target, span, stop)
	if len(topic) == 0 {
		return nil
	}

	minWords := cfg.AnchorMinWords
	maxWords := cfg.AnchorMaxWords
	if minWords < 1 {
		minWords = 3
	}
	if maxWords < minWords {
		maxWords = minWords
	}

	plainRunes := []rune(plain)
	picks := make([]AnchorPick, 0, 8)
	seen := make(map[string]bool)

	for i := 0; i < len(words); i++ {
		for n := minWords; n <= maxWords && i+n <= len(words); n++ {
			// A break anywhere inside the window invalidates this and every
			// longer window starting at i.
			if crossesBreak(words, i, i+n) {
				break
			}
			stopCount := 0
			score := 0.0
			counted := make(map[string]bool, n)
			for _, w := range words[i : i+n] {
				if stop[w.lower] {
					stopCount++
					continue
				}
				if topic[w.lower] && !counted[w.lower] {
					counted[w.lower] = true
					score++
				}
			}
			// More than half stop-words reads as filler, not an anchor.
			if stopCount*2 > n {
				continue
			}
			if score == 0 {
				continue
			}

			start := words[i].start
			end := words[i+n-1].end
			text := string(plainRunes[start:end])
			key := strings.ToLower(text)
			if usedAnchors[key] || seen[key] {
				continue
			}
			seen[key] = true

			// Mild preference for shorter anchors at equal overlap.
			score += 0.1 * float64(maxWords-n) / float64(maxWords)
			picks = append(picks, AnchorPick{
				Text:    text,
				Start:   start,
				End:     end,
				Ordinal: countOccurrencesBefore(plain, text, start),
				Score:   score,
			})
		}
	}

	sort.SliceStable(picks, func(i, j int) bool {
		if picks[i].Score != picks[j].Score {
			return picks[i].Score > picks[j].Score
		}
		return picks[i].Start < picks[j].Start
	})
	return picks
}

// tokenizeWords splits plain text into words with rune offsets, flagging
// sentence and paragraph boundaries between consecutive words.
func tokenizeWords(plain string) []word {
	runes := []rune(plain)
	words := make([]word, 0, len(runes)/6)

	i := 0
	pendingBreak := false
	for i < len(runes) {
		r := runes[i]
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '-' || runes[i] == '\'') {
				i++
			}
			text := string(runes[start:i])
			words = append(words, word{
				text:     text,
				lower:    strings.ToLower(text),
				start:    start,
				end:      i,
				gapBreak: pendingBreak,
			})
			pendingBreak = false
			continue
		}
		if r == '\n' || strings.ContainsRune(".!?;:", r) {
			pendingBreak = true
		}
		i++
	}
	return words
}

func crossesBreak(words []word, start, end int) bool {
	for i := start + 1; i < end; i++ {
		if words[i].gapBreak {
			return true
		}
	}
	return false
}

// topicTerms is the target vocabulary anchors must overlap: keywords, title
// words and the representative chunk text, minus stop-words.
func topicTerms(target Target, span Span, stop map[string]bool) map[string]bool {
	terms := make(map[string]bool)
	add := func(text string) {
		for _, f := range strings.Fields(strings.ToLower(text)) {
			f = strings.Trim(f, ".,;:!?\"'()[]")
			if len(f) > 1 && !stop[f] {
				terms[f] = true
			}
		}
	}
	add(strings.ReplaceAll(target.Keywords, ",", " "))
	add(target.Title)
	add(span.Text)
	return terms
}

func countOccurrencesBefore(plain, text string, runeStart int) int {
	prefix := string([]rune(plain)[:runeStart])
	return strings.Count(prefix, text)
}
