package linkplan

import "strings"

var englishStopwords = buildStopwords(`a an and are as at be been but by for from
has have he her his i if in into is it its my no not of on or our she so that
the their them then there these they this to was we were what when where which
who will with you your`)

var germanStopwords = buildStopwords(`aber als auch auf aus bei bin bis das dass
dem den der des die doch du ein eine einem einen einer es für hat ich ihr im in
ist kann mit nach nicht noch nur oder sein sich sie sind so über um und von vor
war wenn werden wie wir zu zum zur`)

var spanishStopwords = buildStopwords(`al como con de del el ella ellos en entre
era es esta este fue ha hay la las le lo los más mi muy no nos o para pero por
que se ser si sin sobre su sus también te tiene un una uno y ya yo`)

var frenchStopwords = buildStopwords(`au aux avec ce ces dans de des du elle en
est et il ils je la le les leur lui mais même ne nous on ou où par pas pour qui
que sans se ses son sur un une vous y`)

func buildStopwords(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(raw) {
		set[w] = true
	}
	return set
}

// StopwordsFor returns the stop-word set for an ISO 639-1 code. Unknown
// languages fall back to English, which keeps anchor filtering conservative
// rather than disabling it.
func StopwordsFor(lang string) map[string]bool {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "de":
		return germanStopwords
	case "es":
		return spanishStopwords
	case "fr":
		return frenchStopwords
	default:
		return englishStopwords
	}
}
