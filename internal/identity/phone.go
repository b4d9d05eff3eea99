package identity

import (
	"regexp"
	"strings"

	"github.com/mhutchins/gridkeeper/internal/domain"
	"github.com/mhutchins/gridkeeper/internal/leaguedir"
)

// Phone-shaped tokens inside fragment text. Bare digit runs are not
// accepted here: game numbers are digit runs too, so text-side capture
// requires phone punctuation shape. The sender hint is a dedicated
// field and gets looser treatment in hintDigits.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	regexp.MustCompile(`\b\d{3}[-.]\d{4}\b`),
}

// phoneCandidate pulls the digits the resolver will match on, hint
// first, then the first phone-shaped token in the text.
func phoneCandidate(hint, text string) string {
	if d := hintDigits(hint); d != "" {
		return d
	}
	for _, re := range phonePatterns {
		if m := re.FindString(text); m != "" {
			return leaguedir.NormalizePhone(m)
		}
	}
	return ""
}

// hintDigits trusts the sender hint down to four digits, since even a
// garbled hint keeps its tail more often than its head.
func hintDigits(hint string) string {
	d := leaguedir.NormalizePhone(hint)
	if len(d) >= 4 {
		return d
	}
	return ""
}

type matchStatus int

const (
	matchNone matchStatus = iota
	matchFound
	matchAmbiguous
)

type phoneHit struct {
	league int
	player string
}

var suffixLevels = []struct {
	n    int
	conf domain.MatchConfidence
}{
	{0, domain.MatchFullPhone},
	{10, domain.MatchSuffix10},
	{7, domain.MatchSuffix7},
	{4, domain.MatchSuffix4},
}

// matchPhone escalates from exact match through ever-shorter suffixes,
// moving to the next level only when the current one matched nothing.
// Suffix match sets only grow as the suffix shrinks, so the first
// level with hits is decisive: one hit resolves, several fail closed.
func matchPhone(digits string, rosters []*leaguedir.Roster) (domain.ResolvedIdentity, matchStatus) {
	for _, level := range suffixLevels {
		if level.n > 0 && len(digits) < level.n {
			continue
		}
		hits := hitsAtLevel(digits, level.n, rosters)
		if len(hits) == 0 {
			continue
		}
		if len(hits) > 1 {
			return domain.ResolvedIdentity{}, matchAmbiguous
		}
		return domain.ResolvedIdentity{
			PlayerName: hits[0].player,
			LeagueID:   hits[0].league,
			Confidence: level.conf,
		}, matchFound
	}
	return domain.ResolvedIdentity{}, matchNone
}

func hitsAtLevel(digits string, n int, rosters []*leaguedir.Roster) []phoneHit {
	var hits []phoneHit
	add := func(league int, player string) {
		for _, h := range hits {
			if h.league == league && h.player == player {
				return
			}
		}
		hits = append(hits, phoneHit{league: league, player: player})
	}
	if n == 0 {
		for _, r := range rosters {
			if player, ok := r.PlayerByPhone(digits); ok {
				add(r.LeagueID, player)
			}
		}
		return hits
	}
	suffix := digits[len(digits)-n:]
	for _, r := range rosters {
		for _, key := range r.PhoneNumbers() {
			if strings.HasSuffix(key, suffix) {
				player, _ := r.PlayerByPhone(key)
				add(r.LeagueID, player)
			}
		}
	}
	return hits
}
