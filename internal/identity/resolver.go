// Package identity maps a fragment's sender to a (player, league)
// pair using the league directory. Resolution degrades gracefully:
// exact phone, then phone suffixes, then a display-name scan, then a
// provisional placeholder that is visible in diagnostics but never
// becomes a canonical record.
package identity

import (
	"regexp"
	"sort"

	"github.com/mhutchins/gridkeeper/internal/domain"
	"github.com/mhutchins/gridkeeper/internal/leaguedir"
	"github.com/mhutchins/gridkeeper/internal/util"
)

type namePattern struct {
	player string
	re     *regexp.Regexp
}

type Resolver struct {
	dir   *leaguedir.Directory
	names map[int][]namePattern
}

// New builds a resolver over a loaded directory, precompiling the
// whole-word pattern for every display name.
func New(dir *leaguedir.Directory) *Resolver {
	r := &Resolver{
		dir:   dir,
		names: make(map[int][]namePattern, dir.Len()),
	}
	for _, roster := range dir.Rosters() {
		patterns := make([]namePattern, 0, len(roster.Players()))
		for _, player := range roster.Players() {
			patterns = append(patterns, namePattern{
				player: player,
				re:     regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(player) + `\b`),
			})
		}
		r.names[roster.LeagueID] = patterns
	}
	return r
}

// Resolve maps one fragment to an identity. When the fragment carries
// a league id the search stays inside that roster; otherwise every
// roster is searched and a hit spanning two leagues fails closed.
func (r *Resolver) Resolve(fragment domain.RawFragment) domain.ResolvedIdentity {
	hint := util.NormalizeFragment(fragment.SenderHint)
	text := util.NormalizeFragment(fragment.Text)
	rosters := r.scope(fragment.LeagueID)

	digits := phoneCandidate(hint, text)
	if digits != "" {
		id, status := matchPhone(digits, rosters)
		switch status {
		case matchFound:
			return id
		case matchAmbiguous:
			return provisionalIdentity(digits)
		}
	}

	if id, ok := r.matchName(hint+"\n"+text, rosters); ok {
		return id
	}
	return provisionalIdentity(digits)
}

func (r *Resolver) scope(leagueID int) []*leaguedir.Roster {
	if leagueID > 0 {
		if roster, ok := r.dir.Roster(leagueID); ok {
			return []*leaguedir.Roster{roster}
		}
		return nil
	}
	return r.dir.Rosters()
}

type nameHit struct {
	offset int
	length int
	league int
	player string
}

// matchName scans for league display names appearing as whole words.
// Earliest occurrence wins; at equal offsets the longer name wins; an
// exact tie across leagues fails closed.
func (r *Resolver) matchName(text string, rosters []*leaguedir.Roster) (domain.ResolvedIdentity, bool) {
	var hits []nameHit
	for _, roster := range rosters {
		for _, np := range r.names[roster.LeagueID] {
			loc := np.re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			hits = append(hits, nameHit{
				offset: loc[0],
				length: loc[1] - loc[0],
				league: roster.LeagueID,
				player: np.player,
			})
		}
	}
	if len(hits) == 0 {
		return domain.ResolvedIdentity{}, false
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].offset != hits[j].offset {
			return hits[i].offset < hits[j].offset
		}
		return hits[i].length > hits[j].length
	})
	best := hits[0]
	if len(hits) > 1 {
		second := hits[1]
		if second.offset == best.offset && second.length == best.length {
			return domain.ResolvedIdentity{}, false
		}
	}
	return domain.ResolvedIdentity{
		PlayerName: best.player,
		LeagueID:   best.league,
		Confidence: domain.MatchName,
	}, true
}

// provisionalIdentity builds the placeholder for a sender nobody
// could name. The league stays unresolved: a placeholder belongs to
// no roster.
func provisionalIdentity(digits string) domain.ResolvedIdentity {
	suffix := digits
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	label := suffix
	if label == "" {
		label = "?"
	}
	return domain.ResolvedIdentity{
		PlayerName:  "Unknown(" + label + ")",
		Provisional: true,
		PhoneSuffix: suffix,
	}
}
