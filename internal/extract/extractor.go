// Package extract finds puzzle-result mentions in scraped fragments
// and pairs each with a nearby grid. Extraction is pure: no state is
// kept between fragments and noise is dropped, never reported as an
// error.
package extract

import (
	"strconv"
	"strings"

	"github.com/mhutchins/gridkeeper/internal/domain"
	"github.com/mhutchins/gridkeeper/internal/grid"
	"github.com/mhutchins/gridkeeper/internal/util"
)

const (
	// DefaultMaxGameNumber bounds plausible game numbers. The digit
	// rule alone rejects five-digit numbers; the bound catches
	// four-digit junk years like 2026.
	DefaultMaxGameNumber = 9999

	// DefaultGridWindow is how many bytes around a textual match a
	// grid may sit and still belong to it.
	DefaultGridWindow = 400
)

type Extractor struct {
	maxGame    int
	gridWindow int
}

type Option func(*Extractor)

// WithMaxGameNumber tightens the plausibility bound on game numbers.
// Zero disables the bound, leaving only the four-digit rule.
func WithMaxGameNumber(n int) Option {
	return func(e *Extractor) { e.maxGame = n }
}

// WithGridWindow sets the byte window searched around a textual match
// when attaching a grid.
func WithGridWindow(n int) Option {
	return func(e *Extractor) { e.gridWindow = n }
}

func New(opts ...Option) *Extractor {
	e := &Extractor{
		maxGame:    DefaultMaxGameNumber,
		gridWindow: DefaultGridWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract scans one fragment for result mentions. Reactions yield
// nothing; otherwise the first pattern family with a valid match
// claims the fragment and every one of its matches becomes a
// candidate. Identical (game, outcome) pairs collapse to one
// candidate keeping the fuller grid.
func (e *Extractor) Extract(fragment domain.RawFragment) []domain.ScoreCandidate {
	text := util.NormalizeFragment(fragment.Text)
	if text == "" || IsReaction(text) {
		return nil
	}
	runs := grid.FindRuns(text)
	for _, fam := range families {
		if cands := e.matchFamily(fam, text, runs); len(cands) > 0 {
			return dedupeCandidates(cands)
		}
	}
	return nil
}

func (e *Extractor) matchFamily(fam patternFamily, text string, runs []grid.Run) []domain.ScoreCandidate {
	idx := fam.re.FindAllStringSubmatchIndex(text, -1)
	if idx == nil {
		return nil
	}
	var cands []domain.ScoreCandidate
	for _, m := range idx {
		game, ok := parseGameNumber(text[m[2]:m[3]], e.maxGame)
		if !ok {
			continue
		}
		outcome := outcomeFromToken(text[m[4]:m[5]])
		if !outcome.Valid() {
			continue
		}
		cands = append(cands, domain.ScoreCandidate{
			GameNumber: game,
			Outcome:    outcome,
			Grid:       e.attachGrid(runs, m[0], m[1]),
			Offset:     m[0],
		})
	}
	return cands
}

// attachGrid picks at most one grid for a match: the run with the most
// rows inside the window around the match, or, when the window is
// empty, the best run anywhere in the fragment.
func (e *Extractor) attachGrid(runs []grid.Run, start, end int) domain.Grid {
	best := pickRun(runs, start-e.gridWindow, end+e.gridWindow)
	if best < 0 {
		best = pickRun(runs, 0, 1<<30)
	}
	if best < 0 {
		return domain.Grid{}
	}
	return runs[best].Grid
}

func pickRun(runs []grid.Run, lo, hi int) int {
	best, bestRows := -1, 0
	for i, r := range runs {
		if r.End < lo || r.Start > hi {
			continue
		}
		if r.TotalRows > bestRows {
			best, bestRows = i, r.TotalRows
		}
	}
	return best
}

// parseGameNumber strips thousands separators and applies the
// plausibility rules. Implausible numbers are non-matches, not
// errors.
func parseGameNumber(s string, maxGame int) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r == ',' || r == '.' {
			return -1
		}
		return r
	}, s)
	if digits == "" || len(digits) > 4 {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	if maxGame > 0 && n > maxGame {
		return 0, false
	}
	return n, true
}

func outcomeFromToken(tok string) domain.Outcome {
	if tok == "x" || tok == "X" {
		return domain.OutcomeFailed
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 1 || n > domain.MaxGuesses {
		return domain.OutcomeUnknown
	}
	return domain.Outcome(n)
}

type candKey struct {
	game    int
	outcome domain.Outcome
}

// dedupeCandidates collapses repeated (game, outcome) pairs within one
// fragment (quoted text, reposts), keeping the candidate with the
// fuller grid. Order of first appearance is preserved.
func dedupeCandidates(cands []domain.ScoreCandidate) []domain.ScoreCandidate {
	if len(cands) < 2 {
		return cands
	}
	seen := make(map[candKey]int, len(cands))
	out := cands[:0]
	for _, c := range cands {
		k := candKey{c.GameNumber, c.Outcome}
		if j, ok := seen[k]; ok {
			if c.Grid.RowCount() > out[j].Grid.RowCount() {
				out[j].Grid = c.Grid
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, c)
	}
	return out
}
