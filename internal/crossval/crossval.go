// Package crossval checks a candidate's textual outcome against what
// its grid says and settles disagreements. The rules are asymmetric:
// grid capture and text capture fail in different ways, so neither
// side is trusted unconditionally.
package crossval

import "github.com/mhutchins/gridkeeper/internal/domain"

// Verdict records how the two readings related, for diagnostics.
type Verdict string

const (
	// VerdictTextOnly means no grid was attached.
	VerdictTextOnly Verdict = "text_only"
	// VerdictAgreed means grid inference matched the text.
	VerdictAgreed Verdict = "agreed"
	// VerdictGridCorrected means the outcome was replaced by the
	// grid-inferred one.
	VerdictGridCorrected Verdict = "grid_corrected"
	// VerdictTextKept means the readings disagreed and the textual
	// outcome was kept.
	VerdictTextKept Verdict = "text_kept"
	// VerdictIndeterminate means the grid was too short to infer
	// anything, so the text stands by default.
	VerdictIndeterminate Verdict = "indeterminate"
)

// InferOutcome derives an outcome from the grid alone: the first
// all-hit row solves the puzzle on that row; six rows with no all-hit
// row is a fail; fewer rows with no all-hit row proves nothing, since
// a truncated capture must not read as a failure.
func InferOutcome(g domain.Grid) domain.Outcome {
	if g.Empty() {
		return domain.OutcomeUnknown
	}
	if row := g.SolvedRow(); row > 0 {
		return domain.Outcome(row)
	}
	if g.RowCount() == domain.MaxGuesses {
		return domain.OutcomeFailed
	}
	return domain.OutcomeUnknown
}

// Reconcile returns the candidate with its outcome possibly corrected
// by grid inference.
//
// A failed text outcome yields to a grid that shows a solve. A numeric
// text outcome survives a six-row unsolved grid, since captures drop
// rows and a truncated board must not veto an explicit number. When
// both sides are numeric and disagree, the grid wins.
func Reconcile(c domain.ScoreCandidate) (domain.ScoreCandidate, Verdict) {
	if c.Grid.Empty() {
		return c, VerdictTextOnly
	}
	inferred := InferOutcome(c.Grid)
	switch {
	case inferred == domain.OutcomeUnknown:
		return c, VerdictIndeterminate
	case inferred == c.Outcome:
		return c, VerdictAgreed
	case c.Outcome == domain.OutcomeFailed && inferred.Solved():
		c.Outcome = inferred
		return c, VerdictGridCorrected
	case c.Outcome.Solved() && inferred == domain.OutcomeFailed:
		return c, VerdictTextKept
	case c.Outcome.Solved() && inferred.Solved():
		c.Outcome = inferred
		return c, VerdictGridCorrected
	default:
		return c, VerdictTextKept
	}
}
