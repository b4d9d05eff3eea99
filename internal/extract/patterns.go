package extract

import "regexp"

// A patternFamily is one way players write a result line. Families are
// ordered most specific first and never stack: the first family that
// yields a valid candidate in a fragment claims the whole fragment.
// Every family exposes exactly two capture groups, game number then
// score token.
type patternFamily struct {
	name string
	re   *regexp.Regexp
}

var families = []patternFamily{
	// The untouched share-sheet line: "Wordle 1,503 4/6", optionally
	// starred for hard mode.
	{name: "share", re: regexp.MustCompile(`(?i)\bwordle\s+(\d[\d,.]*)\s+([1-6xX])/6\*?`)},

	// Hand-typed variants with stray punctuation or spacing:
	// "Wordle #1503: 4/6", "wordle 1503 - X/6", "Wordle 1503 4 / 6".
	{name: "punct", re: regexp.MustCompile(`(?i)\bwordle\s*#?\s*(\d[\d,.]*)\s*[-:]?\s*([1-6xX])\s*/\s*6\*?`)},

	// Last resort: the three pieces appear in order with arbitrary
	// chatter between them, bounded so distant unrelated numbers do
	// not pair up across a long fragment.
	{name: "loose", re: regexp.MustCompile(`(?is)\bwordle\b.{0,80}?(\d[\d,.]*).{0,40}?\b([1-6xX])\s*/\s*6\*?`)},
}
