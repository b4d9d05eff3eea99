// Package grid recognizes Wordle result boards embedded in scraped
// chat text. A board shows up either as literal square emoji or as the
// alt-text words a screen reader / copy path produces for them; both
// spellings feed the same grammar.
package grid

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mhutchins/gridkeeper/internal/domain"
)

const (
	glyphHit     = '\U0001F7E9' // green square
	glyphPresent = '\U0001F7E8' // yellow square
	glyphMissB   = '⬛'     // black large square, dark theme
	glyphMissW   = '⬜'     // white large square, light theme
	variationSel = '️'
)

// Alt-text spellings of the four glyphs. Matched case-insensitively,
// longest spelling first is not required since none is a prefix of
// another.
var altTokens = []struct {
	text string
	cell domain.Cell
}{
	{"green square", domain.CellHit},
	{"large green square", domain.CellHit},
	{"yellow square", domain.CellPresent},
	{"large yellow square", domain.CellPresent},
	{"black large square", domain.CellMiss},
	{"white large square", domain.CellMiss},
}

// Run is one contiguous stretch of grid glyphs. Start and End are byte
// offsets into the scanned text; TotalRows counts complete rows before
// the six-row cap so callers can rank runs by size.
type Run struct {
	Grid      domain.Grid
	TotalRows int
	Start     int
	End       int
}

// FindRuns scans text and returns every glyph run holding at least one
// complete five-cell row, in order of appearance. Cells inside a run
// may be separated by whitespace and line breaks; any other character
// ends the run. Trailing partial rows are dropped.
func FindRuns(text string) []Run {
	var (
		runs  []Run
		cells []domain.Cell
		start int
		end   int
	)
	flush := func() {
		if len(cells) == 0 {
			return
		}
		g, total, ok := chunkRows(cells)
		if ok {
			runs = append(runs, Run{Grid: g, TotalRows: total, Start: start, End: end})
		}
		cells = nil
	}
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case r == variationSel:
			i += size
			if len(cells) > 0 {
				end = i
			}
		case unicode.IsSpace(r):
			i += size
		case r == glyphHit || r == glyphPresent || r == glyphMissB || r == glyphMissW:
			if len(cells) == 0 {
				start = i
			}
			cells = append(cells, cellForRune(r))
			i += size
			end = i
		default:
			if cell, n, ok := matchAltToken(text[i:]); ok {
				if len(cells) == 0 {
					start = i
				}
				cells = append(cells, cell)
				i += n
				end = i
				break
			}
			flush()
			i += size
		}
	}
	flush()
	return runs
}

// Parse returns the best grid in text: the run with the most complete
// rows, first occurrence winning ties. ok is false when no run holds a
// complete row.
func Parse(text string) (domain.Grid, bool) {
	runs := FindRuns(text)
	if len(runs) == 0 {
		return domain.Grid{}, false
	}
	best := runs[0]
	for _, r := range runs[1:] {
		if r.TotalRows > best.TotalRows {
			best = r
		}
	}
	return best.Grid, true
}

func cellForRune(r rune) domain.Cell {
	switch r {
	case glyphHit:
		return domain.CellHit
	case glyphPresent:
		return domain.CellPresent
	default:
		return domain.CellMiss
	}
}

// chunkRows groups cells into five-wide rows, drops the trailing
// partial row, and caps the grid at six rows. total reports the
// pre-cap row count.
func chunkRows(cells []domain.Cell) (domain.Grid, int, bool) {
	total := len(cells) / domain.RowWidth
	if total == 0 {
		return domain.Grid{}, 0, false
	}
	keep := total
	if keep > domain.MaxGuesses {
		keep = domain.MaxGuesses
	}
	rows := make([]string, 0, keep)
	var b strings.Builder
	for i := 0; i < keep; i++ {
		b.Reset()
		for j := 0; j < domain.RowWidth; j++ {
			b.WriteByte(byte(cells[i*domain.RowWidth+j]))
		}
		rows = append(rows, b.String())
	}
	return domain.Grid{Rows: rows}, total, true
}

func matchAltToken(s string) (domain.Cell, int, bool) {
	for _, tok := range altTokens {
		n := len(tok.text)
		if len(s) < n || !strings.EqualFold(s[:n], tok.text) {
			continue
		}
		if rest := s[n:]; rest != "" {
			r, _ := utf8.DecodeRuneInString(rest)
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				continue
			}
		}
		return tok.cell, n, true
	}
	return 0, 0, false
}
