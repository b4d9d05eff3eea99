package domain

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the number of guesses a solve took, 1 through 6.
// Failed games get the distinguished value OutcomeFailed so that
// "fewer guesses is better, any solve beats a fail" is a plain <.
type Outcome int

const (
	OutcomeUnknown Outcome = 0
	OutcomeFailed  Outcome = 7
)

const MaxGuesses = 6

func (o Outcome) Valid() bool {
	return (o >= 1 && o <= MaxGuesses) || o == OutcomeFailed
}

func (o Outcome) Solved() bool {
	return o >= 1 && o <= MaxGuesses
}

// BetterThan reports whether o beats other under the upgrade rule:
// lower wins, and any numeric outcome beats OutcomeFailed.
func (o Outcome) BetterThan(other Outcome) bool {
	return o.Valid() && other.Valid() && o < other
}

func (o Outcome) String() string {
	switch {
	case o.Solved():
		return fmt.Sprintf("%d/6", int(o))
	case o == OutcomeFailed:
		return "X/6"
	default:
		return "?/6"
	}
}

// Cell is one tile of a result grid.
type Cell byte

const (
	CellMiss    Cell = '.'
	CellPresent Cell = 'Y'
	CellHit     Cell = 'G'
)

const RowWidth = 5

// Grid is the emoji board normalized to G/Y/. rows, top to bottom.
// Rows are always exactly RowWidth cells; a grid has 1 to MaxGuesses rows.
type Grid struct {
	Rows []string
}

func (g Grid) Empty() bool { return len(g.Rows) == 0 }

func (g Grid) RowCount() int { return len(g.Rows) }

// SolvedRow returns the 1-based index of the first all-hit row, or 0.
func (g Grid) SolvedRow() int {
	for i, r := range g.Rows {
		if r == strings.Repeat(string(CellHit), RowWidth) {
			return i + 1
		}
	}
	return 0
}

// Encode flattens the grid to its storage form, rows joined by "/".
func (g Grid) Encode() string {
	return strings.Join(g.Rows, "/")
}

// DecodeGrid parses the storage form produced by Encode. Malformed
// input yields an empty grid rather than an error.
func DecodeGrid(s string) Grid {
	if s == "" {
		return Grid{}
	}
	rows := strings.Split(s, "/")
	if len(rows) > MaxGuesses {
		return Grid{}
	}
	for _, r := range rows {
		if len(r) != RowWidth {
			return Grid{}
		}
		for i := 0; i < len(r); i++ {
			switch Cell(r[i]) {
			case CellMiss, CellPresent, CellHit:
			default:
				return Grid{}
			}
		}
	}
	return Grid{Rows: rows}
}

// RawFragment is one scraped message-ish blob of text. Fragment
// boundaries are unreliable: a fragment may hold several messages or
// a partial one, and SenderHint may be empty or stale.
type RawFragment struct {
	Text       string
	SenderHint string
	Timestamp  time.Time
	LeagueID   int
	Position   int
}

// ScoreCandidate is one (game, outcome, grid) found inside a fragment,
// before identity resolution. SourceRef carries the fragment hash so a
// stored record can be traced back to what produced it.
type ScoreCandidate struct {
	GameNumber int
	Outcome    Outcome
	Grid       Grid
	Offset     int
	SourceRef  string
}

// MatchConfidence records how an identity was pinned down.
type MatchConfidence string

const (
	MatchFullPhone MatchConfidence = "full_phone"
	MatchSuffix10  MatchConfidence = "suffix10"
	MatchSuffix7   MatchConfidence = "suffix7"
	MatchSuffix4   MatchConfidence = "suffix4"
	MatchName      MatchConfidence = "name"
)

// ResolvedIdentity names the player a candidate belongs to.
// Provisional identities carry a placeholder name and LeagueID 0 and
// never become canonical records.
type ResolvedIdentity struct {
	PlayerName  string
	LeagueID    int
	Confidence  MatchConfidence
	Provisional bool
	PhoneSuffix string
}

// ScoreRecord is the canonical persisted unit. (LeagueID, PlayerName,
// GameNumber) is the identity key; Outcome and GridEncoded are payload.
type ScoreRecord struct {
	ID          int64
	LeagueID    int
	PlayerName  string
	GameNumber  int
	Outcome     Outcome
	GridRows    int
	GridEncoded string
	SourceHash  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProvisionalSighting is a parsed score whose sender could not be
// resolved. Kept out of the canonical ledger, retained for diagnosis.
type ProvisionalSighting struct {
	ID          int64
	Placeholder string
	PhoneSuffix string
	GameNumber  int
	Outcome     Outcome
	GridEncoded string
	Excerpt     string
	SeenAt      time.Time
}
