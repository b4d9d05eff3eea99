// Package ledger owns every write to durable score state. Upserts are
// conditional and idempotent: re-applying a candidate never produces a
// second distinct mutation, and established results only ever improve.
package ledger

import (
	"context"
	"errors"

	"github.com/mhutchins/gridkeeper/internal/domain"
)

var ErrStoreClosed = errors.New("score store is closed")

// UpsertResult says what one upsert did to the ledger.
type UpsertResult string

const (
	UpsertInserted       UpsertResult = "inserted"
	UpsertOutcomeUpdated UpsertResult = "outcome_updated"
	UpsertGridUpdated    UpsertResult = "grid_updated"
	UpsertUnchanged      UpsertResult = "unchanged"
	UpsertRejected       UpsertResult = "rejected"
)

// Store is the persistence boundary of the pipeline. Implementations
// exist for Postgres and for process memory; both apply identical
// reconciliation rules.
type Store interface {
	// Upsert writes one reconciled candidate under its identity key.
	// Provisional identities and candidates without a game number are
	// rejected without touching storage.
	Upsert(ctx context.Context, id domain.ResolvedIdentity, c domain.ScoreCandidate) (UpsertResult, error)

	// RecordProvisional retains a sighting whose sender could not be
	// resolved. These rows never feed leaderboards; they exist so a
	// human can see what was dropped.
	RecordProvisional(ctx context.Context, s domain.ProvisionalSighting) error

	// RecordsForGame returns every record for one league and game
	// number, ordered by player name.
	RecordsForGame(ctx context.Context, leagueID, gameNumber int) ([]*domain.ScoreRecord, error)

	// RecordsForPlayer returns one player's records in a league,
	// ordered by game number.
	RecordsForPlayer(ctx context.Context, leagueID int, playerName string) ([]*domain.ScoreRecord, error)

	// CollapseDuplicates folds legacy duplicate rows for the same
	// (league, player, game) key down to the best one and reports how
	// many rows were deleted.
	CollapseDuplicates(ctx context.Context) (int, error)

	Close() error
}

// rejects applies the write gate shared by all implementations.
func rejects(id domain.ResolvedIdentity, c domain.ScoreCandidate) bool {
	return id.Provisional || id.PlayerName == "" || id.LeagueID <= 0 ||
		c.GameNumber <= 0 || !c.Outcome.Valid()
}

// upgradeOutcome is the one-way outcome rule: a failure marker yields
// to a numeric result, never the reverse.
func upgradeOutcome(existing, incoming domain.Outcome) bool {
	return existing == domain.OutcomeFailed && incoming.Solved()
}

// upgradeGrid replaces a stored grid only with a strictly fuller one.
// An absent grid counts as zero rows.
func upgradeGrid(existingRows, incomingRows int) bool {
	return incomingRows > existingRows
}

// outcomeRank orders outcomes for duplicate collapse: lower guess
// counts first, then FAILED, then anything malformed a legacy row
// might carry.
func outcomeRank(o domain.Outcome) int {
	if o.Valid() {
		return int(o)
	}
	return int(domain.OutcomeFailed) + 1
}

// betterRecord reports whether a should survive duplicate collapse
// over b: better outcome, then fuller grid, then the older row.
func betterRecord(a, b *domain.ScoreRecord) bool {
	if ra, rb := outcomeRank(a.Outcome), outcomeRank(b.Outcome); ra != rb {
		return ra < rb
	}
	if a.GridRows != b.GridRows {
		return a.GridRows > b.GridRows
	}
	return a.ID < b.ID
}

// survivorOf picks the row to keep from one duplicate group.
func survivorOf(group []*domain.ScoreRecord) *domain.ScoreRecord {
	best := group[0]
	for _, r := range group[1:] {
		if betterRecord(r, best) {
			best = r
		}
	}
	return best
}
