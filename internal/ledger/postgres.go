package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/mhutchins/gridkeeper/internal/domain"
)

type pgStore struct {
	db *sql.DB
}

// OpenPostgres connects, verifies the connection, and brings the
// schema up to date. Legacy duplicate rows are collapsed before the
// key index is applied, so a table predating the uniqueness guarantee
// converges on first boot.
func OpenPostgres(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &pgStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *pgStore) migrate(ctx context.Context) error {
	const createRecords = `
		CREATE TABLE IF NOT EXISTS score_records (
			id BIGSERIAL PRIMARY KEY,
			league_id INTEGER NOT NULL,
			player_name TEXT NOT NULL,
			game_number INTEGER NOT NULL,
			outcome SMALLINT NOT NULL,
			grid_rows SMALLINT NOT NULL DEFAULT 0,
			grid TEXT NOT NULL DEFAULT '',
			source_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	const createSightings = `
		CREATE TABLE IF NOT EXISTS provisional_sightings (
			id BIGSERIAL PRIMARY KEY,
			placeholder TEXT NOT NULL,
			phone_suffix TEXT NOT NULL DEFAULT '',
			game_number INTEGER NOT NULL,
			outcome SMALLINT NOT NULL,
			grid TEXT NOT NULL DEFAULT '',
			excerpt TEXT NOT NULL DEFAULT '',
			seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	const createKeyIndex = `
		CREATE UNIQUE INDEX IF NOT EXISTS score_records_key
		ON score_records (league_id, player_name, game_number)`

	if _, err := s.db.ExecContext(ctx, createRecords); err != nil {
		return fmt.Errorf("create score_records: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createSightings); err != nil {
		return fmt.Errorf("create provisional_sightings: %w", err)
	}
	// The unique index cannot exist while legacy duplicates do.
	if _, err := s.CollapseDuplicates(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, createKeyIndex); err != nil {
		return fmt.Errorf("create score_records key index: %w", err)
	}
	return nil
}

func (s *pgStore) Upsert(ctx context.Context, id domain.ResolvedIdentity, c domain.ScoreCandidate) (UpsertResult, error) {
	if rejects(id, c) {
		return UpsertRejected, nil
	}

	const insert = `
		INSERT INTO score_records (league_id, player_name, game_number, outcome, grid_rows, grid, source_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (league_id, player_name, game_number) DO NOTHING
		RETURNING id`
	var newID sql.NullInt64
	err := s.db.QueryRowContext(ctx, insert,
		id.LeagueID,
		id.PlayerName,
		c.GameNumber,
		int(c.Outcome),
		c.Grid.RowCount(),
		c.Grid.Encode(),
		c.SourceRef,
	).Scan(&newID)
	if err == nil && newID.Valid {
		return UpsertInserted, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("insert score record: %w", err)
	}

	const get = `
		SELECT id, outcome, grid_rows
		FROM score_records
		WHERE league_id = $1 AND player_name = $2 AND game_number = $3
		LIMIT 1`
	var (
		recID      int64
		outcomeInt int
		gridRows   int
	)
	if err := s.db.QueryRowContext(ctx, get, id.LeagueID, id.PlayerName, c.GameNumber).
		Scan(&recID, &outcomeInt, &gridRows); err != nil {
		return "", fmt.Errorf("select score record: %w", err)
	}

	outcomeUp := upgradeOutcome(domain.Outcome(outcomeInt), c.Outcome)
	gridUp := upgradeGrid(gridRows, c.Grid.RowCount())
	if !outcomeUp && !gridUp {
		return UpsertUnchanged, nil
	}

	// The rules live in the statement itself so an interleaved writer
	// cannot regress the row between our read and this write.
	const update = `
		UPDATE score_records SET
			outcome = CASE WHEN outcome = $2 AND $3 BETWEEN 1 AND 6 THEN $3 ELSE outcome END,
			grid = CASE WHEN $4 > grid_rows THEN $5 ELSE grid END,
			grid_rows = CASE WHEN $4 > grid_rows THEN $4 ELSE grid_rows END,
			source_hash = CASE WHEN $6 = '' THEN source_hash ELSE $6 END,
			updated_at = NOW()
		WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, update,
		recID,
		int(domain.OutcomeFailed),
		int(c.Outcome),
		c.Grid.RowCount(),
		c.Grid.Encode(),
		c.SourceRef,
	); err != nil {
		return "", fmt.Errorf("update score record: %w", err)
	}
	if outcomeUp {
		return UpsertOutcomeUpdated, nil
	}
	return UpsertGridUpdated, nil
}

func (s *pgStore) RecordProvisional(ctx context.Context, sighting domain.ProvisionalSighting) error {
	const insert = `
		INSERT INTO provisional_sightings (placeholder, phone_suffix, game_number, outcome, grid, excerpt)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, insert,
		sighting.Placeholder,
		sighting.PhoneSuffix,
		sighting.GameNumber,
		int(sighting.Outcome),
		sighting.GridEncoded,
		sighting.Excerpt,
	)
	if err != nil {
		return fmt.Errorf("insert provisional sighting: %w", err)
	}
	return nil
}

func (s *pgStore) RecordsForGame(ctx context.Context, leagueID, gameNumber int) ([]*domain.ScoreRecord, error) {
	const query = `
		SELECT id, league_id, player_name, game_number, outcome, grid_rows, grid, source_hash, created_at, updated_at
		FROM score_records
		WHERE league_id = $1 AND game_number = $2
		ORDER BY player_name, id`
	rows, err := s.db.QueryContext(ctx, query, leagueID, gameNumber)
	if err != nil {
		return nil, fmt.Errorf("select records for game: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *pgStore) RecordsForPlayer(ctx context.Context, leagueID int, playerName string) ([]*domain.ScoreRecord, error) {
	const query = `
		SELECT id, league_id, player_name, game_number, outcome, grid_rows, grid, source_hash, created_at, updated_at
		FROM score_records
		WHERE league_id = $1 AND player_name = $2
		ORDER BY game_number, id`
	rows, err := s.db.QueryContext(ctx, query, leagueID, playerName)
	if err != nil {
		return nil, fmt.Errorf("select records for player: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*domain.ScoreRecord, error) {
	var out []*domain.ScoreRecord
	for rows.Next() {
		var (
			rec        domain.ScoreRecord
			outcomeInt int
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.LeagueID,
			&rec.PlayerName,
			&rec.GameNumber,
			&outcomeInt,
			&rec.GridRows,
			&rec.GridEncoded,
			&rec.SourceHash,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan score record: %w", err)
		}
		rec.Outcome = domain.Outcome(outcomeInt)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score records: %w", err)
	}
	return out, nil
}

func (s *pgStore) CollapseDuplicates(ctx context.Context) (int, error) {
	const query = `
		SELECT id, league_id, player_name, game_number, outcome, grid_rows
		FROM score_records
		ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("select records for collapse: %w", err)
	}
	defer rows.Close()

	groups := make(map[recordKey][]*domain.ScoreRecord)
	for rows.Next() {
		var (
			rec        domain.ScoreRecord
			outcomeInt int
		)
		if err := rows.Scan(&rec.ID, &rec.LeagueID, &rec.PlayerName, &rec.GameNumber, &outcomeInt, &rec.GridRows); err != nil {
			return 0, fmt.Errorf("scan record for collapse: %w", err)
		}
		rec.Outcome = domain.Outcome(outcomeInt)
		key := recordKey{rec.LeagueID, rec.PlayerName, rec.GameNumber}
		groups[key] = append(groups[key], &rec)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate records for collapse: %w", err)
	}

	var doomed []int64
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		keep := survivorOf(group)
		for _, rec := range group {
			if rec.ID != keep.ID {
				doomed = append(doomed, rec.ID)
			}
		}
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin collapse tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM score_records WHERE id = ANY($1)`, pq.Array(doomed)); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("delete duplicate records: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit collapse tx: %w", err)
	}
	return len(doomed), nil
}

func (s *pgStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
