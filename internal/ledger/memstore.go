package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mhutchins/gridkeeper/internal/domain"
)

type recordKey struct {
	league int
	player string
	game   int
}

// MemStore keeps the ledger in process memory. It backs development
// runs when no database is configured, and tests. Unlike the Postgres
// store it can hold duplicate rows per key when seeded, mimicking the
// legacy tables the collapse pass exists for.
type MemStore struct {
	mu sync.RWMutex

	nextID    int64
	records   map[int64]*domain.ScoreRecord
	byKey     map[recordKey][]int64
	sightings []domain.ProvisionalSighting
	closed    bool
}

func NewMemory() *MemStore {
	return &MemStore{
		records: make(map[int64]*domain.ScoreRecord),
		byKey:   make(map[recordKey][]int64),
	}
}

// SeedRecord inserts a row verbatim, bypassing reconciliation. It
// exists to reproduce pre-existing legacy state in tests.
func (m *MemStore) SeedRecord(rec domain.ScoreRecord) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	rec.GridRows = domain.DecodeGrid(rec.GridEncoded).RowCount()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	key := recordKey{rec.LeagueID, rec.PlayerName, rec.GameNumber}
	m.records[rec.ID] = &rec
	m.byKey[key] = append(m.byKey[key], rec.ID)
	return rec.ID
}

func (m *MemStore) Upsert(ctx context.Context, id domain.ResolvedIdentity, c domain.ScoreCandidate) (UpsertResult, error) {
	if rejects(id, c) {
		return UpsertRejected, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return UpsertRejected, ErrStoreClosed
	}

	key := recordKey{id.LeagueID, id.PlayerName, c.GameNumber}
	ids := m.byKey[key]
	if len(ids) == 0 {
		now := time.Now()
		m.nextID++
		rec := &domain.ScoreRecord{
			ID:          m.nextID,
			LeagueID:    id.LeagueID,
			PlayerName:  id.PlayerName,
			GameNumber:  c.GameNumber,
			Outcome:     c.Outcome,
			GridRows:    c.Grid.RowCount(),
			GridEncoded: c.Grid.Encode(),
			SourceHash:  c.SourceRef,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		m.records[rec.ID] = rec
		m.byKey[key] = []int64{rec.ID}
		return UpsertInserted, nil
	}

	// Against seeded legacy duplicates, reconcile with the best row;
	// the collapse pass owns cleaning up the rest.
	group := make([]*domain.ScoreRecord, 0, len(ids))
	for _, rid := range ids {
		group = append(group, m.records[rid])
	}
	existing := survivorOf(group)

	outcomeUp := upgradeOutcome(existing.Outcome, c.Outcome)
	gridUp := upgradeGrid(existing.GridRows, c.Grid.RowCount())
	if !outcomeUp && !gridUp {
		return UpsertUnchanged, nil
	}
	if outcomeUp {
		existing.Outcome = c.Outcome
	}
	if gridUp {
		existing.GridRows = c.Grid.RowCount()
		existing.GridEncoded = c.Grid.Encode()
	}
	if c.SourceRef != "" {
		existing.SourceHash = c.SourceRef
	}
	existing.UpdatedAt = time.Now()
	if outcomeUp {
		return UpsertOutcomeUpdated, nil
	}
	return UpsertGridUpdated, nil
}

func (m *MemStore) RecordProvisional(ctx context.Context, s domain.ProvisionalSighting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if s.SeenAt.IsZero() {
		s.SeenAt = time.Now()
	}
	s.ID = int64(len(m.sightings) + 1)
	m.sightings = append(m.sightings, s)
	return nil
}

// ProvisionalSightings returns a copy of every retained sighting.
func (m *MemStore) ProvisionalSightings() []domain.ProvisionalSighting {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.ProvisionalSighting(nil), m.sightings...)
}

func (m *MemStore) RecordsForGame(ctx context.Context, leagueID, gameNumber int) ([]*domain.ScoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	var out []*domain.ScoreRecord
	for _, rec := range m.records {
		if rec.LeagueID == leagueID && rec.GameNumber == gameNumber {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlayerName != out[j].PlayerName {
			return out[i].PlayerName < out[j].PlayerName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) RecordsForPlayer(ctx context.Context, leagueID int, playerName string) ([]*domain.ScoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	var out []*domain.ScoreRecord
	for _, rec := range m.records {
		if rec.LeagueID == leagueID && rec.PlayerName == playerName {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GameNumber != out[j].GameNumber {
			return out[i].GameNumber < out[j].GameNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemStore) CollapseDuplicates(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrStoreClosed
	}
	deleted := 0
	for key, ids := range m.byKey {
		if len(ids) < 2 {
			continue
		}
		group := make([]*domain.ScoreRecord, 0, len(ids))
		for _, rid := range ids {
			group = append(group, m.records[rid])
		}
		keep := survivorOf(group)
		for _, rec := range group {
			if rec.ID != keep.ID {
				delete(m.records, rec.ID)
				deleted++
			}
		}
		m.byKey[key] = []int64{keep.ID}
	}
	return deleted, nil
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
