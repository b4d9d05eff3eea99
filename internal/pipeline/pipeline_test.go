package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mhutchins/gridkeeper/internal/domain"
	"github.com/mhutchins/gridkeeper/internal/extract"
	"github.com/mhutchins/gridkeeper/internal/identity"
	"github.com/mhutchins/gridkeeper/internal/ingest"
	"github.com/mhutchins/gridkeeper/internal/leaguedir"
	"github.com/mhutchins/gridkeeper/internal/ledger"
	"github.com/mhutchins/gridkeeper/internal/metrics"
	"github.com/mhutchins/gridkeeper/internal/sharecard"
	"github.com/mhutchins/gridkeeper/pkg/feeddto"
)

const joannaShare = "Wordle 1,503 4/6\n\n⬛🟨⬛⬛⬛\n🟨🟩⬛⬛⬛\n🟩🟩🟩⬛⬛\n🟩🟩🟩🟩🟩"

func testResolver(t *testing.T) *identity.Resolver {
	t.Helper()
	const roster = `
leagues:
  - id: 1
    name: Breakfast Club
    players:
      - name: Joanna
        phones: ["+1 (310) 926-3555"]
      - name: Mike
        phones: ["12125550177"]
`
	dir, err := leaguedir.Parse([]byte(roster))
	if err != nil {
		t.Fatalf("parse roster: %v", err)
	}
	return identity.New(dir)
}

func newTestPipeline(t *testing.T) (*Pipeline, *ledger.MemStore, *ingest.MemoryCache) {
	t.Helper()
	store := ledger.NewMemory()
	cache := ingest.NewMemory(0)
	p, err := New(extract.New(), testResolver(t), store, cache, metrics.New(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		cache.Close()
	})
	return p, store, cache
}

func batchOf(league int, cursor string, frags ...feeddto.Fragment) *feeddto.FragmentBatch {
	return &feeddto.FragmentBatch{
		LeagueID:  league,
		Cursor:    cursor,
		Fragments: frags,
	}
}

func frag(text, sender string, ts time.Time) feeddto.Fragment {
	return feeddto.Fragment{Text: text, SenderHint: sender, Timestamp: ts}
}

func TestProcessBatchStoresScore(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ts := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)

	sum, err := p.ProcessBatch(context.Background(), batchOf(1, "cur-1", frag(joannaShare, "Joanna", ts)))
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if sum.Fragments != 1 || sum.Candidates != 1 || sum.Inserted != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.BatchID == "" {
		t.Error("batch id was not assigned")
	}

	recs, err := store.RecordsForGame(context.Background(), 1, 1503)
	if err != nil {
		t.Fatalf("RecordsForGame: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.PlayerName != "Joanna" || rec.Outcome != 4 || rec.GridRows != 4 {
		t.Errorf("record = %+v", rec)
	}
	if rec.SourceHash == "" {
		t.Error("record is missing its source hash")
	}
}

func TestProcessBatchResolvesSenderByPhone(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	text := "Wordle 1,503 4/6\n⬛⬛🟨⬛⬛\n⬛🟨⬛🟨⬛\n🟨🟩🟩🟩⬛\n🟩🟩🟩🟩🟩"

	sum, err := p.ProcessBatch(context.Background(),
		batchOf(1, "", frag(text, "(310) 926-3555", time.Now())))
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if sum.Inserted != 1 || sum.Provisional != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	recs, err := store.RecordsForGame(context.Background(), 1, 1503)
	if err != nil {
		t.Fatalf("RecordsForGame: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.PlayerName != "Joanna" || rec.LeagueID != 1 || rec.Outcome != 4 || rec.GridRows != 4 {
		t.Errorf("record = %+v", rec)
	}
}

func TestProcessBatchSkipsSeenFragments(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ts := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)

	first := batchOf(1, "cur-1", frag(joannaShare, "Joanna", ts))
	if _, err := p.ProcessBatch(context.Background(), first); err != nil {
		t.Fatalf("first ProcessBatch: %v", err)
	}

	second := batchOf(1, "cur-2", frag(joannaShare, "Joanna", ts))
	sum, err := p.ProcessBatch(context.Background(), second)
	if err != nil {
		t.Fatalf("second ProcessBatch: %v", err)
	}
	if sum.Duplicates != 1 || sum.Inserted != 0 || sum.Candidates != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	recs, err := store.RecordsForGame(context.Background(), 1, 1503)
	if err != nil {
		t.Fatalf("RecordsForGame: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records after replay, want 1", len(recs))
	}
}

func TestProcessBatchSuppressesReactions(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ts := time.Now()

	sum, err := p.ProcessBatch(context.Background(),
		batchOf(1, "", frag(`Liked "Wordle 1,503 4/6"`, "Mike", ts)))
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if sum.Suppressed != 1 || sum.Candidates != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	recs, err := store.RecordsForGame(context.Background(), 1, 1503)
	if err != nil {
		t.Fatalf("RecordsForGame: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("reaction produced %d records", len(recs))
	}
}

func TestProcessBatchCountsUnparsed(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	sum, err := p.ProcessBatch(context.Background(),
		batchOf(1, "", frag("anyone up for trivia tonight?", "Mike", time.Now())))
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if sum.Unparsed != 1 || sum.Candidates != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestProcessBatchGridCorrectsFailedText(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	text := "Wordle 1,510 X/6\n\n⬛🟨⬛⬛⬛\n🟨🟩🟩⬛⬛\n🟩🟩🟩🟩🟩"

	if _, err := p.ProcessBatch(context.Background(),
		batchOf(1, "", frag(text, "Joanna", time.Now()))); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	recs, err := store.RecordsForGame(context.Background(), 1, 1510)
	if err != nil {
		t.Fatalf("RecordsForGame: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Outcome != 3 {
		t.Errorf("outcome = %v, want grid-corrected 3", recs[0].Outcome)
	}
}

func TestProcessBatchProvisionalSighting(t *testing.T) {
	p, store, _ := newTestPipeline(t)

	sum, err := p.ProcessBatch(context.Background(),
		batchOf(1, "", frag("Wordle 1,503 5/6", "+1 (555) 000-9876", time.Now())))
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if sum.Provisional != 1 || sum.Inserted != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	recs, err := store.RecordsForGame(context.Background(), 1, 1503)
	if err != nil {
		t.Fatalf("RecordsForGame: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("provisional sender produced %d canonical records", len(recs))
	}
	sightings := store.ProvisionalSightings()
	if len(sightings) != 1 {
		t.Fatalf("got %d sightings, want 1", len(sightings))
	}
	if sightings[0].Placeholder != "Unknown(9876)" || sightings[0].GameNumber != 1503 {
		t.Errorf("sighting = %+v", sightings[0])
	}
}

func TestProcessBatchAdvancesCursor(t *testing.T) {
	p, _, cache := newTestPipeline(t)

	if _, err := p.ProcessBatch(context.Background(),
		batchOf(1, "cur-42", frag(joannaShare, "Joanna", time.Now()))); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	cur, err := cache.Cursor(context.Background(), 1)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if cur != "cur-42" {
		t.Errorf("cursor = %q, want cur-42", cur)
	}
}

func TestProcessBatchEmptyStillAdvancesCursor(t *testing.T) {
	p, _, cache := newTestPipeline(t)

	sum, err := p.ProcessBatch(context.Background(), batchOf(1, "cur-7"))
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if sum.Fragments != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	cur, err := cache.Cursor(context.Background(), 1)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if cur != "cur-7" {
		t.Errorf("cursor = %q, want cur-7", cur)
	}
}

type failingStore struct {
	ledger.Store
}

func (f *failingStore) Upsert(context.Context, domain.ResolvedIdentity, domain.ScoreCandidate) (ledger.UpsertResult, error) {
	return "", errors.New("disk on fire")
}

func TestProcessBatchStorageErrorReleasesFragment(t *testing.T) {
	cache := ingest.NewMemory(0)
	store := &failingStore{Store: ledger.NewMemory()}
	p, err := New(extract.New(), testResolver(t), store, cache, metrics.New(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	batch := batchOf(1, "cur-9", frag(joannaShare, "Joanna", ts))

	if _, err := p.ProcessBatch(context.Background(), batch); err == nil {
		t.Fatal("ProcessBatch succeeded with a failing store")
	}

	key := ingest.FragmentKey(batch.Domain()[0])
	if cache.SeenAndRecord(context.Background(), key) {
		t.Error("failed fragment was left marked as seen")
	}
	cur, err := cache.Cursor(context.Background(), 1)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if cur != "" {
		t.Errorf("cursor advanced to %q despite the failure", cur)
	}
}

func TestProcessBatchWritesSnapshot(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	dir := t.TempDir()
	snap, err := sharecard.NewSnapshotter(dir, sharecard.NewTileRenderer(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewSnapshotter: %v", err)
	}
	p.SetSnapshotter(snap)

	if _, err := p.ProcessBatch(context.Background(),
		batchOf(1, "", frag(joannaShare, "Joanna", time.Now()))); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	path := filepath.Join(dir, "league-1_Joanna_1503.png")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
}
