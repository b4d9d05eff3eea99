package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/mhutchins/gridkeeper/internal/domain"
)

func gridOfRows(t *testing.T, n int) domain.Grid {
	t.Helper()
	rows := make([]string, n)
	for i := range rows {
		rows[i] = "..Y.."
	}
	if n > 0 {
		rows[n-1] = strings.Repeat("G", domain.RowWidth)
	}
	g := domain.Grid{Rows: rows}
	if g.RowCount() != n {
		t.Fatalf("bad helper grid")
	}
	return g
}

func joanna() domain.ResolvedIdentity {
	return domain.ResolvedIdentity{PlayerName: "Joanna", LeagueID: 1, Confidence: domain.MatchFullPhone}
}

func TestMemUpsertInsert(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	res, err := m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1503, Outcome: 4, Grid: gridOfRows(t, 4)})
	if err != nil || res != UpsertInserted {
		t.Fatalf("got %v, %v", res, err)
	}
	recs, err := m.RecordsForGame(ctx, 1, 1503)
	if err != nil || len(recs) != 1 {
		t.Fatalf("records: %v, %v", recs, err)
	}
	r := recs[0]
	if r.PlayerName != "Joanna" || r.Outcome != 4 || r.GridRows != 4 {
		t.Fatalf("stored %+v", r)
	}
}

func TestMemUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cand := domain.ScoreCandidate{GameNumber: 1503, Outcome: 4, Grid: gridOfRows(t, 4), SourceRef: "abc"}
	if res, _ := m.Upsert(ctx, joanna(), cand); res != UpsertInserted {
		t.Fatalf("first upsert = %v", res)
	}
	first, _ := m.RecordsForGame(ctx, 1, 1503)

	if res, _ := m.Upsert(ctx, joanna(), cand); res != UpsertUnchanged {
		t.Fatalf("second upsert = %v", res)
	}
	second, _ := m.RecordsForGame(ctx, 1, 1503)
	if len(second) != 1 {
		t.Fatalf("duplicate row appeared")
	}
	if second[0].Outcome != first[0].Outcome ||
		second[0].GridEncoded != first[0].GridEncoded ||
		!second[0].UpdatedAt.Equal(first[0].UpdatedAt) {
		t.Fatalf("re-apply mutated the record: %+v vs %+v", first[0], second[0])
	}
}

func TestMemUpsertOutcomeUpgrade(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1500, Outcome: domain.OutcomeFailed})
	res, err := m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1500, Outcome: 5})
	if err != nil || res != UpsertOutcomeUpdated {
		t.Fatalf("got %v, %v", res, err)
	}
	recs, _ := m.RecordsForGame(ctx, 1, 1500)
	if recs[0].Outcome != 5 {
		t.Fatalf("outcome = %v", recs[0].Outcome)
	}
}

func TestMemUpsertNeverDowngrades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1500, Outcome: 5})
	res, err := m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1500, Outcome: domain.OutcomeFailed})
	if err != nil || res != UpsertUnchanged {
		t.Fatalf("got %v, %v", res, err)
	}
	recs, _ := m.RecordsForGame(ctx, 1, 1500)
	if recs[0].Outcome != 5 {
		t.Fatalf("established result downgraded to %v", recs[0].Outcome)
	}
}

func TestMemUpsertGridUpgradeOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1500, Outcome: 4, Grid: gridOfRows(t, 2)})

	res, _ := m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1500, Outcome: 4, Grid: gridOfRows(t, 4)})
	if res != UpsertGridUpdated {
		t.Fatalf("fuller grid: %v", res)
	}
	res, _ = m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1500, Outcome: 4, Grid: gridOfRows(t, 3)})
	if res != UpsertUnchanged {
		t.Fatalf("smaller grid: %v", res)
	}
	recs, _ := m.RecordsForGame(ctx, 1, 1500)
	if recs[0].GridRows != 4 {
		t.Fatalf("grid rows = %d", recs[0].GridRows)
	}
}

func TestMemUpsertBothRulesReportsOutcome(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1500, Outcome: domain.OutcomeFailed, Grid: gridOfRows(t, 2)})
	res, _ := m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1500, Outcome: 3, Grid: gridOfRows(t, 3)})
	if res != UpsertOutcomeUpdated {
		t.Fatalf("got %v", res)
	}
	recs, _ := m.RecordsForGame(ctx, 1, 1500)
	if recs[0].Outcome != 3 || recs[0].GridRows != 3 {
		t.Fatalf("both rules should apply: %+v", recs[0])
	}
}

func TestMemUpsertRejects(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	prov := domain.ResolvedIdentity{PlayerName: "Unknown(3555)", Provisional: true}
	res, err := m.Upsert(ctx, prov, domain.ScoreCandidate{GameNumber: 1500, Outcome: 3})
	if err != nil || res != UpsertRejected {
		t.Fatalf("got %v, %v", res, err)
	}
	res, err = m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 0, Outcome: 3})
	if err != nil || res != UpsertRejected {
		t.Fatalf("missing game number: %v, %v", res, err)
	}
	if recs, _ := m.RecordsForGame(ctx, 1, 1500); len(recs) != 0 {
		t.Fatalf("rejected upsert wrote rows")
	}
}

func TestMemCollapseDuplicates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SeedRecord(domain.ScoreRecord{
		LeagueID: 1, PlayerName: "Joanna", GameNumber: 1500,
		Outcome: domain.OutcomeFailed, GridEncoded: gridOfRows(t, 6).Encode(),
	})
	m.SeedRecord(domain.ScoreRecord{
		LeagueID: 1, PlayerName: "Joanna", GameNumber: 1500,
		Outcome: 4, GridEncoded: gridOfRows(t, 4).Encode(),
	})
	m.SeedRecord(domain.ScoreRecord{
		LeagueID: 1, PlayerName: "Joanna", GameNumber: 1500,
		Outcome: 4, GridEncoded: gridOfRows(t, 5).Encode(),
	})

	deleted, err := m.CollapseDuplicates(ctx)
	if err != nil || deleted != 2 {
		t.Fatalf("deleted %d, err %v", deleted, err)
	}
	recs, _ := m.RecordsForGame(ctx, 1, 1500)
	if len(recs) != 1 {
		t.Fatalf("%d rows after collapse", len(recs))
	}
	if recs[0].Outcome != 4 || recs[0].GridRows != 5 {
		t.Fatalf("survivor = %+v, want outcome 4 with 5 rows", recs[0])
	}

	again, err := m.CollapseDuplicates(ctx)
	if err != nil || again != 0 {
		t.Fatalf("second pass deleted %d, err %v", again, err)
	}
}

func TestMemRecordsForPlayerOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1502, Outcome: 3})
	m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1500, Outcome: 4})
	m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1501, Outcome: 2})
	recs, err := m.RecordsForPlayer(ctx, 1, "Joanna")
	if err != nil || len(recs) != 3 {
		t.Fatalf("%v, %v", recs, err)
	}
	for i, want := range []int{1500, 1501, 1502} {
		if recs[i].GameNumber != want {
			t.Fatalf("position %d = %d, want %d", i, recs[i].GameNumber, want)
		}
	}
}

func TestMemProvisionalSightings(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	err := m.RecordProvisional(ctx, domain.ProvisionalSighting{
		Placeholder: "Unknown(3555)",
		PhoneSuffix: "3555",
		GameNumber:  1500,
		Outcome:     3,
	})
	if err != nil {
		t.Fatalf("RecordProvisional: %v", err)
	}
	got := m.ProvisionalSightings()
	if len(got) != 1 || got[0].Placeholder != "Unknown(3555)" || got[0].SeenAt.IsZero() {
		t.Fatalf("sightings = %+v", got)
	}
}

func TestMemClosedStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Close()
	if _, err := m.Upsert(ctx, joanna(), domain.ScoreCandidate{GameNumber: 1500, Outcome: 3}); err != ErrStoreClosed {
		t.Fatalf("err = %v", err)
	}
	if _, err := m.RecordsForGame(ctx, 1, 1500); err != ErrStoreClosed {
		t.Fatalf("err = %v", err)
	}
}
