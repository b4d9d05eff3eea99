package feeddto

import (
	"testing"
	"time"
)

func TestDomainPreservesOrderAndLeague(t *testing.T) {
	ts := time.Date(2025, 7, 31, 9, 0, 0, 0, time.UTC)
	b := FragmentBatch{
		LeagueID: 3,
		Fragments: []Fragment{
			{Text: "first", Timestamp: ts},
			{Text: "second", Timestamp: ts, Position: 7},
			{Text: "third", Timestamp: ts},
		},
	}
	frags := b.Domain()
	if len(frags) != 3 {
		t.Fatalf("got %d fragments", len(frags))
	}
	for i, want := range []string{"first", "second", "third"} {
		if frags[i].Text != want {
			t.Fatalf("order broken at %d: %q", i, frags[i].Text)
		}
		if frags[i].LeagueID != 3 {
			t.Fatalf("league not stamped on %d", i)
		}
	}
	if frags[0].Position != 0 || frags[1].Position != 7 || frags[2].Position != 2 {
		t.Fatalf("positions = %d,%d,%d", frags[0].Position, frags[1].Position, frags[2].Position)
	}
}

func TestEnsureID(t *testing.T) {
	b := FragmentBatch{}
	id := b.EnsureID()
	if id == "" || b.BatchID != id {
		t.Fatalf("EnsureID did not assign: %q", id)
	}
	if again := b.EnsureID(); again != id {
		t.Fatalf("EnsureID replaced existing id")
	}

	b2 := FragmentBatch{BatchID: "feed-9"}
	if b2.EnsureID() != "feed-9" {
		t.Fatalf("assigned id overwritten")
	}
}
