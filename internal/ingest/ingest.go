// Package ingest tracks which scraped fragments have already been processed
// and remembers the scrape cursor between runs. The bookkeeping is advisory:
// the ledger's idempotent upsert is the correctness boundary, so a cache miss
// or outage only costs duplicate work, never duplicate rows.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/mhutchins/gridkeeper/internal/domain"
)

// Deduper records fragment keys so overlapping scrape runs skip fragments
// already seen.
type Deduper interface {
	// SeenAndRecord atomically checks whether id was seen and records it if
	// not. Returns true when id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a retry reprocesses it. Used when a fragment
	// was marked seen but its records failed to persist.
	Unrecord(ctx context.Context, id string)
}

// Cache combines the seen-fragment record with the per-league scrape cursor.
type Cache interface {
	Deduper

	Cursor(ctx context.Context, leagueID int) (string, error)
	SetCursor(ctx context.Context, leagueID int, cursor string) error

	Close() error
}

// FragmentKey derives the cross-run identity of a fragment from its text,
// sender hint, and timestamp.
func FragmentKey(frag domain.RawFragment) string {
	h := sha256.New()
	io.WriteString(h, frag.Text)
	h.Write([]byte{0})
	io.WriteString(h, frag.SenderHint)
	h.Write([]byte{0})
	io.WriteString(h, frag.Timestamp.UTC().Format(time.RFC3339Nano))
	return hex.EncodeToString(h.Sum(nil))
}
