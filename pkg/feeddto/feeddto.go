// Package feeddto defines the wire format the scrape feed serves over REST
// and WebSocket.
package feeddto

import (
	"time"

	"github.com/google/uuid"

	"github.com/mhutchins/gridkeeper/internal/domain"
)

// Fragment is one scraped chat message as delivered by the feed.
type Fragment struct {
	Text       string    `json:"text"`
	SenderHint string    `json:"sender_hint,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Position   int       `json:"position"`
}

// FragmentBatch is an ordered slice of fragments from one scrape pass over
// one league's chat. Cursor is the opaque resume token for the next fetch.
type FragmentBatch struct {
	BatchID   string     `json:"batch_id,omitempty"`
	LeagueID  int        `json:"league_id"`
	Cursor    string     `json:"cursor,omitempty"`
	Fragments []Fragment `json:"fragments"`
}

// EnsureID fills in a batch id when the feed did not assign one, so logs
// can always correlate a batch.
func (b *FragmentBatch) EnsureID() string {
	if b.BatchID == "" {
		b.BatchID = uuid.NewString()
	}
	return b.BatchID
}

// Domain converts the wire batch into pipeline fragments, preserving feed
// order. A zero wire position falls back to the slice index.
func (b *FragmentBatch) Domain() []domain.RawFragment {
	out := make([]domain.RawFragment, 0, len(b.Fragments))
	for i, f := range b.Fragments {
		pos := f.Position
		if pos == 0 {
			pos = i
		}
		out = append(out, domain.RawFragment{
			Text:       f.Text,
			SenderHint: f.SenderHint,
			Timestamp:  f.Timestamp,
			LeagueID:   b.LeagueID,
			Position:   pos,
		})
	}
	return out
}
