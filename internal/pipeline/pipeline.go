// Package pipeline runs scraped fragment batches end to end: duplicate
// screening, score extraction, grid reconciliation, identity resolution,
// and the ledger write. Fragments are processed in batch order so a
// batch replays deterministically.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mhutchins/gridkeeper/internal/crossval"
	"github.com/mhutchins/gridkeeper/internal/domain"
	"github.com/mhutchins/gridkeeper/internal/extract"
	"github.com/mhutchins/gridkeeper/internal/identity"
	"github.com/mhutchins/gridkeeper/internal/ingest"
	"github.com/mhutchins/gridkeeper/internal/ledger"
	"github.com/mhutchins/gridkeeper/internal/metrics"
	"github.com/mhutchins/gridkeeper/internal/sharecard"
	"github.com/mhutchins/gridkeeper/internal/util"
	"github.com/mhutchins/gridkeeper/pkg/feeddto"
)

// excerptLimit caps how much fragment text a provisional sighting keeps.
const excerptLimit = 160

type Pipeline struct {
	extractor *extract.Extractor
	resolver  *identity.Resolver
	store     ledger.Store
	cache     ingest.Cache
	metrics   *metrics.Manager
	snap      *sharecard.Snapshotter
	log       *zap.Logger
}

func New(extractor *extract.Extractor, resolver *identity.Resolver, store ledger.Store, cache ingest.Cache, m *metrics.Manager, log *zap.Logger) (*Pipeline, error) {
	if extractor == nil {
		return nil, fmt.Errorf("nil extractor")
	}
	if resolver == nil {
		return nil, fmt.Errorf("nil resolver")
	}
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	if cache == nil {
		return nil, fmt.Errorf("nil cache")
	}
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		extractor: extractor,
		resolver:  resolver,
		store:     store,
		cache:     cache,
		metrics:   m,
		log:       log,
	}, nil
}

// SetSnapshotter enables card snapshots for every ledger write.
func (p *Pipeline) SetSnapshotter(s *sharecard.Snapshotter) { p.snap = s }

// BatchSummary counts what one batch did, for logs and operators.
type BatchSummary struct {
	BatchID    string
	LeagueID   int
	Fragments  int
	Duplicates int
	Suppressed int
	Unparsed   int
	Candidates int

	Inserted       int
	OutcomeUpdated int
	GridUpdated    int
	Unchanged      int
	Rejected       int
	Provisional    int

	Elapsed time.Duration
}

// ProcessBatch runs every fragment of the batch through the pipeline.
// A storage failure aborts the batch mid-way: the failing fragment is
// released from the seen cache and the cursor is not advanced, so the
// next fetch replays the batch and the dedupe screen skips the
// fragments that already landed.
func (p *Pipeline) ProcessBatch(ctx context.Context, batch *feeddto.FragmentBatch) (BatchSummary, error) {
	var sum BatchSummary
	if batch == nil {
		return sum, fmt.Errorf("nil batch")
	}
	start := time.Now()
	sum.BatchID = batch.EnsureID()
	sum.LeagueID = batch.LeagueID

	frags := batch.Domain()
	sum.Fragments = len(frags)
	for _, frag := range frags {
		p.metrics.FragmentSeen()
		key := ingest.FragmentKey(frag)
		if p.cache.SeenAndRecord(ctx, key) {
			sum.Duplicates++
			p.metrics.FragmentDuplicate()
			continue
		}
		if err := p.processFragment(ctx, frag, key, &sum); err != nil {
			p.cache.Unrecord(ctx, key)
			sum.Elapsed = time.Since(start)
			return sum, fmt.Errorf("batch %s fragment %d: %w", sum.BatchID, frag.Position, err)
		}
	}

	if err := p.cache.SetCursor(ctx, batch.LeagueID, batch.Cursor); err != nil {
		p.log.Warn("cursor not saved, next poll refetches",
			zap.Int("league_id", batch.LeagueID),
			zap.String("cursor", batch.Cursor),
			zap.Error(err))
	}

	sum.Elapsed = time.Since(start)
	p.metrics.ObserveBatch(sum.Fragments, sum.Elapsed)
	p.log.Info("batch processed",
		zap.String("batch_id", sum.BatchID),
		zap.Int("league_id", sum.LeagueID),
		zap.Int("fragments", sum.Fragments),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("candidates", sum.Candidates),
		zap.Int("inserted", sum.Inserted),
		zap.Int("updated", sum.OutcomeUpdated+sum.GridUpdated),
		zap.Int("provisional", sum.Provisional),
		zap.Duration("elapsed", sum.Elapsed))
	return sum, nil
}

func (p *Pipeline) processFragment(ctx context.Context, frag domain.RawFragment, key string, sum *BatchSummary) error {
	text := util.NormalizeFragment(frag.Text)
	if text == "" {
		sum.Unparsed++
		p.metrics.FragmentUnparsed()
		return nil
	}
	if extract.IsReaction(text) {
		sum.Suppressed++
		p.metrics.FragmentSuppressed()
		p.log.Debug("reaction suppressed", zap.String("fragment", key[:12]))
		return nil
	}

	cands := p.extractor.Extract(frag)
	if len(cands) == 0 {
		sum.Unparsed++
		p.metrics.FragmentUnparsed()
		return nil
	}
	sum.Candidates += len(cands)
	p.metrics.CandidatesExtracted(len(cands))

	id := p.resolver.Resolve(frag)
	if id.Provisional {
		p.metrics.ProvisionalIdentity()
	} else {
		p.metrics.IdentityMatch(string(id.Confidence))
		if id.Confidence == domain.MatchSuffix4 || id.Confidence == domain.MatchName {
			p.log.Info("identity matched on weak evidence",
				zap.String("player", id.PlayerName),
				zap.Int("league_id", id.LeagueID),
				zap.String("confidence", string(id.Confidence)),
				zap.String("fragment", key[:12]))
		}
	}

	for _, cand := range cands {
		cand.SourceRef = key
		cand, verdict := crossval.Reconcile(cand)
		if verdict == crossval.VerdictGridCorrected {
			p.metrics.GridCorrection()
			p.log.Info("grid corrected outcome",
				zap.Int("game", cand.GameNumber),
				zap.String("outcome", cand.Outcome.String()),
				zap.String("fragment", key[:12]))
		}

		if id.Provisional {
			sighting := domain.ProvisionalSighting{
				Placeholder: id.PlayerName,
				PhoneSuffix: id.PhoneSuffix,
				GameNumber:  cand.GameNumber,
				Outcome:     cand.Outcome,
				GridEncoded: cand.Grid.Encode(),
				Excerpt:     util.Excerpt(text, excerptLimit),
				SeenAt:      frag.Timestamp,
			}
			if err := p.store.RecordProvisional(ctx, sighting); err != nil {
				return fmt.Errorf("record provisional sighting: %w", err)
			}
			sum.Provisional++
			continue
		}

		res, err := p.store.Upsert(ctx, id, cand)
		if err != nil {
			return fmt.Errorf("upsert game %d for %s: %w", cand.GameNumber, id.PlayerName, err)
		}
		p.metrics.UpsertResult(string(res))
		switch res {
		case ledger.UpsertInserted:
			sum.Inserted++
		case ledger.UpsertOutcomeUpdated:
			sum.OutcomeUpdated++
		case ledger.UpsertGridUpdated:
			sum.GridUpdated++
		case ledger.UpsertUnchanged:
			sum.Unchanged++
		case ledger.UpsertRejected:
			sum.Rejected++
		}
		if p.snap != nil && wrote(res) {
			p.snapshot(ctx, id, cand)
		}
	}
	return nil
}

func wrote(res ledger.UpsertResult) bool {
	switch res {
	case ledger.UpsertInserted, ledger.UpsertOutcomeUpdated, ledger.UpsertGridUpdated:
		return true
	}
	return false
}

// snapshot failures are logged and swallowed: a card is a diagnostic
// artifact, not part of the ledger write.
func (p *Pipeline) snapshot(ctx context.Context, id domain.ResolvedIdentity, cand domain.ScoreCandidate) {
	name := fmt.Sprintf("league-%d_%s_%d", id.LeagueID, id.PlayerName, cand.GameNumber)
	card := sharecard.Card{
		Title:    fmt.Sprintf("Wordle %d %s", cand.GameNumber, cand.Outcome),
		Subtitle: id.PlayerName,
		Grid:     cand.Grid,
	}
	if _, err := p.snap.Save(ctx, name, card); err != nil {
		p.log.Warn("card snapshot failed",
			zap.String("player", id.PlayerName),
			zap.Int("game", cand.GameNumber),
			zap.Error(err))
	}
}
