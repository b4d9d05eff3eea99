// gridcheck runs one fragment through the extraction pipeline and
// prints what the engine saw. It answers "why did this message (not)
// count" without touching any store.
//
//	gridcheck result.txt
//	pbpaste | gridcheck -league-file leagues.yaml -sender "Joanna"
//	gridcheck -card card.png result.txt
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mhutchins/gridkeeper/internal/crossval"
	"github.com/mhutchins/gridkeeper/internal/domain"
	"github.com/mhutchins/gridkeeper/internal/extract"
	"github.com/mhutchins/gridkeeper/internal/identity"
	"github.com/mhutchins/gridkeeper/internal/leaguedir"
	"github.com/mhutchins/gridkeeper/internal/sharecard"
	"github.com/mhutchins/gridkeeper/internal/util"
)

func main() {
	leagueFile := flag.String("league-file", "", "roster file for identity resolution (optional)")
	leagueID := flag.Int("league", 0, "league id to scope identity resolution")
	sender := flag.String("sender", "", "sender hint as the scraper would supply it")
	cardPath := flag.String("card", "", "write the first result as a PNG card")
	flag.Parse()

	text, err := readInput(flag.Arg(0))
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	frag := domain.RawFragment{
		Text:       text,
		SenderHint: *sender,
		Timestamp:  time.Now(),
		LeagueID:   *leagueID,
	}

	normalized := util.NormalizeFragment(text)
	if extract.IsReaction(normalized) {
		fmt.Println("fragment is a reaction; it would be suppressed")
		os.Exit(1)
	}

	cands := extract.New().Extract(frag)
	if len(cands) == 0 {
		fmt.Println("no result found in fragment")
		os.Exit(1)
	}

	id, resolved := resolveIdentity(*leagueFile, frag)

	for i, cand := range cands {
		cand, verdict := crossval.Reconcile(cand)
		fmt.Printf("candidate %d: Wordle %d %s (verdict %s)\n",
			i+1, cand.GameNumber, cand.Outcome, verdict)
		for _, row := range cand.Grid.Rows {
			fmt.Printf("  %s\n", row)
		}
		if cand.Grid.Empty() {
			fmt.Println("  (no grid attached)")
		}

		if i == 0 && *cardPath != "" {
			if err := writeCard(*cardPath, cand, id, resolved, frag); err != nil {
				log.Fatalf("write card: %v", err)
			}
			fmt.Printf("card written to %s\n", *cardPath)
		}
	}

	if resolved {
		if id.Provisional {
			fmt.Printf("sender unresolved: would be held as %s\n", id.PlayerName)
		} else {
			fmt.Printf("sender resolved: %s (league %d, %s)\n",
				id.PlayerName, id.LeagueID, id.Confidence)
		}
	}
}

func readInput(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func resolveIdentity(leagueFile string, frag domain.RawFragment) (domain.ResolvedIdentity, bool) {
	if leagueFile == "" {
		return domain.ResolvedIdentity{}, false
	}
	dir, err := leaguedir.Load(leagueFile)
	if err != nil {
		log.Fatalf("load league file: %v", err)
	}
	return identity.New(dir).Resolve(frag), true
}

func writeCard(path string, cand domain.ScoreCandidate, id domain.ResolvedIdentity, resolved bool, frag domain.RawFragment) error {
	subtitle := frag.SenderHint
	if resolved {
		subtitle = id.PlayerName
	}
	card := sharecard.Card{
		Title:    fmt.Sprintf("Wordle %d %s", cand.GameNumber, cand.Outcome),
		Subtitle: subtitle,
		Grid:     cand.Grid,
	}
	data, err := sharecard.NewTileRenderer().RenderPNG(context.Background(), card)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
