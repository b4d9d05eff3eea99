package keeperbuilder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/mhutchins/gridkeeper/internal/config"
	"github.com/mhutchins/gridkeeper/pkg/feeddto"
)

func leagueFile(t *testing.T) string {
	t.Helper()
	const roster = `
leagues:
  - id: 1
    name: Breakfast Club
    players:
      - name: Joanna
        phones: ["+1 (212) 555-0142"]
`
	path := filepath.Join(t.TempDir(), "leagues.yaml")
	if err := os.WriteFile(path, []byte(roster), 0o644); err != nil {
		t.Fatalf("write league file: %v", err)
	}
	return path
}

func TestNewWithMemoryFallbacks(t *testing.T) {
	cfg := &config.AppConfig{
		FeedBaseURL: "http://feed.local",
		LeagueFile:  leagueFile(t),
	}

	deps, err := New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer deps.Store.Close()
	defer deps.Cache.Close()

	if deps.Directory.Len() != 1 {
		t.Errorf("directory has %d leagues, want 1", deps.Directory.Len())
	}

	sum, err := deps.Pipeline.ProcessBatch(context.Background(), &feeddto.FragmentBatch{
		LeagueID: 1,
		Fragments: []feeddto.Fragment{
			{Text: "Wordle 1,503 4/6", SenderHint: "Joanna"},
		},
	})
	if err != nil {
		t.Fatalf("ProcessBatch through built deps: %v", err)
	}
	if sum.Inserted != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestNewRejectsMissingLeagueFile(t *testing.T) {
	cfg := &config.AppConfig{
		FeedBaseURL: "http://feed.local",
		LeagueFile:  filepath.Join(t.TempDir(), "absent.yaml"),
	}
	if _, err := New(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("New succeeded with a missing league file")
	}
}

func TestNewRejectsNilConfig(t *testing.T) {
	if _, err := New(context.Background(), nil, zap.NewNop()); err == nil {
		t.Fatal("New succeeded with nil config")
	}
}
