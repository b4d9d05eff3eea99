package sharecard

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/image/font/inconsolata"

	"github.com/mhutchins/gridkeeper/internal/domain"
)

func renderCard(t *testing.T, card Card) []byte {
	t.Helper()
	data, err := NewTileRenderer().RenderPNG(context.Background(), card)
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	return data
}

func TestRenderPNGBounds(t *testing.T) {
	grid := domain.DecodeGrid("GY..G/..Y../YY.G./GGGGG")
	if grid.RowCount() != 4 {
		t.Fatalf("fixture grid has %d rows", grid.RowCount())
	}

	data := renderCard(t, Card{
		Title:    "Wordle 1503 4/6",
		Subtitle: "Joanna",
		Grid:     grid,
	})

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}

	wantW, wantH := 360, 344
	b := img.Bounds()
	if b.Dx() != wantW || b.Dy() != wantH {
		t.Fatalf("card is %dx%d, want %dx%d", b.Dx(), b.Dy(), wantW, wantH)
	}
}

func TestRenderPNGTileColors(t *testing.T) {
	data := renderCard(t, Card{
		Title: "Wordle 1503 X/6",
		Grid:  domain.DecodeGrid("GY..."),
	})

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}

	// Sample the center of the first three tiles of row one.
	cases := []struct {
		name    string
		tile    int
		r, g, b uint8
	}{
		{"hit", 0, 106, 170, 100},
		{"present", 1, 201, 180, 88},
		{"miss", 2, 120, 124, 126},
	}
	for _, tc := range cases {
		x := sideMargin + tc.tile*(tileSize+tileGap) + tileSize/2
		y := headerHeight + tileSize/2
		r, g, b, a := img.At(x, y).RGBA()
		got := [4]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
		want := [4]uint8{tc.r, tc.g, tc.b, 255}
		if got != want {
			t.Errorf("%s tile center at (%d,%d) = %v, want %v", tc.name, x, y, got, want)
		}
	}
}

func TestRenderPNGHeaderOnlyCard(t *testing.T) {
	data := renderCard(t, Card{Title: "Wordle 1510 3/6", Subtitle: "Mike"})

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}

	b := img.Bounds()
	if b.Dx() != 360 || b.Dy() != headerHeight+bottomMargin {
		t.Fatalf("header-only card is %dx%d", b.Dx(), b.Dy())
	}

	r, g, bl, _ := img.At(2, b.Dy()-2).RGBA()
	got := [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8)}
	if got != [3]uint8{18, 18, 19} {
		t.Fatalf("corner pixel = %v, want card background", got)
	}
}

func TestRenderPNGCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTileRenderer().RenderPNG(ctx, Card{Title: "Wordle 1503 4/6"})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestTruncateWithEllipsis(t *testing.T) {
	face := inconsolata.Regular8x16

	if got := truncateWithEllipsis(face, "short", 360); got != "short" {
		t.Fatalf("short title changed to %q", got)
	}

	long := "an unreasonably long snapshot caption nobody needs"
	got := truncateWithEllipsis(face, long, 120)
	if got == long {
		t.Fatal("long title was not shortened")
	}
	if len(got) == 0 {
		t.Fatal("shortened title is empty")
	}
}

func TestSnapshotterSave(t *testing.T) {
	dir := t.TempDir()
	snap, err := NewSnapshotter(dir, NewTileRenderer(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewSnapshotter: %v", err)
	}

	card := Card{
		Title: "Wordle 1503 2/6",
		Grid:  domain.DecodeGrid("YY.../GGGGG"),
	}
	path, err := snap.Save(context.Background(), "league-1/Joanna #1503", card)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	want := filepath.Join(dir, "league-1_Joanna__1503.png")
	if path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("snapshot is not a png: %v", err)
	}
}

func TestSanitizeSnapshotName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"  ", "card"},
		{"a/b c", "a_b_c"},
		{"wordle-1503.v2", "wordle-1503.v2"},
		{"엄마 #4", "____4"},
	}
	for _, tc := range cases {
		if got := sanitizeSnapshotName(tc.in); got != tc.want {
			t.Errorf("sanitizeSnapshotName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
