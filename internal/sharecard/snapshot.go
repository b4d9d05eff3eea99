package sharecard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Snapshotter writes rendered cards into a directory, one PNG per record.
type Snapshotter struct {
	dir string
	r   CardRenderer
	log *zap.Logger
}

func NewSnapshotter(dir string, r CardRenderer, log *zap.Logger) (*Snapshotter, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("snapshot dir is empty")
	}
	if r == nil {
		return nil, fmt.Errorf("snapshot renderer is nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Snapshotter{dir: dir, r: r, log: log}, nil
}

// Save renders the card and writes it as <name>.png, overwriting any
// previous snapshot with the same name.
func (s *Snapshotter) Save(ctx context.Context, name string, card Card) (string, error) {
	data, err := s.r.RenderPNG(ctx, card)
	if err != nil {
		return "", fmt.Errorf("render card: %w", err)
	}

	path := filepath.Join(s.dir, sanitizeSnapshotName(name)+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	s.log.Debug("card snapshot written",
		zap.String("path", path),
		zap.Int("bytes", len(data)))
	return path, nil
}

func sanitizeSnapshotName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "card"
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
