package sharecard

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/mhutchins/gridkeeper/internal/domain"
)

//go:embed assets/tiles/*.svg
var tileFiles embed.FS

type tileCacheKey struct {
	cell domain.Cell
	size int
}

var (
	tileCache   = map[tileCacheKey]image.Image{}
	tileCacheMu sync.RWMutex
)

func renderTileImage(cell domain.Cell, size int) (image.Image, error) {
	key := tileCacheKey{cell: cell, size: size}

	tileCacheMu.RLock()
	if img, ok := tileCache[key]; ok {
		tileCacheMu.RUnlock()
		return img, nil
	}
	tileCacheMu.RUnlock()

	name, err := tileAssetName(cell)
	if err != nil {
		return nil, err
	}
	data, err := tileFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read tile asset %s: %w", name, err)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse tile svg: %w", err)
	}

	w := int(icon.ViewBox.W)
	h := int(icon.ViewBox.H)
	if w <= 0 {
		w = size
		icon.ViewBox.W = float64(w)
	}
	if h <= 0 {
		h = size
		icon.ViewBox.H = float64(h)
	}

	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	tileCacheMu.Lock()
	tileCache[key] = img
	tileCacheMu.Unlock()

	return img, nil
}

func tileAssetName(cell domain.Cell) (string, error) {
	switch cell {
	case domain.CellHit:
		return "assets/tiles/hit.svg", nil
	case domain.CellPresent:
		return "assets/tiles/present.svg", nil
	case domain.CellMiss:
		return "assets/tiles/miss.svg", nil
	default:
		return "", fmt.Errorf("no tile for cell %q", string(cell))
	}
}
