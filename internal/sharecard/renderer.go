// Package sharecard renders what the pipeline understood from a fragment
// as a Wordle-style tile card, for eyeballing parse fidelity against the
// original screenshots.
package sharecard

import (
	"bytes"
	"context"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"

	"github.com/mhutchins/gridkeeper/internal/domain"
)

// Card describes one parsed result ready to render.
type Card struct {
	Title    string
	Subtitle string
	Grid     domain.Grid
}

type CardRenderer interface {
	RenderPNG(ctx context.Context, card Card) ([]byte, error)
}

type tileRenderer struct {
}

func NewTileRenderer() CardRenderer {
	return &tileRenderer{}
}

const (
	tileSize     = 56
	tileGap      = 8
	sideMargin   = 24
	headerHeight = 72
	bottomMargin = 24

	titleBaseline    = 32
	subtitleBaseline = 56
)

var (
	cardBackground    = color.RGBA{18, 18, 19, 255}
	titleTextColor    = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	subtitleTextColor = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
)

func cardSize(rows int) (int, int) {
	width := sideMargin*2 + domain.RowWidth*tileSize + (domain.RowWidth-1)*tileGap
	height := headerHeight + bottomMargin
	if rows > 0 {
		height += rows*tileSize + (rows-1)*tileGap
	}
	return width, height
}

func (r *tileRenderer) RenderPNG(ctx context.Context, card Card) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	rows := card.Grid.Rows
	width, height := cardSize(len(rows))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(cardBackground), image.Point{}, imagedraw.Src)

	drawHeader(img, card.Title, card.Subtitle, width)

	for ri, row := range rows {
		for ci := 0; ci < len(row); ci++ {
			tile, err := renderTileImage(domain.Cell(row[ci]), tileSize)
			if err != nil {
				return nil, err
			}
			x := sideMargin + ci*(tileSize+tileGap)
			y := headerHeight + ri*(tileSize+tileGap)
			imagedraw.Draw(img, image.Rect(x, y, x+tileSize, y+tileSize), tile, image.Point{}, imagedraw.Over)
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, err
	}
	return pngBuf.Bytes(), nil
}

func drawHeader(img *image.RGBA, title, subtitle string, width int) {
	maxText := width - sideMargin*2

	title = truncateWithEllipsis(inconsolata.Bold8x16, strings.TrimSpace(title), maxText)
	if title != "" {
		drawer := &font.Drawer{Dst: img, Face: inconsolata.Bold8x16, Src: image.NewUniform(titleTextColor)}
		drawCenteredText(drawer, title, width/2, titleBaseline)
	}

	subtitle = truncateWithEllipsis(inconsolata.Regular8x16, strings.TrimSpace(subtitle), maxText)
	if subtitle != "" {
		drawer := &font.Drawer{Dst: img, Face: inconsolata.Regular8x16, Src: image.NewUniform(subtitleTextColor)}
		drawCenteredText(drawer, subtitle, width/2, subtitleBaseline)
	}
}

func truncateWithEllipsis(face font.Face, text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 || face == nil {
		return trimmed
	}

	drawer := font.Drawer{Face: face}
	if drawer.MeasureString(trimmed).Round() <= maxWidth {
		return trimmed
	}

	ellipsis := "..."
	ellipsisWidth := drawer.MeasureString(ellipsis).Round()
	if ellipsisWidth > maxWidth {
		return ""
	}

	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if drawer.MeasureString(candidate).Round() <= maxWidth {
			return candidate
		}
	}

	return ellipsis
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}
