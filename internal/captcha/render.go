package captcha

import (
	"errors"
	"fmt"
	"image"
	"math/rand/v2"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
)

const (
	// CanvasWidth and CanvasHeight give the logical size of a rendered challenge.
	CanvasWidth  = 200
	CanvasHeight = 60

	backgroundHex     = "#1E1E2E"
	glyphFontSize     = 30
	glyphPadding      = 15.0
	maxGlyphRotation  = 0.25 // radians
	maxGlyphJitter    = 6.0
	shadowOffset      = 2.0
	noiseLineCount    = 8
	noiseDotCount     = 100
	overlayLineCount  = 3
	overlayLineAlpha  = 0.25
	noiseDotAlpha     = 0.5
	noiseLineMinWidth = 1.0
)

var glyphPalette = []string{
	"#FF6B6B",
	"#4ECDC4",
	"#FFE66D",
	"#A8E6CF",
	"#FF8B94",
	"#C3A6FF",
	"#7FDBFF",
}

var errEmptyChallenge = errors.New("captcha: challenge must not be empty")

var loadGlyphFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(gobold.TTF)
})

// Renderer turns a challenge string into a raster image.
type Renderer interface {
	Render(challenge string) (image.Image, error)
}

// CanvasRenderer draws challenges with gg. It owns its font face and random
// source, so a renderer must not be shared between goroutines.
type CanvasRenderer struct {
	source *rand.Rand
	face   font.Face
}

// NewCanvasRenderer prepares a renderer drawing noise from source.
func NewCanvasRenderer(source *rand.Rand) (*CanvasRenderer, error) {
	parsed, err := loadGlyphFont()
	if err != nil {
		return nil, fmt.Errorf("captcha: load glyph font: %w", err)
	}
	if source == nil {
		source = newRandomSource()
	}
	return &CanvasRenderer{
		source: source,
		face:   truetype.NewFace(parsed, &truetype.Options{Size: glyphFontSize}),
	}, nil
}

// Render paints the challenge in layers: background, curved noise lines,
// noise dots, glyphs, then faint overlay lines. The glyphs sit above every
// noise layer except the overlay, which is kept translucent.
func (r *CanvasRenderer) Render(challenge string) (image.Image, error) {
	if challenge == "" {
		return nil, errEmptyChallenge
	}

	dc := gg.NewContext(CanvasWidth, CanvasHeight)
	dc.SetHexColor(backgroundHex)
	dc.Clear()

	r.drawNoiseLines(dc)
	r.drawNoiseDots(dc)
	r.drawGlyphs(dc, challenge)
	r.drawOverlayLines(dc)

	return dc.Image(), nil
}

func (r *CanvasRenderer) drawNoiseLines(dc *gg.Context) {
	for range noiseLineCount {
		red, green, blue := r.randomChannel(), r.randomChannel(), r.randomChannel()
		dc.SetRGBA(red, green, blue, 0.3+r.source.Float64()*0.4)
		dc.SetLineWidth(noiseLineMinWidth + r.source.Float64()*1.5)
		dc.MoveTo(r.randomX(), r.randomY())
		dc.CubicTo(
			r.randomX(), r.randomY(),
			r.randomX(), r.randomY(),
			r.randomX(), r.randomY(),
		)
		dc.Stroke()
	}
}

func (r *CanvasRenderer) drawNoiseDots(dc *gg.Context) {
	for range noiseDotCount {
		dc.SetRGBA(r.randomChannel(), r.randomChannel(), r.randomChannel(), noiseDotAlpha)
		dc.DrawCircle(r.randomX(), r.randomY(), 0.5+r.source.Float64()*1.5)
		dc.Fill()
	}
}

func (r *CanvasRenderer) drawGlyphs(dc *gg.Context, challenge string) {
	dc.SetFontFace(r.face)
	slotWidth := (CanvasWidth - 2*glyphPadding) / float64(len(challenge))
	for index, glyph := range challenge {
		centerX := glyphPadding + slotWidth*(float64(index)+0.5)
		centerY := CanvasHeight/2 + (r.source.Float64()*2-1)*maxGlyphJitter
		rotation := (r.source.Float64()*2 - 1) * maxGlyphRotation
		color := glyphPalette[r.source.IntN(len(glyphPalette))]

		dc.Push()
		dc.RotateAbout(rotation, centerX, centerY)
		dc.SetRGBA(0, 0, 0, 0.6)
		dc.DrawStringAnchored(string(glyph), centerX+shadowOffset, centerY+shadowOffset, 0.5, 0.5)
		dc.SetHexColor(color)
		dc.DrawStringAnchored(string(glyph), centerX, centerY, 0.5, 0.5)
		dc.Pop()
	}
}

func (r *CanvasRenderer) drawOverlayLines(dc *gg.Context) {
	dc.SetLineWidth(1)
	for range overlayLineCount {
		startY := r.randomY()
		endY := startY + (r.source.Float64()*2-1)*10
		dc.SetRGBA(1, 1, 1, overlayLineAlpha)
		dc.DrawLine(0, startY, CanvasWidth, endY)
		dc.Stroke()
	}
}

func (r *CanvasRenderer) randomX() float64 {
	return r.source.Float64() * CanvasWidth
}

func (r *CanvasRenderer) randomY() float64 {
	return r.source.Float64() * CanvasHeight
}

func (r *CanvasRenderer) randomChannel() float64 {
	return r.source.Float64()
}
