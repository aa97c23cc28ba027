package annotator

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"TwoStageVision/internal/entity"
	"TwoStageVision/pkg/artifact"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	ErrSourceNotFound   = errors.New("source image not found")
	ErrSourceUnreadable = errors.New("source image unreadable")
)

const (
	lineWidth      = 2
	labelHeight    = 25
	labelBaseline  = 7
	labelTextInset = 1
)

var (
	boxColor  = color.RGBA{G: 255, A: 255}
	textColor = color.RGBA{A: 255}
)

type IAnnotator interface {
	Annotate(inputPath string, boxes []entity.DetectionBox, outputPath string) (string, error)
}

type annotator struct {
	face font.Face
}

func New() IAnnotator {
	return &annotator{face: basicfont.Face7x13}
}

// Annotate draws every box and its label on a copy of the image at
// inputPath and writes it to outputPath, which is returned unchanged.
func (a *annotator) Annotate(inputPath string, boxes []entity.DetectionBox, outputPath string) (string, error) {
	src, err := artifact.DecodeFile(inputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSourceNotFound, inputPath)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, inputPath, err)
	}

	bounds := src.Bounds()
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, src, bounds.Min, draw.Src)

	for _, box := range boxes {
		a.drawBox(canvas, box)
	}

	var buf bytes.Buffer
	if err := artifact.EncodeImage(&buf, canvas, filepath.Ext(outputPath)); err != nil {
		return "", fmt.Errorf("encode annotated image: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write annotated image: %w", err)
	}

	return outputPath, nil
}

func (a *annotator) drawBox(canvas *image.RGBA, box entity.DetectionBox) {
	x1, y1, x2, y2 := int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)
	strokeRect(canvas, image.Rect(x1, y1, x2, y2), boxColor)

	text := Label(box)
	width := font.MeasureString(a.face, text).Ceil()

	// The label sits on top of the box; when that would leave the image it
	// moves just inside the top edge instead.
	top := y1 - labelHeight
	if top < canvas.Bounds().Min.Y {
		top = y1
	}
	bg := image.Rect(x1, top, x1+width, top+labelHeight).Intersect(canvas.Bounds())
	if bg.Empty() {
		return
	}
	draw.Draw(canvas, bg, image.NewUniform(boxColor), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(textColor),
		Face: a.face,
		Dot:  fixed.P(x1+labelTextInset, top+labelHeight-labelBaseline),
	}
	d.DrawString(text)
}

// Label is "{class}: {conf}" with " | {top class}: {prob}" appended when the
// box has a successful classification.
func Label(box entity.DetectionBox) string {
	label := fmt.Sprintf("%s: %.2f", box.ClassName, box.Confidence)
	if top, ok := box.Classification.Top(); ok {
		label += fmt.Sprintf(" | %s: %.2f", top.ClassName, top.Probability)
	}
	return label
}

// strokeRect draws a lineWidth outline growing inwards from r, clipped to
// the canvas.
func strokeRect(canvas *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Canon()
	fill := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+lineWidth),
		image.Rect(r.Min.X, r.Max.Y-lineWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+lineWidth, r.Max.Y),
		image.Rect(r.Max.X-lineWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		e = e.Intersect(canvas.Bounds())
		if e.Empty() {
			continue
		}
		draw.Draw(canvas, e, fill, image.Point{}, draw.Src)
	}
}
