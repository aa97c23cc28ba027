package predictService

import (
	"TwoStageVision/internal/entity"
	"image"
	"image/draw"
)

// cropRegion truncates the box to integer pixels, grows it by margin on every
// side and clamps it to bounds. ok is false when nothing is left.
func cropRegion(box entity.DetectionBox, bounds image.Rectangle, margin int) (image.Rectangle, bool) {
	r := image.Rectangle{
		Min: image.Point{X: max(bounds.Min.X, int(box.X1)-margin), Y: max(bounds.Min.Y, int(box.Y1)-margin)},
		Max: image.Point{X: min(bounds.Max.X, int(box.X2)+margin), Y: min(bounds.Max.Y, int(box.Y2)+margin)},
	}
	if r.Empty() {
		return image.Rectangle{}, false
	}
	return r, true
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func cropImage(img image.Image, r image.Rectangle) image.Image {
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}
