// Package transform implements the geometric operations on decoded surfaces.
package transform

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	apperrors "github.com/Thangam2001/Utility-App/internal/errors"
	"github.com/Thangam2001/Utility-App/internal/media"
)

// Region is a requested crop in source pixel coordinates. Fractional values
// are floored.
type Region struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CropArea is the area actually extracted after clamping.
type CropArea struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Resize scales img to the target box.
//
// With keepAspect the image is scaled to the largest size that fits inside
// width x height, enlarging if needed. Otherwise it is stretched to exactly
// width x height. Targets are truncated to whole pixels. An output larger
// than media.MaxPixels is rejected before any pixel is allocated.
func Resize(img image.Image, width, height float64, keepAspect bool) (image.Image, error) {
	if !finite(width) || !finite(height) {
		return nil, apperrors.NewInvalidDimensions(width, height)
	}
	tw, th := math.Trunc(width), math.Trunc(height)
	if tw < 1 || th < 1 {
		return nil, apperrors.NewInvalidDimensions(width, height)
	}

	if keepAspect {
		tw, th = fitInside(img.Bounds().Dx(), img.Bounds().Dy(), tw, th)
	}
	if tw*th > media.MaxPixels {
		return nil, apperrors.NewInvalidDimensions(width, height)
	}
	return imaging.Resize(img, int(tw), int(th), imaging.Lanczos), nil
}

// Crop extracts r from img. The origin is floored and clamped to the image;
// an origin at or past the right or bottom edge is out of bounds whatever the
// size. The size is then clamped to what remains and the effective area is
// returned.
func Crop(img image.Image, r Region) (image.Image, CropArea, error) {
	if math.IsNaN(r.Left) || math.IsNaN(r.Top) {
		return nil, CropArea{}, apperrors.NewDegenerateCrop(0, 0)
	}

	b := img.Bounds()
	left := math.Max(0, math.Floor(r.Left))
	top := math.Max(0, math.Floor(r.Top))
	if left >= float64(b.Dx()) || top >= float64(b.Dy()) {
		return nil, CropArea{}, apperrors.NewOutOfBounds(saturate(left), saturate(top), b.Dx(), b.Dy())
	}

	area := CropArea{Left: int(left), Top: int(top)}
	width := extent(r.Width, b.Dx()-area.Left)
	height := extent(r.Height, b.Dy()-area.Top)
	if width <= 0 || height <= 0 {
		return nil, CropArea{}, apperrors.NewDegenerateCrop(width, height)
	}
	area.Width, area.Height = width, height

	rect := image.Rect(area.Left, area.Top, area.Left+area.Width, area.Top+area.Height).Add(b.Min)
	return imaging.Crop(img, rect), area, nil
}

// extent floors a requested crop size and clamps it to the remaining pixels.
// NaN counts as zero.
func extent(v float64, remaining int) int {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Floor(v)
	if v > float64(remaining) {
		return remaining
	}
	return saturate(v)
}

// saturate converts v to an int, clamped to the int32 range.
func saturate(v float64) int {
	return int(math.Max(math.MinInt32, math.Min(math.MaxInt32, v)))
}

// fitInside returns the largest w x h with the source ratio that fits in the
// box. Each side is at least one pixel.
func fitInside(srcW, srcH int, boxW, boxH float64) (float64, float64) {
	if srcW <= 0 || srcH <= 0 {
		return boxW, boxH
	}
	scale := math.Min(boxW/float64(srcW), boxH/float64(srcH))
	w := math.Round(float64(srcW) * scale)
	h := math.Round(float64(srcH) * scale)
	return math.Max(1, math.Min(w, boxW)), math.Max(1, math.Min(h, boxH))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
