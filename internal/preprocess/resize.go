package preprocess

import (
	"image"

	"golang.org/x/image/draw"
)

// referenceWidthInches approximates a landscape letter page, the common
// orientation for printed scores.
const referenceWidthInches = 11.0

// ensureResolution upscales the image with cubic interpolation when its
// estimated DPI falls below target. Images at or above target pass through
// untouched; downscaling never happens.
func ensureResolution(src *image.Gray, targetDPI int) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	currentDPI := float64(w) / referenceWidthInches
	if currentDPI >= float64(targetDPI) {
		return src
	}

	scale := float64(targetDPI) / currentDPI
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)

	dst := image.NewGray(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
