package preprocess

import "image"

const (
	adaptiveBlockSize = 15
	adaptiveOffset    = 10
)

// binarize converts to black-and-white with Gaussian-weighted adaptive
// thresholding. The per-pixel threshold tolerates shadow gradients that a
// single global cut would misclassify.
func binarize(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	// The local mean is the 15x15 Gaussian blur of the source.
	mean := gaussianBlur(src, adaptiveBlockSize, 0)

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			threshold := int(mean.Pix[y*mean.Stride+x]) - adaptiveOffset
			if int(src.Pix[y*src.Stride+x]) > threshold {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}
