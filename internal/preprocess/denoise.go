package preprocess

import (
	"image"
	"math"
)

const (
	nlmFilterStrength = 10.0
	nlmTemplateRadius = 3  // 7x7 template window
	nlmSearchRadius   = 10 // 21x21 search window
)

// reflectIndex maps an out-of-range coordinate into [0, n) by mirroring
// around the border pixel without repeating it.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// denoise applies edge-preserving non-local-means smoothing. Parameters are
// fixed for print-on-paper photographs; only the on/off toggle is exposed.
//
// Patch distances are computed per search offset from squared shifted
// differences with sliding template sums, so the cost per offset is linear in
// the pixel count instead of quadratic in the template size. Borders are
// mirrored so edge patches compare against real image content.
func denoise(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	const pad = nlmSearchRadius + nlmTemplateRadius
	pw, ph := w+2*pad, h+2*pad
	padded := make([]float64, pw*ph)
	for y := 0; y < ph; y++ {
		srcRow := reflectIndex(y-pad, h) * src.Stride
		for x := 0; x < pw; x++ {
			padded[y*pw+x] = float64(src.Pix[srcRow+reflectIndex(x-pad, w)])
		}
	}

	h2 := nlmFilterStrength * nlmFilterStrength
	patchArea := float64((2*nlmTemplateRadius + 1) * (2*nlmTemplateRadius + 1))

	// Weight lookup avoids recomputing exp for repeated distances.
	expTab := make([]float64, 256*256/8+1)
	for i := range expTab {
		expTab[i] = math.Exp(-float64(i*8) / h2)
	}
	weightFor := func(d2 float64) float64 {
		idx := int(d2 / 8)
		if idx >= len(expTab) {
			return 0
		}
		return expTab[idx]
	}

	sum := make([]float64, w*h)
	weightSum := make([]float64, w*h)
	diff := make([]float64, pw*ph)
	rowSum := make([]float64, pw*ph)

	for sy := -nlmSearchRadius; sy <= nlmSearchRadius; sy++ {
		for sx := -nlmSearchRadius; sx <= nlmSearchRadius; sx++ {
			off := sy*pw + sx

			// Squared difference against the shifted image, over every
			// pixel any template window below can touch.
			for y := pad - nlmTemplateRadius; y < pad+h+nlmTemplateRadius; y++ {
				base := y * pw
				for x := pad - nlmTemplateRadius; x < pad+w+nlmTemplateRadius; x++ {
					d := padded[base+x] - padded[base+x+off]
					diff[base+x] = d * d
				}
			}

			// Horizontal template sums, sliding window per row.
			for y := pad - nlmTemplateRadius; y < pad+h+nlmTemplateRadius; y++ {
				base := y * pw
				var s float64
				for t := -nlmTemplateRadius; t <= nlmTemplateRadius; t++ {
					s += diff[base+pad+t]
				}
				for x := pad; ; {
					rowSum[base+x] = s
					x++
					if x >= pad+w {
						break
					}
					s += diff[base+x+nlmTemplateRadius] - diff[base+x-nlmTemplateRadius-1]
				}
			}

			// Vertical template sums complete the patch distance; fold the
			// candidate's weighted value in directly.
			for x := pad; x < pad+w; x++ {
				var s float64
				for t := -nlmTemplateRadius; t <= nlmTemplateRadius; t++ {
					s += rowSum[(pad+t)*pw+x]
				}
				for y := pad; ; {
					i := (y-pad)*w + (x - pad)
					weight := weightFor(s / patchArea)
					sum[i] += weight * padded[(y+sy)*pw+(x+sx)]
					weightSum[i] += weight
					y++
					if y >= pad+h {
						break
					}
					s += rowSum[(y+nlmTemplateRadius)*pw+x] - rowSum[(y-nlmTemplateRadius-1)*pw+x]
				}
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if weightSum[i] == 0 {
				dst.Pix[y*dst.Stride+x] = src.Pix[y*src.Stride+x]
				continue
			}
			dst.Pix[y*dst.Stride+x] = uint8(clampInt(int(sum[i]/weightSum[i]+0.5), 0, 255))
		}
	}
	return dst
}
