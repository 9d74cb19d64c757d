package preprocess

import (
	"image"
	"math"
)

// gaussianKernel1D builds a normalized symmetric kernel. A non-positive sigma
// derives one from the kernel size the same way OpenCV does.
func gaussianKernel1D(size int, sigma float64) []float64 {
	if sigma <= 0 {
		sigma = 0.3*(float64(size-1)*0.5-1) + 0.8
	}
	kernel := make([]float64, size)
	mid := size / 2
	sum := 0.0
	for i := range kernel {
		d := float64(i - mid)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// gaussianBlur applies a separable Gaussian filter with edge clamping.
func gaussianBlur(src *image.Gray, size int, sigma float64) *image.Gray {
	kernel := gaussianKernel1D(size, sigma)
	mid := size / 2
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	horiz := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for k := -mid; k <= mid; k++ {
				xx := clampInt(x+k, 0, w-1)
				acc += kernel[k+mid] * float64(src.Pix[y*src.Stride+xx])
			}
			horiz[y*w+x] = acc
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for k := -mid; k <= mid; k++ {
				yy := clampInt(y+k, 0, h-1)
				acc += kernel[k+mid] * horiz[yy*w+x]
			}
			dst.Pix[y*dst.Stride+x] = uint8(clampInt(int(acc+0.5), 0, 255))
		}
	}
	return dst
}

// canny runs edge detection with a 3x3 Sobel aperture, non-maximum
// suppression, and double-threshold hysteresis. Output pixels are 255 on
// edges, 0 elsewhere.
func canny(src *image.Gray, lowThreshold, highThreshold float64) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	gx := make([]int32, w*h)
	gy := make([]int32, w*h)
	mag := make([]float64, w*h)

	at := func(x, y int) int32 {
		return int32(src.Pix[clampInt(y, 0, h-1)*src.Stride+clampInt(x, 0, w-1)])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := -at(x-1, y-1) + at(x+1, y-1) - 2*at(x-1, y) + 2*at(x+1, y) - at(x-1, y+1) + at(x+1, y+1)
			sy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) + at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			i := y*w + x
			gx[i], gy[i] = sx, sy
			// L1 gradient norm, matching the default aperture-3 behavior.
			mag[i] = math.Abs(float64(sx)) + math.Abs(float64(sy))
		}
	}

	// Non-maximum suppression along the quantized gradient direction.
	suppressed := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m == 0 {
				continue
			}
			angle := math.Atan2(float64(gy[i]), float64(gx[i]))
			var a, b float64
			switch quantizeDirection(angle) {
			case 0: // horizontal gradient, compare left/right
				a, b = mag[i-1], mag[i+1]
			case 1: // 45 degrees
				a, b = mag[(y-1)*w+x+1], mag[(y+1)*w+x-1]
			case 2: // vertical gradient, compare up/down
				a, b = mag[(y-1)*w+x], mag[(y+1)*w+x]
			default: // 135 degrees
				a, b = mag[(y-1)*w+x-1], mag[(y+1)*w+x+1]
			}
			if m >= a && m >= b {
				suppressed[i] = m
			}
		}
	}

	// Double threshold with hysteresis: strong pixels seed a flood fill that
	// promotes connected weak pixels.
	const (
		weak   = 1
		strong = 2
	)
	marks := make([]uint8, w*h)
	stack := make([]int, 0, 1024)
	for i, m := range suppressed {
		if m >= highThreshold {
			marks[i] = strong
			stack = append(stack, i)
		} else if m >= lowThreshold {
			marks[i] = weak
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if dst.Pix[i] == 255 {
			continue
		}
		dst.Pix[i] = 255
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				n := ny*w + nx
				if marks[n] == weak && dst.Pix[n] == 0 {
					marks[n] = strong
					stack = append(stack, n)
				}
			}
		}
	}
	return dst
}

// quantizeDirection buckets a gradient angle into one of four sectors.
func quantizeDirection(angle float64) int {
	deg := angle * 180 / math.Pi
	if deg < 0 {
		deg += 180
	}
	switch {
	case deg < 22.5 || deg >= 157.5:
		return 0
	case deg < 67.5:
		return 1
	case deg < 112.5:
		return 2
	default:
		return 3
	}
}

// clampInt bounds v to [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
