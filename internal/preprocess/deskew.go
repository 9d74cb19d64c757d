package preprocess

import (
	"image"
	"math"
	"sort"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

const (
	// Rotations below this magnitude are treated as measurement noise and
	// skipped rather than corrected.
	minSkewDegrees = 0.5

	houghVoteThreshold = 200
	cannyLowThreshold  = 50
	cannyHighThreshold = 150
)

// detectSkewAngle estimates page rotation from the dominant near-horizontal
// line population. It returns 0 when no reliable measurement exists.
func detectSkewAngle(src *image.Gray) float64 {
	edges := canny(src, cannyLowThreshold, cannyHighThreshold)
	thetas := houghLines(edges, houghVoteThreshold)
	if len(thetas) == 0 {
		return 0
	}

	angles := make([]float64, 0, len(thetas))
	for _, theta := range thetas {
		angle := theta*180/math.Pi - 90
		// Staff lines are horizontal; near-vertical detections are barlines
		// or page edges and would poison the estimate.
		if angle > -45 && angle < 45 {
			angles = append(angles, angle)
		}
	}
	if len(angles) == 0 {
		return 0
	}

	// Median rather than mean keeps single outlier lines from dragging the
	// correction off.
	sort.Float64s(angles)
	mid := len(angles) / 2
	if len(angles)%2 == 1 {
		return angles[mid]
	}
	return (angles[mid-1] + angles[mid]) / 2
}

// houghLines runs a standard Hough transform over edge pixels at 1 degree
// angular and 1 pixel radial resolution, returning the theta of every line
// reaching the vote threshold.
func houghLines(edges *image.Gray, threshold int) []float64 {
	w, h := edges.Bounds().Dx(), edges.Bounds().Dy()
	maxRho := int(math.Ceil(math.Hypot(float64(w), float64(h))))
	const numThetas = 180

	sinTab := make([]float64, numThetas)
	cosTab := make([]float64, numThetas)
	for t := 0; t < numThetas; t++ {
		theta := float64(t) * math.Pi / numThetas
		sinTab[t] = math.Sin(theta)
		cosTab[t] = math.Cos(theta)
	}

	acc := make([]int32, (2*maxRho+1)*numThetas)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if edges.Pix[y*edges.Stride+x] == 0 {
				continue
			}
			for t := 0; t < numThetas; t++ {
				rho := int(math.Round(float64(x)*cosTab[t] + float64(y)*sinTab[t]))
				acc[(rho+maxRho)*numThetas+t]++
			}
		}
	}

	var thetas []float64
	for r := 0; r < 2*maxRho+1; r++ {
		for t := 0; t < numThetas; t++ {
			if int(acc[r*numThetas+t]) >= threshold {
				thetas = append(thetas, float64(t)*math.Pi/numThetas)
			}
		}
	}
	return thetas
}

// deskew measures skew and, when significant, rotates the image level. The
// canvas expands so no content is cropped and new border pixels are white.
// It returns the applied angle in degrees, 0 when rotation was skipped.
func deskew(src *image.Gray) (*image.Gray, float64) {
	angle := detectSkewAngle(src)
	if math.Abs(angle) < minSkewDegrees {
		return src, 0
	}
	return rotateExpand(src, -angle), angle
}

// rotateExpand rotates by degrees counter-clockwise around the image center
// onto an expanded white canvas using cubic interpolation.
func rotateExpand(src *image.Gray, degrees float64) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	absSin, absCos := math.Abs(sin), math.Abs(cos)

	newW := int(float64(h)*absSin + float64(w)*absCos)
	newH := int(float64(h)*absCos + float64(w)*absSin)

	dst := image.NewGray(image.Rect(0, 0, newW, newH))
	for i := range dst.Pix {
		dst.Pix[i] = 255
	}

	// Source-to-destination affine: rotate about the source center, then
	// recenter on the expanded canvas.
	cx, cy := float64(w)/2, float64(h)/2
	ncx, ncy := float64(newW)/2, float64(newH)/2
	m := f64.Aff3{
		cos, -sin, ncx - cos*cx + sin*cy,
		sin, cos, ncy - sin*cx - cos*cy,
	}
	draw.CatmullRom.Transform(dst, m, src, src.Bounds(), draw.Over, nil)
	return dst
}
