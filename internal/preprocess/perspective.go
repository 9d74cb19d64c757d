package preprocess

import (
	"image"
	"math"
)

// pointF is a sub-pixel image coordinate.
type pointF struct {
	X, Y float64
}

// correctPerspective tries to detect the photographed page boundary and
// unwarp it into a flat rectangle. It is best-effort: when no clean
// quadrilateral is found the input is returned unchanged, never an error.
func correctPerspective(src *image.Gray) *image.Gray {
	blurred := gaussianBlur(src, 5, 0)
	edges := canny(blurred, cannyLowThreshold, cannyHighThreshold)

	contours := findContours(edges)
	if len(contours) == 0 {
		return src
	}

	// Largest five by area are the only plausible page boundaries.
	sortContoursByArea(contours)
	if len(contours) > 5 {
		contours = contours[:5]
	}

	var quad []pointF
	for _, contour := range contours {
		approx := approxPolyClosed(contour, 0.02*arcLength(contour))
		if len(approx) == 4 {
			quad = approx
			break
		}
	}
	if quad == nil {
		return src
	}

	rect := orderCorners(quad)
	tl, tr, br, bl := rect[0], rect[1], rect[2], rect[3]

	// Destination size takes the longer of each opposing edge pair so no
	// content is squeezed out.
	widthA := math.Hypot(br.X-bl.X, br.Y-bl.Y)
	widthB := math.Hypot(tr.X-tl.X, tr.Y-tl.Y)
	maxWidth := int(math.Max(widthA, widthB))

	heightA := math.Hypot(tr.X-br.X, tr.Y-br.Y)
	heightB := math.Hypot(tl.X-bl.X, tl.Y-bl.Y)
	maxHeight := int(math.Max(heightA, heightB))

	if maxWidth < 2 || maxHeight < 2 {
		return src
	}

	dst := [4]pointF{
		{0, 0},
		{float64(maxWidth - 1), 0},
		{float64(maxWidth - 1), float64(maxHeight - 1)},
		{0, float64(maxHeight - 1)},
	}

	// Solve the destination-to-source homography directly so warping is a
	// straight inverse mapping.
	homography, ok := solveHomography(dst, rect)
	if !ok {
		return src
	}
	return warpPerspective(src, homography, maxWidth, maxHeight)
}

// orderCorners arranges 4 points as top-left, top-right, bottom-right,
// bottom-left using the coordinate sum/difference heuristic.
func orderCorners(points []pointF) [4]pointF {
	var rect [4]pointF
	minSum, maxSum := math.Inf(1), math.Inf(-1)
	minDiff, maxDiff := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		sum, diff := p.X+p.Y, p.X-p.Y
		if sum < minSum {
			minSum, rect[0] = sum, p // top-left
		}
		if sum > maxSum {
			maxSum, rect[2] = sum, p // bottom-right
		}
		if diff > maxDiff {
			maxDiff, rect[1] = diff, p // top-right
		}
		if diff < minDiff {
			minDiff, rect[3] = diff, p // bottom-left
		}
	}
	return rect
}

// findContours traces the outer boundary of every 8-connected edge component.
func findContours(edges *image.Gray) [][]pointF {
	w, h := edges.Bounds().Dx(), edges.Bounds().Dy()
	visited := make([]bool, w*h)
	isSet := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && edges.Pix[y*edges.Stride+x] != 0
	}

	var contours [][]pointF
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !isSet(x, y) || visited[i] {
				continue
			}
			contour := traceBoundary(isSet, x, y)
			// Flood-mark the whole component so it is traced only once.
			markComponent(edges, visited, x, y)
			if len(contour) >= 4 {
				contours = append(contours, contour)
			}
		}
	}
	return contours
}

// mooreOffsets is the clockwise 8-neighborhood starting at west.
var mooreOffsets = [8][2]int{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1},
}

// traceBoundary walks the outer contour with Moore neighbor tracing starting
// from the component's first raster-scan pixel.
func traceBoundary(isSet func(x, y int) bool, startX, startY int) []pointF {
	contour := []pointF{{float64(startX), float64(startY)}}
	cx, cy := startX, startY
	prevDir := 0

	for {
		found := false
		for k := 0; k < 8; k++ {
			dir := (prevDir + k) % 8
			nx, ny := cx+mooreOffsets[dir][0], cy+mooreOffsets[dir][1]
			if isSet(nx, ny) {
				cx, cy = nx, ny
				// Back up two steps so the next scan starts just past the
				// pixel we came from.
				prevDir = (dir + 6) % 8
				found = true
				break
			}
		}
		if !found {
			break // isolated pixel
		}
		if cx == startX && cy == startY {
			break
		}
		contour = append(contour, pointF{float64(cx), float64(cy)})
		if len(contour) > 100000 {
			break
		}
	}
	return contour
}

// markComponent flood-fills visited flags for one 8-connected component.
func markComponent(edges *image.Gray, visited []bool, x, y int) {
	w, h := edges.Bounds().Dx(), edges.Bounds().Dy()
	stack := [][2]int{{x, y}}
	visited[y*w+x] = true
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, off := range mooreOffsets {
			nx, ny := p[0]+off[0], p[1]+off[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			i := ny*w + nx
			if !visited[i] && edges.Pix[ny*edges.Stride+nx] != 0 {
				visited[i] = true
				stack = append(stack, [2]int{nx, ny})
			}
		}
	}
}

// contourArea computes the absolute shoelace area of a closed contour.
func contourArea(contour []pointF) float64 {
	if len(contour) < 3 {
		return 0
	}
	sum := 0.0
	for i := range contour {
		j := (i + 1) % len(contour)
		sum += contour[i].X*contour[j].Y - contour[j].X*contour[i].Y
	}
	return math.Abs(sum) / 2
}

// arcLength computes the closed perimeter of a contour.
func arcLength(contour []pointF) float64 {
	if len(contour) < 2 {
		return 0
	}
	total := 0.0
	for i := range contour {
		j := (i + 1) % len(contour)
		total += math.Hypot(contour[j].X-contour[i].X, contour[j].Y-contour[i].Y)
	}
	return total
}

// sortContoursByArea orders contours largest-area first.
func sortContoursByArea(contours [][]pointF) {
	for i := 1; i < len(contours); i++ {
		for j := i; j > 0 && contourArea(contours[j]) > contourArea(contours[j-1]); j-- {
			contours[j], contours[j-1] = contours[j-1], contours[j]
		}
	}
}

// approxPolyClosed simplifies a closed contour with Douglas-Peucker. The
// contour is split at its two mutually farthest anchor points and each open
// half is simplified against epsilon.
func approxPolyClosed(contour []pointF, epsilon float64) []pointF {
	if len(contour) < 3 {
		return contour
	}

	// Anchor on the point farthest from contour[0].
	far := 0
	maxDist := -1.0
	for i, p := range contour {
		d := math.Hypot(p.X-contour[0].X, p.Y-contour[0].Y)
		if d > maxDist {
			maxDist, far = d, i
		}
	}
	if far == 0 {
		return contour[:1]
	}

	wrapped := make([]pointF, 0, len(contour)-far+1)
	wrapped = append(wrapped, contour[far:]...)
	wrapped = append(wrapped, contour[0])

	first := douglasPeucker(contour[:far+1], epsilon)
	second := douglasPeucker(wrapped, epsilon)

	// Join halves, dropping the duplicated anchors.
	result := append([]pointF{}, first...)
	if len(second) > 2 {
		result = append(result, second[1:len(second)-1]...)
	}
	return result
}

// douglasPeucker simplifies an open polyline to within epsilon.
func douglasPeucker(points []pointF, epsilon float64) []pointF {
	if len(points) < 3 {
		return points
	}

	maxDist := 0.0
	index := 0
	a, b := points[0], points[len(points)-1]
	for i := 1; i < len(points)-1; i++ {
		d := perpendicularDistance(points[i], a, b)
		if d > maxDist {
			maxDist, index = d, i
		}
	}

	if maxDist <= epsilon {
		return []pointF{a, b}
	}

	left := douglasPeucker(points[:index+1], epsilon)
	right := douglasPeucker(points[index:], epsilon)

	merged := make([]pointF, 0, len(left)+len(right)-1)
	merged = append(merged, left[:len(left)-1]...)
	merged = append(merged, right...)
	return merged
}

// perpendicularDistance measures point-to-segment-line distance.
func perpendicularDistance(p, a, b pointF) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	return math.Abs(dy*p.X-dx*p.Y+b.X*a.Y-b.Y*a.X) / length
}

// solveHomography computes the 3x3 projective transform mapping src[i] to
// dst[i] by Gaussian elimination over the standard 8x9 system.
func solveHomography(src, dst [4]pointF) ([9]float64, bool) {
	var m [8][9]float64
	for i := 0; i < 4; i++ {
		sx, sy := src[i].X, src[i].Y
		dx, dy := dst[i].X, dst[i].Y
		m[2*i] = [9]float64{sx, sy, 1, 0, 0, 0, -dx * sx, -dx * sy, dx}
		m[2*i+1] = [9]float64{0, 0, 0, sx, sy, 1, -dy * sx, -dy * sy, dy}
	}

	for col := 0; col < 8; col++ {
		pivot := col
		for row := col + 1; row < 8; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < 1e-10 {
			return [9]float64{}, false
		}
		m[col], m[pivot] = m[pivot], m[col]

		for row := 0; row < 8; row++ {
			if row == col {
				continue
			}
			factor := m[row][col] / m[col][col]
			for k := col; k < 9; k++ {
				m[row][k] -= factor * m[col][k]
			}
		}
	}

	var h [9]float64
	for i := 0; i < 8; i++ {
		h[i] = m[i][8] / m[i][i]
	}
	h[8] = 1
	return h, true
}

// warpPerspective renders the unwarped page by inverse-mapping every output
// pixel through the destination-to-source homography with bilinear sampling.
func warpPerspective(src *image.Gray, h [9]float64, width, height int) *image.Gray {
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
	dst := image.NewGray(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fx, fy := float64(x), float64(y)
			denom := h[6]*fx + h[7]*fy + h[8]
			if denom == 0 {
				continue
			}
			sx := (h[0]*fx + h[1]*fy + h[2]) / denom
			sy := (h[3]*fx + h[4]*fy + h[5]) / denom
			dst.Pix[y*dst.Stride+x] = bilinearSample(src, sx, sy, sw, sh)
		}
	}
	return dst
}

// bilinearSample reads a sub-pixel value, clamping outside coordinates to 0.
func bilinearSample(src *image.Gray, x, y float64, w, h int) uint8 {
	if x < 0 || y < 0 || x > float64(w-1) || y > float64(h-1) {
		return 0
	}
	x0, y0 := int(x), int(y)
	x1, y1 := minInt(x0+1, w-1), minInt(y0+1, h-1)
	fx, fy := x-float64(x0), y-float64(y0)

	p00 := float64(src.Pix[y0*src.Stride+x0])
	p10 := float64(src.Pix[y0*src.Stride+x1])
	p01 := float64(src.Pix[y1*src.Stride+x0])
	p11 := float64(src.Pix[y1*src.Stride+x1])

	top := p00*(1-fx) + p10*fx
	bottom := p01*(1-fx) + p11*fx
	return uint8(top*(1-fy) + bottom*fy + 0.5)
}
