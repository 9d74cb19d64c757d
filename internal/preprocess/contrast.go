package preprocess

import "image"

const (
	claheClipLimit = 2.0
	claheTileGrid  = 8
)

// enhanceContrast applies contrast-limited adaptive histogram equalization
// over an 8x8 tile grid. Tiled equalization handles the uneven illumination
// common in score photographs where a single global pass would not.
func enhanceContrast(src *image.Gray) *image.Gray {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return src
	}

	tileW := (w + claheTileGrid - 1) / claheTileGrid
	tileH := (h + claheTileGrid - 1) / claheTileGrid

	// Per-tile clipped-histogram lookup tables.
	luts := make([][256]uint8, claheTileGrid*claheTileGrid)
	for ty := 0; ty < claheTileGrid; ty++ {
		for tx := 0; tx < claheTileGrid; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := minInt(x0+tileW, w), minInt(y0+tileH, h)

			var hist [256]int
			pixels := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[src.Pix[y*src.Stride+x]]++
					pixels++
				}
			}
			if pixels == 0 {
				continue
			}

			clip := int(claheClipLimit * float64(pixels) / 256)
			if clip < 1 {
				clip = 1
			}
			excess := 0
			for i := range hist {
				if hist[i] > clip {
					excess += hist[i] - clip
					hist[i] = clip
				}
			}
			// Redistribute clipped mass uniformly across all bins.
			perBin := excess / 256
			remainder := excess % 256
			for i := range hist {
				hist[i] += perBin
				if i < remainder {
					hist[i]++
				}
			}

			cdf := 0
			lut := &luts[ty*claheTileGrid+tx]
			for i := range hist {
				cdf += hist[i]
				lut[i] = uint8(clampInt(cdf*255/pixels, 0, 255))
			}
		}
	}

	// Bilinear interpolation between the four surrounding tile mappings
	// removes visible tile seams.
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)/float64(tileH) - 0.5
		ty0 := clampInt(int(fy), 0, claheTileGrid-1)
		ty1 := clampInt(ty0+1, 0, claheTileGrid-1)
		wy := fy - float64(ty0)
		if wy < 0 {
			wy = 0
		}
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)/float64(tileW) - 0.5
			tx0 := clampInt(int(fx), 0, claheTileGrid-1)
			tx1 := clampInt(tx0+1, 0, claheTileGrid-1)
			wx := fx - float64(tx0)
			if wx < 0 {
				wx = 0
			}

			v := src.Pix[y*src.Stride+x]
			top := (1-wx)*float64(luts[ty0*claheTileGrid+tx0][v]) + wx*float64(luts[ty0*claheTileGrid+tx1][v])
			bottom := (1-wx)*float64(luts[ty1*claheTileGrid+tx0][v]) + wx*float64(luts[ty1*claheTileGrid+tx1][v])
			dst.Pix[y*dst.Stride+x] = uint8(clampInt(int((1-wy)*top+wy*bottom+0.5), 0, 255))
		}
	}
	return dst
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
