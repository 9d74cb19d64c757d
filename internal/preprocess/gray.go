package preprocess

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// toGray converts any decoded image to an 8-bit single-channel buffer using
// ITU-R 601 luma weights. Already-gray images are passed through untouched.
func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}

	bounds := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := src.At(x, y).RGBA()
			// 0.299 R + 0.587 G + 0.114 B on 16-bit channels.
			luma := (19595*r + 38470*g + 7471*b + 1<<15) >> 24
			dst.Pix[(y-bounds.Min.Y)*dst.Stride+(x-bounds.Min.X)] = uint8(luma)
		}
	}
	return dst
}

// loadImage decodes a PNG or JPEG file.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// saveGray writes a grayscale image, choosing the encoder from the extension.
// The file is written to a sibling temp path and renamed so a failed encode
// never leaves a partial artifact behind.
func saveGray(path string, img *image.Gray) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".normalize-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	var encodeErr error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		encodeErr = jpeg.Encode(tmp, img, &jpeg.Options{Quality: 95})
	default:
		encodeErr = png.Encode(tmp, img)
	}
	closeErr := tmp.Close()

	if encodeErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if encodeErr != nil {
			return fmt.Errorf("encode %s: %w", path, encodeErr)
		}
		return closeErr
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
